package influx

import (
	"bytes"
	"strconv"
	"strings"
	"text/template"

	"github.com/pkg/errors"
)

// Measurement names one InfluxDB measurement and the field read from it. The
// field name is also the property the values are copied to.
type Measurement struct {
	Measurement string `mapstructure:"measurement"`
	Field       string `mapstructure:"field"`
}

// DefaultMeasurements are the CTD sensor series of the Munkholmen buoy.
var DefaultMeasurements = []Measurement{
	{Measurement: "ctd_conductivity_munkholmen", Field: "conductivity"},
	{Measurement: "ctd_density_munkholmen", Field: "density"},
	{Measurement: "ctd_salinity_munkholmen", Field: "salinity"},
	{Measurement: "ctd_pressure_munkholmen", Field: "pressure"},
}

// Query holds the parameters of a Flux query joining several measurements
// on their timestamps.
type Query struct {
	Bucket       string
	TimeRange    string
	LimitSize    int
	Measurements []Measurement
}

var queryTmpl = template.Must(template.New("flux").Funcs(template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}).Parse(`
{{- range $i, $m := .Measurements }}
data{{ inc $i }} = from(bucket: "{{ $.Bucket }}")
  |> range(start: {{ $.TimeRange }})
  |> filter(fn: (r) => r._measurement == "{{ $m.Measurement }}")
  |> filter(fn: (r) => r._field == "{{ $m.Field }}")
  |> pivot(rowKey: ["_time"], columnKey: ["_field"], valueColumn: "_value")
  |> limit(n: {{ $.LimitSize }})
{{ end }}
{{- range $i, $left := .Joins }}
join{{ inc $i }} = join(
  tables: {
    left: {{ $left }},
    right: data{{ inc (inc $i) }}
  },
  on: ["_time"]
)
{{ end }}
finalData = {{ .Final }}
  |> keep(columns: ["_time", {{ .Fields }}])

finalData
`))

// Render returns the Flux text of q. Each measurement is read into its own
// dataN table, and the tables are joined pairwise into joinN.
func (q Query) Render() (string, error) {
	if len(q.Measurements) == 0 {
		return "", errors.New("no measurements")
	}
	var joins, fields []string
	for i := range q.Measurements[1:] {
		if i == 0 {
			joins = append(joins, "data1")
		} else {
			joins = append(joins, "join"+strconv.Itoa(i))
		}
	}
	for _, m := range q.Measurements {
		if m.Measurement == "" || m.Field == "" {
			return "", errors.Errorf("incomplete measurement %+v", m)
		}
		fields = append(fields, `"`+m.Field+`"`)
	}
	final := "data1"
	if len(joins) > 0 {
		final = "join" + strconv.Itoa(len(joins))
	}

	var buf bytes.Buffer
	err := queryTmpl.Execute(&buf, struct {
		Query
		Joins  []string
		Final  string
		Fields string
	}{q, joins, final, strings.Join(fields, ", ")})
	if err != nil {
		return "", errors.Wrap(err, "rendering flux query")
	}
	return strings.TrimSpace(buf.String()), nil
}
