package dlite

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// Relation is a subject-predicate-object statement, like an RDF triple.
type Relation struct {
	S string
	P string
	O string
}

func (r Relation) String() string {
	return "(" + r.S + ", " + r.P + ", " + r.O + ")"
}

// MarshalJSON encodes the relation as a three element list.
func (r Relation) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]string{r.S, r.P, r.O})
}

// UnmarshalJSON decodes a three element list.
func (r *Relation) UnmarshalJSON(data []byte) error {
	var t []string
	if err := json.Unmarshal(data, &t); err != nil {
		return err
	}
	if len(t) != 3 {
		return errors.Errorf("relation must have 3 elements, got %d", len(t))
	}
	r.S, r.P, r.O = t[0], t[1], t[2]
	return nil
}

// LocalName returns the part of iri after the last '#', or iri itself if it
// contains no '#'.
func LocalName(iri string) string {
	return iri[strings.LastIndex(iri, "#")+1:]
}

// Partition splits relations into those whose subject contains marker
// (generators) and the rest (parsers). Input order is preserved within each
// group.
func Partition(relations []Relation, marker string) (generators, parsers []Relation) {
	for _, r := range relations {
		if strings.Contains(r.S, marker) {
			generators = append(generators, r)
		} else {
			parsers = append(parsers, r)
		}
	}
	return generators, parsers
}

// Reconcile resolves the properties of the entity identified by marker from
// the properties of another instance.
//
// Each generator relation (see Partition) is matched with the first parser
// relation sharing its object, skipping a parser relation with the same
// subject and object. If the local name of the matched parser subject is a
// property in props, its value is stored under the local name of the
// generator subject. Only the first object match is considered, even if its
// local name is not a property. Arrays are converted to nested lists, and
// later generators overwrite earlier ones with the same local name.
//
// Reconcile doesn't modify its arguments.
func Reconcile(relations []Relation, marker string, props Properties) map[string]interface{} {
	generators, parsers := Partition(relations, marker)

	existing := make(map[string]struct{})
	for _, name := range props.Names() {
		existing[name] = struct{}{}
	}

	out := make(map[string]interface{})
	for _, g := range generators {
		gName := LocalName(g.S)
		for _, p := range parsers {
			if p.S == g.S && p.O == g.O {
				continue
			}
			if p.O != g.O {
				continue
			}
			pName := LocalName(p.S)
			if _, ok := existing[pName]; ok {
				if v, ok := props.Get(pName); ok {
					out[gName] = plain(v)
				}
			}
			break
		}
	}
	return out
}
