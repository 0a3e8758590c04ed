package json

import (
	"encoding/json"
	"io"
)

// Source reads a stream of json objects.
type Source struct {
	dec *json.Decoder
}

// NewSource gets a new json source which will decode from the given reader.
func NewSource(r io.Reader) *Source {
	return &Source{
		dec: json.NewDecoder(r),
	}
}

// Record returns the next json object that can be decoded from the reader.
// It is guaranteed to return a map[string]interface{} if there is no error,
// and io.EOF at the end of the stream.
func (s *Source) Record() (rec map[string]interface{}, err error) {
	var res map[string]interface{}
	err = s.dec.Decode(&res)
	if err != nil {
		return nil, err
	}
	return res, nil
}
