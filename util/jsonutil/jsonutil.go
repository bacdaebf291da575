package jsonutil

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// IntString is a string that unmarshals from either a JSON string or a JSON number.
// Bidder params and response exts are loosely typed; callers get the value back as
// its string form either way.
type IntString string

func (st *IntString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return errors.New("cannot unmarshal JSON null into string")
	}

	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*st = IntString(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*st = IntString(n.String())
	return nil
}

// Int64 parses the value as a base-10 integer.
func (st IntString) Int64() (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(string(st)), 10, 64)
}

// Float64 parses the value as a float.
func (st IntString) Float64() (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(string(st)), 64)
}
