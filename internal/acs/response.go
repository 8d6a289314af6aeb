package acs

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// GeoIDPrefix is the tract summary-level prefix the API puts on GEO_ID.
const GeoIDPrefix = "14000US"

// ErrNoData is returned when there is no ACS response to work with.
var ErrNoData = errors.New("no ACS data")

// Table is a decoded ACS response: a header plus data rows.
type Table struct {
	Header []string
	Rows   [][]string
}

// ParseResponse decodes the API's array-of-arrays payload. The first row is
// the header. JSON nulls become empty strings.
func ParseResponse(raw json.RawMessage) (Table, error) {
	if len(raw) == 0 {
		return Table{}, ErrNoData
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var data [][]any
	if err := dec.Decode(&data); err != nil {
		return Table{}, fmt.Errorf("decode ACS response: %w", err)
	}
	if len(data) == 0 {
		return Table{}, ErrNoData
	}

	t := Table{Header: cells(data[0])}
	t.Rows = make([][]string, 0, len(data)-1)
	for i := 1; i < len(data); i++ {
		t.Rows = append(t.Rows, cells(data[i]))
	}
	return t, nil
}

func cells(row []any) []string {
	out := make([]string, len(row))
	for i, v := range row {
		switch x := v.(type) {
		case nil:
			out[i] = ""
		case string:
			out[i] = x
		case json.Number:
			out[i] = x.String()
		default:
			out[i] = fmt.Sprint(x)
		}
	}
	return out
}

// StripGeoPrefix removes the summary-level prefix once, leaving the raw
// tract GEOID.
func StripGeoPrefix(geoID string) string {
	return strings.TrimPrefix(geoID, GeoIDPrefix)
}

// GeoIDColumn returns the index of GEO_ID in the header, falling back to the
// second column where the query always places it.
func (t Table) GeoIDColumn() int {
	for i, h := range t.Header {
		if h == "GEO_ID" {
			return i
		}
	}
	return 1
}
