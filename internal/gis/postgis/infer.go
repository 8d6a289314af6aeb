package postgis

import (
	"strconv"
	"strings"

	"github.com/EmpoweredVote/tract-census/internal/gis"
)

// inferTypes picks a column type for each CSV column from its values. Empty
// cells are ignored. Integers with a leading zero stay text so identifiers
// such as "0100" keep their digits.
func inferTypes(records [][]string, width int) []gis.FieldType {
	types := make([]gis.FieldType, width)
	for col := 0; col < width; col++ {
		isInt, isFloat, seen := true, true, false
		for _, rec := range records {
			if col >= len(rec) {
				continue
			}
			v := strings.TrimSpace(rec[col])
			if v == "" {
				continue
			}
			seen = true
			if hasLeadingZero(v) {
				isInt, isFloat = false, false
				break
			}
			if isInt && !looksInteger(v) {
				isInt = false
			}
			if isFloat {
				if _, err := strconv.ParseFloat(v, 64); err != nil {
					isFloat = false
				}
			}
			if !isInt && !isFloat {
				break
			}
		}
		switch {
		case !seen:
			types[col] = gis.FieldText
		case isInt:
			types[col] = gis.FieldInteger
		case isFloat:
			types[col] = gis.FieldDouble
		default:
			types[col] = gis.FieldText
		}
	}
	return types
}

func looksInteger(v string) bool {
	if hasLeadingZero(v) {
		return false
	}
	_, err := strconv.ParseInt(v, 10, 64)
	return err == nil
}

// hasLeadingZero reports identifier-style digits like "0100" (but not "0.5").
func hasLeadingZero(v string) bool {
	digits := strings.TrimPrefix(v, "-")
	return len(digits) > 1 && digits[0] == '0' && digits[1] != '.'
}

// convertValue turns a CSV cell into the Go value COPY expects for typ.
func convertValue(v string, typ gis.FieldType) (any, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	switch typ {
	case gis.FieldInteger:
		return strconv.ParseInt(v, 10, 64)
	case gis.FieldDouble:
		return strconv.ParseFloat(v, 64)
	default:
		return v, nil
	}
}
