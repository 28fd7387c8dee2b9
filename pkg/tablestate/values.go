package tablestate

import (
	"encoding/json"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// asInt narrows a decoded bucket value to an integer.
// Integral floats, Go integers and numeric strings qualify.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case int32:
		return int(n), true
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) || n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	default:
		return 0, false
	}
}

// asFloat narrows a decoded bucket value to a finite number.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
	default:
		return 0, false
	}
}

// isEmptyValue reports nil, "", and empty arrays or maps.
func isEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// isFalsy reports the values a scalar slice treats as absent:
// nil, false, 0 and "".
func isFalsy(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case bool:
		return !t
	case string:
		return t == ""
	}
	if f, ok := v.(float64); ok {
		return f == 0
	}
	if i, ok := v.(int); ok {
		return i == 0
	}
	return false
}

// valuesEqual compares filter values, treating numbers of any Go type as
// equal when their float64 forms match.
func valuesEqual(a, b any) bool {
	fa, aNum := number(a)
	fb, bNum := number(b)
	if aNum && bNum {
		return fa == fb
	}
	return reflect.DeepEqual(a, b)
}

func number(v any) (float64, bool) {
	switch v.(type) {
	case float64, float32, int, int64, int32, json.Number:
		return asFloat(v)
	}
	return 0, false
}

// jsonValue converts v to its generic JSON form (float64, string, bool,
// []any, map[string]any). Bucket contents always use this form so that
// values compare equal across a write and a later read.
func jsonValue(v any) (any, error) {
	switch v.(type) {
	case nil, string, bool, float64:
		return v, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// decodeInto converts a generic bucket value into dst. A JSON string is
// accepted as an encoded form of the value.
func decodeInto(raw any, dst any) error {
	if s, ok := raw.(string); ok {
		return json.Unmarshal([]byte(s), dst)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

// sameAs returns initial when v is structurally equal to it, else v.
func sameAs[T any](v, initial T) T {
	if reflect.DeepEqual(v, initial) {
		return initial
	}
	return v
}
