package tablestate

import (
	"reflect"
	"strconv"
)

// Range sentinels marking an unbounded side.
const (
	UnboundedNumber = -1.0
	UnboundedDate   = ""
)

// Sanitize coerces a raw filter value to the shape its variant requires.
// For select and multiSelect, a non-empty option list restricts the accepted
// values and matches are normalized to the option's value. ok is false when
// nothing usable remains.
func Sanitize(meta FilterMeta, value any) (any, bool) {
	if isEmptyValue(value) {
		return nil, false
	}
	switch meta.Variant {
	case VariantText:
		return sanitizeText(value)
	case VariantNumber:
		f, ok := asFloat(value)
		if !ok {
			return nil, false
		}
		return f, true
	case VariantDate:
		s, ok := value.(string)
		return s, ok && s != ""
	case VariantSelect:
		if !isScalar(value) {
			return nil, false
		}
		return matchOption(meta.Options, value)
	case VariantMultiSelect:
		return sanitizeMulti(meta.Options, value)
	case VariantNumberRange:
		return sanitizeNumberRange(value)
	case VariantDateRange:
		return sanitizeDateRange(value)
	default:
		return nil, false
	}
}

func sanitizeText(value any) (any, bool) {
	switch v := value.(type) {
	case string:
		return v, v != ""
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(v), true
	}
	return nil, false
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, float64, float32, int, int64, int32, bool:
		return true
	}
	return false
}

// matchOption returns the option value equal to v. Without options any
// scalar is accepted unchanged.
func matchOption(options []FilterOption, v any) (any, bool) {
	if len(options) == 0 {
		return v, true
	}
	for _, o := range options {
		if valuesEqual(o.Value, v) {
			return o.Value, true
		}
	}
	return nil, false
}

func sanitizeMulti(options []FilterOption, value any) (any, bool) {
	items, ok := toSlice(value)
	if !ok {
		if !isScalar(value) {
			return nil, false
		}
		items = []any{value}
	}
	out := make([]any, 0, len(items))
	for _, item := range items {
		if !isScalar(item) || isEmptyValue(item) {
			continue
		}
		matched, ok := matchOption(options, item)
		if !ok || containsValue(out, matched) {
			continue
		}
		out = append(out, matched)
	}
	return out, len(out) > 0
}

func sanitizeNumberRange(value any) (any, bool) {
	items, ok := toSlice(value)
	if !ok || len(items) != 2 {
		return nil, false
	}
	bound := func(v any) float64 {
		if s, ok := v.(string); ok && s == "" {
			return UnboundedNumber
		}
		f, ok := asFloat(v)
		if !ok {
			return UnboundedNumber
		}
		return f
	}
	lo, hi := bound(items[0]), bound(items[1])
	if lo == UnboundedNumber && hi == UnboundedNumber {
		return nil, false
	}
	return []any{lo, hi}, true
}

func sanitizeDateRange(value any) (any, bool) {
	items, ok := toSlice(value)
	if !ok || len(items) != 2 {
		return nil, false
	}
	bound := func(v any) string {
		s, _ := v.(string)
		return s
	}
	from, to := bound(items[0]), bound(items[1])
	if from == UnboundedDate && to == UnboundedDate {
		return nil, false
	}
	return []any{from, to}, true
}

// toSlice converts any slice value to []any.
func toSlice(v any) ([]any, bool) {
	if s, ok := v.([]any); ok {
		return s, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func containsValue(list []any, v any) bool {
	for _, item := range list {
		if valuesEqual(item, v) {
			return true
		}
	}
	return false
}
