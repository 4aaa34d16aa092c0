package transform

import (
	"strconv"
	"strings"
)

// getFieldValue walks a dotted path ("a.b.c") through nested
// map[string]interface{} values, generalizing the teacher's
// engine.go getFieldValue helper (originally used to evaluate
// transformation rule conditions) into the schema projector's field
// extractor.
func getFieldValue(data map[string]interface{}, path string) (interface{}, bool) {
	if path == "" {
		return nil, false
	}
	parts := strings.Split(path, ".")
	var current interface{} = data
	for _, part := range parts {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		v, ok := m[part]
		if !ok {
			return nil, false
		}
		current = v
	}
	return current, true
}

// flatten recursively dot-joins every nested object path into out.
// Arrays of scalars are kept as lists rather than exploded into
// indexed keys; arrays containing objects are flattened element-wise
// with an index segment. Null values are elided entirely rather than
// written as an explicit nil, matching spec.md §4.B.3.
func flatten(prefix string, value interface{}, out map[string]interface{}) {
	switch v := value.(type) {
	case nil:
		return
	case map[string]interface{}:
		for k, child := range v {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			flatten(key, child, out)
		}
	case []interface{}:
		if isScalarSlice(v) {
			if prefix != "" {
				out[prefix] = v
			}
			return
		}
		for i, child := range v {
			key := prefix
			if key != "" {
				key = key + "."
			}
			flatten(key+strconv.Itoa(i), child, out)
		}
	default:
		if prefix != "" {
			out[prefix] = v
		}
	}
}

func isScalarSlice(v []interface{}) bool {
	for _, e := range v {
		switch e.(type) {
		case map[string]interface{}, []interface{}:
			return false
		}
	}
	return true
}
