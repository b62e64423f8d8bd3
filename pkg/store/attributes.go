package store

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Attributes flattens a record's top-level scalar JSON fields into strings.
// Backends maintain their secondary index from this map, so any scalar field
// of a record body is searchable through FindByAttribute.
//
// Nested objects, arrays, and nulls are not indexed. Booleans normalize to
// "true"/"false"; numbers to their shortest decimal form.
func Attributes(rec any) (map[string]string, error) {
	body, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("unmarshal record fields: %w", err)
	}

	attrs := make(map[string]string, len(fields))
	for name, value := range fields {
		s, ok := attributeValue(value)
		if !ok {
			continue
		}
		attrs[name] = s
	}
	return attrs, nil
}

func attributeValue(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case bool:
		return strconv.FormatBool(val), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	default:
		return "", false
	}
}
