package tokenizer

import (
	"encoding/json"
	"strconv"
)

// FlattenJSON parses msg as a JSON object and flattens it into a map of
// dot-separated paths to scalar values:
//
//	{"service": {"name": "x"}}  → service.name: x
//	{"spans": [{"d": 5}]}       → spans.0.d: 5
//
// Numbers are formatted without a trailing .0 when integral, booleans as
// true/false, nulls as the empty string. Returns false if msg is not a
// JSON object.
func FlattenJSON(msg []byte) (map[string]string, bool) {
	if len(msg) == 0 {
		return nil, false
	}

	i := skipSpaces(msg)
	if i >= len(msg) || msg[i] != '{' {
		return nil, false
	}

	var obj map[string]any
	if err := json.Unmarshal(msg, &obj); err != nil {
		return nil, false
	}

	fields := make(map[string]string)
	flattenObject("", obj, 0, fields)
	return fields, true
}

func flattenObject(prefix string, obj map[string]any, depth int, fields map[string]string) {
	if depth > MaxPathDepth {
		return
	}
	for k, v := range obj {
		if len(k) > MaxKeyLength {
			continue
		}
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		flattenValue(path, v, depth, fields)
	}
}

func flattenArray(prefix string, arr []any, depth int, fields map[string]string) {
	if depth > MaxPathDepth {
		return
	}
	for i, v := range arr {
		flattenValue(prefix+"."+strconv.Itoa(i), v, depth, fields)
	}
}

func flattenValue(path string, v any, depth int, fields map[string]string) {
	switch val := v.(type) {
	case string:
		if len(val) <= MaxValueLength {
			fields[path] = val
		}
	case float64:
		fields[path] = formatNumber(val)
	case bool:
		if val {
			fields[path] = "true"
		} else {
			fields[path] = "false"
		}
	case nil:
		fields[path] = ""
	case map[string]any:
		flattenObject(path, val, depth+1, fields)
	case []any:
		flattenArray(path, val, depth+1, fields)
	}
}

// formatNumber renders a JSON number the way it is usually written: integral
// values without a decimal point, everything else in shortest-float form.
func formatNumber(val float64) string {
	if val == float64(int64(val)) {
		return strconv.FormatInt(int64(val), 10)
	}
	return strconv.FormatFloat(val, 'f', -1, 64)
}
