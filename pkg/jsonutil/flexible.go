package jsonutil

import (
	"encoding/json"
	"strconv"
)

// FlexibleStringValue renders a raw JSON value as a name. Models sometimes
// answer {"item1": 42} or {"item1": true}; those become "42" and "true".
// null and empty input render as "". Arrays and objects are returned as
// their raw text so the lookup simply misses.
func FlexibleStringValue(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if i, err := n.Int64(); err == nil {
			return strconv.FormatInt(i, 10)
		}
		if f, err := n.Float64(); err == nil {
			return strconv.FormatFloat(f, 'g', -1, 64)
		}
		return n.String()
	}

	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return strconv.FormatBool(b)
	}

	return string(raw)
}
