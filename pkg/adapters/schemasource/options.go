package schemasource

import "fmt"

// StringOption reads a string from a config map. Missing or non-string
// values return def.
func StringOption(config map[string]any, key, def string) string {
	if v, ok := config[key].(string); ok && v != "" {
		return v
	}
	return def
}

// RequiredString reads a non-empty string or reports it missing.
func RequiredString(config map[string]any, key string) (string, error) {
	v := StringOption(config, key, "")
	if v == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return v, nil
}

// IntOption reads an integer, accepting JSON numbers (float64) and ints.
func IntOption(config map[string]any, key string, def int) int {
	switch v := config[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}

// BoolOption reads a bool, accepting "true"/"false" strings.
func BoolOption(config map[string]any, key string, def bool) bool {
	switch v := config[key].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	}
	return def
}
