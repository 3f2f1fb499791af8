package store

// nilEmpty returns nil for empty strings so pgx binds SQL NULL instead of ''.
func nilEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// nilZero returns nil for zero int64s (epoch-zero is not a real timestamp
// chess.com would report), so pgx binds SQL NULL instead of 0.
func nilZero(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}

// asMap type-asserts a decoded JSON value as a map, returning nil instead
// of panicking when the field is absent or a different shape.
func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

// asString type-asserts a decoded JSON value as a string.
func asString(v any) string {
	s, _ := v.(string)
	return s
}

// asBool type-asserts a decoded JSON value as a bool.
func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

// asInt converts a decoded JSON number (always float64 via encoding/json)
// to an int, returning 0 for absent or non-numeric fields.
func asInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}

// asFloat converts a decoded JSON number to a float64.
func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}
