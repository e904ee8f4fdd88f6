// ABOUTME: Tolerant accessors for loosely-structured JSON records
// ABOUTME: Multi-key fallbacks used by cache and API adapters
package sources

// firstString returns the first non-empty string found under keys.
func firstString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := m[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// firstValue returns the first present value found under keys.
func firstValue(m map[string]any, keys ...string) any {
	for _, key := range keys {
		if v, ok := m[key]; ok && v != nil {
			return v
		}
	}
	return nil
}

// asMap narrows an any to a JSON object.
func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

// asList narrows an any to a JSON array.
func asList(v any) ([]any, bool) {
	l, ok := v.([]any)
	return l, ok
}
