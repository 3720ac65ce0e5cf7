package core

// State is the key/value view of session state handed to tools, guardrails
// and instruction providers. Keys are only ever added or overwritten.
type State interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}

// GetString returns the string stored under key, or def when the key is
// absent or holds a non-string value.
func GetString(s State, key, def string) string {
	v, ok := s.Get(key)
	if !ok {
		return def
	}
	str, ok := v.(string)
	if !ok {
		return def
	}
	return str
}

// GetBool returns the bool stored under key, or false.
func GetBool(s State, key string) bool {
	v, ok := s.Get(key)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// MapState adapts a plain map to State. It is not safe for concurrent use.
type MapState map[string]any

// Get implements State.
func (m MapState) Get(key string) (any, bool) {
	v, ok := m[key]
	return v, ok
}

// Set implements State.
func (m MapState) Set(key string, value any) { m[key] = value }
