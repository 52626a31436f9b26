package projection

import (
	"fmt"
	"strings"
)

// Value is a DTO materialized without a registered constructor: the DTO's
// parameter names paired with their values, in constructor order.
type Value struct {
	Type   string
	Names  []string
	Values []any
}

// Get returns the value bound to parameter name.
func (v Value) Get(name string) (any, bool) {
	for i, n := range v.Names {
		if n == name {
			return v.Values[i], true
		}
	}
	return nil, false
}

// Map returns the name/value pairs as a map.
func (v Value) Map() map[string]any {
	out := make(map[string]any, len(v.Names))
	for i, n := range v.Names {
		out[n] = v.Values[i]
	}
	return out
}

func (v Value) String() string {
	parts := make([]string, len(v.Names))
	for i, n := range v.Names {
		parts[i] = fmt.Sprintf("%s=%v", n, v.Values[i])
	}
	return v.Type + "(" + strings.Join(parts, ", ") + ")"
}
