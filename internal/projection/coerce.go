package projection

import (
	"fmt"
	"strconv"

	"github.com/roach88/repokit/internal/schema"
)

// Coerce converts a provider column value to the Go type of kind k:
// int64, string or bool. NULL stays nil.
func Coerce(v any, k schema.Kind) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch k {
	case schema.KindInt:
		switch n := v.(type) {
		case int64:
			return n, nil
		case int:
			return int64(n), nil
		case int32:
			return int64(n), nil
		case bool:
			if n {
				return int64(1), nil
			}
			return int64(0), nil
		case []byte:
			return strconv.ParseInt(string(n), 10, 64)
		case string:
			return strconv.ParseInt(n, 10, 64)
		}
	case schema.KindString:
		switch s := v.(type) {
		case string:
			return s, nil
		case []byte:
			return string(s), nil
		case int64:
			return strconv.FormatInt(s, 10), nil
		}
	case schema.KindBool:
		switch b := v.(type) {
		case bool:
			return b, nil
		case int64:
			return b != 0, nil
		case int:
			return b != 0, nil
		}
	default:
		return nil, fmt.Errorf("unsupported kind %q", k)
	}
	return nil, fmt.Errorf("cannot convert %T to %s", v, k)
}
