package identity

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Key is a canonical identifier used on both sides of every join.
type Key string

// Absent is the key of an empty or null identifier. It is never indexed and
// never looked up, so it matches nothing, including another absent key.
const Absent Key = ""

// IsAbsent reports whether k carries no identifier.
func (k Key) IsAbsent() bool {
	return k == Absent
}

// Normalize trims surrounding whitespace and lower-cases raw. It is idempotent.
func Normalize(raw string) Key {
	return Key(strings.ToLower(strings.TrimSpace(raw)))
}

// NormalizeValue normalizes a scalar read from a provider row.
func NormalizeValue(v any) Key {
	s, ok := scalarString(v)
	if !ok {
		return Absent
	}
	return Normalize(s)
}

// scalarString renders a provider scalar as text. Whole floats render without a
// fractional part so a numeric badge id of 1234 matches the string "1234".
func scalarString(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return val, true
	case *string:
		if val == nil {
			return "", false
		}
		return *val, true
	case Key:
		return string(val), true
	case []byte:
		return string(val), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32), true
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano), true
	case fmt.Stringer:
		return val.String(), true
	default:
		return fmt.Sprint(val), true
	}
}
