package record

import (
	"fmt"
	"strconv"
	"strings"
)

// Value is a scalar cell: int64, float64, string, or nil for an absent column.
type Value = any

// Number reports v as float64 when it is numeric.
func Number(v Value) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	default:
		return 0, false
	}
}

func IsNumeric(v Value) bool {
	_, ok := Number(v)
	return ok
}

// Normalize maps Go integer kinds onto int64 so rows only ever hold
// int64, float64, string or nil.
func Normalize(v Value) Value {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case float32:
		return float64(x)
	default:
		return v
	}
}

// Format renders v for display; nil becomes NULL.
func Format(v Value) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case string:
		return x
	default:
		return fmt.Sprintf("%v", x)
	}
}

// Equal compares numerically when both sides are numeric and
// case-insensitively otherwise.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if x, ok := Number(a); ok {
		if y, ok := Number(b); ok {
			return x == y
		}
	}
	return strings.EqualFold(Format(a), Format(b))
}

// Compare orders two values: nil first, numbers numerically, everything else
// case-insensitively by text.
func Compare(a, b Value) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if x, ok := Number(a); ok {
		if y, ok := Number(b); ok {
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			default:
				return 0
			}
		}
	}
	return strings.Compare(strings.ToLower(Format(a)), strings.ToLower(Format(b)))
}

// ParseLiteral parses a SQL literal: 'text', "text", integers and decimals.
func ParseLiteral(raw string) (Value, error) {
	rv := strings.TrimSpace(raw)
	if rv == "" {
		return nil, fmt.Errorf("empty literal")
	}

	if strings.EqualFold(rv, "NULL") {
		return nil, nil
	}

	if len(rv) >= 2 {
		q := rv[0]
		if (q == '\'' || q == '"') && rv[len(rv)-1] == q {
			return rv[1 : len(rv)-1], nil
		}
	}

	if i, err := strconv.ParseInt(rv, 10, 64); err == nil {
		return i, nil
	}
	if f, err := strconv.ParseFloat(rv, 64); err == nil {
		return f, nil
	}

	return nil, fmt.Errorf("unsupported literal: %q", rv)
}
