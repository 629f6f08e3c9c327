package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// args is a loosely typed argument bag. Models are sloppy with types, so
// every accessor coerces and falls back to the zero value instead of
// failing the call.
type args map[string]any

func parseArgs(raw json.RawMessage) args {
	var a args
	if len(raw) == 0 || json.Unmarshal(raw, &a) != nil || a == nil {
		return args{}
	}
	return a
}

func (a args) String(key string) string {
	switch v := a[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}

// Int saturates to the int32 range so sums of coerced values cannot wrap.
func (a args) Int(key string) int {
	switch v := a[key].(type) {
	case float64:
		return saturate(v)
	case string:
		f, err := strconv.ParseFloat(strings.TrimPrefix(strings.TrimSpace(v), "+"), 64)
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			return 0
		}
		return saturate(f)
	case bool:
		if v {
			return 1
		}
		return 0
	default:
		return 0
	}
}

func saturate(v float64) int {
	switch {
	case math.IsNaN(v):
		return 0
	case v >= math.MaxInt32:
		return math.MaxInt32
	case v <= math.MinInt32:
		return math.MinInt32
	default:
		return int(math.Round(v))
	}
}

func (a args) Bool(key string) bool {
	switch v := a[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(v))
		return b
	case float64:
		return v != 0
	default:
		return false
	}
}
