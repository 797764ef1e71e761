package record

import (
	"fmt"
	"strings"
	"time"
)

// Value rank for ordering across types. Mixed-type keys are unusual but
// must still produce a total order for the sorted merge.
const (
	rankNil = iota
	rankBool
	rankNumber
	rankTime
	rankString
)

func rankOf(v any) int {
	switch v.(type) {
	case nil:
		return rankNil
	case bool:
		return rankBool
	case int64, float64:
		return rankNumber
	case time.Time:
		return rankTime
	default:
		return rankString
	}
}

// Compare imposes a total order on canonical values: nil first, then
// bools, numbers (int64 and float64 compared numerically), timestamps, and
// strings. Anything non-canonical is compared by its string form.
func Compare(a, b any) int {
	ra, rb := rankOf(a), rankOf(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch ra {
	case rankNil:
		return 0
	case rankBool:
		ab, bb := a.(bool), b.(bool)
		if ab == bb {
			return 0
		}
		if !ab {
			return -1
		}
		return 1
	case rankNumber:
		af, bf := numberOf(a), numberOf(b)
		if af < bf {
			return -1
		}
		if af > bf {
			return 1
		}
		return 0
	case rankTime:
		at, bt := a.(time.Time), b.(time.Time)
		if at.Before(bt) {
			return -1
		}
		if at.After(bt) {
			return 1
		}
		return 0
	default:
		return strings.Compare(stringOf(a), stringOf(b))
	}
}

func numberOf(v any) float64 {
	switch n := v.(type) {
	case int64:
		return float64(n)
	case float64:
		return n
	}
	return 0
}

func stringOf(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
