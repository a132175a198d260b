package plan

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseTimecode converts "12.5", "1:20" or "00:01:20.5" to seconds.
func ParseTimecode(s string) (float64, error) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "s"))
	if s == "" {
		return 0, fmt.Errorf("empty time value")
	}
	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("invalid time value %q", s)
	}
	total := 0.0
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("invalid time value %q", s)
		}
		total = total*60 + v
	}
	if math.IsInf(total, 0) {
		return 0, fmt.Errorf("invalid time value %q", s)
	}
	return total, nil
}
