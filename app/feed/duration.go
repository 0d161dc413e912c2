package feed

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// maxSeconds is the largest whole number of seconds a time.Duration holds.
const maxSeconds = math.MaxInt64 / int64(time.Second)

// ParseDuration reads podcast durations written as HH:MM:SS, MM:SS or a
// plain number of seconds. The second return value is false when the
// input is empty or not understood.
func ParseDuration(s string) (time.Duration, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	if !strings.Contains(s, ":") {
		seconds, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 || seconds > float64(maxSeconds) {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}

	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, false
	}

	var total int64
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			return 0, false
		}
		// fractional seconds are dropped
		if dot := strings.IndexByte(part, '.'); dot >= 0 {
			part = part[:dot]
		}
		n, err := strconv.ParseInt(part, 10, 64)
		if err != nil || n < 0 {
			return 0, false
		}
		if total > (maxSeconds-n)/60 {
			return 0, false
		}
		total = total*60 + n
	}

	return time.Duration(total) * time.Second, true
}

// FormatDuration renders a duration as M:SS, or H:MM:SS from one hour up.
func FormatDuration(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	total := int64(d / time.Second)
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}
