package shared

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParsePeriod converts a relative period such as "7d", "2w" or "1m" into the
// instant that far before now. Months are calendar months, not 30 days.
func ParsePeriod(period string, now time.Time) (time.Time, error) {
	p := strings.ToLower(strings.TrimSpace(period))
	if len(p) < 2 {
		return time.Time{}, fmt.Errorf("%w: period %q must look like 7d, 2w or 1m", ErrInvalidFlag, period)
	}

	n, err := strconv.Atoi(p[:len(p)-1])
	if err != nil || n <= 0 {
		return time.Time{}, fmt.Errorf("%w: period %q needs a positive count", ErrInvalidFlag, period)
	}

	switch p[len(p)-1] {
	case 'd':
		return now.AddDate(0, 0, -n), nil
	case 'w':
		return now.AddDate(0, 0, -7*n), nil
	case 'm':
		return now.AddDate(0, -n, 0), nil
	case 'y':
		return now.AddDate(-n, 0, 0), nil
	default:
		return time.Time{}, fmt.Errorf("%w: unknown period unit in %q", ErrInvalidFlag, period)
	}
}
