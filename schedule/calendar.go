package schedule

import (
	"time"

	"github.com/chihqiang/dbxnotify/pkg/logx"
)

const dayLayout = "2006-01-02"

// civilDay returns the calendar day of t in loc, as midnight UTC. Differences
// between civil days are whole multiples of 24h regardless of DST.
func civilDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// dayGap is the number of calendar days from a to b.
func dayGap(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}

// graceDays is how many days a streak survives without a read, by the weekday
// of the last read. A Sunday read covers the weekend, a Monday read also covers
// the Friday before.
func graceDays(lastRead time.Weekday) int {
	switch lastRead {
	case time.Sunday:
		return 2
	case time.Monday:
		return 3
	default:
		return 1
	}
}

// ClampToHours maps x into [0, 24).
func ClampToHours(x int) int {
	return ((x % 24) + 24) % 24
}

func isWeekend(d time.Weekday) bool {
	return d == time.Saturday || d == time.Sunday
}

// locations caches resolved time zones for one run. Not safe for concurrent use.
type locations struct {
	cache  map[string]*time.Location
	logger logx.ILogger
}

func newLocations(logger logx.ILogger) *locations {
	return &locations{cache: map[string]*time.Location{}, logger: logger}
}

// get resolves an IANA name. Empty or unknown names fall back to UTC.
func (l *locations) get(name string) *time.Location {
	if loc, ok := l.cache[name]; ok {
		return loc
	}
	loc := time.UTC
	if name != "" {
		resolved, err := time.LoadLocation(name)
		if err != nil {
			l.logger.Warn("unknown timezone %q, using UTC: %v", name, err)
		} else {
			loc = resolved
		}
	}
	l.cache[name] = loc
	return loc
}
