package scheduler

import (
	"fmt"
	"math/bits"
	"strconv"
	"strings"
	"time"
)

// IntervalSchedule runs a task at a fixed interval.
type IntervalSchedule struct {
	Interval time.Duration
}

// Every creates an interval schedule.
func Every(d time.Duration) *IntervalSchedule {
	return &IntervalSchedule{Interval: d}
}

// Next returns the next run time.
func (s *IntervalSchedule) Next(after time.Time) time.Time {
	return after.Add(s.Interval)
}

// Parse returns a cron schedule when expr is set and an interval schedule
// otherwise.
func Parse(interval time.Duration, expr string) (Schedule, error) {
	if strings.TrimSpace(expr) != "" {
		c, err := Cron(expr)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	if interval <= 0 {
		return nil, fmt.Errorf("invalid interval %s: must be positive", interval)
	}
	return Every(interval), nil
}

// CronSchedule is a five-field cron schedule evaluated in the location of
// the time passed to Next. Each field is a bitset of allowed values.
type CronSchedule struct {
	expr   string
	minute uint64
	hour   uint64
	dom    uint64
	month  uint64
	dow    uint64
	// Day fields starting with "*" do not restrict the day, so a day
	// matches on the other field alone.
	domStar bool
	dowStar bool
}

type cronField struct {
	name     string
	min, max int
}

var cronFields = [5]cronField{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day-of-month", 1, 31},
	{"month", 1, 12},
	{"day-of-week", 0, 6},
}

var cronAliases = map[string]string{
	"@hourly":   "0 * * * *",
	"@daily":    "0 0 * * *",
	"@midnight": "0 0 * * *",
	"@weekly":   "0 0 * * 0",
	"@monthly":  "0 0 1 * *",
}

// Cron parses "minute hour day-of-month month day-of-week" with *, */n,
// n-m, n-m/s and comma lists, or one of @hourly, @daily, @weekly and
// @monthly. Day-of-week 7 is Sunday.
func Cron(expr string) (*CronSchedule, error) {
	spec := strings.TrimSpace(expr)
	if alias, ok := cronAliases[spec]; ok {
		spec = alias
	}
	parts := strings.Fields(spec)
	if len(parts) != len(cronFields) {
		return nil, fmt.Errorf("invalid cron expression %q: expected 5 fields, got %d", expr, len(parts))
	}

	var sets [5]uint64
	for i, f := range cronFields {
		max := f.max
		if i == 4 {
			max = 7
		}
		set, err := parseCronField(parts[i], f.min, max)
		if err != nil {
			return nil, fmt.Errorf("invalid %s field: %w", f.name, err)
		}
		sets[i] = set
	}
	if sets[4]&(1<<7) != 0 {
		sets[4] = sets[4]&^(1<<7) | 1
	}

	return &CronSchedule{
		expr:    spec,
		minute:  sets[0],
		hour:    sets[1],
		dom:     sets[2],
		month:   sets[3],
		dow:     sets[4],
		domStar: strings.HasPrefix(parts[2], "*"),
		dowStar: strings.HasPrefix(parts[4], "*"),
	}, nil
}

// String returns the normalised expression.
func (s *CronSchedule) String() string { return s.expr }

func has(set uint64, v int) bool { return set&(1<<uint(v)) != 0 }

func (s *CronSchedule) dayMatches(t time.Time) bool {
	dom := has(s.dom, t.Day())
	dow := has(s.dow, int(t.Weekday()))
	switch {
	case s.domStar && s.dowStar:
		return true
	case s.domStar:
		return dow
	case s.dowStar:
		return dom
	}
	return dom || dow
}

// Next returns the first matching minute strictly after after, or the zero
// time when nothing matches within five years.
func (s *CronSchedule) Next(after time.Time) time.Time {
	loc := after.Location()
	t := after.Truncate(time.Minute).Add(time.Minute)
	limit := after.AddDate(5, 0, 0)

	for t.Before(limit) {
		if !has(s.month, int(t.Month())) {
			t = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, loc)
			continue
		}
		if !s.dayMatches(t) {
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, loc)
			continue
		}
		if !has(s.hour, t.Hour()) {
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, loc)
			continue
		}
		if !has(s.minute, t.Minute()) {
			t = t.Add(time.Minute)
			continue
		}
		return t
	}
	return time.Time{}
}

// parseCronField returns the bitset of values a field allows.
func parseCronField(field string, min, max int) (uint64, error) {
	var set uint64
	for _, part := range strings.Split(field, ",") {
		rng, stepStr, hasStep := strings.Cut(part, "/")
		step := 1
		if hasStep {
			n, err := strconv.Atoi(stepStr)
			if err != nil || n <= 0 {
				return 0, fmt.Errorf("invalid step in %q", part)
			}
			step = n
		}

		lo, hi := min, max
		switch {
		case rng == "*":
		case strings.Contains(rng, "-"):
			a, b, _ := strings.Cut(rng, "-")
			var err1, err2 error
			lo, err1 = strconv.Atoi(a)
			hi, err2 = strconv.Atoi(b)
			if err1 != nil || err2 != nil || lo > hi {
				return 0, fmt.Errorf("invalid range %q", rng)
			}
		default:
			v, err := strconv.Atoi(rng)
			if err != nil {
				return 0, fmt.Errorf("invalid value %q", rng)
			}
			lo = v
			if hasStep {
				hi = max
			} else {
				hi = v
			}
		}
		if lo < min || hi > max {
			return 0, fmt.Errorf("%q out of range %d-%d", part, min, max)
		}
		for v := lo; v <= hi; v += step {
			set |= 1 << uint(v)
		}
	}
	if bits.OnesCount64(set) == 0 {
		return 0, fmt.Errorf("empty field %q", field)
	}
	return set, nil
}
