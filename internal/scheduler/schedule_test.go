package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntervalSchedule(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, now.Add(time.Hour), Every(time.Hour).Next(now))
}

func TestCron_Parsing(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"* * * * *", false},
		{"*/5 * * * *", false},
		{"0 0 1 1 *", false},
		{"1-5 * * * *", false},
		{"1,2,3 * * * *", false},
		{"10-50/10 * * * *", false},
		{"0 3 * * 7", false},
		{"@daily", false},
		{"* * * *", true},
		{"* * * * * *", true},
		{"60 * * * *", true},
		{"* 24 * * *", true},
		{"a * * * *", true},
		{"5-1 * * * *", true},
		{"*/0 * * * *", true},
		{"1,,2 * * * *", true},
		{"@yearly", true},
	}
	for _, tt := range tests {
		_, err := Cron(tt.expr)
		if tt.wantErr {
			assert.Error(t, err, tt.expr)
		} else {
			assert.NoError(t, err, tt.expr)
		}
	}
}

func TestCron_Next(t *testing.T) {
	// Wednesday.
	now := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		expr string
		want time.Time
	}{
		{"* * * * *", now.Add(time.Minute)},
		{"30 * * * *", time.Date(2025, 1, 1, 10, 30, 0, 0, time.UTC)},
		{"0 * * * *", time.Date(2025, 1, 1, 11, 0, 0, 0, time.UTC)},
		{"@hourly", time.Date(2025, 1, 1, 11, 0, 0, 0, time.UTC)},
		{"0 14 * * *", time.Date(2025, 1, 1, 14, 0, 0, 0, time.UTC)},
		{"0 8 * * *", time.Date(2025, 1, 2, 8, 0, 0, 0, time.UTC)},
		{"@daily", time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)},
		{"0 0 1 2 *", time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)},
		{"0 12 * * 5", time.Date(2025, 1, 3, 12, 0, 0, 0, time.UTC)},
		{"0 12 * * 7", time.Date(2025, 1, 5, 12, 0, 0, 0, time.UTC)},
		{"20-40/10 10 * * *", time.Date(2025, 1, 1, 10, 20, 0, 0, time.UTC)},
		// A starred day-of-month leaves the day to day-of-week.
		{"0 0 */2 * 1", time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)},
		// Both day fields restricted: either matches.
		{"0 0 15 * 5", time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			s, err := Cron(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.Next(now))
		})
	}
}

func TestCron_NoMatch(t *testing.T) {
	s, err := Cron("0 0 31 2 *")
	require.NoError(t, err)
	assert.True(t, s.Next(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)).IsZero())
}

func TestCron_String(t *testing.T) {
	s, err := Cron("  @weekly ")
	require.NoError(t, err)
	assert.Equal(t, "0 0 * * 0", s.String())
}

func TestParse(t *testing.T) {
	s, err := Parse(time.Hour, "")
	require.NoError(t, err)
	assert.IsType(t, &IntervalSchedule{}, s)

	s, err = Parse(time.Hour, "17 */6 * * *")
	require.NoError(t, err)
	now := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 1, 1, 12, 17, 0, 0, time.UTC), s.Next(now))

	_, err = Parse(0, "")
	assert.Error(t, err)
	_, err = Parse(time.Hour, "bogus")
	assert.Error(t, err)
}
