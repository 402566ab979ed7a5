package weather

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWindow(t *testing.T) {
	require.Equal(t, time.Hour, Window(CategoryCurrent))
	require.Equal(t, 24*time.Hour, Window(CategoryHourly))
	require.Equal(t, 24*time.Hour, Window(CategoryDaily))
	require.Equal(t, time.Hour, Window(Category("WEEKLY")))
}

func TestIsExpired(t *testing.T) {
	t0 := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		category Category
		now      time.Time
		want     bool
	}{
		{"current within window", CategoryCurrent, t0.Add(30 * time.Minute), false},
		{"current past window", CategoryCurrent, t0.Add(90 * time.Minute), true},
		{"current exactly at window", CategoryCurrent, t0.Add(time.Hour), true},
		{"current just before window", CategoryCurrent, t0.Add(time.Hour - time.Millisecond), false},
		{"hourly after one hour is still fresh", CategoryHourly, t0.Add(2 * time.Hour), false},
		{"hourly past a day", CategoryHourly, t0.Add(25 * time.Hour), true},
		{"daily exactly at a day", CategoryDaily, t0.Add(24 * time.Hour), true},
		{"fetched in the future (skew)", CategoryHourly, t0.Add(-5 * time.Minute), false},
		{"same instant", CategoryCurrent, t0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, IsExpired(tt.category, t0, tt.now))
		})
	}
}

func TestIsExpired_ZeroFetchedAtMeansMissing(t *testing.T) {
	require.True(t, IsExpired(CategoryDaily, time.Time{}, time.Now()))
}

func TestExpiryCutoffAgreesWithIsExpired(t *testing.T) {
	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	for _, c := range Categories() {
		cutoff := ExpiryCutoff(c, now)
		require.True(t, IsExpired(c, cutoff, now), c)
		require.False(t, IsExpired(c, cutoff.Add(time.Millisecond), now), c)
	}
}

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory("hourly")
	require.NoError(t, err)
	require.Equal(t, CategoryHourly, c)

	c, err = ParseCategory(" Daily ")
	require.NoError(t, err)
	require.Equal(t, CategoryDaily, c)

	_, err = ParseCategory("weekly")
	require.Error(t, err)
}
