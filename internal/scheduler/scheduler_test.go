package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/i474232898/nimbus/internal/refresh"
	"github.com/i474232898/nimbus/internal/weather"
)

type fakeRunner struct {
	mu    sync.Mutex
	calls map[weather.Category][]string
	fail  map[string]bool
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{calls: map[weather.Category][]string{}, fail: map[string]bool{}}
}

func (r *fakeRunner) Run(_ context.Context, category weather.Category, loc weather.Location) refresh.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[category] = append(r.calls[category], loc.Label())
	if r.fail[loc.Label()] {
		return refresh.Failure
	}
	return refresh.Success
}

var locations = []weather.Location{
	{Name: "Paris", Coordinates: weather.Coordinates{Lat: 48.8566, Lon: 2.3522}},
	{Name: "Oslo", Coordinates: weather.Coordinates{Lat: 59.9139, Lon: 10.7522}},
	{Name: "Lima", Coordinates: weather.Coordinates{Lat: -12.0464, Lon: -77.0428}},
}

func TestRunCategory_CountsOutcomes(t *testing.T) {
	r := newFakeRunner()
	r.fail["Oslo"] = true
	s := New(locations, nil, r, nil)

	sum := s.RunCategory(context.Background(), weather.CategoryHourly)
	require.Equal(t, Summary{Succeeded: 2, Failed: 1}, sum)
	require.ElementsMatch(t, []string{"Paris", "Oslo", "Lima"}, r.calls[weather.CategoryHourly])
}

func TestRunOnce_CoversEveryCategory(t *testing.T) {
	r := newFakeRunner()
	s := New(locations, nil, r, nil)

	got := s.RunOnce(context.Background())
	require.Len(t, got, 3)
	for _, c := range weather.Categories() {
		require.Equal(t, Summary{Succeeded: 3}, got[c])
		require.Len(t, r.calls[c], 3)
	}
}

func TestRunOnce_StopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := New(locations, nil, newFakeRunner(), nil)
	require.Empty(t, s.RunOnce(ctx))
}

func TestStart_SchedulesEnabledCategories(t *testing.T) {
	intervals := map[weather.Category]time.Duration{
		weather.CategoryCurrent: time.Hour,
		weather.CategoryHourly:  0,
		weather.CategoryDaily:   24 * time.Hour,
	}
	r := newFakeRunner()
	s := New(locations, intervals, r, nil)
	require.NoError(t, s.Start())
	defer s.Stop()

	require.Equal(t, 2, s.Jobs())

	r.mu.Lock()
	defer r.mu.Unlock()
	require.Empty(t, r.calls, "jobs must wait for their first interval")
}

func TestStart_NoLocations(t *testing.T) {
	s := New(nil, map[weather.Category]time.Duration{weather.CategoryCurrent: time.Hour}, newFakeRunner(), nil)
	require.NoError(t, s.Start())
	require.Zero(t, s.Jobs())
	s.Stop()
}
