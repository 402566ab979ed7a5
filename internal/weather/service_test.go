package weather_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/i474232898/nimbus/internal/resource"
	"github.com/i474232898/nimbus/internal/store"
	"github.com/i474232898/nimbus/internal/weather"
)

var paris = weather.Location{Name: "Paris", Coordinates: weather.Coordinates{Lat: 48.8566, Lon: 2.3522}}

type countingProvider struct {
	name     string
	calls    atomic.Int32
	readings func(category weather.Category, now time.Time) []weather.ProviderReading
	err      error
	now      func() time.Time
}

func (p *countingProvider) Name() string { return p.name }

func (p *countingProvider) Fetch(_ context.Context, category weather.Category, _ weather.Coordinates) ([]weather.ProviderReading, error) {
	p.calls.Add(1)
	if p.err != nil {
		return nil, p.err
	}
	if p.readings == nil {
		return nil, nil
	}
	return p.readings(category, p.now()), nil
}

func steady(name string, temp float64) func(weather.Category, time.Time) []weather.ProviderReading {
	return func(_ weather.Category, now time.Time) []weather.ProviderReading {
		return []weather.ProviderReading{{ProviderName: name, Timestamp: now, TemperatureC: temp, Condition: weather.ConditionClear}}
	}
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func seed(t *testing.T, s weather.Store, category weather.Category, loc weather.Location, temp float64, at time.Time) weather.CacheEntry {
	t.Helper()
	payload, err := weather.EncodeReport(weather.Report{
		Category: category,
		Location: loc,
		Readings: []weather.Reading{{Timestamp: at, Temperature: temp}},
	})
	require.NoError(t, err)
	e := weather.NewCacheEntry(category, loc.Key(), payload, at)
	require.NoError(t, s.Write(context.Background(), e))
	return e
}

func TestResolve_FreshEntryIsServedWithoutFetching(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	clk := &clock{t: t0.Add(30 * time.Minute)}
	s := store.NewMemoryStore(0)
	seed(t, s, weather.CategoryCurrent, paris, 12, t0)

	p := &countingProvider{name: "p", readings: steady("p", 20), now: clk.Now}
	svc := weather.NewService(s, []weather.Provider{p}, weather.WithClock(clk.Now))

	res, err := svc.Resolve(ctx, weather.CategoryCurrent, paris)
	require.NoError(t, err)
	require.Equal(t, resource.SourceCache, res.Source)
	require.Equal(t, 12.0, res.Value.Readings[0].Temperature)
	require.True(t, res.FetchedAt.Equal(t0))
	require.Zero(t, p.calls.Load())
}

func TestResolve_ExpiredEntryIsRefetchedAndStored(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	clk := &clock{t: t0.Add(90 * time.Minute)}
	s := store.NewMemoryStore(0)
	old := seed(t, s, weather.CategoryCurrent, paris, 12, t0)

	p := &countingProvider{name: "p", readings: steady("p", 20), now: clk.Now}
	svc := weather.NewService(s, []weather.Provider{p}, weather.WithClock(clk.Now))

	res, err := svc.Resolve(ctx, weather.CategoryCurrent, paris)
	require.NoError(t, err)
	require.Equal(t, resource.SourceRemote, res.Source)
	require.EqualValues(t, 1, p.calls.Load())
	require.Equal(t, 20.0, res.Value.Readings[0].Temperature)

	latest, ok, err := s.ReadLatest(ctx, weather.CategoryCurrent, paris.Key())
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEqual(t, old.ID, latest.ID)
	require.True(t, latest.FetchedAt.Equal(t0.Add(90*time.Minute)))

	// The expired entry was purged before the read.
	require.Equal(t, 1, s.Count(weather.CategoryCurrent, paris.Key()))

	// A second call inside the window is served from the new entry.
	res, err = svc.Resolve(ctx, weather.CategoryCurrent, paris)
	require.NoError(t, err)
	require.Equal(t, resource.SourceCache, res.Source)
	require.EqualValues(t, 1, p.calls.Load())
}

func TestResolve_FetchFailureWithNothingCachedIsEmpty(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore(0)
	boom := errors.New("connection refused")
	p := &countingProvider{name: "p", err: boom}
	svc := weather.NewService(s, []weather.Provider{p})

	res, err := svc.Resolve(ctx, weather.CategoryDaily, paris)
	require.NoError(t, err)
	require.True(t, res.Empty())
	require.ErrorIs(t, res.FetchErr, weather.ErrAllProvidersFailed)
	require.ErrorIs(t, res.FetchErr, boom)
	require.Zero(t, s.Count(weather.CategoryDaily, paris.Key()))
}

func TestResolve_FutureDatedEntryIsFresh(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	s := store.NewMemoryStore(0)
	seed(t, s, weather.CategoryHourly, paris, 7, now.Add(5*time.Minute))

	p := &countingProvider{name: "p", readings: steady("p", 20), now: func() time.Time { return now }}
	svc := weather.NewService(s, []weather.Provider{p}, weather.WithClock(func() time.Time { return now }))

	require.False(t, weather.IsExpired(weather.CategoryHourly, now.Add(5*time.Minute), now))
	res, err := svc.Resolve(ctx, weather.CategoryHourly, paris)
	require.NoError(t, err)
	require.Equal(t, resource.SourceCache, res.Source)
	require.Zero(t, p.calls.Load())
}

func TestResolve_ExpiredEntryAndFailedFetchIsEmpty(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	s := store.NewMemoryStore(0)
	seed(t, s, weather.CategoryCurrent, paris, 12, t0)

	p := &countingProvider{name: "p", err: errors.New("503")}
	svc := weather.NewService(s, []weather.Provider{p}, weather.WithClock(func() time.Time { return t0.Add(2 * time.Hour) }))

	res, err := svc.Resolve(ctx, weather.CategoryCurrent, paris)
	require.NoError(t, err)
	require.True(t, res.Empty())
}

func TestResolve_PartialProviderFailureStillSucceeds(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	nowFn := func() time.Time { return now }

	good1 := &countingProvider{name: "a", readings: steady("a", 10), now: nowFn}
	good2 := &countingProvider{name: "b", readings: steady("b", 20), now: nowFn}
	bad := &countingProvider{name: "c", err: errors.New("timeout")}
	svc := weather.NewService(store.NewMemoryStore(0), []weather.Provider{good1, bad, good2}, weather.WithClock(nowFn))

	res, err := svc.Resolve(ctx, weather.CategoryCurrent, paris)
	require.NoError(t, err)
	require.Equal(t, resource.SourceRemote, res.Source)
	require.Len(t, res.Value.Readings, 1)
	require.Equal(t, 15.0, res.Value.Readings[0].Temperature)
	require.Len(t, res.Value.Providers, 2)
}

func TestResolve_EmptySuccessfulFetchIsNotAFailure(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore(0)
	p := &countingProvider{name: "p"}
	svc := weather.NewService(s, []weather.Provider{p})

	res, err := svc.Resolve(ctx, weather.CategoryHourly, paris)
	require.NoError(t, err)
	require.Equal(t, resource.SourceRemote, res.Source)
	require.True(t, res.Value.Empty())
	require.NoError(t, res.FetchErr)
	require.Equal(t, 1, s.Count(weather.CategoryHourly, paris.Key()))
}

func TestResolve_NoProviders(t *testing.T) {
	svc := weather.NewService(store.NewMemoryStore(0), nil)
	res, err := svc.Resolve(context.Background(), weather.CategoryCurrent, paris)
	require.NoError(t, err)
	require.ErrorIs(t, res.FetchErr, weather.ErrNoProviders)
}

func TestResolve_InvalidInput(t *testing.T) {
	svc := weather.NewService(store.NewMemoryStore(0), nil)

	_, err := svc.Resolve(context.Background(), weather.Category("WEEKLY"), paris)
	require.Error(t, err)

	bad := weather.Location{Coordinates: weather.Coordinates{Lat: 91}}
	_, err = svc.Resolve(context.Background(), weather.CategoryCurrent, bad)
	require.ErrorIs(t, err, weather.ErrInvalidCoordinates)

	_, err = svc.ResolveAsync(context.Background(), weather.CategoryCurrent, bad)
	require.ErrorIs(t, err, weather.ErrInvalidCoordinates)

	nan := weather.Location{Coordinates: weather.Coordinates{Lat: math.NaN(), Lon: math.NaN()}}
	_, err = svc.Resolve(context.Background(), weather.CategoryCurrent, nan)
	require.ErrorIs(t, err, weather.ErrInvalidCoordinates)
}

func TestResolveAsync_SingleEmission(t *testing.T) {
	now := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	p := &countingProvider{name: "p", readings: steady("p", 20), now: func() time.Time { return now }}
	svc := weather.NewService(store.NewMemoryStore(0), []weather.Provider{p})

	ch, err := svc.ResolveAsync(context.Background(), weather.CategoryCurrent, paris)
	require.NoError(t, err)

	res, ok := <-ch
	require.True(t, ok)
	require.Equal(t, resource.SourceRemote, res.Source)
	_, ok = <-ch
	require.False(t, ok)
}

type recorder struct {
	mu       sync.Mutex
	resolves []string
	fetches  map[string]int
}

func (r *recorder) ObserveResolve(category weather.Category, source string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolves = append(r.resolves, category.Lower()+":"+source)
}

func (r *recorder) ObserveFetch(provider string, _ time.Duration, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetches[provider]++
}

func TestResolve_RecordsObservations(t *testing.T) {
	now := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	nowFn := func() time.Time { return now }
	rec := &recorder{fetches: map[string]int{}}
	p := &countingProvider{name: "p", readings: steady("p", 20), now: nowFn}
	svc := weather.NewService(store.NewMemoryStore(0), []weather.Provider{p}, weather.WithClock(nowFn), weather.WithRecorder(rec))

	for i := 0; i < 2; i++ {
		_, err := svc.Resolve(context.Background(), weather.CategoryCurrent, paris)
		require.NoError(t, err)
	}
	require.Equal(t, []string{"current:remote", "current:cache"}, rec.resolves)
	require.Equal(t, 1, rec.fetches["p"])
}
