package weather

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/i474232898/nimbus/internal/resource"
)

var (
	// ErrNoProviders is returned by fetches when no provider is configured.
	ErrNoProviders = errors.New("no weather providers configured")
	// ErrAllProvidersFailed wraps the individual provider errors when none succeeded.
	ErrAllProvidersFailed = errors.New("all weather providers failed")
)

// Result is what a resolve call emits for a Report.
type Result = resource.Result[Report]

// Service binds the cache-aside coordinator to a Store and a set of Providers.
type Service struct {
	store     Store
	providers []Provider
	now       func() time.Time
	logger    logrus.FieldLogger
	recorder  Recorder
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides time.Now. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Service) { s.logger = l }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// NewService creates a new Service.
func NewService(store Store, providers []Provider, opts ...Option) *Service {
	discard := logrus.New()
	discard.SetOutput(io.Discard)

	s := &Service{
		store:     store,
		providers: providers,
		now:       time.Now,
		logger:    discard,
		recorder:  noopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Resolve returns the report for (category, loc), from cache while it is fresh
// and from the providers otherwise. Provider failures never surface as an
// error here: they produce an empty Result with FetchErr set. The error return
// is reserved for invalid input.
func (s *Service) Resolve(ctx context.Context, category Category, loc Location) (Result, error) {
	r, err := s.resource(category, loc)
	if err != nil {
		return Result{}, err
	}
	return r.Resolve(ctx), nil
}

// ResolveAsync is Resolve on a worker goroutine. The channel yields one Result
// and is closed.
func (s *Service) ResolveAsync(ctx context.Context, category Category, loc Location) (<-chan Result, error) {
	r, err := s.resource(category, loc)
	if err != nil {
		return nil, err
	}
	return r.ResolveAsync(ctx), nil
}

func (s *Service) resource(category Category, loc Location) (*resource.Resource[Report], error) {
	if _, err := ParseCategory(string(category)); err != nil {
		return nil, err
	}
	if err := loc.Coordinates.Validate(); err != nil {
		return nil, err
	}

	key := loc.Key()
	log := s.logger.WithFields(logrus.Fields{"category": category, "location": loc.Label()})

	return &resource.Resource[Report]{
		Purge: func(ctx context.Context, now time.Time) error {
			n, err := s.store.PurgeExpired(ctx, category, key, now)
			if n > 0 {
				log.WithField("purged", n).Debug("weather: purged expired entries")
			}
			return err
		},
		Load: func(ctx context.Context) (Report, time.Time, bool, error) {
			entry, ok, err := s.store.ReadLatest(ctx, category, key)
			if err != nil || !ok {
				return Report{}, time.Time{}, false, err
			}
			report, err := DecodeReport(entry.Payload)
			if err != nil {
				return Report{}, time.Time{}, false, err
			}
			return report, entry.FetchedAt, true, nil
		},
		IsExpired: func(fetchedAt, now time.Time) bool {
			return IsExpired(category, fetchedAt, now)
		},
		Fetch: func(ctx context.Context) (Report, error) {
			return s.fetch(ctx, category, loc)
		},
		Save: func(ctx context.Context, report Report, fetchedAt time.Time) error {
			payload, err := EncodeReport(report)
			if err != nil {
				return err
			}
			return s.store.Write(ctx, NewCacheEntry(category, key, payload, fetchedAt))
		},
		Now:    s.now,
		Logger: log,
		Observe: func(res Result, took time.Duration) {
			s.recorder.ObserveResolve(category, res.Source.String(), took)
		},
	}, nil
}

// fetch queries every provider concurrently and aggregates the successful
// readings. It fails only when no provider succeeds.
func (s *Service) fetch(ctx context.Context, category Category, loc Location) (Report, error) {
	if len(s.providers) == 0 {
		return Report{}, ErrNoProviders
	}

	var (
		g        errgroup.Group
		mu       sync.Mutex
		readings []ProviderReading
		errs     []error
		okCount  int
	)

	for _, p := range s.providers {
		g.Go(func() error {
			start := time.Now()
			rs, err := p.Fetch(ctx, category, loc.Coordinates)
			s.recorder.ObserveFetch(p.Name(), time.Since(start), err)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				// Partial success is fine; the error only matters if everyone fails.
				s.logger.WithFields(logrus.Fields{
					"provider": p.Name(),
					"category": category,
					"location": loc.Label(),
				}).WithError(err).Warn("weather: provider fetch failed")
				errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
				return nil
			}
			okCount++
			readings = append(readings, rs...)
			return nil
		})
	}
	_ = g.Wait()

	if okCount == 0 {
		return Report{}, fmt.Errorf("%w: %w", ErrAllProvidersFailed, errors.Join(errs...))
	}
	return BuildReport(category, loc, readings), nil
}
