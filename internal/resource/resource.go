// Package resource implements the cache-aside refresh protocol: serve a stored
// value while it is fresh, otherwise fetch, persist and serve a new one.
//
// A Resource is a strategy assembled from injected functions rather than a type
// hierarchy, so each caller decides how its value is read, fetched and saved.
package resource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrIncomplete is reported when a Resource is missing a required function.
var ErrIncomplete = errors.New("resource: Load, IsExpired, Fetch and Save are required")

// Source says where an emitted value came from.
type Source int

const (
	// SourceNone means the fetch failed and nothing usable was cached: the
	// fail-soft empty result.
	SourceNone Source = iota
	// SourceCache means a fresh stored value was served without touching the network.
	SourceCache
	// SourceRemote means the value was just fetched.
	SourceRemote
)

func (s Source) String() string {
	switch s {
	case SourceCache:
		return "cache"
	case SourceRemote:
		return "remote"
	default:
		return "none"
	}
}

// Result is the single emission of a resolve call.
//
// Empty() (Source == SourceNone) always carries FetchErr. A successful fetch
// that produced an empty value is SourceRemote, never SourceNone.
// CacheErr is set when a fetched value could not be saved; Value is still valid.
type Result[T any] struct {
	Value     T
	Source    Source
	FetchedAt time.Time
	FetchErr  error
	CacheErr  error
}

// Empty reports whether the call produced no value.
func (r Result[T]) Empty() bool {
	return r.Source == SourceNone
}

// Resource wires the steps of one cacheable value.
type Resource[T any] struct {
	// Purge deletes expired stored values. Optional; errors are logged and ignored.
	Purge func(ctx context.Context, now time.Time) error
	// Load reads the latest stored value. ok=false means nothing is stored.
	// An error is logged and treated as ok=false.
	Load func(ctx context.Context) (value T, fetchedAt time.Time, ok bool, err error)
	// IsExpired decides whether a stored value written at fetchedAt is stale at now.
	IsExpired func(fetchedAt, now time.Time) bool
	// Fetch retrieves a fresh value from the remote source.
	Fetch func(ctx context.Context) (T, error)
	// Save persists a freshly fetched value.
	Save func(ctx context.Context, value T, fetchedAt time.Time) error

	// Now defaults to time.Now.
	Now func() time.Time
	// Logger defaults to a discarding logger.
	Logger logrus.FieldLogger
	// Observe, if set, is called once per Resolve with the result and its duration.
	Observe func(res Result[T], took time.Duration)
}

func (r *Resource[T]) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Resource[T]) logger() logrus.FieldLogger {
	if r.Logger != nil {
		return r.Logger
	}
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// Resolve runs read → decide → (fetch → save) and returns exactly one result.
// It never returns a fetch error as an error: failures come back as an empty
// Result with FetchErr set.
func (r *Resource[T]) Resolve(ctx context.Context) (res Result[T]) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			res = Result[T]{Source: SourceNone, FetchErr: fmt.Errorf("resource: panic during resolve: %v", p)}
			r.logger().WithField("panic", p).Error("resource: recovered panic")
		}
		if r.Observe != nil {
			r.Observe(res, time.Since(start))
		}
	}()
	return r.resolve(ctx)
}

func (r *Resource[T]) resolve(ctx context.Context) Result[T] {
	if r.Load == nil || r.IsExpired == nil || r.Fetch == nil || r.Save == nil {
		return Result[T]{Source: SourceNone, FetchErr: ErrIncomplete}
	}
	log := r.logger()
	now := r.now()

	if r.Purge != nil {
		if err := r.Purge(ctx, now); err != nil {
			log.WithError(err).Warn("resource: purge of expired entries failed; continuing")
		}
	}

	cached, fetchedAt, ok, err := r.Load(ctx)
	if err != nil {
		log.WithError(err).Warn("resource: local read failed; treating as missing")
		ok = false
	}
	if ok && !r.IsExpired(fetchedAt, now) {
		log.WithField("fetched_at", fetchedAt).Debug("resource: serving cached value")
		return Result[T]{Value: cached, Source: SourceCache, FetchedAt: fetchedAt}
	}
	if ok {
		log.WithField("fetched_at", fetchedAt).Debug("resource: cached value expired; fetching")
	} else {
		log.Debug("resource: nothing cached; fetching")
	}

	value, err := r.Fetch(ctx)
	if err != nil {
		log.WithError(err).Warn("resource: remote fetch failed; serving empty result")
		return Result[T]{Source: SourceNone, FetchErr: err}
	}

	fetchedAt = r.now()
	res := Result[T]{Value: value, Source: SourceRemote, FetchedAt: fetchedAt}
	// Save before emitting so a reader that sees this result also sees the entry.
	if err := r.Save(ctx, value, fetchedAt); err != nil {
		log.WithError(err).Warn("resource: caching fetched value failed; serving it anyway")
		res.CacheErr = err
	}
	return res
}

// ResolveAsync runs Resolve on its own goroutine. The returned channel yields
// exactly one Result and is then closed. The buffer means the goroutine never
// blocks if the caller stops listening.
func (r *Resource[T]) ResolveAsync(ctx context.Context) <-chan Result[T] {
	out := make(chan Result[T], 1)
	go func() {
		defer close(out)
		out <- r.Resolve(ctx)
	}()
	return out
}
