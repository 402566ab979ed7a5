// Package refresh runs the cache-aside resolve in the background and reduces
// its result to a success or failure signal for a job scheduler.
package refresh

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/i474232898/nimbus/internal/resource"
	"github.com/i474232898/nimbus/internal/weather"
)

// DefaultTimeout bounds one background refresh.
const DefaultTimeout = 30 * time.Second

// Outcome is the only thing a background refresh reports.
type Outcome int

const (
	Failure Outcome = iota
	Success
)

func (o Outcome) String() string {
	if o == Success {
		return "success"
	}
	return "failure"
}

// Resolver is the interactive path the trigger drives. weather.Service implements it.
type Resolver interface {
	ResolveAsync(ctx context.Context, category weather.Category, loc weather.Location) (<-chan weather.Result, error)
}

// Recorder receives one observation per run. metrics.Metrics implements it.
type Recorder interface {
	ObserveRefresh(category weather.Category, outcome string, d time.Duration)
}

type noopRecorder struct{}

func (noopRecorder) ObserveRefresh(weather.Category, string, time.Duration) {}

// Trigger performs one refresh per Run.
type Trigger struct {
	resolver Resolver
	timeout  time.Duration
	logger   logrus.FieldLogger
	recorder Recorder
}

// Option configures a Trigger.
type Option func(*Trigger)

// WithTimeout sets how long Run waits for the result. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(t *Trigger) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(t *Trigger) { t.logger = l }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(t *Trigger) { t.recorder = r }
}

// NewTrigger creates a Trigger over resolver.
func NewTrigger(resolver Resolver, opts ...Option) *Trigger {
	discard := logrus.New()
	discard.SetOutput(io.Discard)

	t := &Trigger{
		resolver: resolver,
		timeout:  DefaultTimeout,
		logger:   discard,
		recorder: noopRecorder{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ErrTimeout is logged when Run stops waiting for a result.
var ErrTimeout = errors.New("refresh: timed out waiting for result")

// Run resolves (category, loc) and waits at most the configured timeout.
// When it gives up, the resolve is cancelled through ctx; a write that is
// already in flight may still land.
func (t *Trigger) Run(ctx context.Context, category weather.Category, loc weather.Location) Outcome {
	start := time.Now()
	log := t.logger.WithFields(logrus.Fields{"category": category, "location": loc.Label()})

	outcome, err := t.run(ctx, category, loc)
	took := time.Since(start)
	t.recorder.ObserveRefresh(category, outcome.String(), took)

	entry := log.WithField("took", took.Round(time.Millisecond))
	if outcome == Success {
		entry.Info("refresh: success")
	} else {
		entry.WithError(err).Warn("refresh: failure")
	}
	return outcome
}

func (t *Trigger) run(ctx context.Context, category weather.Category, loc weather.Location) (Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	ch, err := t.resolver.ResolveAsync(ctx, category, loc)
	if err != nil {
		return Failure, err
	}

	select {
	case res, ok := <-ch:
		if !ok {
			return Failure, errors.New("refresh: resolver closed without a result")
		}
		return Classify(res)
	case <-ctx.Done():
		// The result may have landed at the same instant.
		select {
		case res, ok := <-ch:
			if ok {
				return Classify(res)
			}
		default:
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Failure, ErrTimeout
		}
		return Failure, ctx.Err()
	}
}

// Classify maps a resolve result to an outcome. Only a value that is served
// from, or safely written to, the cache counts as success; a successful fetch
// with no readings is still a success.
func Classify(res weather.Result) (Outcome, error) {
	switch {
	case res.Source == resource.SourceNone:
		return Failure, res.FetchErr
	case res.CacheErr != nil:
		return Failure, res.CacheErr
	default:
		return Success, nil
	}
}
