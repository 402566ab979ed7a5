package weather

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ProviderReading represents a single provider's normalized reading
// that can be aggregated into a Report. A NaN numeric field means the
// provider does not report it.
type ProviderReading struct {
	ProviderName string
	Timestamp    time.Time

	TemperatureC float64
	HumidityPct  float64
	WindSpeedMS  float64
	PressureHpa  float64
	PrecipMm     float64
	Condition    Condition
}

// Provider abstracts a weather data source (e.g. OpenWeatherMap, WeatherAPI, Open-Meteo).
//
// Fetch is one logical request/response exchange. For CURRENT it returns a
// single reading; for HOURLY and DAILY it returns one reading per step. Network,
// decode and provider errors are all reported as a plain error.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, category Category, coords Coordinates) ([]ProviderReading, error)
}

// CacheEntry is one persisted Report payload.
type CacheEntry struct {
	ID        uuid.UUID
	Category  Category
	Key       string
	Payload   []byte
	FetchedAt time.Time
}

// NewCacheEntry builds an entry with a fresh ID. fetchedAt is truncated to
// millisecond precision, which is what every store persists.
func NewCacheEntry(category Category, key string, payload []byte, fetchedAt time.Time) CacheEntry {
	return CacheEntry{
		ID:        uuid.New(),
		Category:  category,
		Key:       key,
		Payload:   payload,
		FetchedAt: FromMillis(fetchedAt.UnixMilli()),
	}
}

// FetchedAtMillis returns FetchedAt as epoch milliseconds.
func (e CacheEntry) FetchedAtMillis() int64 {
	return e.FetchedAt.UnixMilli()
}

// FromMillis converts epoch milliseconds to a UTC time.
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// Store is the contract every cache backend must satisfy.
//
// ReadLatest returns ok=false (and no error) when nothing is stored.
// Write adds the entry; it becomes the latest for its (category, key) unless
// an entry with a later FetchedAt is already stored. Equal FetchedAt goes to
// the last write. PurgeExpired deletes entries that are expired at now and
// returns how many were removed; calling it twice is the same as calling it once.
// Implementations serialize their own writes.
type Store interface {
	ReadLatest(ctx context.Context, category Category, key string) (CacheEntry, bool, error)
	Write(ctx context.Context, entry CacheEntry) error
	PurgeExpired(ctx context.Context, category Category, key string, now time.Time) (int, error)
}

// Recorder receives service-level observations. metrics.Metrics implements it.
type Recorder interface {
	ObserveResolve(category Category, source string, d time.Duration)
	ObserveFetch(provider string, d time.Duration, err error)
}

type noopRecorder struct{}

func (noopRecorder) ObserveResolve(Category, string, time.Duration) {}
func (noopRecorder) ObserveFetch(string, time.Duration, error)     {}
