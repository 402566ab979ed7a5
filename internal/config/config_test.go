package config

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/nimbus/internal/weather"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("WEATHER_LOCATIONS", "")
	t.Setenv("STORE_DRIVER", "")

	cfg, err := FromEnv()
	require.NoError(t, err)
	require.Equal(t, DriverMemory, cfg.Store.Driver)
	require.Equal(t, time.Hour, cfg.RefreshIntervals[weather.CategoryCurrent])
	require.Equal(t, 6*time.Hour, cfg.RefreshIntervals[weather.CategoryHourly])
	require.Equal(t, 24*time.Hour, cfg.RefreshIntervals[weather.CategoryDaily])
	require.Equal(t, 30*time.Second, cfg.RefreshTimeout)
	require.Equal(t, "8080", cfg.Port)
	require.Empty(t, cfg.Locations)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("WEATHER_LOCATIONS", "Paris:48.8566,2.3522; 51.5072,-0.1276")
	t.Setenv("REFRESH_CURRENT_INTERVAL", "15m")
	t.Setenv("STORE_DRIVER", "Redis")
	t.Setenv("REDIS_ADDR", "cache:6379")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := FromEnv()
	require.NoError(t, err)
	require.Equal(t, 15*time.Minute, cfg.RefreshIntervals[weather.CategoryCurrent])
	require.Equal(t, DriverRedis, cfg.Store.Driver)
	require.Equal(t, "cache:6379", cfg.Store.RedisAddr)
	require.Equal(t, "json", cfg.LogFormat)

	require.Len(t, cfg.Locations, 2)
	require.Equal(t, "Paris", cfg.Locations[0].Name)
	require.Equal(t, "48.8566,2.3522", cfg.Locations[0].Key())
	require.Empty(t, cfg.Locations[1].Name)
	require.Equal(t, "51.5072,-0.1276", cfg.Locations[1].Key())
}

func TestFromEnv_ZeroIntervalDisablesCategory(t *testing.T) {
	t.Setenv("WEATHER_LOCATIONS", "")
	t.Setenv("REFRESH_HOURLY_INTERVAL", "0s")

	cfg, err := FromEnv()
	require.NoError(t, err)
	require.Zero(t, cfg.RefreshIntervals[weather.CategoryHourly])
	require.Equal(t, time.Hour, cfg.RefreshIntervals[weather.CategoryCurrent])
}

func TestLoad_WithoutDotEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("WEATHER_LOCATIONS", "")
	t.Setenv("STORE_DRIVER", "")

	logger, hook := test.NewNullLogger()
	cfg, err := Load(logger)
	require.NoError(t, err)
	require.Equal(t, DriverMemory, cfg.Store.Driver)
	require.Len(t, hook.AllEntries(), 1)
	require.Equal(t, logrus.InfoLevel, hook.LastEntry().Level)
}

func TestFromEnv_Invalid(t *testing.T) {
	cases := map[string]map[string]string{
		"bad duration":         {"REFRESH_TIMEOUT": "soon"},
		"negative interval":    {"REFRESH_DAILY_INTERVAL": "-1h"},
		"unknown driver":       {"STORE_DRIVER": "cassandra"},
		"postgres without dsn": {"STORE_DRIVER": "postgres", "DATABASE_DSN": ""},
		"bad location":         {"WEATHER_LOCATIONS": "Nowhere:123,456"},
		"nan location":         {"WEATHER_LOCATIONS": "Nowhere:NaN,NaN"},
		"bad log level":        {"LOG_LEVEL": "loud"},
		"non numeric port":     {"PORT": "http"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := FromEnv()
			require.Error(t, err)
		})
	}
}

func TestParseLocations(t *testing.T) {
	locs, err := ParseLocations("Berlin:52.52,13.405;;  ")
	require.NoError(t, err)
	require.Len(t, locs, 1)
	require.Equal(t, "Berlin", locs[0].Label())

	_, err = ParseLocations("Berlin:52.52")
	require.ErrorIs(t, err, weather.ErrInvalidCoordinates)
}
