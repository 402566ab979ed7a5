package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/i474232898/nimbus/internal/weather"
)

// Store drivers understood by store.Open.
const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverDynamoDB = "dynamodb"
)

// StoreConfig selects and configures the cache backend.
type StoreConfig struct {
	Driver string `validate:"oneof=memory file redis postgres dynamodb"`

	// memory
	MaxHistory int `validate:"gte=0"` // max entries per (category, location) (0 = unlimited)

	// file
	FilePath string `validate:"required_if=Driver file"`

	// redis
	RedisAddr     string `validate:"required_if=Driver redis"`
	RedisPassword string
	RedisDB       int `validate:"gte=0"`
	RedisPrefix   string

	// postgres
	DatabaseDSN     string `validate:"required_if=Driver postgres"`
	MaxOpenConns    int    `validate:"gte=0"`
	MaxIdleConns    int    `validate:"gte=0"`
	ConnMaxLifetime time.Duration
	AutoMigrate     bool

	// dynamodb
	DynamoTable    string `validate:"required_if=Driver dynamodb"`
	DynamoEndpoint string
	AWSRegion      string
}

type AppConfig struct {
	OpenWeatherAPIKey string
	WeatherAPIKey     string

	// HTTPTimeout bounds a single provider request.
	HTTPTimeout time.Duration `validate:"gt=0"`

	// RefreshIntervals controls how often the scheduler refreshes each category.
	// Zero leaves the category unscheduled.
	RefreshIntervals map[weather.Category]time.Duration `validate:"required,dive,gte=0"`
	// RefreshTimeout bounds one background refresh.
	RefreshTimeout time.Duration `validate:"gt=0"`
	// RefreshOnStart runs every category once at startup.
	RefreshOnStart bool

	// Locations to keep warm in the cache.
	Locations []weather.Location `validate:"dive"`

	Store StoreConfig

	LogLevel  string `validate:"oneof=trace debug info warn warning error fatal panic"`
	LogFormat string `validate:"oneof=text json"`

	Port string `validate:"required,numeric"`
}

var validate = validator.New()

// Load reads configuration from environment with sensible defaults.
func Load(logger logrus.FieldLogger) (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		logger.WithError(err).Info("no .env file loaded")
	}
	return FromEnv()
}

// FromEnv builds the configuration from the process environment only.
func FromEnv() (*AppConfig, error) {
	cfg := &AppConfig{}

	cfg.OpenWeatherAPIKey = os.Getenv("OPENWEATHER_API_KEY")
	cfg.WeatherAPIKey = os.Getenv("WEATHERAPI_API_KEY")

	var err error
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}

	cfg.RefreshIntervals = map[weather.Category]time.Duration{}
	defaults := map[weather.Category]time.Duration{
		weather.CategoryCurrent: time.Hour,
		weather.CategoryHourly:  6 * time.Hour,
		weather.CategoryDaily:   24 * time.Hour,
	}
	for _, c := range weather.Categories() {
		d, err := getenvDuration("REFRESH_"+c.String()+"_INTERVAL", defaults[c])
		if err != nil {
			return nil, err
		}
		cfg.RefreshIntervals[c] = d
	}
	if cfg.RefreshTimeout, err = getenvDuration("REFRESH_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	cfg.RefreshOnStart = getenvBool("REFRESH_ON_START", true)

	// Store.
	cfg.Store = StoreConfig{
		Driver:         strings.ToLower(getenvDefault("STORE_DRIVER", DriverMemory)),
		MaxHistory:     getenvInt("STORE_MAX_HISTORY", 48),
		FilePath:       getenvDefault("STORE_FILE_PATH", "data/weather-cache.json"),
		RedisAddr:      getenvDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RedisDB:        getenvInt("REDIS_DB", 0),
		RedisPrefix:    getenvDefault("REDIS_PREFIX", "nimbus"),
		DatabaseDSN:    os.Getenv("DATABASE_DSN"),
		MaxOpenConns:   getenvInt("DB_MAX_OPEN_CONNS", 10),
		MaxIdleConns:   getenvInt("DB_MAX_IDLE_CONNS", 5),
		AutoMigrate:    getenvBool("DB_AUTO_MIGRATE", true),
		DynamoTable:    getenvDefault("DYNAMODB_TABLE", "weather_cache"),
		DynamoEndpoint: os.Getenv("DYNAMODB_ENDPOINT"),
		AWSRegion:      os.Getenv("AWS_REGION"),
	}
	if cfg.Store.ConnMaxLifetime, err = getenvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute); err != nil {
		return nil, err
	}

	cfg.LogLevel = strings.ToLower(getenvDefault("LOG_LEVEL", "info"))
	cfg.LogFormat = strings.ToLower(getenvDefault("LOG_FORMAT", "text"))
	cfg.Port = getenvDefault("PORT", "8080")

	locs, err := ParseLocations(os.Getenv("WEATHER_LOCATIONS"))
	if err != nil {
		return nil, err
	}
	cfg.Locations = locs

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ParseLocations parses "name:lat,lon;lat,lon;..." into locations. The name part
// is optional. An empty string yields no locations.
func ParseLocations(s string) ([]weather.Location, error) {
	var locs []weather.Location
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		var name string
		coords := part
		if i := strings.LastIndex(part, ":"); i >= 0 {
			name = strings.TrimSpace(part[:i])
			coords = part[i+1:]
		}
		c, err := weather.ParseCoordinates(coords)
		if err != nil {
			return nil, fmt.Errorf("invalid WEATHER_LOCATIONS entry %q: %w", part, err)
		}
		locs = append(locs, weather.Location{Name: name, Coordinates: c})
	}
	return locs, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
