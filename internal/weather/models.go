package weather

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Condition represents a normalized high-level weather condition.
type Condition string

const (
	ConditionUnknown Condition = "unknown"
	ConditionClear   Condition = "clear"
	ConditionCloudy  Condition = "cloudy"
	ConditionRain    Condition = "rain"
	ConditionSnow    Condition = "snow"
	ConditionStorm   Condition = "storm"
	ConditionMist    Condition = "mist"
)

// ErrInvalidCoordinates is returned when a latitude/longitude pair is out of range or malformed.
var ErrInvalidCoordinates = errors.New("invalid coordinates")

// Coordinates is a geographic point in decimal degrees.
type Coordinates struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lon float64 `json:"lon" validate:"gte=-180,lte=180"`
}

// Validate checks that the point lies within the valid latitude/longitude ranges.
// NaN fails both comparisons and is rejected.
func (c Coordinates) Validate() error {
	if !(c.Lat >= -90 && c.Lat <= 90) {
		return fmt.Errorf("%w: latitude %v must be between -90 and 90", ErrInvalidCoordinates, c.Lat)
	}
	if !(c.Lon >= -180 && c.Lon <= 180) {
		return fmt.Errorf("%w: longitude %v must be between -180 and 180", ErrInvalidCoordinates, c.Lon)
	}
	return nil
}

// String returns the canonical "lat,lon" form, rounded to four decimals (~11m).
func (c Coordinates) String() string {
	return strconv.FormatFloat(c.Lat, 'f', 4, 64) + "," + strconv.FormatFloat(c.Lon, 'f', 4, 64)
}

// ParseCoordinates parses a "lat,lon" string.
func ParseCoordinates(s string) (Coordinates, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return Coordinates{}, fmt.Errorf("%w: expected \"lat,lon\", got %q", ErrInvalidCoordinates, s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Coordinates{}, fmt.Errorf("%w: latitude: %v", ErrInvalidCoordinates, err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Coordinates{}, fmt.Errorf("%w: longitude: %v", ErrInvalidCoordinates, err)
	}
	c := Coordinates{Lat: lat, Lon: lon}
	if err := c.Validate(); err != nil {
		return Coordinates{}, err
	}
	return c, nil
}

// Location represents a logical place for which we track weather.
// Name is a display label only; identity is the coordinates.
type Location struct {
	Name        string      `json:"name,omitempty"`
	Coordinates Coordinates `json:"coordinates"`
}

// Key returns a canonical string key for indexing this location in stores.
func (l Location) Key() string {
	return l.Coordinates.String()
}

// Label returns the name if set, otherwise the key. Used in logs.
func (l Location) Label() string {
	if l.Name != "" {
		return l.Name
	}
	return l.Key()
}

// Reading is the normalized, aggregated weather view at a point in time.
type Reading struct {
	Timestamp   time.Time `json:"timestamp"` // always UTC
	Temperature float64   `json:"temperatureC"`
	Humidity    float64   `json:"humidityPercent"`
	WindSpeed   float64   `json:"windSpeed"`
	Pressure    float64   `json:"pressureHpa"`
	PrecipMM    float64   `json:"precipMm"`
	Condition   Condition `json:"condition"`
}

// ProviderContribution describes data coming from a single provider used in aggregation.
type ProviderContribution struct {
	ProviderName string    `json:"provider"`
	Timestamp    time.Time `json:"timestamp"`
	Readings     int       `json:"readings"`
}

// Report is the value cached per (category, location). Readings are ordered by
// Timestamp ascending: one entry for CURRENT, one per hour for HOURLY and one
// per day for DAILY.
type Report struct {
	Category  Category               `json:"category"`
	Location  Location               `json:"location"`
	Readings  []Reading              `json:"readings"`
	Providers []ProviderContribution `json:"providers,omitempty"`
}

// Empty reports whether the report carries no readings.
func (r Report) Empty() bool {
	return len(r.Readings) == 0
}
