package providers

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/i474232898/nimbus/internal/weather"
)

const (
	openMeteoHourlyDays = 2
	openMeteoDailyDays  = 7
)

// OpenMeteoProvider implements the weather.Provider interface for Open-Meteo.
// It needs no API key.
type OpenMeteoProvider struct {
	name    string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewOpenMeteoProvider(client *http.Client, logger logrus.FieldLogger) *OpenMeteoProvider {
	return &OpenMeteoProvider{
		name:    "openmeteo",
		baseURL: "https://api.open-meteo.com/v1/forecast",
		httpCfg: defaultHTTPConfig(client),
		circuit: newCircuitBreaker("openmeteo", logger),
	}
}

func (p *OpenMeteoProvider) Name() string {
	return p.name
}

type openMeteoSeries struct {
	Time        []int64   `json:"time"`
	Temperature []float64 `json:"temperature_2m"`
	Humidity    []float64 `json:"relative_humidity_2m"`
	Precip      []float64 `json:"precipitation"`
	WeatherCode []int     `json:"weather_code"`
	Pressure    []float64 `json:"pressure_msl"`
	WindSpeed   []float64 `json:"wind_speed_10m"`
}

type openMeteoDaily struct {
	Time        []int64   `json:"time"`
	TempMax     []float64 `json:"temperature_2m_max"`
	TempMin     []float64 `json:"temperature_2m_min"`
	Precip      []float64 `json:"precipitation_sum"`
	WeatherCode []int     `json:"weather_code"`
	WindSpeed   []float64 `json:"wind_speed_10m_max"`
	Humidity    []float64 `json:"relative_humidity_2m_mean"`
	Pressure    []float64 `json:"pressure_msl_mean"`
}

type openMeteoResponse struct {
	Current *struct {
		Time        int64   `json:"time"`
		Temperature float64 `json:"temperature_2m"`
		Humidity    float64 `json:"relative_humidity_2m"`
		Precip      float64 `json:"precipitation"`
		WeatherCode int     `json:"weather_code"`
		Pressure    float64 `json:"pressure_msl"`
		WindSpeed   float64 `json:"wind_speed_10m"`
	} `json:"current"`
	Hourly *openMeteoSeries `json:"hourly"`
	Daily  *openMeteoDaily  `json:"daily"`
}

const (
	openMeteoVars      = "temperature_2m,relative_humidity_2m,precipitation,weather_code,pressure_msl,wind_speed_10m"
	openMeteoDailyVars = "temperature_2m_max,temperature_2m_min,precipitation_sum,weather_code,wind_speed_10m_max," +
		"relative_humidity_2m_mean,pressure_msl_mean"
)

func (p *OpenMeteoProvider) requestURL(category weather.Category, c weather.Coordinates) string {
	values := url.Values{}
	values.Set("latitude", strconv.FormatFloat(c.Lat, 'f', 4, 64))
	values.Set("longitude", strconv.FormatFloat(c.Lon, 'f', 4, 64))
	values.Set("timezone", "UTC")
	values.Set("timeformat", "unixtime")
	values.Set("wind_speed_unit", "ms")

	switch category {
	case weather.CategoryHourly:
		values.Set("hourly", openMeteoVars)
		values.Set("forecast_days", strconv.Itoa(openMeteoHourlyDays))
	case weather.CategoryDaily:
		values.Set("daily", openMeteoDailyVars)
		values.Set("forecast_days", strconv.Itoa(openMeteoDailyDays))
	default:
		values.Set("current", openMeteoVars)
	}
	return fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
}

func (p *OpenMeteoProvider) Fetch(ctx context.Context, category weather.Category, coords weather.Coordinates) ([]weather.ProviderReading, error) {
	var payload openMeteoResponse
	if err := getJSON(ctx, p.httpCfg, p.circuit, p.requestURL(category, coords), &payload); err != nil {
		return nil, err
	}

	switch category {
	case weather.CategoryHourly:
		if payload.Hourly == nil {
			return nil, fmt.Errorf("openmeteo: response has no hourly block")
		}
		return p.hourly(payload.Hourly), nil
	case weather.CategoryDaily:
		if payload.Daily == nil {
			return nil, fmt.Errorf("openmeteo: response has no daily block")
		}
		return p.daily(payload.Daily), nil
	default:
		if payload.Current == nil {
			return nil, fmt.Errorf("openmeteo: response has no current block")
		}
		cur := payload.Current
		return []weather.ProviderReading{{
			ProviderName: p.name,
			Timestamp:    unixUTC(cur.Time),
			TemperatureC: cur.Temperature,
			HumidityPct:  cur.Humidity,
			WindSpeedMS:  cur.WindSpeed,
			PressureHpa:  cur.Pressure,
			PrecipMm:     cur.Precip,
			Condition:    mapOpenMeteoCondition(cur.WeatherCode),
		}}, nil
	}
}

func (p *OpenMeteoProvider) hourly(s *openMeteoSeries) []weather.ProviderReading {
	out := make([]weather.ProviderReading, 0, len(s.Time))
	for i, ts := range s.Time {
		out = append(out, weather.ProviderReading{
			ProviderName: p.name,
			Timestamp:    unixUTC(ts),
			TemperatureC: at(s.Temperature, i),
			HumidityPct:  at(s.Humidity, i),
			WindSpeedMS:  at(s.WindSpeed, i),
			PressureHpa:  at(s.Pressure, i),
			PrecipMm:     at(s.Precip, i),
			Condition:    mapOpenMeteoCondition(at(s.WeatherCode, i)),
		})
	}
	return out
}

func (p *OpenMeteoProvider) daily(d *openMeteoDaily) []weather.ProviderReading {
	out := make([]weather.ProviderReading, 0, len(d.Time))
	for i, ts := range d.Time {
		out = append(out, weather.ProviderReading{
			ProviderName: p.name,
			Timestamp:    unixUTC(ts),
			TemperatureC: (at(d.TempMax, i) + at(d.TempMin, i)) / 2,
			HumidityPct:  atOrNaN(d.Humidity, i),
			WindSpeedMS:  at(d.WindSpeed, i),
			PressureHpa:  atOrNaN(d.Pressure, i),
			PrecipMm:     at(d.Precip, i),
			Condition:    mapOpenMeteoCondition(at(d.WeatherCode, i)),
		})
	}
	return out
}

// at tolerates series of uneven length.
func at[T any](s []T, i int) T {
	var zero T
	if i < len(s) {
		return s[i]
	}
	return zero
}

// atOrNaN marks a value the response did not carry as unreported.
func atOrNaN(s []float64, i int) float64 {
	if i < len(s) {
		return s[i]
	}
	return math.NaN()
}

func mapOpenMeteoCondition(code int) weather.Condition {
	// Mapping based on Open-Meteo weather codes (simplified).
	switch {
	case code == 0:
		return weather.ConditionClear
	case code >= 1 && code <= 3:
		return weather.ConditionCloudy
	case code == 45 || code == 48:
		return weather.ConditionMist
	case (code >= 51 && code <= 67) || (code >= 80 && code <= 82):
		return weather.ConditionRain
	case (code >= 71 && code <= 77) || code == 85 || code == 86:
		return weather.ConditionSnow
	case code >= 95:
		return weather.ConditionStorm
	default:
		return weather.ConditionUnknown
	}
}
