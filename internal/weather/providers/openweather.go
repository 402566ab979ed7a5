package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/i474232898/nimbus/internal/weather"
)

// OpenWeatherProvider implements the weather.Provider interface for OpenWeatherMap.
// HOURLY and DAILY both come from the 5 day / 3 hour forecast; aggregation
// buckets the steps by hour or day.
type OpenWeatherProvider struct {
	name    string
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewOpenWeatherProvider(client *http.Client, apiKey string, logger logrus.FieldLogger) *OpenWeatherProvider {
	return &OpenWeatherProvider{
		name:    "openweathermap",
		apiKey:  apiKey,
		baseURL: "https://api.openweathermap.org/data/2.5",
		httpCfg: defaultHTTPConfig(client),
		circuit: newCircuitBreaker("openweather", logger),
	}
}

func (p *OpenWeatherProvider) Name() string {
	return p.name
}

type openWeatherCondition struct {
	Main string `json:"main"`
}

// openWeatherStep is the shape shared by /weather and each /forecast list item.
type openWeatherStep struct {
	Dt   int64 `json:"dt"`
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity float64 `json:"humidity"`
		Pressure float64 `json:"pressure"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Rain struct {
		OneH   float64 `json:"1h"`
		ThreeH float64 `json:"3h"`
	} `json:"rain"`
	Snow struct {
		OneH   float64 `json:"1h"`
		ThreeH float64 `json:"3h"`
	} `json:"snow"`
	Weather []openWeatherCondition `json:"weather"`
}

func (p *OpenWeatherProvider) requestURL(path string, c weather.Coordinates) string {
	values := url.Values{}
	values.Set("appid", p.apiKey)
	values.Set("units", "metric")
	values.Set("lat", strconv.FormatFloat(c.Lat, 'f', 4, 64))
	values.Set("lon", strconv.FormatFloat(c.Lon, 'f', 4, 64))
	return fmt.Sprintf("%s/%s?%s", p.baseURL, path, values.Encode())
}

func (p *OpenWeatherProvider) Fetch(ctx context.Context, category weather.Category, coords weather.Coordinates) ([]weather.ProviderReading, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("openweather: %w: api key is not set", ErrNotConfigured)
	}

	if category == weather.CategoryCurrent {
		var step openWeatherStep
		if err := getJSON(ctx, p.httpCfg, p.circuit, p.requestURL("weather", coords), &step); err != nil {
			return nil, err
		}
		return []weather.ProviderReading{p.reading(step)}, nil
	}

	var payload struct {
		List []openWeatherStep `json:"list"`
	}
	if err := getJSON(ctx, p.httpCfg, p.circuit, p.requestURL("forecast", coords), &payload); err != nil {
		return nil, err
	}
	out := make([]weather.ProviderReading, 0, len(payload.List))
	for _, step := range payload.List {
		out = append(out, p.reading(step))
	}
	return out, nil
}

func (p *OpenWeatherProvider) reading(s openWeatherStep) weather.ProviderReading {
	precip := s.Rain.OneH
	if precip == 0 {
		precip = s.Rain.ThreeH
	}
	if precip == 0 {
		precip = s.Snow.OneH + s.Snow.ThreeH
	}

	return weather.ProviderReading{
		ProviderName: p.name,
		Timestamp:    unixUTC(s.Dt),
		TemperatureC: s.Main.Temp,
		HumidityPct:  s.Main.Humidity,
		WindSpeedMS:  s.Wind.Speed,
		PressureHpa:  s.Main.Pressure,
		PrecipMm:     precip,
		Condition:    mapOpenWeatherCondition(s.Weather),
	}
}

func mapOpenWeatherCondition(items []openWeatherCondition) weather.Condition {
	if len(items) == 0 {
		return weather.ConditionUnknown
	}
	switch items[0].Main {
	case "Clear":
		return weather.ConditionClear
	case "Clouds":
		return weather.ConditionCloudy
	case "Rain", "Drizzle":
		return weather.ConditionRain
	case "Snow":
		return weather.ConditionSnow
	case "Thunderstorm":
		return weather.ConditionStorm
	case "Mist", "Fog", "Haze", "Smoke":
		return weather.ConditionMist
	default:
		return weather.ConditionUnknown
	}
}
