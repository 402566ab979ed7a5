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

	"github.com/i474232898/nimbus/internal/common"
	"github.com/i474232898/nimbus/internal/weather"
)

const (
	weatherAPIHourlyDays = 2
	weatherAPIDailyDays  = 7
)

// WeatherAPIProvider implements the weather.Provider interface for WeatherAPI.com.
type WeatherAPIProvider struct {
	name    string
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewWeatherAPIProvider(client *http.Client, apiKey string, logger logrus.FieldLogger) *WeatherAPIProvider {
	return &WeatherAPIProvider{
		name:    "weatherapi",
		apiKey:  apiKey,
		baseURL: "https://api.weatherapi.com/v1",
		httpCfg: defaultHTTPConfig(client),
		circuit: newCircuitBreaker("weatherapi", logger),
	}
}

func (p *WeatherAPIProvider) Name() string {
	return p.name
}

type weatherAPICondition struct {
	Text string `json:"text"`
}

type weatherAPIHour struct {
	TimeEpoch  int64               `json:"time_epoch"`
	TempC      float64             `json:"temp_c"`
	Humidity   float64             `json:"humidity"`
	WindKph    float64             `json:"wind_kph"`
	PressureMb float64             `json:"pressure_mb"`
	PrecipMm   float64             `json:"precip_mm"`
	Condition  weatherAPICondition `json:"condition"`
}

type weatherAPIResponse struct {
	Current *struct {
		LastUpdatedEpoch int64               `json:"last_updated_epoch"`
		TempC            float64             `json:"temp_c"`
		Humidity         float64             `json:"humidity"`
		WindKph          float64             `json:"wind_kph"`
		PressureMb       float64             `json:"pressure_mb"`
		PrecipMm         float64             `json:"precip_mm"`
		Condition        weatherAPICondition `json:"condition"`
	} `json:"current"`
	Forecast struct {
		Days []struct {
			DateEpoch int64 `json:"date_epoch"`
			Day       struct {
				AvgTempC     float64             `json:"avgtemp_c"`
				AvgHumidity  float64             `json:"avghumidity"`
				MaxWindKph   float64             `json:"maxwind_kph"`
				TotalPrecipM float64             `json:"totalprecip_mm"`
				Condition    weatherAPICondition `json:"condition"`
			} `json:"day"`
			Hours []weatherAPIHour `json:"hour"`
		} `json:"forecastday"`
	} `json:"forecast"`
}

func (p *WeatherAPIProvider) requestURL(category weather.Category, c weather.Coordinates) string {
	values := url.Values{}
	values.Set("key", p.apiKey)
	// WeatherAPI uses "q" for location; it accepts "lat,lon".
	values.Set("q", c.String())

	switch category {
	case weather.CategoryHourly:
		values.Set("days", strconv.Itoa(weatherAPIHourlyDays))
		return fmt.Sprintf("%s/forecast.json?%s", p.baseURL, values.Encode())
	case weather.CategoryDaily:
		values.Set("days", strconv.Itoa(weatherAPIDailyDays))
		return fmt.Sprintf("%s/forecast.json?%s", p.baseURL, values.Encode())
	default:
		return fmt.Sprintf("%s/current.json?%s", p.baseURL, values.Encode())
	}
}

func (p *WeatherAPIProvider) Fetch(ctx context.Context, category weather.Category, coords weather.Coordinates) ([]weather.ProviderReading, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("weatherapi: %w: api key is not set", ErrNotConfigured)
	}

	var payload weatherAPIResponse
	if err := getJSON(ctx, p.httpCfg, p.circuit, p.requestURL(category, coords), &payload); err != nil {
		return nil, err
	}

	switch category {
	case weather.CategoryHourly:
		var out []weather.ProviderReading
		for _, d := range payload.Forecast.Days {
			for _, h := range d.Hours {
				out = append(out, p.hourReading(h))
			}
		}
		return out, nil

	case weather.CategoryDaily:
		out := make([]weather.ProviderReading, 0, len(payload.Forecast.Days))
		for _, d := range payload.Forecast.Days {
			// The day summary has no pressure; use the mean of its hours.
			pressure := math.NaN()
			if len(d.Hours) > 0 {
				pressure = 0
				for _, h := range d.Hours {
					pressure += h.PressureMb
				}
				pressure /= float64(len(d.Hours))
			}
			out = append(out, weather.ProviderReading{
				ProviderName: p.name,
				Timestamp:    unixUTC(d.DateEpoch),
				TemperatureC: d.Day.AvgTempC,
				HumidityPct:  d.Day.AvgHumidity,
				WindSpeedMS:  kphToMS(d.Day.MaxWindKph),
				PressureHpa:  pressure,
				PrecipMm:     d.Day.TotalPrecipM,
				Condition:    mapWeatherAPICondition(d.Day.Condition.Text),
			})
		}
		return out, nil

	default:
		if payload.Current == nil {
			return nil, fmt.Errorf("weatherapi: response has no current block")
		}
		cur := payload.Current
		return []weather.ProviderReading{{
			ProviderName: p.name,
			Timestamp:    unixUTC(cur.LastUpdatedEpoch),
			TemperatureC: cur.TempC,
			HumidityPct:  cur.Humidity,
			WindSpeedMS:  kphToMS(cur.WindKph),
			PressureHpa:  cur.PressureMb,
			PrecipMm:     cur.PrecipMm,
			Condition:    mapWeatherAPICondition(cur.Condition.Text),
		}}, nil
	}
}

func (p *WeatherAPIProvider) hourReading(h weatherAPIHour) weather.ProviderReading {
	return weather.ProviderReading{
		ProviderName: p.name,
		Timestamp:    unixUTC(h.TimeEpoch),
		TemperatureC: h.TempC,
		HumidityPct:  h.Humidity,
		WindSpeedMS:  kphToMS(h.WindKph),
		PressureHpa:  h.PressureMb,
		PrecipMm:     h.PrecipMm,
		Condition:    mapWeatherAPICondition(h.Condition.Text),
	}
}

func kphToMS(kph float64) float64 {
	return kph / 3.6
}

func mapWeatherAPICondition(text string) weather.Condition {
	switch {
	case text == "":
		return weather.ConditionUnknown
	case common.ContainsAny(text, "thunder", "storm"):
		return weather.ConditionStorm
	case common.ContainsAny(text, "snow", "sleet", "blizzard", "ice pellets"):
		return weather.ConditionSnow
	case common.ContainsAny(text, "rain", "shower", "drizzle"):
		return weather.ConditionRain
	case common.ContainsAny(text, "mist", "fog"):
		return weather.ConditionMist
	case common.ContainsAny(text, "cloud", "overcast"):
		return weather.ConditionCloudy
	case common.ContainsAny(text, "sunny", "clear"):
		return weather.ConditionClear
	default:
		return weather.ConditionUnknown
	}
}
