package httpapi

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/i474232898/nimbus/internal/metrics"
	"github.com/i474232898/nimbus/internal/refresh"
	"github.com/i474232898/nimbus/internal/weather"
)

var validate = validator.New()

// Resolver serves the interactive path. weather.Service implements it.
type Resolver interface {
	Resolve(ctx context.Context, category weather.Category, loc weather.Location) (weather.Result, error)
}

// Refresher runs one background refresh. refresh.Trigger implements it.
type Refresher interface {
	Run(ctx context.Context, category weather.Category, loc weather.Location) refresh.Outcome
}

// Deps are the handlers' collaborators. Metrics and Gatherer are optional.
type Deps struct {
	Service  Resolver
	Trigger  Refresher
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, deps Deps) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "nimbus",
		})
	})

	if deps.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := app.Group("/api/v1")

	v1.Get("/weather/:category", func(c *fiber.Ctx) error {
		category, loc, err := parseRequest(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		res, err := deps.Service.Resolve(c.UserContext(), category, loc)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		return c.JSON(newWeatherResponse(category, loc, res))
	})

	v1.Post("/refresh/:category", func(c *fiber.Ctx) error {
		category, loc, err := parseRequest(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		outcome := deps.Trigger.Run(c.UserContext(), category, loc)
		status := fiber.StatusOK
		if outcome != refresh.Success {
			status = fiber.StatusBadGateway
		}
		return c.Status(status).JSON(fiber.Map{
			"category": category,
			"location": loc,
			"outcome":  outcome.String(),
		})
	})

	v1.Get("/stats", func(c *fiber.Ctx) error {
		stats := []metrics.Stats{}
		if deps.Metrics != nil {
			stats = deps.Metrics.Latency().GetAllStats()
		}
		return c.JSON(fiber.Map{"operations": stats})
	})

	v1.Get("/stats/:operation", func(c *fiber.Ctx) error {
		if deps.Metrics == nil {
			return fiber.NewError(fiber.StatusNotFound, "latency stats are disabled")
		}
		stats, err := deps.Metrics.Latency().GetStats(c.Params("operation"))
		if errors.Is(err, metrics.ErrNoData) {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		if err != nil {
			return err
		}
		return c.JSON(stats)
	})
}

// weatherResponse is the body of GET /weather/:category. A failed fetch with
// nothing cached has source "none" and a null report.
type weatherResponse struct {
	Category  weather.Category `json:"category"`
	Location  weather.Location `json:"location"`
	Source    string           `json:"source"`
	FetchedAt *time.Time       `json:"fetchedAt"`
	Report    *weather.Report  `json:"report"`
}

func newWeatherResponse(category weather.Category, loc weather.Location, res weather.Result) weatherResponse {
	out := weatherResponse{
		Category: category,
		Location: loc,
		Source:   res.Source.String(),
	}
	if !res.Empty() {
		report := res.Value
		fetchedAt := res.FetchedAt.UTC()
		out.Report = &report
		out.FetchedAt = &fetchedAt
	}
	return out
}

// locationQuery holds query parameters for identifying a location.
type locationQuery struct {
	Lat  string `validate:"required,latitude"`
	Lon  string `validate:"required,longitude"`
	Name string `validate:"max=100"`
}

func parseRequest(c *fiber.Ctx) (weather.Category, weather.Location, error) {
	category, err := weather.ParseCategory(c.Params("category"))
	if err != nil {
		return "", weather.Location{}, err
	}

	q := locationQuery{
		Lat:  c.Query("lat"),
		Lon:  c.Query("lon"),
		Name: c.Query("name"),
	}
	if err := validate.Struct(q); err != nil {
		return "", weather.Location{}, err
	}

	coords, err := weather.ParseCoordinates(q.Lat + "," + q.Lon)
	if err != nil {
		return "", weather.Location{}, err
	}
	return category, weather.Location{Name: q.Name, Coordinates: coords}, nil
}
