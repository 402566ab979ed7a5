package httpapi

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/i474232898/nimbus/internal/metrics"
)

// NewApp creates the Fiber app with the shared error handler and global
// middleware. m may be nil.
func NewApp(m *metrics.Metrics, accessLog bool) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "nimbus",
		DisableStartupMessage: true,
		// Handler values may outlive the request in background refreshes.
		Immutable:             true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          45 * time.Second,
		ErrorHandler:          errorHandler,
	})

	if accessLog {
		app.Use(logger.New())
	}
	app.Use(recover.New())
	if m != nil {
		app.Use(requestMetrics(m))
	}
	return app
}

// errorHandler renders every error as {"error": true, "message": ...}.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": err.Error(),
	})
}

func requestMetrics(m *metrics.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		var e *fiber.Error
		if errors.As(err, &e) {
			status = e.Code
		} else if err != nil {
			status = fiber.StatusInternalServerError
		}
		m.ObserveRequest(c.Method(), c.Route().Path, status, time.Since(start))
		return err
	}
}
