package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	httpapi "github.com/i474232898/nimbus/internal/api/http"
	"github.com/i474232898/nimbus/internal/config"
	"github.com/i474232898/nimbus/internal/metrics"
	"github.com/i474232898/nimbus/internal/refresh"
	"github.com/i474232898/nimbus/internal/scheduler"
	"github.com/i474232898/nimbus/internal/store"
	"github.com/i474232898/nimbus/internal/weather"
	"github.com/i474232898/nimbus/internal/weather/providers"
)

func main() {
	log := logrus.New()

	// Load configuration.
	cfg, err := config.Load(log)
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}
	setupLogger(log, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cache, closer, err := store.Open(ctx, cfg.Store, log)
	if err != nil {
		log.WithError(err).Fatal("failed to open store")
	}
	defer func() {
		if err := closer.Close(); err != nil {
			log.WithError(err).Warn("error closing store")
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	// Providers with resilience (backoff + circuit breaker). Keyed providers are
	// only added when their key is set.
	provs := []weather.Provider{providers.NewOpenMeteoProvider(httpClient, log)}
	if cfg.OpenWeatherAPIKey != "" {
		provs = append(provs, providers.NewOpenWeatherProvider(httpClient, cfg.OpenWeatherAPIKey, log))
	}
	if cfg.WeatherAPIKey != "" {
		provs = append(provs, providers.NewWeatherAPIProvider(httpClient, cfg.WeatherAPIKey, log))
	}
	for _, p := range provs {
		log.WithField("provider", p.Name()).Info("provider enabled")
	}

	service := weather.NewService(cache, provs,
		weather.WithLogger(log),
		weather.WithRecorder(m),
	)
	trigger := refresh.NewTrigger(service,
		refresh.WithTimeout(cfg.RefreshTimeout),
		refresh.WithLogger(log),
		refresh.WithRecorder(m),
	)

	// Scheduler that periodically refreshes the cache.
	sched := scheduler.New(cfg.Locations, cfg.RefreshIntervals, trigger, log)
	if cfg.RefreshOnStart {
		go sched.RunOnce(ctx)
	}
	if err := sched.Start(); err != nil {
		log.WithError(err).Fatal("failed to start scheduler")
	}
	defer sched.Stop()

	app := httpapi.NewApp(m, true)
	httpapi.RegisterRoutes(app, httpapi.Deps{
		Service:  service,
		Trigger:  trigger,
		Metrics:  m,
		Gatherer: reg,
	})

	go func() {
		log.WithField("port", cfg.Port).Info("http server listening")
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.WithError(err).Error("fiber server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.WithError(err).Error("error during shutdown")
	}

	for _, st := range m.Latency().GetAllStats() {
		log.Info("latency " + st.String())
	}
}

func setupLogger(log *logrus.Logger, cfg *config.AppConfig) {
	log.SetOutput(os.Stdout)
	if cfg.LogFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
}
