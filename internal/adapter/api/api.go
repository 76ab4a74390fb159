// Package api serves the read API over the harvested indices.
package api

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Hkarnen/comp90024-assignment-2/internal/domain"
	"github.com/Hkarnen/comp90024-assignment-2/internal/observability"
	"github.com/Hkarnen/comp90024-assignment-2/internal/query"
)

// missingStationID is the plain-text body returned for an absent or unusable
// station identity.
const missingStationID = "Error: station_id not provided"

// Reader is the read service behind the routes.
type Reader interface {
	WeatherStations(ctx context.Context) (query.WeatherStationListing, error)
	AirQualityStations(ctx context.Context) (query.AirQualityStationListing, error)
	Freeways(ctx context.Context) (query.FreewayListing, error)
	Vehicles(ctx context.Context) (query.VehicleRegister, error)
	WeatherAggregate(ctx context.Context, wmo int, tf *domain.TimeFilter) (query.Aggregate, error)
	AirQualityAggregate(ctx context.Context, siteID string, tf *domain.TimeFilter) (query.Aggregate, error)
	FreewayAggregate(ctx context.Context, name string, tf *domain.TimeFilter) (query.FreewayCongestion, error)
}

// Options tunes the read API.
type Options struct {
	// RequestTimeout bounds each request's store calls. Zero disables it.
	RequestTimeout time.Duration
	Metrics        *observability.Metrics
}

type handler struct {
	reader  Reader
	timeout time.Duration
}

// NewApp builds the fiber app serving the read routes plus /healthz and
// /metrics.
func NewApp(reader Reader, opts Options, logger *slog.Logger) *fiber.App {
	metrics := opts.Metrics
	if metrics == nil {
		metrics = observability.NewMetricsForTesting()
	}

	app := fiber.New(fiber.Config{
		AppName:               "telemetry-api",
		DisableStartupMessage: true,
		UnescapePath:          true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler:          errorHandler(logger),
	})

	app.Use(recover.New())
	app.Use(instrument(metrics))

	app.Get("/healthz", adaptor.HTTPHandlerFunc(sharedobs.LivenessHandler()))
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	RegisterRoutes(app, reader, opts.RequestTimeout)
	return app
}

// RegisterRoutes wires the read handlers into app.
func RegisterRoutes(app *fiber.App, reader Reader, timeout time.Duration) {
	h := &handler{reader: reader, timeout: timeout}

	app.Get("/weather-stations", h.weatherStations)
	app.Get("/weather-stations/:id", h.weatherAggregate)
	app.Get("/air-quality-stations", h.airQualityStations)
	app.Get("/air-quality-stations/:id", h.airQualityAggregate)
	app.Get("/traffic-freeway", h.freeways)
	app.Get("/traffic-freeway/:name", h.freewayAggregate)
	app.Get("/sudo-vehicles", h.vehicles)
}

func (h *handler) weatherStations(c *fiber.Ctx) error {
	ctx, cancel := h.context(c)
	defer cancel()

	listing, err := h.reader.WeatherStations(ctx)
	if err != nil {
		return err
	}
	return c.JSON(listing)
}

func (h *handler) airQualityStations(c *fiber.Ctx) error {
	ctx, cancel := h.context(c)
	defer cancel()

	listing, err := h.reader.AirQualityStations(ctx)
	if err != nil {
		return err
	}
	return c.JSON(listing)
}

func (h *handler) freeways(c *fiber.Ctx) error {
	ctx, cancel := h.context(c)
	defer cancel()

	listing, err := h.reader.Freeways(ctx)
	if err != nil {
		return err
	}
	return c.JSON(listing)
}

func (h *handler) vehicles(c *fiber.Ctx) error {
	ctx, cancel := h.context(c)
	defer cancel()

	register, err := h.reader.Vehicles(ctx)
	if err != nil {
		return err
	}
	return c.JSON(register)
}

func (h *handler) weatherAggregate(c *fiber.Ctx) error {
	wmo, err := strconv.Atoi(strings.TrimSpace(c.Params("id")))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, missingStationID)
	}
	tf, err := timeFilter(c)
	if err != nil {
		return err
	}

	ctx, cancel := h.context(c)
	defer cancel()

	agg, err := h.reader.WeatherAggregate(ctx, wmo, tf)
	if err != nil {
		return err
	}
	return c.JSON(agg)
}

func (h *handler) airQualityAggregate(c *fiber.Ctx) error {
	siteID := strings.TrimSpace(c.Params("id"))
	if siteID == "" {
		return fiber.NewError(fiber.StatusBadRequest, missingStationID)
	}
	tf, err := timeFilter(c)
	if err != nil {
		return err
	}

	ctx, cancel := h.context(c)
	defer cancel()

	agg, err := h.reader.AirQualityAggregate(ctx, siteID, tf)
	if err != nil {
		return err
	}
	return c.JSON(agg)
}

func (h *handler) freewayAggregate(c *fiber.Ctx) error {
	name := strings.TrimSpace(c.Params("name"))
	if name == "" {
		return fiber.NewError(fiber.StatusBadRequest, missingStationID)
	}
	tf, err := timeFilter(c)
	if err != nil {
		return err
	}

	ctx, cancel := h.context(c)
	defer cancel()

	res, err := h.reader.FreewayAggregate(ctx, name, tf)
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func (h *handler) context(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	if h.timeout <= 0 {
		return context.WithCancel(c.UserContext())
	}
	return context.WithTimeout(c.UserContext(), h.timeout)
}

func timeFilter(c *fiber.Ctx) (*domain.TimeFilter, error) {
	return domain.ParseTimeFilter(c.Query("year"), c.Query("month"), c.Query("day"), c.Query("hour"))
}

// errorHandler maps handler errors to responses: validation failures and an
// unreachable store as JSON, fiber errors as plain text.
func errorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var (
			verr *domain.ValidationError
			ferr *fiber.Error
		)
		switch {
		case errors.As(err, &verr):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": verr.Message})
		case errors.Is(err, domain.ErrStoreUnavailable):
			logger.Error("read request failed", "path", c.Path(), "error", err)
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": domain.ErrStoreUnavailable.Error()})
		case errors.As(err, &ferr):
			c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
			return c.Status(ferr.Code).SendString(ferr.Message)
		}

		logger.Error("read request failed", "path", c.Path(), "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}
}

// instrument records request counts and latency by route. Errors are
// rendered here so the recorded status is the one sent.
func instrument(m *observability.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		if err := c.Next(); err != nil {
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		route := c.Route().Path
		m.APIRequests.WithLabelValues(route, strconv.Itoa(c.Response().StatusCode())).Inc()
		m.APIRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		return nil
	}
}
