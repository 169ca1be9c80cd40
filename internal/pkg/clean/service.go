package clean

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/facebookgo/grace/gracehttp"
	"github.com/pkg/errors"

	"github.com/airenas/go-app/pkg/goapp"

	"github.com/labstack/echo-contrib/prometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Cleaner removes local bookkeeping for a batch ID
type Cleaner interface {
	Clean(ctx context.Context, ID string) error
}

// Resetter re-runs the remote reset step for a named batch
type Resetter interface {
	Reset(ctx context.Context, batchName string) error
}

// Data keeps data required for service work
type Data struct {
	Port     int
	Cleaner  Cleaner
	Resetter Resetter
}

// StartWebServer starts echo web service
func StartWebServer(data *Data) error {
	goapp.Log.Info().Int("port", data.Port).Msgf("Starting HTTP batch clean service")
	if err := validate(data); err != nil {
		return err
	}

	portStr := strconv.Itoa(data.Port)

	e := initRoutes(data)

	e.Server.Addr = ":" + portStr
	e.Server.ReadHeaderTimeout = 5 * time.Second
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 60 * time.Second

	gracehttp.SetLogger(log.New(goapp.Log, "", 0))

	return gracehttp.Serve(e.Server)
}

func validate(data *Data) error {
	if data.Cleaner == nil {
		return errors.New("no cleaner")
	}
	if data.Resetter == nil {
		return errors.New("no resetter")
	}
	return nil
}

var promMdlw *prometheus.Prometheus

func init() {
	promMdlw = prometheus.NewPrometheus("vatchk_clean", nil)
}

func initRoutes(data *Data) *echo.Echo {
	e := echo.New()
	e.Use(middleware.Logger())
	promMdlw.Use(e)

	e.DELETE("/delete/:id", delete(data.Cleaner))
	e.DELETE("/reset/:batch", reset(data.Resetter))
	e.GET("/live", live(data))

	goapp.Log.Info().Msg("Routes:")
	for _, r := range e.Routes() {
		goapp.Log.Info().Msgf("  %s %s", r.Method, r.Path)
	}
	return e
}

func live(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		return c.JSONBlob(http.StatusOK, []byte(`{"service":"OK"}`))
	}
}

func delete(cleaner Cleaner) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("delete method")()

		id := c.Param("id")
		if id == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "No ID")
		}
		err := cleaner.Clean(c.Request().Context(), id)
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError, "Can't delete")
		}
		return c.String(http.StatusOK, "deleted")
	}
}

func reset(resetter Resetter) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("reset method")()

		batch := c.Param("batch")
		if batch == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "No batch")
		}
		err := resetter.Reset(c.Request().Context(), batch)
		if err != nil {
			if errors.Is(err, errWrongName) {
				return echo.NewHTTPError(http.StatusBadRequest, "Wrong batch name")
			}
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError, "Can't reset")
		}
		return c.String(http.StatusOK, "reset")
	}
}
