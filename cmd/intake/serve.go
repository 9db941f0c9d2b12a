package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/smhs/intake/internal/config"
	"github.com/smhs/intake/internal/domain/account"
	"github.com/smhs/intake/internal/domain/admin"
	"github.com/smhs/intake/internal/domain/intake"
	"github.com/smhs/intake/internal/platform/apiclient"
	"github.com/smhs/intake/internal/platform/auth"
	"github.com/smhs/intake/internal/platform/middleware"
)

const version = "0.1.0"

func serveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP edge in front of the intake API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), a.cfg, a.logger)
		},
	}
}

// newServer builds the edge. It keeps no user state: every request carries
// its own bearer token, which is forwarded upstream.
func newServer(cfg *config.Config, logger zerolog.Logger) (*echo.Echo, error) {
	api, err := apiclient.New(cfg.APIBaseURL,
		apiclient.WithTimeout(cfg.RequestTimeout),
		apiclient.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	v, err := intake.NewValidator()
	if err != nil {
		return nil, err
	}
	limits := intake.ImageLimits{MaxBytes: cfg.CardImageMaxBytes, MaxDimension: cfg.CardImageMaxDimension}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(!cfg.IsDev()))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut},
		AllowHeaders:  []string{echo.HeaderAuthorization, echo.HeaderContentType, middleware.RequestIDHeader},
		ExposeHeaders: []string{middleware.RequestIDHeader, "Retry-After"},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit, cfg.UploadBodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout + 5*time.Second))

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})

	rl := middleware.RateLimitConfig{RequestsPerSecond: cfg.RateLimitRPS, BurstSize: cfg.RateLimitBurst}
	if rl.RequestsPerSecond <= 0 {
		rl = middleware.DefaultRateLimitConfig()
	}
	apiGroup := e.Group("/api", auth.BearerMiddleware(), middleware.RateLimit(rl))

	intake.NewHandler(intake.NewService(intake.NewHTTPBackend(api), v, limits, logger)).RegisterRoutes(apiGroup)
	account.NewHandler(account.NewService(api, logger)).RegisterRoutes(apiGroup)
	admin.NewHandler(admin.NewService(admin.NewHTTPBackend(api), logger)).RegisterRoutes(apiGroup)

	return e, nil
}

func runServer(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	e, err := newServer(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("api", cfg.APIBaseURL).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
