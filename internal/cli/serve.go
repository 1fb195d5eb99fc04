package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"

	"github.com/iliyamo/paycore/internal/handler"
	"github.com/iliyamo/paycore/internal/queue"
	"github.com/iliyamo/paycore/internal/router"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var (
		noWorkers bool
		migrate   bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API, the reconciliation sweep and the retry consumer",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cfg, log)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if migrate {
				if err := runMigrate(ctx, a); err != nil {
					return err
				}
			}
			return a.serve(ctx, !noWorkers)
		},
	}
	cmd.Flags().BoolVar(&noWorkers, "no-workers", false, "serve HTTP only; skip the sweep and the retry consumer")
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply the schema before serving")
	return cmd
}

// newEcho builds the HTTP server with request logging into slog and the
// standard error envelope.
func (a *app) newEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.ErrorHandler(a.log)

	e.Use(echomw.Recover())
	e.Use(echomw.BodyLimit("1M"))
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				attrs = append(attrs, slog.String("err", v.Error.Error()))
				a.log.LogAttrs(context.Background(), slog.LevelWarn, "request", attrs...)
				return nil
			}
			a.log.LogAttrs(context.Background(), slog.LevelInfo, "request", attrs...)
			return nil
		},
	}))

	router.Register(e, a.routes())
	return e
}

// serve runs the API until ctx is cancelled, then drains in-flight
// requests and waits for the workers to stop.
func (a *app) serve(ctx context.Context, workers bool) error {
	e := a.newEcho()

	var wg sync.WaitGroup
	if workers {
		wg.Add(2)
		go func() {
			defer wg.Done()
			a.reconciler.Run(ctx)
		}()
		go func() {
			defer wg.Done()
			consumer := queue.NewRetryConsumer(a.cfg.RabbitMQ.URL, a.retrySettlement, a.log)
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.log.Error("retry consumer stopped", slog.Any("err", err))
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + a.cfg.Port
		a.log.Info("listening", slog.String("addr", addr), slog.String("env", a.cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	a.log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(sctx); err != nil {
		a.log.Error("http shutdown", slog.Any("err", err))
	}
	wg.Wait()
	return serveErr
}
