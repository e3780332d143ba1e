package server

import (
	"context"
	"errors"
	"io"
	"os/signal"
	"syscall"
	"time"

	"SigTrack/internal/usecase"
	xhttp "SigTrack/pkg/http"
	applogger "SigTrack/pkg/logger"
)

// Ticker is the evaluation pass driven by the loop.
type Ticker interface {
	Tick(ctx context.Context) (*usecase.TickReport, error)
}

// App encapsulates the application lifecycle: the evaluation loop, the HTTP
// server and the resources to release on shutdown.
type App struct {
	ticker   Ticker
	interval time.Duration
	http     *xhttp.Server
	closers  []io.Closer
	log      *applogger.Logger
}

// New creates a new App. http may be nil to run the loop alone.
func New(ticker Ticker, interval time.Duration, http *xhttp.Server, log *applogger.Logger, closers ...io.Closer) *App {
	if log == nil {
		log = applogger.NewNop()
	}
	return &App{ticker: ticker, interval: interval, http: http, closers: closers, log: log}
}

// Run starts the HTTP server and the loop, and blocks until SIGINT/SIGTERM
// or ctx is done.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if a.http != nil {
		if err := a.http.Start(); err != nil {
			a.log.Error("http server start error", applogger.Error(err))
			a.release()
			return err
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		a.Loop(ctx)
	}()

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	<-done
	return a.shutdown()
}

// Loop ticks once immediately, then every interval, until ctx is done. A
// failed tick is logged and the loop keeps going.
func (a *App) Loop(ctx context.Context) {
	a.log.Info("evaluation loop started", applogger.Duration("interval_ms", a.interval))
	a.tick(ctx)

	t := time.NewTicker(a.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			a.log.Info("evaluation loop stopped")
			return
		case <-t.C:
			a.tick(ctx)
		}
	}
}

func (a *App) tick(ctx context.Context) {
	if _, err := a.ticker.Tick(ctx); err != nil && !errors.Is(err, context.Canceled) {
		a.log.Error("tick failed", applogger.Error(err))
	}
}

// shutdown gracefully stops all services.
func (a *App) shutdown() error {
	a.log.Info("shutting down")
	var errs []error
	if a.http != nil {
		if err := a.http.Stop(context.Background()); err != nil {
			a.log.Error("http shutdown error", applogger.Error(err))
			errs = append(errs, err)
		}
	}
	if err := a.release(); err != nil {
		errs = append(errs, err)
	}
	a.log.Info("shutdown complete")
	return errors.Join(errs...)
}

func (a *App) release() error {
	var errs []error
	for _, c := range a.closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			a.log.Warn("close error", applogger.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
