// Package app wires the kiosk's local store, outbox, server client and
// background loops together.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/crucial707/keykiosk/internal/checkout"
	"github.com/crucial707/keykiosk/internal/client"
	"github.com/crucial707/keykiosk/internal/config"
	"github.com/crucial707/keykiosk/internal/connectivity"
	"github.com/crucial707/keykiosk/internal/db"
	"github.com/crucial707/keykiosk/internal/localstore"
	"github.com/crucial707/keykiosk/internal/outbox"
	"github.com/crucial707/keykiosk/internal/scheduler"
	"github.com/crucial707/keykiosk/internal/syncer"
	"github.com/crucial707/keykiosk/internal/timeutil"
)

// App is one kiosk process.
type App struct {
	Config config.Kiosk
	Logger *slog.Logger
	Zone   *time.Location

	DB      *sql.DB
	Store   *localstore.Store
	Outbox  *outbox.Queue
	Client  *client.Client
	Monitor *connectivity.Monitor
	Syncer  *syncer.Engine
	Writer  *checkout.LiveOrQueue

	// gate is shared by every scan machine and the mirror refresh.
	gate sync.Mutex
}

// Open opens the local database and builds every component. Nothing runs
// until Run is called.
func Open(cfg config.Kiosk, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	zone, err := timeutil.LoadZone(cfg.Zone)
	if err != nil {
		return nil, err
	}

	database, err := db.OpenLocal(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := db.EnsureLocalSchema(database); err != nil {
		database.Close()
		return nil, err
	}

	a := &App{
		Config: cfg,
		Logger: logger,
		Zone:   zone,
		DB:     database,
		Store:  localstore.New(database, cfg.ID),
		Outbox: outbox.New(database),
		Client: client.New(cfg.ServerURL, cfg.Token, cfg.ID, cfg.RequestTimeout),
	}
	a.Monitor = connectivity.New(a.Client, cfg.ProbeInterval, cfg.ProbeTimeout, logger.With("component", "monitor"))
	a.Syncer = syncer.New(a.Client, a.Outbox, a.Store, logger.With("component", "sync"))
	a.Syncer.AlertAfter = cfg.SyncAlertAfter
	a.Syncer.OnTransientFailure = a.Monitor.ReportFailure
	a.Syncer.Gate = &a.gate
	a.Writer = &checkout.LiveOrQueue{
		Server:  a.Client,
		Outbox:  a.Outbox,
		Monitor: a.Monitor,
		Sync:    a.Syncer,
		Logger:  logger.With("component", "writer"),
	}
	return a, nil
}

// Machine returns a scan state machine that asks p for operator input.
func (a *App) Machine(p checkout.Prompter) *checkout.Machine {
	return checkout.NewMachine(checkout.Config{
		Ledger:   a.Store,
		Writer:   a.Writer,
		Prompter: p,
		Cards:    a.Client,
		KioskID:  a.Config.ID,
		Timeout:  a.Config.SessionTimeout,
		Logger:   a.Logger.With("component", "checkout"),
		Gate:     &a.gate,
	})
}

func (a *App) Close() error {
	return a.DB.Close()
}

// Run starts the connectivity probe, the scheduled jobs and the metrics
// listener, and blocks until ctx is done or one of them fails.
func (a *App) Run(ctx context.Context) error {
	a.Monitor.OnOnline(func() { a.Syncer.Trigger(ctx) })

	sched := scheduler.New(a.Logger.With("component", "scheduler"))
	if err := sched.Add("mirror", a.Config.MirrorSchedule, a.RefreshMirror); err != nil {
		return err
	}
	if err := sched.Add("vacuum", a.Config.VacuumSchedule, scheduler.Vacuum(a.DB)); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Monitor.Run(ctx) })
	g.Go(func() error { return sched.Run(ctx) })
	if a.Config.MetricsAddr != "" {
		g.Go(func() error { return a.serveMetrics(ctx) })
	}
	return g.Wait()
}

// RefreshMirror drains the outbox and, when it comes out empty, replaces
// the local mirror with the server's state. It does nothing offline.
func (a *App) RefreshMirror(ctx context.Context) error {
	if !a.Monitor.Online() {
		return nil
	}
	return a.Syncer.Run(ctx).Err
}

func (a *App) metricsHandler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return r
}

func (a *App) serveMetrics(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.Config.MetricsAddr,
		Handler:           a.metricsHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	a.Logger.Info("serving metrics", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics listener: %w", err)
	}
	return nil
}
