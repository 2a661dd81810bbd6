package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/crucial707/keykiosk/internal/auth"
	"github.com/crucial707/keykiosk/internal/config"
	"github.com/crucial707/keykiosk/internal/db"
	"github.com/crucial707/keykiosk/internal/logging"
	"github.com/crucial707/keykiosk/internal/notify"
	"github.com/crucial707/keykiosk/internal/scheduler"
)

func main() {
	migrateOnly := flag.Bool("migrate", false, "apply database migrations and exit")
	issueToken := flag.String("issue-token", "", "print a bearer token for the named kiosk and exit")
	debug := flag.Bool("debug", false, "log at debug level")
	flag.Parse()

	config.LoadDotEnv()
	cfg := config.Load()
	logger := logging.Setup(os.Stderr, cfg.LogFormat, *debug)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	if *issueToken != "" {
		token, err := auth.IssueKioskToken([]byte(cfg.JWTSecret), *issueToken, cfg.TokenTTL)
		if err != nil {
			logger.Error("issuing token", "error", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	if *migrateOnly {
		if err := db.Run(cfg.Postgres().URL()); err != nil {
			logger.Error("migrating", "error", err)
			os.Exit(1)
		}
		logger.Info("migrations applied")
		return
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	database, err := db.Connect(cfg.Postgres())
	if err != nil {
		return err
	}
	defer database.Close()
	logger.Info("connected to database", "host", cfg.DBHost, "name", cfg.DBName)

	var broadcaster notify.Broadcaster = notify.Log{Logger: logger}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()
		broadcaster = notify.NewRedis(rdb, cfg.NotifyChannel)
		logger.Info("broadcasting changes", "redis", cfg.RedisAddr, "channel", cfg.NotifyChannel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched := scheduler.New(logger)
	if err := sched.Add("vacuum", cfg.VacuumSchedule, scheduler.Vacuum(database)); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newRouter(database, cfg, broadcaster, logger),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Run(ctx) })
	g.Go(func() error {
		logger.Info("listening", "addr", srv.Addr, "tls", cfg.TLSCertFile != "")
		var err error
		if cfg.TLSCertFile != "" {
			err = srv.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
