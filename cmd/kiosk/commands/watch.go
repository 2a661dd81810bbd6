package commands

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/crucial707/keykiosk/cmd/kiosk/root"
	"github.com/crucial707/keykiosk/internal/notify"
	"github.com/crucial707/keykiosk/internal/timeutil"
)

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow ledger changes from every kiosk",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := root.Load()
			if err != nil {
				return err
			}
			if cfg.RedisAddr == "" {
				return errors.New("redis_addr is not configured")
			}
			zone, err := timeutil.LoadZone(cfg.Zone)
			if err != nil {
				return err
			}

			rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
			defer rdb.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			return notify.Subscribe(ctx, rdb, cfg.NotifyChannel, func(ev notify.Event) {
				fmt.Fprintf(out, "%s  %-10s %s\n", ev.At.In(zone).Format(time.DateTime), ev.Kind, ev.KioskID)
			})
		},
	}
}
