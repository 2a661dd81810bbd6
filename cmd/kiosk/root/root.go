package root

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/crucial707/keykiosk/internal/config"
	"github.com/crucial707/keykiosk/internal/logging"
)

// Exported RootCmd
var RootCmd = &cobra.Command{
	Use:           "keykiosk",
	Short:         "Key fob checkout kiosk",
	Long:          "Scan keycards and key fobs, keep a local ledger, and sync it to the server when reachable.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	configPath string
	debug      bool
)

func init() {
	RootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("KIOSK_CONFIG"), "kiosk YAML config file")
	RootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "log at debug level")
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// Optional helper to return the RootCmd
func GetRoot() *cobra.Command {
	return RootCmd
}

// Load reads the kiosk configuration and installs the default logger.
// Logs go to stderr so command output on stdout stays clean.
func Load() (config.Kiosk, *slog.Logger, error) {
	config.LoadDotEnv()
	cfg, err := config.LoadKiosk(configPath)
	if err != nil {
		return config.Kiosk{}, nil, err
	}
	logger := logging.Setup(os.Stderr, cfg.LogFormat, debug).With("kiosk", cfg.ID)
	return cfg, logger, nil
}
