// kswitchd corrects text typed in the wrong keyboard layout.
//
//	kswitchd run              Run the correction daemon in the foreground
//	kswitchd status           Show the running daemon's state
//	kswitchd undo|rethink     Revert or redo the newest correction
//	kswitchd polish           Clean up the current line
//	kswitchd toggle           Enable or disable correction
//	kswitchd rules ...        Inspect, clear or import learned rules
//	kswitchd journal          Show recent corrections
//	kswitchd models           List models offered by the remote provider
//	kswitchd config ...       Create, show or validate the configuration
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"kswitchd/internal/config"
)

// Version is set at build time.
var Version = "dev"

var (
	configPath string
	socketPath string
	logLevel   string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:           "kswitchd",
	Short:         "Automatic keyboard layout correction for English and Russian",
	Long:          "kswitchd watches what you type and retypes words entered in the wrong\nkeyboard layout, with undo, rethink and a learned list of exceptions.",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "configuration file (default: search the config directory)")
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", "", "control socket path (default: from configuration)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print machine-readable JSON")

	rootCmd.AddCommand(
		newRunCmd(),
		newStatusCmd(),
		newUndoCmd(),
		newRethinkCmd(),
		newPolishCmd(),
		newToggleCmd(),
		newReloadCmd(),
		newWatchCmd(),
		newJournalCmd(),
		newRulesCmd(),
		newModelsCmd(),
		newConfigCmd(),
	)
}

// resolveConfigPath returns the --config value or the file found in the
// config directory.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.FindConfigFile()
}

// loadConfig loads and validates the configuration. A missing file yields
// the defaults.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "kswitchd: %v\n", err)
		os.Exit(1)
	}
}
