package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"kswitchd/internal/config"
	"kswitchd/internal/ipc"
	"kswitchd/internal/rules"
)

var errDaemonRunning = errors.New("daemon is running; stop it before importing rules")

func newRulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect and manage learned suppression rules",
	}
	cmd.AddCommand(newRulesListCmd(), newRulesClearCmd(), newRulesImportCmd())
	return cmd
}

func newRulesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List undo counts and suppressed patterns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDaemon(cmd, func(ctx context.Context, c *ipc.IPCClient) error {
				list, err := c.ListRules(ctx)
				if err != nil {
					return err
				}
				out := newPrinter(cmd.OutOrStdout())
				if jsonOutput {
					return out.json(list)
				}
				if len(list) == 0 {
					out.line("no learned rules")
					return out.flush()
				}
				out.row("PATTERN", "UNDOS", "SUPPRESSED")
				for _, r := range list {
					suppressed := ""
					if r.Suppressed {
						suppressed = "yes"
					}
					out.row(r.Pattern, fmt.Sprint(r.UndoCount), suppressed)
				}
				return out.flush()
			})
		},
	}
}

func newRulesClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Forget all learned rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDaemon(cmd, func(ctx context.Context, c *ipc.IPCClient) error {
				if err := c.ClearRules(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "rules cleared")
				return nil
			})
		},
	}
}

func newRulesImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import [file]",
		Short: "Merge a learned_rules.json file into the rule store",
		Long: "Merge a learned_rules.json file into the configured rule store.\n" +
			"The daemon must not be running. The file defaults to the one in\n" +
			"the legacy configuration directory.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := filepath.Join(config.LegacyDir(), "learned_rules.json")
			if len(args) == 1 {
				path = args[0]
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return importRules(cmd.Context(), cfg, path, cmd.OutOrStdout())
		},
	}
}

func importRules(ctx context.Context, cfg *config.Config, path string, w io.Writer) error {
	if ipc.IsSocketListening(cfg.IPC.SocketPath) {
		return errDaemonRunning
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open rules file: %w", err)
	}
	defer f.Close()

	snap, err := rules.ReadLegacy(f)
	if err != nil {
		return err
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	rs, _, err := openRuleStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer rs.Close()

	if err := rs.Merge(ctx, snap); err != nil {
		return err
	}
	fmt.Fprintf(w, "imported %d counters and %d suppressed patterns from %s\n",
		len(snap.UndoCounts), len(snap.Suppressed), path)
	return nil
}
