package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"kswitchd/internal/config"
	"kswitchd/internal/ipc"
)

const requestTimeout = 5 * time.Second

// dialDaemon connects to the control socket named by --socket or the
// configuration.
func dialDaemon(ctx context.Context) (*ipc.IPCClient, error) {
	path := socketPath
	if path == "" {
		cfg, err := config.Load(resolveConfigPath())
		if err != nil {
			return nil, err
		}
		path = cfg.IPC.SocketPath
	}
	client, err := ipc.Dial(ctx, path, "kswitchd-cli")
	if errors.Is(err, ipc.ErrDaemonNotRunning) {
		return nil, fmt.Errorf("%w (start it with: kswitchd run)", err)
	}
	return client, err
}

// withDaemon runs fn with a connected client and a request deadline.
func withDaemon(cmd *cobra.Command, fn func(ctx context.Context, c *ipc.IPCClient) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
	defer cancel()
	client, err := dialDaemon(ctx)
	if err != nil {
		return err
	}
	defer client.Close()
	return fn(ctx, client)
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the running daemon's state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDaemon(cmd, func(ctx context.Context, c *ipc.IPCClient) error {
				st, err := c.Status(ctx)
				if err != nil {
					return err
				}
				out := newPrinter(cmd.OutOrStdout())
				if jsonOutput {
					return out.json(st)
				}
				out.section("DAEMON")
				out.field("Version", st.Version)
				out.field("Uptime", st.Uptime.String())
				out.field("Enabled", onOff(st.Enabled))
				out.field("State", st.State)
				out.field("Clients", fmt.Sprint(st.Clients))
				out.section("CORRECTION")
				out.field("Provider", st.Provider)
				out.field("Threshold", fmt.Sprintf("%.2f", st.Threshold))
				out.field("Languages", joinOr(st.Languages, "none"))
				out.field("Undo depth", fmt.Sprint(st.UndoDepth))
				out.field("Phrase words", fmt.Sprint(st.PhraseWords))
				out.field("Suppressed", fmt.Sprint(st.Suppressed))
				if st.HandoffLayout != "" {
					out.field("Handoff", string(st.HandoffLayout))
				}
				return out.flush()
			})
		},
	}
}

func correctionCmd(use, short string, call func(*ipc.IPCClient, context.Context) (*ipc.CorrectionResponse, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDaemon(cmd, func(ctx context.Context, c *ipc.IPCClient) error {
				resp, err := call(c, ctx)
				if err != nil {
					return err
				}
				out := newPrinter(cmd.OutOrStdout())
				if jsonOutput {
					return out.json(resp)
				}
				if !resp.Applied {
					out.line("nothing to %s", use)
				} else if resp.Original != "" {
					out.line("%q -> %q", resp.Original, resp.Corrected)
				} else {
					out.line("%q", resp.Corrected)
				}
				return out.flush()
			})
		},
	}
}

func newUndoCmd() *cobra.Command {
	return correctionCmd("undo", "Revert the newest correction", (*ipc.IPCClient).Undo)
}

func newRethinkCmd() *cobra.Command {
	return correctionCmd("rethink", "Re-run the newest correction", (*ipc.IPCClient).Rethink)
}

func newPolishCmd() *cobra.Command {
	return correctionCmd("polish", "Clean up the current line", (*ipc.IPCClient).Polish)
}

func newToggleCmd() *cobra.Command {
	var on, off bool
	cmd := &cobra.Command{
		Use:   "toggle",
		Short: "Enable or disable correction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var want *bool
			switch {
			case on:
				want = &on
			case off:
				disabled := false
				want = &disabled
			}
			return withDaemon(cmd, func(ctx context.Context, c *ipc.IPCClient) error {
				enabled, err := c.SetEnabled(ctx, want)
				if err != nil {
					return err
				}
				out := newPrinter(cmd.OutOrStdout())
				if jsonOutput {
					return out.json(map[string]bool{"enabled": enabled})
				}
				out.line("correction %s", onOff(enabled))
				return out.flush()
			})
		},
	}
	cmd.Flags().BoolVar(&on, "on", false, "enable correction")
	cmd.Flags().BoolVar(&off, "off", false, "disable correction")
	cmd.MarkFlagsMutuallyExclusive("on", "off")
	return cmd
}

func newReloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Ask the daemon to re-read its configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDaemon(cmd, func(ctx context.Context, c *ipc.IPCClient) error {
				if err := c.Reload(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "configuration reloaded")
				return nil
			})
		},
	}
}

func newJournalCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Show recent corrections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDaemon(cmd, func(ctx context.Context, c *ipc.IPCClient) error {
				resp, err := c.Journal(ctx, limit)
				if err != nil {
					return err
				}
				out := newPrinter(cmd.OutOrStdout())
				if jsonOutput {
					return out.json(resp.Entries)
				}
				out.row("TIME", "KIND", "STRATEGY", "ORIGINAL", "CORRECTED")
				for _, e := range resp.Entries {
					ts := time.Unix(0, e.TimestampNs).Format(time.DateTime)
					out.row(ts, string(e.Kind), e.Strategy, e.Original, e.Corrected)
				}
				return out.flush()
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries")
	return cmd
}

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream daemon events until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			dialCtx, cancel := context.WithTimeout(ctx, requestTimeout)
			defer cancel()
			client, err := dialDaemon(dialCtx)
			if err != nil {
				return err
			}
			defer client.Close()

			out := newPrinter(cmd.OutOrStdout())
			err = client.Subscribe(dialCtx, func(e *ipc.Event) {
				if jsonOutput {
					_ = out.json(e)
					return
				}
				out.line("%s %s %v", e.Timestamp.Format(time.TimeOnly), eventName(e.Type), e.Data)
				_ = out.flush()
			})
			if err != nil {
				return err
			}

			select {
			case <-ctx.Done():
			case <-client.Done():
				fmt.Fprintln(cmd.ErrOrStderr(), "daemon closed the connection")
			}
			return nil
		},
	}
}

func eventName(t ipc.EventType) string {
	switch t {
	case ipc.EventCorrection:
		return "correction"
	case ipc.EventSkipped:
		return "skipped"
	case ipc.EventStateChanged:
		return "state"
	case ipc.EventLayoutRequest:
		return "layout"
	case ipc.EventConfigChanged:
		return "config"
	case ipc.EventShutdown:
		return "shutdown"
	default:
		return fmt.Sprintf("event(%d)", t)
	}
}
