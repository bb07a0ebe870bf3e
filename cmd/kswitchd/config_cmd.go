package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"kswitchd/internal/config"
)

const redacted = "********"

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create, show and validate configuration",
	}
	cmd.AddCommand(newConfigInitCmd(), newConfigShowCmd(), newConfigValidateCmd())
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var (
		force      bool
		fromLegacy string
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file",
		Long: "Write a configuration file with the default settings, or with the\n" +
			"settings converted from a legacy config.json (--from-legacy).",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath
			if path == "" {
				path = config.ConfigPath()
			}
			if !force {
				if _, err := os.Stat(path); err == nil {
					return fmt.Errorf("%s already exists (use --force to overwrite)", path)
				} else if !errors.Is(err, fs.ErrNotExist) {
					return err
				}
			}

			cfg := config.DefaultConfig()
			if cmd.Flags().Changed("from-legacy") {
				legacy, err := config.LoadLegacy(fromLegacy)
				if err != nil {
					return err
				}
				cfg = legacy
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := config.SaveConfig(cfg, path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")
	cmd.Flags().StringVar(&fromLegacy, "from-legacy", "", "convert a legacy config.json (default: the kautoswitch one)")
	cmd.Flags().Lookup("from-legacy").NoOptDefVal = config.LegacyConfigPath()
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return err
			}
			if jsonOutput {
				format = "json"
			}
			data, err := encodeConfig(redact(cfg), format)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().StringVar(&format, "format", "toml", "output format: toml, json or yaml")
	return cmd
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration for errors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := resolveConfigPath()
			if _, err := loadConfig(); err != nil {
				var verrs config.ValidationErrors
				if errors.As(err, &verrs) {
					for _, e := range verrs {
						fmt.Fprintf(cmd.ErrOrStderr(), "  %s\n", e.Error())
					}
					return fmt.Errorf("%s: %d problem(s)", displayPath(path), len(verrs))
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", displayPath(path))
			return nil
		},
	}
}

func redact(cfg *config.Config) *config.Config {
	c := cfg.Clone()
	if c.Semantic.APIKey != "" {
		c.Semantic.APIKey = redacted
	}
	return c
}

func encodeConfig(cfg *config.Config, format string) ([]byte, error) {
	switch format {
	case "json":
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	case "yaml", "yml":
		return yaml.Marshal(cfg)
	case "toml":
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}

func displayPath(path string) string {
	if path == "" {
		return "defaults"
	}
	return path
}
