package main

import (
	"context"
	"net/http"

	"github.com/spf13/cobra"

	"kswitchd/internal/semantic"
)

func newModelsCmd() *cobra.Command {
	var endpoint string
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List models offered by the correction service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if endpoint == "" {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				endpoint = cfg.Semantic.APIURL
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()

			models, err := semantic.ListModels(ctx, http.DefaultClient, endpoint)
			if err != nil {
				return err
			}
			out := newPrinter(cmd.OutOrStdout())
			if jsonOutput {
				return out.json(models)
			}
			for _, m := range models {
				out.line("%s", m)
			}
			return out.flush()
		},
	}
	cmd.Flags().StringVar(&endpoint, "url", "", "correction endpoint (default: semantic.api_url)")
	return cmd
}
