package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jxwalker/docfetch/internal/apiclient"
	"github.com/jxwalker/docfetch/internal/engine"
)

func newTokenCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "token <document-id> [layer]",
		Short: "Fetch a fresh engine token for a document layer",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load()
			if err != nil {
				return err
			}
			log := f.logger(cfg, cmd.ErrOrStderr())
			api, err := apiclient.New(cfg.Backend.BaseURL, cfg.Backend.UserID, cfg.Backend.Password,
				apiclient.WithLogger(log), apiclient.WithTimeout(cfg.Timeout()), apiclient.WithUserAgent(cfg.Backend.UserAgent))
			if err != nil {
				return err
			}
			layer := apiclient.Layer{DocumentID: args[0]}
			if len(args) == 2 {
				layer.Name = args[1]
			}
			tok, err := api.FetchAuthToken(cmd.Context(), layer)
			if err != nil {
				return err
			}
			if !f.jsonOut {
				fmt.Fprintln(cmd.OutOrStdout(), tok)
				return nil
			}
			claims, err := engine.ParseToken(tok)
			if err != nil {
				return fmt.Errorf("backend returned an unreadable token for %s: %w", layer, err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{"token": tok, "claims": claims})
		},
	}
}
