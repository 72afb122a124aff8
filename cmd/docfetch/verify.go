package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

type verifyRow struct {
	DocumentID string `json:"document_id"`
	Layer      string `json:"layer"`
	OK         bool   `json:"ok"`
	Expected   string `json:"expected"`
	Actual     string `json:"actual,omitempty"`
	Error      string `json:"error,omitempty"`
}

func newVerifyCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Re-hash stored layers and mark corrupt ones for download",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load()
			if err != nil {
				return err
			}
			log := f.logger(cfg, cmd.ErrOrStderr())
			s, err := openStack(cfg, log, true)
			if err != nil {
				return err
			}
			defer s.Close()

			results, err := s.eng.Verify()
			if err != nil {
				return err
			}
			rows := make([]verifyRow, 0, len(results))
			bad := 0
			for _, r := range results {
				v := verifyRow{DocumentID: r.Row.DocumentID, Layer: r.Row.Layer, OK: r.OK, Expected: r.Row.SHA256, Actual: r.Actual}
				if r.Err != nil {
					v.Error = r.Err.Error()
				}
				if !r.OK {
					bad++
				}
				rows = append(rows, v)
			}
			if f.jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(rows); err != nil {
					return err
				}
			} else {
				for _, v := range rows {
					switch {
					case v.OK:
						fmt.Fprintf(cmd.OutOrStdout(), "✓ %s %q\n", v.DocumentID, v.Layer)
					case v.Error != "":
						fmt.Fprintf(cmd.OutOrStdout(), "✗ %s %q: %s\n", v.DocumentID, v.Layer, v.Error)
					default:
						fmt.Fprintf(cmd.OutOrStdout(), "✗ %s %q: sha256 %s, expected %s\n", v.DocumentID, v.Layer, v.Actual, v.Expected)
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d verified, %d bad\n", len(rows)-bad, bad)
			}
			if bad > 0 {
				return fmt.Errorf("%d layer(s) failed verification; run 'docfetch sync' to fetch them again", bad)
			}
			return nil
		},
	}
}
