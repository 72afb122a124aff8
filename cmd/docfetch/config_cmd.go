package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jxwalker/docfetch/internal/config"
)

func newConfigCmd(f *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration file",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the YAML config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := f.path()
			b, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("config file not found: %s", path)
			}
			var c config.Config
			if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(b))), &c); err != nil {
				return fmt.Errorf("parse %s: %w", path, err)
			}
			if err := c.ValidateWithFriendlyErrors(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config: valid (%s)\n", path)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "print",
		Short: "Print the loaded config with the password redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := f.load()
			if err != nil {
				return err
			}
			shown := *c
			if shown.Backend.Password != "" {
				shown.Backend.Password = "***"
			}
			if f.jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(shown)
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(shown); err != nil {
				return err
			}
			return enc.Close()
		},
	})
	return cmd
}
