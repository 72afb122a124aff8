package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newCleanCmd(f *rootFlags) *cobra.Command {
	var dryRun, yes bool
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Delete every locally stored layer",
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

			rows, err := s.eng.StoredLayers()
			if err != nil {
				return err
			}
			var total int64
			for _, r := range rows {
				total += r.Size
			}
			if dryRun {
				for _, r := range rows {
					fmt.Fprintf(cmd.OutOrStdout(), "would remove %s %q (%s)\n", r.DocumentID, r.Layer, humanize.Bytes(uint64(r.Size)))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d layer(s), %s\n", len(rows), humanize.Bytes(uint64(total)))
				return nil
			}
			if !yes {
				return fmt.Errorf("refusing to delete %d layer(s) without --yes", len(rows))
			}
			if err := s.eng.RemoveAllLocalStorage(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d layer(s), freed %s\n", len(rows), humanize.Bytes(uint64(total)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list what would be removed")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}
