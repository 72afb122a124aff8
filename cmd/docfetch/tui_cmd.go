package main

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/jxwalker/docfetch/internal/tui"
)

func newTUICmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Open the interactive document browser",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load()
			if err != nil {
				return err
			}
			// log lines go to the footer instead of the alternate screen
			logs := tui.NewLogBuffer(200)
			log := f.logger(cfg, logs)
			s, err := openStack(cfg, log, true)
			if err != nil {
				return err
			}
			defer s.Close()

			inbox := tui.NewInbox()
			defer inbox.Close()
			coord := s.coordinator(cmd.Context(), inbox)
			m := tui.New(coord, s.eng, inbox, logs, cfg.RefreshInterval())
			p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
			_, err = p.Run()
			return err
		},
	}
}
