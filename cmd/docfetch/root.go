package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jxwalker/docfetch/internal/config"
	"github.com/jxwalker/docfetch/internal/logging"
)

type rootFlags struct {
	configPath string
	logLevel   string
	jsonOut    bool
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}
	root := &cobra.Command{
		Use:           "docfetch",
		Short:         "docfetch lists documents from a backend and keeps their layers synced locally",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&f.configPath, "config", "c", "", "path to YAML config file (default $DOCFETCH_CONFIG or ~/.config/docfetch/config.yml)")
	root.PersistentFlags().StringVar(&f.logLevel, "log-level", "", "log level: debug|info|warn|error (overrides logging.level)")
	root.PersistentFlags().BoolVar(&f.jsonOut, "json", false, "JSON logs and output")

	root.AddCommand(
		newListCmd(f),
		newTokenCmd(f),
		newSyncCmd(f),
		newTUICmd(f),
		newCleanCmd(f),
		newVerifyCmd(f),
		newDoctorCmd(f),
		newConfigCmd(f),
		newServeSampleCmd(f),
		newVersionCmd(),
	)
	return root
}

func (f *rootFlags) path() string {
	if f.configPath != "" {
		return f.configPath
	}
	return config.DefaultPath()
}

func (f *rootFlags) load() (*config.Config, error) {
	path := f.path()
	if path == "" {
		return nil, fmt.Errorf("no config path; set DOCFETCH_CONFIG or pass --config")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file not found: %s", path)
	}
	return config.Load(path)
}

// logger writes to w using the flag level when set, else the configured one.
func (f *rootFlags) logger(cfg *config.Config, w io.Writer) *logging.Logger {
	level := f.logLevel
	jsonOut := f.jsonOut
	if cfg != nil {
		if level == "" {
			level = cfg.Logging.Level
		}
		jsonOut = jsonOut || strings.EqualFold(cfg.Logging.Format, "json")
	}
	return logging.NewWriter(w, level, jsonOut)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
