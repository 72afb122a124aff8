package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jxwalker/docfetch/internal/apiclient"
	"github.com/jxwalker/docfetch/internal/config"
	friendlyerrors "github.com/jxwalker/docfetch/internal/errors"
	"github.com/jxwalker/docfetch/internal/lockfile"
	"github.com/jxwalker/docfetch/internal/logging"
	"github.com/jxwalker/docfetch/internal/system"
)

// Check represents a single diagnostic check
type Check struct {
	Name     string
	Run      func(ctx context.Context) CheckResult
	Critical bool // If true, failure means sync will not work
}

// CheckResult represents the result of a diagnostic check
type CheckResult struct {
	Passed     bool
	Warning    bool // Passed but with warnings
	Message    string
	Suggestion string
}

const minFreeSpace = 100 << 20

func newDoctorCmd(f *rootFlags) *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose configuration, storage and server reachability",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := f.path()
			cfg, cfgErr := f.load()
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Running docfetch diagnostics...")
			fmt.Fprintln(out)
			failed := runChecks(cmd.Context(), out, doctorChecks(path, cfg, cfgErr), verbose)
			if failed > 0 {
				return fmt.Errorf("%d critical check(s) failed", failed)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show how long each check took")
	return cmd
}

func doctorChecks(path string, cfg *config.Config, cfgErr error) []Check {
	needConfig := CheckResult{Passed: false, Message: "Config not loaded"}
	return []Check{
		{
			Name:     "Config file",
			Critical: true,
			Run: func(ctx context.Context) CheckResult {
				if cfgErr != nil {
					return CheckResult{
						Message:    cfgErr.Error(),
						Suggestion: fmt.Sprintf("Create %s or pass --config\nRun 'docfetch config validate' for details", path),
					}
				}
				return CheckResult{Passed: true, Message: path}
			},
		},
		{
			Name:     "Data root writable",
			Critical: true,
			Run: func(ctx context.Context) CheckResult {
				if cfg == nil {
					return needConfig
				}
				if err := config.EnsureDir(cfg.Engine.DataRoot, 0o755); err != nil {
					return CheckResult{Message: err.Error(), Suggestion: "Check engine.data_root and its permissions"}
				}
				probe := filepath.Join(cfg.Engine.DataRoot, ".doctor-probe")
				if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
					return CheckResult{Message: err.Error(), Suggestion: "Check permissions on " + cfg.Engine.DataRoot}
				}
				_ = os.Remove(probe)
				return CheckResult{Passed: true, Message: cfg.Engine.DataRoot}
			},
		},
		{
			Name: "Disk space",
			Run: func(ctx context.Context) CheckResult {
				if cfg == nil {
					return needConfig
				}
				avail, err := system.CheckAvailableSpace(cfg.Engine.DataRoot)
				if err != nil {
					return CheckResult{Passed: true, Warning: true, Message: err.Error()}
				}
				msg := humanize.Bytes(avail) + " available"
				if pct, err := system.DiskUsagePercent(cfg.Engine.DataRoot); err == nil {
					msg += fmt.Sprintf(" (%.0f%% used)", pct)
				}
				if avail < minFreeSpace {
					return CheckResult{Passed: true, Warning: true, Message: msg, Suggestion: "Free some space or run 'docfetch clean'"}
				}
				return CheckResult{Passed: true, Message: msg}
			},
		},
		{
			Name: "Data root lock",
			Run: func(ctx context.Context) CheckResult {
				if cfg == nil {
					return needConfig
				}
				lk, err := lockfile.Acquire(cfg.Engine.DataRoot)
				if errors.Is(err, lockfile.ErrHeld) {
					return CheckResult{Passed: true, Warning: true, Message: "Another docfetch process is using the data root"}
				}
				if err != nil {
					return CheckResult{Passed: true, Warning: true, Message: err.Error()}
				}
				_ = lk.Release()
				return CheckResult{Passed: true, Message: "Free"}
			},
		},
		{
			Name:     "Backend reachable",
			Critical: true,
			Run: func(ctx context.Context) CheckResult {
				if cfg == nil {
					return needConfig
				}
				return endpointResult(ctx, cfg.Backend.BaseURL)
			},
		},
		{
			Name:     "Backend credentials",
			Critical: true,
			Run: func(ctx context.Context) CheckResult {
				if cfg == nil {
					return needConfig
				}
				api, err := apiclient.New(cfg.Backend.BaseURL, cfg.Backend.UserID, cfg.Backend.Password,
					apiclient.WithTimeout(10*time.Second), apiclient.WithLogger(logging.Discard()))
				if err != nil {
					return CheckResult{Message: err.Error()}
				}
				docs, err := api.FetchDocumentList(ctx)
				var se *apiclient.StatusError
				switch {
				case errors.As(err, &se) && (se.Code == http.StatusUnauthorized || se.Code == http.StatusForbidden):
					fe := friendlyerrors.AuthError(se.Code, err)
					return CheckResult{Message: fe.Message, Suggestion: fe.Suggestion}
				case err != nil:
					return CheckResult{Message: err.Error()}
				case len(docs) == 0:
					return CheckResult{Passed: true, Warning: true, Message: "No documents listed", Suggestion: "Upload a document to the backend"}
				}
				return CheckResult{Passed: true, Message: fmt.Sprintf("%d document(s) listed", len(docs))}
			},
		},
		{
			Name:     "Engine server reachable",
			Critical: true,
			Run: func(ctx context.Context) CheckResult {
				if cfg == nil {
					return needConfig
				}
				return endpointResult(ctx, cfg.Engine.ServerURL)
			},
		},
		{
			Name: "Proxy settings",
			Run: func(ctx context.Context) CheckResult {
				proxies := system.DetectProxySettings()
				if len(proxies) == 0 {
					return CheckResult{Passed: true, Message: "None"}
				}
				var parts []string
				for k, v := range proxies {
					parts = append(parts, k+"="+logging.SanitizeURL(v))
				}
				return CheckResult{Passed: true, Message: strings.Join(parts, ", ")}
			},
		},
	}
}

func endpointResult(ctx context.Context, rawURL string) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := system.CheckEndpoint(ctx, rawURL); err != nil {
		msg, suggestion := err.Error(), ""
		var fe *friendlyerrors.UserFriendlyError
		if errors.As(err, &fe) {
			msg, suggestion = fe.Message, fe.Suggestion
		}
		return CheckResult{Message: msg, Suggestion: suggestion}
	}
	return CheckResult{Passed: true, Message: logging.SanitizeURL(rawURL)}
}

// runChecks prints each result and returns the number of failed critical checks.
func runChecks(ctx context.Context, out io.Writer, checks []Check, verbose bool) int {
	passed, warnings, failed := 0, 0, 0
	for _, check := range checks {
		start := time.Now()
		result := check.Run(ctx)
		symbol := "✓"
		switch {
		case !result.Passed:
			symbol = "✗"
			if check.Critical {
				failed++
			}
		case result.Warning:
			symbol = "⚠"
			warnings++
			passed++
		default:
			passed++
		}
		fmt.Fprintf(out, "%s %s", symbol, check.Name)
		if verbose {
			fmt.Fprintf(out, " (%.2fs)", time.Since(start).Seconds())
		}
		fmt.Fprintln(out)
		if result.Message != "" {
			fmt.Fprintf(out, "  %s\n", result.Message)
		}
		if result.Suggestion != "" && (!result.Passed || result.Warning) {
			for _, line := range strings.Split(result.Suggestion, "\n") {
				fmt.Fprintf(out, "  → %s\n", line)
			}
		}
	}
	fmt.Fprintf(out, "\n%d passed, %d warning(s), %d critical failure(s)\n", passed, warnings, failed)
	return failed
}
