package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jxwalker/docfetch/internal/apiclient"
	friendlyerrors "github.com/jxwalker/docfetch/internal/errors"
	"github.com/jxwalker/docfetch/internal/sample"
	"github.com/jxwalker/docfetch/internal/testutil"
)

var testDocs = []sample.Document{
	{ID: "d1", Title: "Annual Report", Layers: []string{"", "review"}, Content: "report"},
	{ID: "d2", Title: "Brochure", Content: "brochure"},
}

func writeConfig(t *testing.T, backendURL, engineURL, dataRoot string) string {
	t.Helper()
	return testutil.TempFile(t, "config.yml", fmt.Sprintf(`version: 1
backend:
  base_url: %s
  user_id: test
  password: ""
  timeout_seconds: 5
engine:
  server_url: %s
  data_root: %s
logging:
  level: error
ui:
  min_refresh_ms: 1
`, backendURL, engineURL, dataRoot))
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSyncListVerifyClean(t *testing.T) {
	srv := testutil.NewSampleServers(t, testDocs...)
	root := t.TempDir()
	cfg := writeConfig(t, srv.BackendURL(), srv.EngineURL(), root)

	out, err := runCLI(t, "--config", cfg, "sync")
	if err != nil {
		t.Fatalf("sync: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Synced 3/3 layers") {
		t.Fatalf("unexpected sync summary: %q", out)
	}
	if _, err := os.Stat(filepath.Join(root, "docfetch.lock")); !os.IsNotExist(err) {
		t.Fatalf("lock file should be released after sync, stat err=%v", err)
	}

	out, err = runCLI(t, "--config", cfg, "--json", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var rows []layerStatus
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("list output is not JSON: %v\n%s", err, out)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 layers, got %+v", rows)
	}
	for _, r := range rows {
		if !r.Downloaded || r.Size == 0 {
			t.Fatalf("layer should be local after sync: %+v", r)
		}
	}

	out, err = runCLI(t, "--config", cfg, "verify")
	if err != nil || !strings.Contains(out, "3 verified, 0 bad") {
		t.Fatalf("verify: %v\n%s", err, out)
	}

	if _, err := runCLI(t, "--config", cfg, "clean"); err == nil {
		t.Fatalf("clean without --yes should refuse")
	}
	out, err = runCLI(t, "--config", cfg, "clean", "--yes")
	if err != nil || !strings.Contains(out, "Removed 3 layer(s)") {
		t.Fatalf("clean: %v\n%s", err, out)
	}
}

func TestSyncOnlyNamedDocuments(t *testing.T) {
	srv := testutil.NewSampleServers(t, testDocs...)
	cfg := writeConfig(t, srv.BackendURL(), srv.EngineURL(), t.TempDir())
	out, err := runCLI(t, "--config", cfg, "sync", "d2")
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if !strings.Contains(out, "Synced 1/1 layers") {
		t.Fatalf("unexpected summary %q", out)
	}
	if n := srv.Sample.Hits("layer"); n != 1 {
		t.Fatalf("expected one layer download, got %d", n)
	}
}

func TestSyncUnreachableBackend(t *testing.T) {
	srv := testutil.NewSampleServers(t)
	cfg := writeConfig(t, testutil.ClosedURL(t), srv.EngineURL(), t.TempDir())
	_, err := runCLI(t, "--config", cfg, "sync")
	if err == nil {
		t.Fatalf("expected an error")
	}
	msg := describe(err)
	if !strings.HasPrefix(msg, friendlyerrors.ConnectivityMessage) || !strings.Contains(msg, "How to fix") {
		t.Fatalf("expected the friendly connectivity message, got %q", msg)
	}
}

func TestTokenCommand(t *testing.T) {
	srv := testutil.NewSampleServers(t, testDocs...)
	cfg := writeConfig(t, srv.BackendURL(), srv.EngineURL(), t.TempDir())
	out, err := runCLI(t, "--config", cfg, "--json", "token", "d1", "review")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	var got struct {
		Token  string `json:"token"`
		Claims struct {
			DocumentID string `json:"document_id"`
			Layer      string `json:"layer"`
		} `json:"claims"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if got.Token == "" || got.Claims.DocumentID != "d1" || got.Claims.Layer != "review" {
		t.Fatalf("unexpected token output %+v", got)
	}
}

func TestConfigCommands(t *testing.T) {
	cfg := testutil.TempFile(t, "config.yml", `version: 1
backend:
  base_url: http://localhost:3000/
  user_id: test
  password: hunter2
engine:
  server_url: http://localhost:5000/
  data_root: /tmp/docfetch-test
`)
	out, err := runCLI(t, "--config", cfg, "config", "validate")
	if err != nil || !strings.Contains(out, "config: valid") {
		t.Fatalf("validate: %v %q", err, out)
	}
	out, err = runCLI(t, "--config", cfg, "config", "print")
	if err != nil {
		t.Fatalf("print: %v", err)
	}
	if strings.Contains(out, "hunter2") || !strings.Contains(out, "***") {
		t.Fatalf("password should be redacted:\n%s", out)
	}

	bad := testutil.TempFile(t, "bad.yml", "version: 2\n")
	if _, err := runCLI(t, "--config", bad, "config", "validate"); err == nil {
		t.Fatalf("expected validation failure")
	}
}

func TestDoctorReportsUnreachableServers(t *testing.T) {
	cfg := writeConfig(t, testutil.ClosedURL(t), testutil.ClosedURL(t), t.TempDir())
	out, err := runCLI(t, "--config", cfg, "doctor")
	if err == nil {
		t.Fatalf("expected critical failures")
	}
	for _, want := range []string{"✓ Config file", "✓ Data root writable", "✗ Backend reachable", "✗ Engine server reachable"} {
		if !strings.Contains(out, want) {
			t.Fatalf("doctor output missing %q:\n%s", want, out)
		}
	}
}

func TestDescribePlainError(t *testing.T) {
	if got := describe(fmt.Errorf("boom")); got != "boom" {
		t.Fatalf("describe = %q", got)
	}
	wrapped := fmt.Errorf("refresh: %w", &apiclient.ConnectivityError{Err: fmt.Errorf("connection refused")})
	if got := describe(wrapped); !strings.Contains(got, "serve-sample") {
		t.Fatalf("expected refused suggestion, got %q", got)
	}
}
