package system

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jxwalker/docfetch/internal/testutil"
)

func TestCheckEndpoint(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()
	if err := CheckEndpoint(context.Background(), ts.URL+"/"); err != nil {
		t.Fatalf("listening server: %v", err)
	}
	err := CheckEndpoint(context.Background(), testutil.ClosedURL(t))
	if err == nil || !strings.Contains(err.Error(), "failed to connect") {
		t.Fatalf("closed port should give the connectivity message, got %v", err)
	}
	if err := CheckEndpoint(context.Background(), "not a url"); err == nil {
		t.Fatalf("relative URL should fail")
	}
}

func TestDiskChecks(t *testing.T) {
	dir := t.TempDir()
	if _, err := CheckAvailableSpace(dir); err != nil {
		t.Fatalf("CheckAvailableSpace: %v", err)
	}
	pct, err := DiskUsagePercent(dir)
	if err != nil || pct < 0 || pct > 100 {
		t.Fatalf("DiskUsagePercent=%v err=%v", pct, err)
	}
}
