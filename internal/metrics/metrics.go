package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jxwalker/docfetch/internal/config"
)

// Manager counts coordinator activity and optionally mirrors it to a
// Prometheus textfile. A nil *Manager is a valid no-op.
type Manager struct {
	path string
	mu   sync.Mutex
	// counters
	tokenFetches      int64
	downloadsStarted  int64
	downloadsFinished int64
	downloadsFailed   int64
	reauthFailures    int64
	revocations       int64
	lastRefreshSec    float64
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	TokenFetches      int64
	DownloadsStarted  int64
	DownloadsFinished int64
	DownloadsFailed   int64
	ReauthFailures    int64
	Revocations       int64
}

// New always returns a Manager; the textfile is only written when enabled in cfg.
func New(cfg *config.Config) *Manager {
	m := &Manager{}
	if cfg == nil || !cfg.Metrics.PrometheusTextfile.Enabled || cfg.Metrics.PrometheusTextfile.Path == "" {
		return m
	}
	m.path = cfg.Metrics.PrometheusTextfile.Path
	_ = os.MkdirAll(filepath.Dir(m.path), 0o755)
	return m
}

func (m *Manager) add(p *int64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	*p++
	m.mu.Unlock()
}

func (m *Manager) IncTokenFetches() {
	if m != nil {
		m.add(&m.tokenFetches)
	}
}

func (m *Manager) IncDownloadsStarted() {
	if m != nil {
		m.add(&m.downloadsStarted)
	}
}

func (m *Manager) IncDownloadsFinished() {
	if m != nil {
		m.add(&m.downloadsFinished)
	}
}

func (m *Manager) IncDownloadsFailed() {
	if m != nil {
		m.add(&m.downloadsFailed)
	}
}

func (m *Manager) IncReauthFailures() {
	if m != nil {
		m.add(&m.reauthFailures)
	}
}

func (m *Manager) IncRevocations() {
	if m != nil {
		m.add(&m.revocations)
	}
}

// ObserveRefreshSeconds records how long the last list refresh took.
func (m *Manager) ObserveRefreshSeconds(sec float64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.lastRefreshSec = sec
	m.mu.Unlock()
}

func (m *Manager) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		TokenFetches:      m.tokenFetches,
		DownloadsStarted:  m.downloadsStarted,
		DownloadsFinished: m.downloadsFinished,
		DownloadsFailed:   m.downloadsFailed,
		ReauthFailures:    m.reauthFailures,
		Revocations:       m.revocations,
	}
}

func (m *Manager) Write() error {
	if m == nil || m.path == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	f, err := os.CreateTemp(filepath.Dir(m.path), ".metrics.tmp.*")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())

	counter := func(name, help string, v int64) {
		fmt.Fprintf(f, "# HELP docfetch_%s %s\n", name, help)
		fmt.Fprintf(f, "# TYPE docfetch_%s counter\n", name)
		fmt.Fprintf(f, "docfetch_%s %d\n", name, v)
	}
	counter("token_fetches_total", "Token requests issued to the backend.", m.tokenFetches)
	counter("downloads_started_total", "Layer downloads accepted by the engine.", m.downloadsStarted)
	counter("downloads_finished_total", "Layer downloads completed.", m.downloadsFinished)
	counter("downloads_failed_total", "Layer downloads that failed.", m.downloadsFailed)
	counter("reauth_failures_total", "Failed reauthentications.", m.reauthFailures)
	counter("revocations_total", "Documents removed after access was revoked.", m.revocations)

	fmt.Fprintf(f, "# HELP docfetch_last_refresh_seconds Duration of the last document list refresh in seconds.\n")
	fmt.Fprintf(f, "# TYPE docfetch_last_refresh_seconds gauge\n")
	fmt.Fprintf(f, "docfetch_last_refresh_seconds %.6f\n", m.lastRefreshSec)

	fmt.Fprintf(f, "# HELP docfetch_metrics_timestamp_seconds UNIX timestamp when this file was written.\n")
	fmt.Fprintf(f, "# TYPE docfetch_metrics_timestamp_seconds gauge\n")
	fmt.Fprintf(f, "docfetch_metrics_timestamp_seconds %d\n", time.Now().Unix())

	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), m.path)
}
