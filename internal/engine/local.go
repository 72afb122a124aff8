package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	neturl "net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jxwalker/docfetch/internal/logging"
	"github.com/jxwalker/docfetch/internal/state"
	"github.com/jxwalker/docfetch/internal/util"
)

type layerKey struct{ documentID, layer string }

type transfer struct{ cancel context.CancelFunc }

// Local is a stand-in engine: it fetches whole layer snapshots from the engine
// server and keeps them under dataRoot/layers, indexed in the state DB.
type Local struct {
	server *neturl.URL
	root   string
	st     *state.DB
	http   *http.Client
	log    *logging.Logger

	retries    int
	backoffMin time.Duration
	backoffMax time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	descriptors map[layerKey]*Descriptor
	downloaded  map[*Descriptor]bool
	tokens      map[*Descriptor]string
	active      map[*Descriptor]*transfer
	parked      map[*Descriptor]bool // downloads waiting for Reauthenticate
	listener    Listener
}

type LocalOption func(*Local)

func WithHTTPClient(hc *http.Client) LocalOption { return func(l *Local) { l.http = hc } }

func WithLogger(lg *logging.Logger) LocalOption { return func(l *Local) { l.log = lg } }

// WithRetry sets how many times a layer fetch is attempted on transport errors,
// 429 and 5xx responses, sleeping a random duration in [min, max] in between.
func WithRetry(attempts int, min, max time.Duration) LocalOption {
	return func(l *Local) {
		if attempts < 1 {
			attempts = 1
		}
		if max < min {
			max = min
		}
		l.retries, l.backoffMin, l.backoffMax = attempts, min, max
	}
}

// OpenLocal prepares dataRoot and opens its state database.
func OpenLocal(serverURL, dataRoot string, opts ...LocalOption) (*Local, error) {
	u, err := neturl.Parse(strings.TrimSpace(serverURL))
	if err != nil {
		return nil, fmt.Errorf("engine server url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("engine server url must be absolute: %s", serverURL)
	}
	st, err := state.Open(dataRoot)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	l := &Local{
		server:      u,
		root:        filepath.Join(dataRoot, "layers"),
		st:          st,
		http:        &http.Client{Timeout: 5 * time.Minute},
		log:         logging.Discard(),
		retries:     3,
		backoffMin:  200 * time.Millisecond,
		backoffMax:  2 * time.Second,
		ctx:         ctx,
		cancel:      cancel,
		descriptors: make(map[layerKey]*Descriptor),
		downloaded:  make(map[*Descriptor]bool),
		tokens:      make(map[*Descriptor]string),
		active:      make(map[*Descriptor]*transfer),
		parked:      make(map[*Descriptor]bool),
	}
	for _, o := range opts {
		o(l)
	}
	return l, nil
}

// Close stops running transfers and closes the state database.
func (l *Local) Close() error {
	l.cancel()
	l.wg.Wait()
	return l.st.Close()
}

func (l *Local) SetListener(fn Listener) {
	l.mu.Lock()
	l.listener = fn
	l.mu.Unlock()
}

func (l *Local) emit(ev Event) {
	l.mu.Lock()
	fn := l.listener
	l.mu.Unlock()
	l.log.Debugf("engine: %s for %s", ev.Kind, ev.Descriptor)
	if fn != nil {
		fn(ev)
	}
}

// DescriptorForToken returns the interned descriptor of the layer the token grants.
func (l *Local) DescriptorForToken(token string) (*Descriptor, error) {
	c, err := ParseToken(token)
	if err != nil {
		return nil, err
	}
	key := layerKey{c.DocumentID, c.Layer}
	l.mu.Lock()
	defer l.mu.Unlock()
	if d, ok := l.descriptors[key]; ok {
		return d, nil
	}
	d := &Descriptor{documentID: c.DocumentID, layerName: c.Layer}
	row, ok, err := l.st.GetLayer(c.DocumentID, c.Layer)
	if err != nil {
		return nil, fmt.Errorf("lookup layer %s: %w", d, err)
	}
	l.descriptors[key] = d
	l.downloaded[d] = ok && row.Status == state.StatusDownloaded
	return d, nil
}

func (l *Local) validLocked(d *Descriptor) bool {
	return d != nil && l.descriptors[layerKey{d.documentID, d.layerName}] == d
}

func (l *Local) IsDownloaded(d *Descriptor) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.validLocked(d) && l.downloaded[d]
}

// Stat returns the stored row of a downloaded layer.
func (l *Local) Stat(d *Descriptor) (state.LayerRow, bool, error) {
	return l.st.GetLayer(d.documentID, d.layerName)
}

// StatSize returns the stored size of a downloaded layer.
func (l *Local) StatSize(d *Descriptor) (int64, bool) {
	row, ok, err := l.Stat(d)
	if err != nil || !ok {
		return 0, false
	}
	return row.Size, true
}

// BeginDownload starts fetching the layer in the background. Completion is
// reported through the listener.
func (l *Local) BeginDownload(d *Descriptor, token string) error {
	if strings.TrimSpace(token) == "" {
		return ErrInvalidToken
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.validLocked(d) {
		return ErrInvalidDescriptor
	}
	if l.downloaded[d] {
		return nil
	}
	if _, running := l.active[d]; running {
		return ErrBusy
	}
	// a fresh token supersedes a download parked for reauthentication
	delete(l.parked, d)
	l.tokens[d] = token
	l.startLocked(d)
	return nil
}

func (l *Local) startLocked(d *Descriptor) {
	ctx, cancel := context.WithCancel(l.ctx)
	tr := &transfer{cancel: cancel}
	l.active[d] = tr
	token := l.tokens[d]
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer cancel()
		l.download(ctx, d, token, tr)
	}()
}

// finishLocked forgets tr unless a newer transfer replaced it.
func (l *Local) finishLocked(d *Descriptor, tr *transfer) {
	if l.active[d] == tr {
		delete(l.active, d)
	}
}

func (l *Local) finish(d *Descriptor, tr *transfer) {
	l.mu.Lock()
	l.finishLocked(d, tr)
	l.mu.Unlock()
}

func (l *Local) download(ctx context.Context, d *Descriptor, token string, tr *transfer) {
	body, status, err := l.getWithRetry(ctx, l.layerURL(d), token)
	if err != nil {
		l.finish(d, tr)
		if ctx.Err() != nil {
			l.emit(Event{Kind: SyncFailed, Descriptor: d, Err: ErrCancelled})
			return
		}
		l.emit(Event{Kind: DownloadFailed, Descriptor: d, Err: err})
		return
	}
	switch status {
	case http.StatusOK:
	case http.StatusUnauthorized:
		l.mu.Lock()
		l.finishLocked(d, tr)
		l.parked[d] = true
		delete(l.tokens, d)
		l.mu.Unlock()
		l.emit(Event{Kind: AuthenticationNeeded, Descriptor: d})
		return
	case http.StatusForbidden:
		l.finish(d, tr)
		l.emit(Event{Kind: DownloadFailed, Descriptor: d, Err: ErrAccessDenied})
		return
	default:
		l.finish(d, tr)
		l.emit(Event{Kind: DownloadFailed, Descriptor: d, Err: fmt.Errorf("engine server returned %d", status)})
		return
	}
	if ctx.Err() != nil {
		l.finish(d, tr)
		l.emit(Event{Kind: SyncFailed, Descriptor: d, Err: ErrCancelled})
		return
	}

	path, sum, err := l.store(d, body)
	if err == nil {
		err = l.st.UpsertLayer(state.LayerRow{DocumentID: d.documentID, Layer: d.layerName, Status: state.StatusDownloaded, Path: path, Size: int64(len(body)), SHA256: sum})
	}
	if err != nil {
		l.finish(d, tr)
		l.emit(Event{Kind: DownloadFailed, Descriptor: d, Err: err})
		return
	}
	l.mu.Lock()
	l.finishLocked(d, tr)
	stillValid := l.validLocked(d) && ctx.Err() == nil
	if stillValid {
		l.downloaded[d] = true
	}
	l.mu.Unlock()
	if !stillValid {
		l.emit(Event{Kind: SyncFailed, Descriptor: d, Err: ErrCancelled})
		return
	}
	l.emit(Event{Kind: DownloadFinished, Descriptor: d})
}

// Reauthenticate validates token with the server and resumes a parked download.
func (l *Local) Reauthenticate(d *Descriptor, token string) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		_, status, err := l.get(l.ctx, l.layerURL(d)+"/auth", token)
		var failure error
		switch {
		case err != nil:
			failure = err
		case status == http.StatusForbidden:
			failure = ErrAccessDenied
		case status == http.StatusUnauthorized:
			failure = ErrInvalidToken
		case status != http.StatusOK:
			failure = fmt.Errorf("engine server returned %d", status)
		}
		if failure != nil {
			l.mu.Lock()
			delete(l.parked, d)
			l.mu.Unlock()
			l.emit(Event{Kind: ReauthenticationFailed, Descriptor: d, Err: failure})
			return
		}
		l.mu.Lock()
		resume := l.parked[d] && l.validLocked(d)
		delete(l.parked, d)
		l.tokens[d] = token
		l.mu.Unlock()
		l.emit(Event{Kind: ReauthenticationSucceeded, Descriptor: d, Token: token})
		if resume {
			l.mu.Lock()
			if _, running := l.active[d]; !running && !l.downloaded[d] {
				l.startLocked(d)
			}
			l.mu.Unlock()
		}
	}()
}

// RemoveLocalStorage cancels any transfer for d and deletes its stored snapshot.
func (l *Local) RemoveLocalStorage(d *Descriptor) error {
	l.mu.Lock()
	if !l.validLocked(d) {
		l.mu.Unlock()
		return ErrInvalidDescriptor
	}
	if tr, ok := l.active[d]; ok {
		tr.cancel()
		delete(l.active, d)
	}
	delete(l.parked, d)
	delete(l.tokens, d)
	l.downloaded[d] = false
	l.mu.Unlock()

	if err := os.Remove(l.snapshotPath(d)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return l.st.DeleteLayer(d.documentID, d.layerName)
}

// RemoveAllLocalStorage wipes every snapshot and invalidates all descriptors.
func (l *Local) RemoveAllLocalStorage() error {
	l.mu.Lock()
	for _, tr := range l.active {
		tr.cancel()
	}
	l.active = make(map[*Descriptor]*transfer)
	l.parked = make(map[*Descriptor]bool)
	l.tokens = make(map[*Descriptor]string)
	l.downloaded = make(map[*Descriptor]bool)
	l.descriptors = make(map[layerKey]*Descriptor)
	l.mu.Unlock()

	if err := os.RemoveAll(l.root); err != nil {
		return err
	}
	return l.st.ClearLayers()
}

func (l *Local) layerURL(d *Descriptor) string {
	u := *l.server
	u.User = nil
	segs := []string{"layers", d.documentID}
	if d.layerName != "" {
		segs = append(segs, d.layerName)
	}
	escaped := make([]string, len(segs))
	for i, s := range segs {
		escaped[i] = neturl.PathEscape(s)
	}
	base := strings.TrimSuffix(u.EscapedPath(), "/")
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + strings.Join(segs, "/")
	u.RawPath = base + "/" + strings.Join(escaped, "/")
	return u.String()
}

func (l *Local) get(ctx context.Context, rawURL, token string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", fmt.Sprintf("Token token=%q", token))
	resp, err := l.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	l.log.Debugf("engine: GET %s -> %d", logging.SanitizeURL(rawURL), resp.StatusCode)
	return body, resp.StatusCode, nil
}

func (l *Local) getWithRetry(ctx context.Context, rawURL, token string) ([]byte, int, error) {
	var (
		body   []byte
		status int
		err    error
	)
	for attempt := 1; ; attempt++ {
		body, status, err = l.get(ctx, rawURL, token)
		transient := err != nil || status == http.StatusTooManyRequests || status >= 500
		if !transient || attempt >= l.retries || ctx.Err() != nil {
			return body, status, err
		}
		wait := l.backoffMin + time.Duration(rand.Int63n(int64(l.backoffMax-l.backoffMin)+1))
		l.log.Debugf("engine: attempt %d for %s failed (status=%d err=%v); retrying in %s", attempt, logging.SanitizeURL(rawURL), status, err, wait.Round(time.Millisecond))
		select {
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (l *Local) snapshotPath(d *Descriptor) string {
	name := d.layerName
	if name == "" {
		name = "_default"
	}
	return filepath.Join(l.root, neturl.PathEscape(d.documentID), neturl.PathEscape(name)+".snapshot")
}

func (l *Local) store(d *Descriptor, body []byte) (string, string, error) {
	path := l.snapshotPath(d)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", "", err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot.tmp.*")
	if err != nil {
		return "", "", err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	h := sha256.New()
	if _, err := io.MultiWriter(tmp, h).Write(body); err != nil {
		_ = tmp.Close()
		return "", "", err
	}
	if err := tmp.Close(); err != nil {
		return "", "", err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", "", err
	}
	return path, hex.EncodeToString(h.Sum(nil)), nil
}

// VerifyResult is the outcome of re-hashing one stored layer.
type VerifyResult struct {
	Row    state.LayerRow
	Actual string
	OK     bool
	Err    error
}

// StoredLayers lists the index rows of every layer kept under the data root.
func (l *Local) StoredLayers() ([]state.LayerRow, error) { return l.st.ListLayers() }

// Verify re-hashes every downloaded snapshot against the recorded SHA-256.
// A mismatching or missing snapshot is marked failed in the index so the next
// sync fetches it again.
func (l *Local) Verify() ([]VerifyResult, error) {
	rows, err := l.st.ListLayers()
	if err != nil {
		return nil, err
	}
	var out []VerifyResult
	for _, row := range rows {
		if row.Status != state.StatusDownloaded {
			continue
		}
		ok, actual, err := util.VerifyFileSHA256(row.Path, row.SHA256)
		res := VerifyResult{Row: row, Actual: actual, OK: ok && err == nil, Err: err}
		if !res.OK {
			row.Status = state.StatusFailed
			row.LastError = "checksum mismatch"
			if err != nil {
				row.LastError = err.Error()
			}
			if uerr := l.st.UpsertLayer(row); uerr != nil {
				return out, uerr
			}
			l.mu.Lock()
			if d, found := l.descriptors[layerKey{row.DocumentID, row.Layer}]; found {
				l.downloaded[d] = false
			}
			l.mu.Unlock()
		}
		out = append(out, res)
	}
	return out, nil
}

var _ Engine = (*Local)(nil)

// IsAccessDenied reports whether err is a permanent access revocation.
func IsAccessDenied(err error) bool { return errors.Is(err, ErrAccessDenied) }
