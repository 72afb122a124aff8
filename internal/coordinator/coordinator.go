// Package coordinator tracks which layers are authenticating or downloading,
// fetches tokens on demand, and reacts to engine events. All methods except
// HandleEvent must be called on the Executor's goroutine.
package coordinator

import (
	"context"
	"errors"
	"time"

	"github.com/jxwalker/docfetch/internal/apiclient"
	"github.com/jxwalker/docfetch/internal/engine"
	"github.com/jxwalker/docfetch/internal/logging"
	"github.com/jxwalker/docfetch/internal/projection"
)

// DefaultMinRefreshDelay keeps the refresh indicator visible for fast backends.
const DefaultMinRefreshDelay = 700 * time.Millisecond

// Metrics receives activity counts. *metrics.Manager satisfies it.
type Metrics interface {
	IncTokenFetches()
	IncDownloadsStarted()
	IncDownloadsFinished()
	IncDownloadsFailed()
	IncReauthFailures()
	IncRevocations()
	ObserveRefreshSeconds(float64)
}

type noopMetrics struct{}

func (noopMetrics) IncTokenFetches()              {}
func (noopMetrics) IncDownloadsStarted()          {}
func (noopMetrics) IncDownloadsFinished()         {}
func (noopMetrics) IncDownloadsFailed()           {}
func (noopMetrics) IncReauthFailures()            {}
func (noopMetrics) IncRevocations()               {}
func (noopMetrics) ObserveRefreshSeconds(float64) {}

type layerSet map[apiclient.Layer]struct{}

func (s layerSet) has(l apiclient.Layer) bool {
	_, ok := s[l]
	return ok
}

type Coordinator struct {
	exec    Executor
	api     Backend
	eng     engine.Engine
	list    *projection.Projection
	log     *logging.Logger
	metrics Metrics
	ctx     context.Context

	minRefresh time.Duration

	downloading    layerSet
	authenticating layerSet
	// layers whose download the engine parked until reauthentication succeeds
	awaitingReauth layerSet

	listTask      Canceler
	listGen       uint64
	refreshing    bool
	lastRefresh   time.Time
	onRefreshDone func(error)
}

type Option func(*Coordinator)

func WithLogger(l *logging.Logger) Option { return func(c *Coordinator) { c.log = l } }

func WithMetrics(m Metrics) Option {
	return func(c *Coordinator) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithMinRefreshDelay overrides DefaultMinRefreshDelay; 0 applies results immediately.
func WithMinRefreshDelay(d time.Duration) Option {
	return func(c *Coordinator) { c.minRefresh = d }
}

// WithContext bounds every request the coordinator starts.
func WithContext(ctx context.Context) Option { return func(c *Coordinator) { c.ctx = ctx } }

// New registers the coordinator as the engine's listener.
func New(exec Executor, api Backend, eng engine.Engine, list *projection.Projection, opts ...Option) *Coordinator {
	c := &Coordinator{
		exec:           exec,
		api:            api,
		eng:            eng,
		list:           list,
		log:            logging.Discard(),
		metrics:        noopMetrics{},
		ctx:            context.Background(),
		minRefresh:     DefaultMinRefreshDelay,
		downloading:    make(layerSet),
		authenticating: make(layerSet),
		awaitingReauth: make(layerSet),
	}
	for _, o := range opts {
		o(c)
	}
	eng.SetListener(c.HandleEvent)
	return c
}

func layerOf(d *engine.Descriptor) apiclient.Layer {
	return apiclient.Layer{DocumentID: d.DocumentID(), Name: d.LayerName()}
}

func (c *Coordinator) Projection() *projection.Projection { return c.list }

// SetOnRefreshDone registers fn to run on the coordinating goroutine whenever a
// refresh ends; err is nil on success.
func (c *Coordinator) SetOnRefreshDone(fn func(error)) { c.onRefreshDone = fn }

func (c *Coordinator) Busy(l apiclient.Layer) bool {
	return c.downloading.has(l) || c.authenticating.has(l)
}

func (c *Coordinator) Downloading(l apiclient.Layer) bool    { return c.downloading.has(l) }
func (c *Coordinator) Authenticating(l apiclient.Layer) bool { return c.authenticating.has(l) }
func (c *Coordinator) Refreshing() bool                      { return c.refreshing }
func (c *Coordinator) LastRefresh() time.Time                { return c.lastRefresh }

// Idle reports whether nothing is in flight.
func (c *Coordinator) Idle() bool {
	return !c.refreshing && len(c.downloading) == 0 && len(c.authenticating) == 0
}

func (c *Coordinator) forget(l apiclient.Layer) {
	delete(c.downloading, l)
	delete(c.authenticating, l)
	delete(c.awaitingReauth, l)
}

// Refresh fetches the document list and replaces the projection. A newer
// Refresh supersedes an older one that has not been applied yet.
func (c *Coordinator) Refresh() {
	c.listGen++
	gen := c.listGen
	if c.listTask != nil {
		c.listTask.Cancel()
	}
	c.refreshing = true
	started := time.Now()
	c.listTask = c.api.StartDocumentList(c.ctx, func(docs []apiclient.Document, err error) {
		apply := func() {
			c.exec.Post(func() { c.applyList(gen, started, docs, err) })
		}
		if wait := c.minRefresh - time.Since(started); wait > 0 {
			time.AfterFunc(wait, apply)
			return
		}
		apply()
	})
}

func (c *Coordinator) applyList(gen uint64, started time.Time, docs []apiclient.Document, err error) {
	if gen != c.listGen {
		c.log.Debugf("dropping superseded document list (generation %d, current %d)", gen, c.listGen)
		return
	}
	c.listTask = nil
	c.refreshing = false
	c.lastRefresh = time.Now()
	c.metrics.ObserveRefreshSeconds(time.Since(started).Seconds())
	if err != nil {
		c.log.Warnf("could not fetch document list: %v", err)
		c.refreshDone(err)
		return
	}
	if len(docs) == 0 {
		c.log.Infof("no documents found; upload one to the backend and refresh")
	}

	sections := make([]projection.Section, 0, len(docs))
	for _, doc := range docs {
		s := projection.Section{Title: doc.Title, DocumentID: doc.ID}
		for _, tok := range doc.Tokens {
			d, err := c.eng.DescriptorForToken(tok)
			if err != nil {
				c.log.Warnf("could not make descriptor from token %s of document %s: %v", logging.RedactToken(tok), doc.ID, err)
				continue
			}
			s.Rows = append(s.Rows, projection.Row{Descriptor: d, Token: tok, HasToken: true})
		}
		if len(s.Rows) == 0 {
			c.log.Debugf("document %s has no usable layers", doc.ID)
			continue
		}
		sections = append(sections, s)
	}

	c.list.Each(func(_ projection.Position, _ projection.Section, r projection.Row) bool {
		c.forget(layerOf(r.Descriptor))
		return true
	})
	c.list.ReplaceAll(sections)
	c.refreshDone(nil)
}

func (c *Coordinator) refreshDone(err error) {
	if c.onRefreshDone != nil {
		c.onRefreshDone(err)
	}
}

// EnsureDownloadStarted begins downloading d unless it is already downloaded
// or busy, fetching a token first when its row has none.
func (c *Coordinator) EnsureDownloadStarted(d *engine.Descriptor) {
	if d == nil {
		return
	}
	l := layerOf(d)
	if c.eng.IsDownloaded(d) || c.Busy(l) {
		return
	}
	if pos, ok := c.list.FindRow(projection.ByDescriptor(d)); ok {
		if row, _ := c.list.Row(pos); row.HasToken {
			c.beginDownload(d, row.Token)
			return
		}
	}

	c.authenticating[l] = struct{}{}
	c.metrics.IncTokenFetches()
	c.api.StartAuthToken(c.ctx, l, func(tok string, err error) {
		c.exec.Post(func() {
			delete(c.authenticating, l)
			if err != nil {
				c.log.Warnf("could not fetch token for layer %s: %v", l, err)
				return
			}
			// the document was revoked or delisted while the token was in flight
			if _, listed := c.list.FindRow(projection.ByDescriptor(d)); !listed {
				c.log.Debugf("dropping token for unlisted layer %s", l)
				return
			}
			c.beginDownload(d, tok)
		})
	})
}

func (c *Coordinator) beginDownload(d *engine.Descriptor, tok string) {
	l := layerOf(d)
	c.list.UpdateToken(projection.ByDescriptor(d), tok, true)
	if err := c.eng.BeginDownload(d, tok); err != nil {
		c.log.Warnf("could not start downloading layer %s: %v", l, err)
		return
	}
	c.downloading[l] = struct{}{}
	c.metrics.IncDownloadsStarted()
}

// HandleEvent is the engine listener. It may be called from any goroutine.
func (c *Coordinator) HandleEvent(ev engine.Event) {
	c.exec.Post(func() { c.handle(ev) })
}

func (c *Coordinator) handle(ev engine.Event) {
	d := ev.Descriptor
	if d == nil {
		return
	}
	l := layerOf(d)
	switch ev.Kind {
	case engine.DownloadFinished:
		delete(c.downloading, l)
		c.metrics.IncDownloadsFinished()
		c.log.Infof("downloaded layer %s", l)
		c.list.Touch(projection.ByDescriptor(d))
	case engine.DownloadFailed:
		delete(c.downloading, l)
		c.metrics.IncDownloadsFailed()
		c.log.Warnf("failed to download layer %s: %v", l, ev.Err)
	case engine.SyncFailed:
		if errors.Is(ev.Err, engine.ErrCancelled) {
			return
		}
		c.log.Warnf("sync failed for layer %s: %v", l, ev.Err)
	case engine.AuthenticationNeeded:
		c.reauthenticate(d)
	case engine.ReauthenticationSucceeded:
		delete(c.authenticating, l)
		if c.awaitingReauth.has(l) {
			delete(c.awaitingReauth, l)
			c.downloading[l] = struct{}{}
		}
		c.list.UpdateToken(projection.ByDescriptor(d), ev.Token, true)
	case engine.ReauthenticationFailed:
		c.forget(l)
		c.metrics.IncReauthFailures()
		c.log.Warnf("could not update token for layer %s: %v", l, ev.Err)
		if engine.IsAccessDenied(ev.Err) {
			c.revoke(d)
		}
	}
}

func (c *Coordinator) reauthenticate(d *engine.Descriptor) {
	l := layerOf(d)
	if c.authenticating.has(l) {
		return
	}
	// the engine parks a running transfer, so the layer moves from downloading to authenticating
	if c.downloading.has(l) {
		delete(c.downloading, l)
		c.awaitingReauth[l] = struct{}{}
	}
	c.authenticating[l] = struct{}{}
	c.list.UpdateToken(projection.ByDescriptor(d), "", false)
	c.metrics.IncTokenFetches()
	c.api.StartAuthToken(c.ctx, l, func(tok string, err error) {
		c.exec.Post(func() {
			if err != nil {
				c.forget(l)
				c.log.Warnf("could not fetch token for layer %s: %v", l, err)
				return
			}
			// a refresh or revocation forgot the layer while the token was in flight
			if !c.authenticating.has(l) {
				c.log.Debugf("dropping reauthentication token for forgotten layer %s", l)
				return
			}
			c.eng.Reauthenticate(d, tok)
		})
	})
}

// revoke purges every listed layer of d's document and drops its rows.
func (c *Coordinator) revoke(d *engine.Descriptor) {
	docID := d.DocumentID()
	targets := []*engine.Descriptor{d}
	c.list.Each(func(_ projection.Position, _ projection.Section, r projection.Row) bool {
		if r.Descriptor != d && r.Descriptor.DocumentID() == docID {
			targets = append(targets, r.Descriptor)
		}
		return true
	})
	for _, t := range targets {
		if err := c.eng.RemoveLocalStorage(t); err != nil && !errors.Is(err, engine.ErrInvalidDescriptor) {
			c.log.Warnf("could not remove local storage of layer %s: %v", layerOf(t), err)
		}
		c.forget(layerOf(t))
	}
	if n := c.list.RemoveRows(projection.ByDocumentID(docID)); n > 0 {
		c.metrics.IncRevocations()
		c.log.Infof("access to document %s was revoked; removed it from the list (refresh if you should still have access)", docID)
	}
}

// RemoveDocumentStorage deletes the local copy of one layer.
func (c *Coordinator) RemoveDocumentStorage(d *engine.Descriptor) error {
	if d == nil {
		return engine.ErrInvalidDescriptor
	}
	if err := c.eng.RemoveLocalStorage(d); err != nil {
		return err
	}
	c.forget(layerOf(d))
	c.list.Touch(projection.ByDescriptor(d))
	return nil
}

// ClearLocalStorage deletes everything the engine stored and reloads the list,
// since every descriptor is invalidated.
func (c *Coordinator) ClearLocalStorage() error {
	if err := c.eng.RemoveAllLocalStorage(); err != nil {
		return err
	}
	c.downloading = make(layerSet)
	c.authenticating = make(layerSet)
	c.awaitingReauth = make(layerSet)
	c.Refresh()
	return nil
}
