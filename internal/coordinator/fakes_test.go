package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/jxwalker/docfetch/internal/apiclient"
	"github.com/jxwalker/docfetch/internal/engine"
	"github.com/jxwalker/docfetch/internal/projection"
)

// queue is an Executor the test drains by hand.
type queue struct {
	mu  sync.Mutex
	fns []func()
}

func (q *queue) Post(fn func()) {
	q.mu.Lock()
	q.fns = append(q.fns, fn)
	q.mu.Unlock()
}

func (q *queue) drain() {
	for {
		q.mu.Lock()
		if len(q.fns) == 0 {
			q.mu.Unlock()
			return
		}
		fn := q.fns[0]
		q.fns = q.fns[1:]
		q.mu.Unlock()
		fn()
	}
}

type handle struct{ cancelled bool }

func (h *handle) Cancel() { h.cancelled = true }

type listCall struct {
	done   func([]apiclient.Document, error)
	handle *handle
}

type tokenCall struct {
	layer  apiclient.Layer
	done   func(string, error)
	handle *handle
}

// fakeBackend records requests; tests complete them explicitly.
type fakeBackend struct {
	lists  []listCall
	tokens []tokenCall
}

func (b *fakeBackend) StartDocumentList(_ context.Context, done func([]apiclient.Document, error)) Canceler {
	h := &handle{}
	b.lists = append(b.lists, listCall{done: done, handle: h})
	return h
}

func (b *fakeBackend) StartAuthToken(_ context.Context, l apiclient.Layer, done func(string, error)) Canceler {
	h := &handle{}
	b.tokens = append(b.tokens, tokenCall{layer: l, done: done, handle: h})
	return h
}

type beginCall struct {
	d     *engine.Descriptor
	token string
}

type reauthCall struct {
	d     *engine.Descriptor
	token string
}

type fakeEngine struct {
	byToken    map[string]*engine.Descriptor
	downloaded map[*engine.Descriptor]bool
	beginErr   error
	begins     []beginCall
	reauths    []reauthCall
	removed    []*engine.Descriptor
	removedAll int
	listener   engine.Listener
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		byToken:    make(map[string]*engine.Descriptor),
		downloaded: make(map[*engine.Descriptor]bool),
	}
}

// add maps token to a fresh descriptor for the layer.
func (e *fakeEngine) add(token, doc, layer string) *engine.Descriptor {
	d := engine.NewDescriptor(doc, layer)
	e.byToken[token] = d
	return d
}

func (e *fakeEngine) IsDownloaded(d *engine.Descriptor) bool { return e.downloaded[d] }

func (e *fakeEngine) BeginDownload(d *engine.Descriptor, token string) error {
	if e.beginErr != nil {
		return e.beginErr
	}
	e.begins = append(e.begins, beginCall{d, token})
	return nil
}

func (e *fakeEngine) Reauthenticate(d *engine.Descriptor, token string) {
	e.reauths = append(e.reauths, reauthCall{d, token})
}

func (e *fakeEngine) RemoveLocalStorage(d *engine.Descriptor) error {
	e.removed = append(e.removed, d)
	e.downloaded[d] = false
	return nil
}

func (e *fakeEngine) RemoveAllLocalStorage() error {
	e.removedAll++
	return nil
}

func (e *fakeEngine) DescriptorForToken(token string) (*engine.Descriptor, error) {
	if d, ok := e.byToken[token]; ok {
		return d, nil
	}
	return nil, errors.New("unknown token")
}

func (e *fakeEngine) SetListener(fn engine.Listener) { e.listener = fn }

func (e *fakeEngine) emit(ev engine.Event) { e.listener(ev) }

var _ engine.Engine = (*fakeEngine)(nil)

type fixture struct {
	q    *queue
	api  *fakeBackend
	eng  *fakeEngine
	list *projection.Projection
	c    *Coordinator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{q: &queue{}, api: &fakeBackend{}, eng: newFakeEngine(), list: projection.New()}
	f.c = New(f.q, f.api, f.eng, f.list, WithMinRefreshDelay(0))
	if f.eng.listener == nil {
		t.Fatalf("coordinator did not register as engine listener")
	}
	return f
}

// checkDisjoint fails when a layer is both downloading and authenticating.
func (f *fixture) checkDisjoint(t *testing.T) {
	t.Helper()
	for l := range f.c.downloading {
		if f.c.authenticating.has(l) {
			t.Fatalf("layer %s is downloading and authenticating", l)
		}
	}
}

func (f *fixture) row(t *testing.T, d *engine.Descriptor) projection.Row {
	t.Helper()
	pos, ok := f.list.FindRow(projection.ByDescriptor(d))
	if !ok {
		t.Fatalf("no row for %s", d)
	}
	r, _ := f.list.Row(pos)
	return r
}
