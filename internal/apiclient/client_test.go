package apiclient

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	friendlyerrors "github.com/jxwalker/docfetch/internal/errors"
	"github.com/jxwalker/docfetch/internal/testutil"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	c, err := New(ts.URL+"/", "test", "")
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestFetchDocumentList(t *testing.T) {
	var gotAuth, gotPath, gotRequestID string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotRequestID = r.Header.Get("X-Request-ID")
		_, _ = w.Write([]byte(`{"documents":[
			{"title":"Doc","id":"d1","tokens":["abc"]},
			{"title":"No id","tokens":[]},
			{"title":"Bad tokens","id":"d3","tokens":["x",1]},
			"not an object",
			{"title":"Empty","id":"d4","tokens":[]}
		]}`))
	})
	docs, err := c.FetchDocumentList(context.Background())
	if err != nil {
		t.Fatalf("FetchDocumentList: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected malformed entries to be skipped, got %+v", docs)
	}
	if docs[0].Title != "Doc" || docs[0].ID != "d1" || len(docs[0].Tokens) != 1 || docs[0].Tokens[0] != "abc" {
		t.Fatalf("unexpected first document %+v", docs[0])
	}
	if docs[1].ID != "d4" || len(docs[1].Tokens) != 0 {
		t.Fatalf("unexpected second document %+v", docs[1])
	}
	want := "Basic " + base64.StdEncoding.EncodeToString([]byte("test:"))
	if gotAuth != want {
		t.Fatalf("Authorization=%q want %q", gotAuth, want)
	}
	if gotPath != "/api/documents" {
		t.Fatalf("path=%q", gotPath)
	}
	if gotRequestID == "" {
		t.Fatalf("missing X-Request-ID")
	}
}

func TestFetchDocumentListErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{"server error", 500, "boom", func(t *testing.T, err error) {
			var se *StatusError
			if !errors.As(err, &se) || se.Code != 500 {
				t.Fatalf("expected StatusError 500, got %v", err)
			}
			if !strings.Contains(err.Error(), "500") || !strings.Contains(err.Error(), "boom") {
				t.Fatalf("message should carry status and body: %q", err)
			}
		}},
		{"not utf8", 502, "\xff\xfe", func(t *testing.T, err error) {
			if !strings.Contains(err.Error(), nonUTF8Body) {
				t.Fatalf("expected non-UTF-8 sentinel: %q", err)
			}
		}},
		{"not json", 200, "nope", func(t *testing.T, err error) {
			var me *MalformedBodyError
			if !errors.As(err, &me) || !strings.Contains(err.Error(), "nope") {
				t.Fatalf("expected MalformedBodyError with data, got %v", err)
			}
		}},
		{"array", 200, "[]", func(t *testing.T, err error) {
			var me *MalformedBodyError
			if !errors.As(err, &me) || !strings.Contains(err.Error(), "array") {
				t.Fatalf("expected MalformedBodyError naming the type, got %v", err)
			}
		}},
		{"missing documents", 200, `{"other":1}`, func(t *testing.T, err error) {
			var mf *MissingFieldError
			if !errors.As(err, &mf) || mf.Field != "documents" {
				t.Fatalf("expected MissingFieldError, got %v", err)
			}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			_, err := c.FetchDocumentList(context.Background())
			if err == nil {
				t.Fatalf("expected error")
			}
			tc.check(t, err)
		})
	}
}

func TestUnreachableBackendIsConnectivityError(t *testing.T) {
	c, err := New(testutil.ClosedURL(t), "test", "", WithTimeout(5*time.Second))
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.FetchDocumentList(context.Background())
	var ce *ConnectivityError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConnectivityError, got %T %v", err, err)
	}
	if err.Error() != friendlyerrors.ConnectivityMessage {
		t.Fatalf("unexpected message %q", err)
	}
	if ce.Friendly().Suggestion == "" {
		t.Fatalf("friendly form should carry a suggestion")
	}
}

func TestCancelledRequestIsTransportError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.FetchDocumentList(ctx)
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError, got %T %v", err, err)
	}
}

func TestFetchAuthTokenPaths(t *testing.T) {
	var paths []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.EscapedPath())
		if strings.HasSuffix(r.URL.Path, "/missing") {
			_, _ = w.Write([]byte(`{"nothing":true}`))
			return
		}
		_, _ = w.Write([]byte(`{"token":"tok"}`))
	})
	ctx := context.Background()
	if tok, err := c.FetchAuthToken(ctx, Layer{DocumentID: "d1"}); err != nil || tok != "tok" {
		t.Fatalf("default layer: tok=%q err=%v", tok, err)
	}
	if tok, err := c.FetchAuthToken(ctx, Layer{DocumentID: "d1", Name: "review notes"}); err != nil || tok != "tok" {
		t.Fatalf("named layer: tok=%q err=%v", tok, err)
	}
	_, err := c.FetchAuthToken(ctx, Layer{DocumentID: "d1", Name: "missing"})
	var mf *MissingFieldError
	if !errors.As(err, &mf) || mf.Field != "token" {
		t.Fatalf("expected missing token error, got %v", err)
	}
	want := []string{"/api/document/d1", "/api/document/d1/review%20notes", "/api/document/d1/missing"}
	if len(paths) != len(want) {
		t.Fatalf("paths=%v", paths)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Fatalf("path %d = %q want %q", i, paths[i], want[i])
		}
	}
}

func TestEndpointURLKeepsBasePath(t *testing.T) {
	c, err := New("http://user:pw@example.com/prefix/", "test", "")
	if err != nil {
		t.Fatal(err)
	}
	got := c.endpointURL("document", "a/b")
	if got != "http://example.com/prefix/api/document/a%2Fb" {
		t.Fatalf("endpointURL=%q", got)
	}
	if strings.Contains(c.BaseURL(), "pw") {
		t.Fatalf("BaseURL leaked credentials: %s", c.BaseURL())
	}
}

func TestTaskCompletesOnce(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"token":"tok"}`))
	})
	got := make(chan string, 2)
	task := c.StartAuthToken(context.Background(), Layer{DocumentID: "d1"}, func(tok string, err error) {
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		got <- tok
	})
	select {
	case <-task.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("task did not finish")
	}
	if tok := <-got; tok != "tok" {
		t.Fatalf("tok=%q", tok)
	}
	task.Cancel()
	if len(got) != 0 {
		t.Fatalf("completion ran twice")
	}
}

func TestTaskCancelSuppressesCompletion(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
		_, _ = w.Write([]byte(`{"documents":[]}`))
	})
	defer close(release)
	var calls int32
	task := c.StartDocumentList(context.Background(), func([]Document, error) {
		atomic.AddInt32(&calls, 1)
	})
	task.Cancel()
	task.Cancel()
	select {
	case <-task.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("cancelled task did not finish")
	}
	if n := atomic.LoadInt32(&calls); n != 0 {
		t.Fatalf("completion invoked %d times after Cancel", n)
	}
	var nilTask *Task
	nilTask.Cancel()
}

func TestSingleDocumentScenario(t *testing.T) {
	ms := testutil.NewMockHTTPServer(t)
	ms.AddJSONResponse("/base/api/documents", http.StatusOK, `{"documents":[{"id":"d1","title":"Doc","tokens":["abc"]}]}`)
	c, err := New(ms.URL+"/base", "test", "")
	if err != nil {
		t.Fatal(err)
	}
	docs, err := c.FetchDocumentList(context.Background())
	if err != nil {
		t.Fatalf("FetchDocumentList: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "d1" || docs[0].Title != "Doc" || len(docs[0].Tokens) != 1 || docs[0].Tokens[0] != "abc" {
		t.Fatalf("unexpected documents %+v", docs)
	}
	reqs := ms.Requests()
	if len(reqs) != 1 || reqs[0].Header.Get("Accept") != "application/json" {
		t.Fatalf("unexpected requests %+v", reqs)
	}
	if ua := reqs[0].Header.Get("User-Agent"); !strings.HasPrefix(ua, "docfetch/") {
		t.Fatalf("User-Agent=%q", ua)
	}
}

func TestWithTimeoutLeavesInjectedClientAlone(t *testing.T) {
	injected := &http.Client{}
	c, err := New("http://example.com/", "test", "", WithHTTPClient(injected), WithTimeout(5*time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if injected.Timeout != 0 {
		t.Fatalf("injected client was modified: timeout %v", injected.Timeout)
	}
	if c.http.Timeout != 5*time.Second {
		t.Fatalf("client timeout = %v", c.http.Timeout)
	}

	c, err = New("http://example.com/", "test", "", WithTimeout(5*time.Second), WithHTTPClient(injected))
	if err != nil {
		t.Fatal(err)
	}
	if c.http != injected || injected.Timeout != 0 {
		t.Fatalf("a later WithHTTPClient should be used as given")
	}
}
