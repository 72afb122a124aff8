package apiclient

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	neturl "net/url"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jxwalker/docfetch/internal/logging"
)

// maxBodyBytes bounds how much of a response is kept for parsing and error messages.
const maxBodyBytes = 8 << 20

// Client issues Basic-authenticated requests against the sample backend.
type Client struct {
	baseURL   *neturl.URL
	userID    string
	password  string
	http      *http.Client
	log       *logging.Logger
	userAgent string
}

type Option func(*Client)

// WithHTTPClient replaces the default transport, mainly for tests.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

func WithLogger(l *logging.Logger) Option { return func(c *Client) { c.log = l } }

func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithTimeout sets the overall per-request timeout. The client in use is copied,
// so one passed to WithHTTPClient is left untouched.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			hc := *c.http
			hc.Timeout = d
			c.http = &hc
		}
	}
}

// Version is reported in the default User-Agent.
var Version = "dev"

func New(baseURL, userID, password string, opts ...Option) (*Client, error) {
	u, err := neturl.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("backend url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("backend url must be absolute: %s", baseURL)
	}
	c := &Client{
		baseURL:   u,
		userID:    userID,
		password:  password,
		http:      newHTTPClient(60 * time.Second),
		log:       logging.Discard(),
		userAgent: fmt.Sprintf("docfetch/%s (%s/%s)", Version, runtime.GOOS, runtime.GOARCH),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// BaseURL returns the backend address without credentials.
func (c *Client) BaseURL() string { return logging.SanitizeURL(c.baseURL.String()) }

func newHTTPClient(timeout time.Duration) *http.Client {
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   10,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}
	client := &http.Client{Transport: tr, Timeout: timeout}
	// Only forward Authorization when the redirect stays on the same host.
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= 10 {
			return errors.New("stopped after 10 redirects")
		}
		prev := via[len(via)-1]
		if prev.URL != nil && req.URL != nil && !strings.EqualFold(prev.URL.Host, req.URL.Host) {
			req.Header.Del("Authorization")
		}
		return nil
	}
	return client
}

// endpointURL joins base + "api" + escaped segments, keeping any base path prefix.
func (c *Client) endpointURL(segments ...string) string {
	u := *c.baseURL
	u.User = nil
	parts := []string{strings.TrimSuffix(u.Path, "/"), "api"}
	rawParts := []string{strings.TrimSuffix(u.EscapedPath(), "/"), "api"}
	for _, s := range segments {
		parts = append(parts, s)
		rawParts = append(rawParts, neturl.PathEscape(s))
	}
	u.Path = strings.Join(parts, "/")
	u.RawPath = strings.Join(rawParts, "/")
	u.RawQuery = ""
	return u.String()
}

func (c *Client) authorizedRequest(ctx context.Context, segments ...string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpointURL(segments...), nil)
	if err != nil {
		return nil, err
	}
	creds := base64.StdEncoding.EncodeToString([]byte(c.userID + ":" + c.password))
	req.Header.Set("Authorization", "Basic "+creds)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", uuid.NewString())
	return req, nil
}

// getJSONObject performs the request and requires the expected status and a JSON object body.
func (c *Client) getJSONObject(ctx context.Context, expectedStatus int, segments ...string) (map[string]any, error) {
	req, err := c.authorizedRequest(ctx, segments...)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debugf("GET %s failed after %s: %v", logging.SanitizeURL(req.URL.String()), time.Since(start).Round(time.Millisecond), err)
		return nil, classifyTransport(err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, classifyTransport(err)
	}
	c.log.Debugf("GET %s -> %d in %s (request %s)", logging.SanitizeURL(req.URL.String()), resp.StatusCode, time.Since(start).Round(time.Millisecond), req.Header.Get("X-Request-ID"))
	if resp.StatusCode != expectedStatus {
		return nil, &StatusError{Code: resp.StatusCode, Body: body}
	}
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, &MalformedBodyError{Err: err, Body: body}
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, &MalformedBodyError{Err: fmt.Errorf("JSON value has type %s instead of object", jsonKind(v)), Body: body}
	}
	return obj, nil
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case []any:
		return "array"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "bool"
	default:
		return fmt.Sprintf("%T", v)
	}
}
