package system

import (
	"context"
	"fmt"
	"net"
	"net/http"
	neturl "net/url"
	"os"
	"time"

	"github.com/jxwalker/docfetch/internal/errors"
)

// CheckEndpoint resolves and dials the host of rawURL, without sending a request.
func CheckEndpoint(ctx context.Context, rawURL string) error {
	u, err := neturl.Parse(rawURL)
	if err != nil || u.Host == "" {
		return errors.ConfigError("url", fmt.Sprintf("not an absolute URL: %s", rawURL))
	}
	host, port := u.Hostname(), u.Port()
	if port == "" {
		port = "80"
		if u.Scheme == "https" {
			port = "443"
		}
	}

	if net.ParseIP(host) == nil {
		if _, err := (&net.Resolver{}).LookupHost(ctx, host); err != nil {
			return errors.NewFriendlyError(
				fmt.Sprintf("Cannot resolve host: %s", host),
				"Check that the hostname is correct and your DNS is working",
			).WithDetails(err)
		}
	}

	dialer := &net.Dialer{Timeout: 5 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, port))
	if err != nil {
		return errors.NetworkError(err)
	}
	_ = conn.Close()
	return nil
}

// DetectProxySettings returns the proxy variables set in the environment.
func DetectProxySettings() map[string]string {
	proxies := make(map[string]string)
	for _, envVar := range []string{"HTTP_PROXY", "HTTPS_PROXY", "NO_PROXY", "http_proxy", "https_proxy", "no_proxy"} {
		if val := os.Getenv(envVar); val != "" {
			proxies[envVar] = val
		}
	}
	req, _ := http.NewRequest(http.MethodGet, "https://example.com", nil)
	if proxyURL, _ := http.ProxyFromEnvironment(req); proxyURL != nil {
		if _, exists := proxies["HTTPS_PROXY"]; !exists {
			proxies["HTTPS_PROXY"] = proxyURL.String()
		}
	}
	return proxies
}
