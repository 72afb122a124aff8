package logging

import (
	"net/url"
	"strings"
)

// SanitizeURL drops userinfo, query and fragment so credentials and tokens never reach the log.
func SanitizeURL(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return s
	}
	u, err := url.Parse(s)
	if err != nil {
		return s
	}
	u.User = nil
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

// RedactToken keeps the first few characters of a token for correlation.
func RedactToken(tok string) string {
	if len(tok) <= 8 {
		return "…"
	}
	return tok[:8] + "…"
}
