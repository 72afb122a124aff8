package apiclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"unicode/utf8"

	friendlyerrors "github.com/jxwalker/docfetch/internal/errors"
)

// ConnectivityError reports that the backend could not be reached at all
// (no route, refused, DNS failure, timeout). Error() is the user-facing message.
type ConnectivityError struct {
	Err error
}

func (e *ConnectivityError) Error() string { return friendlyerrors.ConnectivityMessage }
func (e *ConnectivityError) Unwrap() error { return e.Err }

// Friendly returns the connectivity failure with a suggestion for the CLI.
func (e *ConnectivityError) Friendly() *friendlyerrors.UserFriendlyError {
	return friendlyerrors.NetworkError(e.Err)
}

// TransportError is any other transport failure; its message is the native one.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// StatusError is a response whose status code differs from the expected one.
type StatusError struct {
	Code int
	Body []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status code is %d (response body: '%s')", e.Code, describeBody(e.Body))
}

// MalformedBodyError is a 200 response whose body is not a JSON object.
type MalformedBodyError struct {
	Err  error
	Body []byte
}

func (e *MalformedBodyError) Error() string {
	return fmt.Sprintf("could not parse JSON: %v (data: '%s')", e.Err, describeBody(e.Body))
}

func (e *MalformedBodyError) Unwrap() error { return e.Err }

// MissingFieldError is a JSON object lacking a required field.
type MissingFieldError struct {
	Field string
	Raw   map[string]any
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("response is missing %s: %v", e.Field, e.Raw)
}

const nonUTF8Body = "<body is not valid UTF-8>"

func describeBody(b []byte) string {
	if b == nil {
		return "<no body data>"
	}
	if !utf8.Valid(b) {
		return nonUTF8Body
	}
	return string(b)
}

// classifyTransport maps an error from http.Client.Do onto the taxonomy.
func classifyTransport(err error) error {
	if err == nil {
		return nil
	}
	if isConnectivity(err) {
		return &ConnectivityError{Err: err}
	}
	return &TransportError{Err: err}
}

func isConnectivity(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ENETUNREACH) || errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETDOWN) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	return false
}
