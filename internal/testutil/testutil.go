// Package testutil provides shared test helpers for the HTTP debug
// surfaces.
package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

// LoopbackAddr is the remote address given to debug requests. tsweb only
// serves /debug/ to local and tailnet peers.
const LoopbackAddr = "127.0.0.1:12345"

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// NewDebugRequest creates a request that passes the debug access check.
func NewDebugRequest(method, target string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, target, body)
	req.RemoteAddr = LoopbackAddr
	return req
}

// ServeDebug sends a GET for target to h and returns the recorded
// response.
func ServeDebug(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, NewDebugRequest(http.MethodGet, target, nil))
	return rec
}
