package serialmux

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/opticalflow/internal/testutil"
)

func TestAdminRoutes_SendCommandAPI(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)
	httpMux := http.NewServeMux()
	mux.AttachAdminRoutes(httpMux, "secondary")

	tests := []struct {
		name   string
		method string
		form   url.Values
		status int
	}{
		{"valid", http.MethodPost, url.Values{"command": {`{"cmd":"param_request_list"}`}}, http.StatusOK},
		{"blank", http.MethodPost, url.Values{"command": {"  "}}, http.StatusBadRequest},
		{"missing", http.MethodPost, url.Values{}, http.StatusBadRequest},
		{"wrong method", http.MethodGet, nil, http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testutil.NewDebugRequest(tt.method, "/debug/serial/secondary/send-command-api", strings.NewReader(tt.form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			rec := httptest.NewRecorder()
			httpMux.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
	assert.Equal(t, "{\"cmd\":\"param_request_list\"}\n", string(port.GetWrittenData()))
}

func TestAdminRoutes_SendCommandPage(t *testing.T) {
	mux := NewSerialMux(NewTestableSerialPort())
	httpMux := http.NewServeMux()
	mux.AttachAdminRoutes(httpMux, "primary")

	rec := httptest.NewRecorder()
	httpMux.ServeHTTP(rec, testutil.NewDebugRequest(http.MethodGet, "/debug/serial/primary/send-command", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/debug/serial/primary/tail")
}

func TestAdminRoutes_TwoLinksOnOneMux(t *testing.T) {
	httpMux := http.NewServeMux()
	NewSerialMux(NewTestableSerialPort()).AttachAdminRoutes(httpMux, "primary")
	NewSerialMux(NewTestableSerialPort()).AttachAdminRoutes(httpMux, "secondary")
	NewDisabledSerialMux().AttachAdminRoutes(httpMux, "distance")

	rec := httptest.NewRecorder()
	httpMux.ServeHTTP(rec, testutil.NewDebugRequest(http.MethodGet, "/debug/serial/distance/", nil))
	assert.Equal(t, "distance link disabled", rec.Body.String())
}

func TestAdminRoutes_Tail(t *testing.T) {
	port := NewTestableSerialPort()
	port.BlockReads = true
	mux := NewSerialMux(port)
	httpMux := http.NewServeMux()
	mux.AttachAdminRoutes(httpMux, "primary")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mux.Monitor(ctx)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.RemoteAddr = "127.0.0.1:1"
		httpMux.ServeHTTP(w, r)
	}))
	defer server.Close()

	resp, err := http.Get(server.URL + "/debug/serial/primary/tail")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	buf := make([]byte, 256)
	n, err := resp.Body.Read(buf)
	require.NoError(t, err)
	assert.Contains(t, string(buf[:n]), ": ping")

	port.AddReadData([]byte("4.2\n"))
	deadline := time.Now().Add(2 * time.Second)
	var got strings.Builder
	for !strings.Contains(got.String(), "data: 4.2") && time.Now().Before(deadline) {
		n, err := resp.Body.Read(buf)
		got.Write(buf[:n])
		if err != nil {
			break
		}
	}
	assert.Contains(t, got.String(), "data: 4.2")
	require.NoError(t, mux.Close())
}
