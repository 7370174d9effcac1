package debughttp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "sitealert/pkg/logx"
)

func testRegistry(t *testing.T) *prometheus.Registry {
	t.Helper()
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "sitealert_test_total", Help: "test"})
	c.Add(3)
	reg.MustRegister(c)
	return reg
}

func get(t *testing.T, h http.Handler, target string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHandlerEndpoints(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop(),
		WithGatherer(testRegistry(t)),
		WithStatus(func() any { return map[string]int{"unread": 4} }),
	)
	h := s.Handler(Config{})

	rr := get(t, h, "/healthz")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())

	rr = get(t, h, "/status")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	var body map[string]int
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, 4, body["unread"])

	rr = get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "sitealert_test_total 3")

	assert.Equal(t, http.StatusNotFound, get(t, h, "/debug/pprof/").Code)
}

func TestHandlerPprofPrefix(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop(), WithGatherer(prometheus.NewRegistry()))
	h := s.Handler(Config{Pprof: true, PprofPrefix: "internal/prof"})

	rr := get(t, h, "/internal/prof/")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "goroutine")
}

func TestHandlerAuth(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop(), WithGatherer(prometheus.NewRegistry()))
	h := s.Handler(Config{Token: "s3cret"})

	cases := []struct {
		name   string
		target string
		header []string
		want   int
	}{
		{"healthz is open", "/healthz", nil, http.StatusOK},
		{"missing token", "/status", nil, http.StatusUnauthorized},
		{"query token", "/status?token=s3cret", nil, http.StatusOK},
		{"wrong query token", "/status?token=nope", []string{"Authorization", "Bearer s3cret"}, http.StatusUnauthorized},
		{"bearer", "/metrics", []string{"Authorization", "Bearer s3cret"}, http.StatusOK},
		{"wrong bearer", "/metrics", []string{"Authorization", "Bearer other"}, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rr := get(t, h, tc.target, tc.header...)
			assert.Equal(t, tc.want, rr.Code)
			if tc.want == http.StatusUnauthorized {
				assert.Equal(t, "Bearer", rr.Header().Get("WWW-Authenticate"))
			}
		})
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()
	cases := map[string]bool{
		"127.0.0.1:7070": true,
		"localhost:1":    true,
		"[::1]:9":        true,
		":7070":          false,
		"0.0.0.0:7070":   false,
		"10.0.0.2:80":    false,
		"garbage":        false,
	}
	for addr, want := range cases {
		assert.Equal(t, want, isLoopbackAddr(addr), addr)
	}
}

func TestNormalizePrefix(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "/debug/pprof/", normalizePrefix(""))
	assert.Equal(t, "/x/", normalizePrefix("x"))
	assert.Equal(t, "/x/", normalizePrefix("/x/"))
}

func TestServeOnceRefusesInsecureBind(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true, Addr: "0.0.0.0:0"}, logx.Nop())
	err := s.serveOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure bind")
}

func TestStartStopLifecycle(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true, Addr: "127.0.0.1:0"}, logx.Nop(), WithGatherer(prometheus.NewRegistry()))
	ctx := context.Background()

	s.Start(ctx)
	select {
	case <-s.Bound():
	case <-time.After(2 * time.Second):
		t.Fatal("server did not bind")
	}
	addr := s.Addr()
	require.NotEmpty(t, addr)

	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "ok", string(b))

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	s.Reconfigure(stopCtx, Config{Enabled: false})
	assert.Nil(t, s.Supervisor())
	assert.Empty(t, s.Addr())
}
