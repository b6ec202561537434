package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/danmuck/edgeproxy/internal/dnscache"
	"github.com/danmuck/edgeproxy/internal/protocol"
	"github.com/danmuck/edgeproxy/internal/testutil/testlog"
	"github.com/danmuck/edgeproxy/internal/token"
)

func newTestServer(t *testing.T) (*Server, *dnscache.Manager) {
	t.Helper()
	testlog.Quiet(t)
	gin.SetMode(gin.TestMode)

	issuer, err := token.NewIssuer([]byte("admin-test-secret"), time.Now)
	require.NoError(t, err)

	dns := dnscache.New(dnscache.ResolverFunc(
		func(_ context.Context, _ string) (string, error) {
			return "192.0.2.77", nil
		},
	))

	srv := New(Options{
		Name:    "edgeproxy-test",
		Issuer:  issuer,
		DNS:     dns,
		Domains: []string{"team.example"},
		Baseline: protocol.ConfigState{
			Version: 1,
			Rows:    24,
			Cols:    80,
		},
	})
	srv.RegisterRoutes()
	return srv, dns
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	srv.HTTPRouter().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	w := do(t, srv, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "ok", body["status"])
	require.Equal(t, "edgeproxy-test", body["service"])
	require.NotEmpty(t, body["uptime"])
}

func TestMetricsExposed(t *testing.T) {
	srv, _ := newTestServer(t)

	w := do(t, srv, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "edgeproxy_")
}

func TestTokenIssuedForAllowedDomain(t *testing.T) {
	srv, _ := newTestServer(t)

	w := do(t, srv, http.MethodPost, "/api/token", `{"domain":"team.example"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))

	verifier, err := token.NewVerifier([]byte("admin-test-secret"),
		map[string][]uint32{"team.example": {0xa1b2c3d4}})
	require.NoError(t, err)
	require.True(t, verifier.Verify(body["token"], 0xa1b2c3d4))
}

func TestTokenDeniedForUnknownDomain(t *testing.T) {
	srv, _ := newTestServer(t)

	w := do(t, srv, http.MethodPost, "/api/token", `{"domain":"stranger.example"}`)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestTokenRequiresDomain(t *testing.T) {
	srv, _ := newTestServer(t)

	w := do(t, srv, http.MethodPost, "/api/token", `{}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDNSStatsAndReset(t *testing.T) {
	srv, dns := newTestServer(t)

	_, err := dns.Resolve(context.Background(), "edge-a.internal")
	require.NoError(t, err)
	_, err = dns.Resolve(context.Background(), "edge-a.internal")
	require.NoError(t, err)

	w := do(t, srv, http.MethodGet, "/api/dns/stats", "")
	require.Equal(t, http.StatusOK, w.Code)

	var stats dnscache.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	require.Equal(t, uint64(1), stats.Hits)
	require.Equal(t, uint64(1), stats.Misses)
	require.Equal(t, 1, stats.Size)

	w = do(t, srv, http.MethodPost, "/api/dns/reset", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, srv, http.MethodGet, "/api/dns/stats", "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	require.Zero(t, stats.Hits)
	require.Zero(t, stats.Misses)
	require.Equal(t, 1, stats.Size)
}
