package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ContractHub/internal/chain"
	"ContractHub/internal/contracts/contractstest"
	xerrors "ContractHub/internal/errors"
	"ContractHub/internal/observability/metrics"
	"ContractHub/internal/registry"
	"ContractHub/internal/web3/provider"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

var (
	pingAddr = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	dupAddr1 = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	dupAddr2 = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

func newTestServer(t *testing.T, connect bool) (*Server, *metrics.Metrics) {
	t.Helper()

	backend, err := provider.NewTestBackend()
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })

	store := registry.NewMemoryStore(
		registry.Record{Name: "Ping", Address: pingAddr, ABI: contractstest.PingABI},
		registry.Record{Name: "Twin", Address: dupAddr1, ABI: contractstest.PingABI},
		registry.Record{Name: "Twin", Address: dupAddr2, ABI: contractstest.PingABI},
	)
	m := metrics.New()
	core, err := chain.New(context.Background(), chain.Options{
		Network:     "tester",
		Providers:   []provider.Descriptor{{Provider: provider.NewTester(backend)}},
		Registry:    store,
		AutoConnect: connect,
		Metrics:     m,
	})
	require.NoError(t, err)
	t.Cleanup(core.Close)

	return NewServer(":0", core, m), m
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, true)
	rec := get(t, s, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)

	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "ok", body.Status)
	require.Equal(t, "tester", body.Network)
	require.True(t, body.Connected)

	disconnected, _ := newTestServer(t, false)
	rec = get(t, disconnected, "/healthz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestContractByName(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, true)
	rec := get(t, s, "/api/v1/contracts/Ping")
	require.Equal(t, http.StatusOK, rec.Code)

	var body contractResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "Ping", body.Name)
	require.Equal(t, pingAddr.Hex(), body.Address)
	require.JSONEq(t, contractstest.PingABI, string(body.ABI))
}

func TestContractErrorsMapToStatus(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, true)
	cases := []struct {
		path   string
		status int
		code   xerrors.Code
	}{
		{"/api/v1/contracts/Missing", http.StatusNotFound, xerrors.CodeNotFound},
		{"/api/v1/contracts/Twin", http.StatusConflict, xerrors.CodeAmbiguousRecord},
		{"/api/v1/contracts/Ping?upgradeable=maybe", http.StatusBadRequest, xerrors.CodeConfiguration},
		{"/api/v1/contracts/Ping?upgradeable=true", http.StatusConflict, xerrors.CodeNoDispatcherTarget},
		{"/api/v1/addresses/not-an-address", http.StatusBadRequest, xerrors.CodeConfiguration},
		{"/api/v1/addresses/0x00000000000000000000000000000000000000cc", http.StatusNotFound, xerrors.CodeNotFound},
	}
	for _, tc := range cases {
		rec := get(t, s, tc.path)
		require.Equal(t, tc.status, rec.Code, tc.path)

		var body errorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), tc.path)
		require.Equal(t, tc.code, body.Code, tc.path)
	}
}

func TestContractByAddress(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, true)
	rec := get(t, s, "/api/v1/addresses/"+pingAddr.Hex())
	require.Equal(t, http.StatusOK, rec.Code)

	var body contractResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "Ping", body.Name)
}

func TestNetworkSnapshot(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, true)
	rec := get(t, s, "/api/v1/network")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"chain_id":"0x539"`)
}

func TestMetricsEndpointCountsRequests(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, true)
	require.Equal(t, http.StatusOK, get(t, s, "/api/v1/contracts/Ping").Code)

	rec := get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.True(t, strings.Contains(body, `/api/v1/contracts/{name}`), body)
	require.Contains(t, body, "contracthub_operation_total")
}

func TestAPITokenGuardsV1Routes(t *testing.T) {
	base, m := newTestServer(t, true)
	s := NewServer(":0", base.core, m, WithAPIToken("secret"))

	rec := get(t, s, "/api/v1/contracts/Ping")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/contracts/Ping", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/contracts/Ping", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Equal(t, http.StatusOK, get(t, s, "/healthz").Code)
}
