package ethereum

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	xerrors "ContractHub/internal/errors"
	"ContractHub/internal/web3/provider"

	"github.com/stretchr/testify/require"
)

func newTesterProvider(t *testing.T) *provider.Provider {
	t.Helper()

	backend, err := provider.NewTestBackend()
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })
	return provider.NewTester(backend)
}

// newChainIDServer answers every JSON-RPC request with chain id 1337.
func newChainIDServer(t *testing.T) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  "0x539",
		})
	}))
}

func TestConnectWithoutProviders(t *testing.T) {
	t.Parallel()

	client := NewClient("empty")
	err := client.Connect(context.Background())
	require.Equal(t, xerrors.CodeConnection, xerrors.CodeOf(err))
	require.Equal(t, StateDisconnected, client.State())

	_, err = client.Backend()
	require.True(t, errors.Is(err, ErrNotConnected))
	require.False(t, client.IsConnected(context.Background()))
}

func TestConnectTesterProvider(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := NewClient("local")
	t.Cleanup(client.Close)

	require.NoError(t, client.AddProvider(provider.Descriptor{Provider: newTesterProvider(t)}))
	require.NoError(t, client.Connect(ctx))
	require.Equal(t, StateConnected, client.State())
	require.True(t, client.IsConnected(ctx))

	snapshot, err := client.Snapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, "0x539", snapshot.ChainID)
	require.Equal(t, "local", snapshot.Network)

	version, err := client.NodeVersion(ctx)
	require.NoError(t, err)
	require.Equal(t, provider.TesterNodeVersion, version)

	price, err := client.GasPrice(ctx)
	require.NoError(t, err)
	require.Positive(t, price.Sign())

	_, err = client.RPC()
	require.Equal(t, xerrors.CodeConfiguration, xerrors.CodeOf(err))
}

func TestConnectFallsThroughToLiveProvider(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := NewClient("mixed", WithTimeout(2*time.Second))
	t.Cleanup(client.Close)

	require.NoError(t, client.AddProvider(provider.Descriptor{URI: "http://127.0.0.1:1"}))
	tester := newTesterProvider(t)
	require.NoError(t, client.AddProvider(provider.Descriptor{Provider: tester}))
	require.Len(t, client.Providers(), 2)

	require.NoError(t, client.Connect(ctx))
	active, err := client.ActiveProvider()
	require.NoError(t, err)
	require.Same(t, tester, active)
}

func TestConnectFailsWhenNoProviderAnswers(t *testing.T) {
	t.Parallel()

	client := NewClient("dead", WithTimeout(time.Second))
	require.NoError(t, client.AddProvider(provider.Descriptor{URI: "http://127.0.0.1:1"}))

	err := client.Connect(context.Background())
	require.Equal(t, xerrors.CodeConnection, xerrors.CodeOf(err))
	require.Equal(t, StateDisconnected, client.State())
}

func TestAddProviderRejectsUnsupportedScheme(t *testing.T) {
	t.Parallel()

	client := NewClient("bad")
	err := client.AddProvider(provider.Descriptor{URI: "smtp://mail"})
	require.True(t, errors.Is(err, provider.ErrUnsupportedProvider))
	require.Empty(t, client.Providers())
}

func TestIsConnectedObservesSeveredNetwork(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	server := newChainIDServer(t)

	client := NewClient("remote", WithTimeout(time.Second))
	t.Cleanup(client.Close)
	require.NoError(t, client.AddProvider(provider.Descriptor{URI: server.URL}))
	require.NoError(t, client.Connect(ctx))
	require.True(t, client.IsConnected(ctx))

	server.Close()
	require.False(t, client.IsConnected(ctx))
	require.Equal(t, StateDisconnected, client.State())

	_, err := client.Backend()
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestReconnectReplacesAggregate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := NewClient("local")
	t.Cleanup(client.Close)
	require.NoError(t, client.AddProvider(provider.Descriptor{Provider: newTesterProvider(t)}))

	require.NoError(t, client.Connect(ctx))
	first, err := client.Backend()
	require.NoError(t, err)

	require.NoError(t, client.Connect(ctx))
	second, err := client.Backend()
	require.NoError(t, err)
	require.Same(t, first, second)
	require.Equal(t, StateConnected, client.State())
}
