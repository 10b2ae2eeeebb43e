package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	xerrors "ContractHub/internal/errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestResolveRejectsUnsupportedSchemes(t *testing.T) {
	t.Parallel()

	for _, uri := range []string{"ftp://node:21", "udp://10.0.0.1:30303", "tester://ganache", "file:///tmp/geth.ipc", "/tmp/geth.ipc"} {
		uri := uri
		t.Run(uri, func(t *testing.T) {
			t.Parallel()

			ep, err := ParseEndpoint(uri, time.Second)
			require.NoError(t, err)

			p, err := Resolve(ep)
			require.Nil(t, p)
			require.True(t, errors.Is(err, ErrUnsupportedProvider), "unexpected error: %v", err)
		})
	}
}

func TestResolveRemoteKinds(t *testing.T) {
	t.Parallel()

	cases := []struct {
		uri  string
		kind Kind
		path string
	}{
		{uri: "http://localhost:8545", kind: KindHTTP},
		{uri: "https://rpc.example.org/v1", kind: KindHTTP},
		{uri: "ws://localhost:8546", kind: KindWebSocket},
		{uri: "wss://rpc.example.org/ws", kind: KindWebSocket},
		{uri: "ipc:///var/run/geth.ipc", kind: KindIPC, path: "/var/run/geth.ipc"},
		{uri: "ipc://relative.ipc", kind: KindIPC, path: "relative.ipc"},
		{uri: "ipc://./data/geth.ipc", kind: KindIPC, path: "./data/geth.ipc"},
		{uri: "tester://geth", kind: KindIPC, path: GethDevIPCPath},
	}
	for _, tc := range cases {
		ep, err := ParseEndpoint(tc.uri, 0)
		require.NoError(t, err)
		require.Equal(t, DefaultTimeout, ep.Timeout)

		p, err := Resolve(ep)
		require.NoError(t, err, tc.uri)
		require.Equal(t, tc.kind, p.Kind(), tc.uri)
		require.True(t, p.Remote())
		if tc.path != "" {
			require.Equal(t, tc.path, p.Endpoint().Path)
		}
		_, ok := p.Tester()
		require.False(t, ok)
	}
}

func TestResolveTesterBackend(t *testing.T) {
	t.Parallel()

	ep, err := ParseEndpoint("tester://pyevm", 0)
	require.NoError(t, err)

	p, err := Resolve(ep)
	require.NoError(t, err)
	require.Equal(t, KindTester, p.Kind())
	require.False(t, p.Remote())

	backend, ok := p.Tester()
	require.True(t, ok)
	t.Cleanup(func() { _ = backend.Close() })

	accounts := backend.Accounts()
	require.Len(t, accounts, TesterAccountCount)
	require.Equal(t, common.HexToAddress("0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf"), accounts[0])

	key, ok := backend.Key(accounts[0])
	require.True(t, ok)
	require.NotNil(t, key)

	transport, err := p.Dial(context.Background())
	require.NoError(t, err)
	_, hasRPC := transport.RPC()
	require.False(t, hasRPC)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	balance, err := transport.Backend().BalanceAt(ctx, accounts[0], nil)
	require.NoError(t, err)
	require.Equal(t, 0, balance.Cmp(testerFunding))

	header, err := transport.Backend().HeaderByNumber(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, TesterGasLimit, header.GasLimit)
}

func TestFromDescriptorValidation(t *testing.T) {
	t.Parallel()

	_, err := FromDescriptor(Descriptor{})
	require.Equal(t, xerrors.CodeConfiguration, xerrors.CodeOf(err))

	remote, err := NewRemote(KindHTTP, Endpoint{URI: "http://localhost:8545", Scheme: "http", Timeout: time.Second})
	require.NoError(t, err)

	_, err = FromDescriptor(Descriptor{URI: "http://localhost:8545", Provider: remote})
	require.True(t, errors.Is(err, ErrConfiguration))

	got, err := FromDescriptor(Descriptor{Provider: remote})
	require.NoError(t, err)
	require.Same(t, remote, got)

	got, err = FromDescriptor(Descriptor{URI: "ws://localhost:8546"})
	require.NoError(t, err)
	require.Equal(t, KindWebSocket, got.Kind())
}

func TestParseEndpointRejectsEmptyIPCPath(t *testing.T) {
	t.Parallel()

	_, err := ParseEndpoint("ipc://", time.Second)
	require.Equal(t, xerrors.CodeConfiguration, xerrors.CodeOf(err))
	require.True(t, errors.Is(err, ErrConfiguration))
}

func TestProviderErrorsWrapSentinels(t *testing.T) {
	t.Parallel()

	require.NotEmpty(t, ErrUnsupportedProvider.Message())
	require.NotEmpty(t, ErrConfiguration.Message())

	ep, err := ParseEndpoint("ftp://node:21", time.Second)
	require.NoError(t, err)
	_, err = Resolve(ep)
	var wrapped *xerrors.Error
	require.True(t, errors.As(err, &wrapped))
	require.Same(t, ErrUnsupportedProvider, errors.Unwrap(wrapped))
	require.Contains(t, err.Error(), ErrUnsupportedProvider.Message())

	_, err = FromDescriptor(Descriptor{})
	require.Same(t, ErrConfiguration, errors.Unwrap(err))
}

func TestNewRemoteRejectsTesterKind(t *testing.T) {
	t.Parallel()

	_, err := NewRemote(KindTester, Endpoint{})
	require.True(t, errors.Is(err, ErrUnsupportedProvider))
}
