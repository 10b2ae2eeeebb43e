package chain

import (
	"context"
	"errors"
	"sync"
	"testing"

	"ContractHub/internal/contracts"
	"ContractHub/internal/contracts/contractstest"
	xerrors "ContractHub/internal/errors"
	"ContractHub/internal/observability/alerting"
	"ContractHub/internal/registry"
	"ContractHub/internal/web3/ethereum"
	"ContractHub/internal/web3/provider"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

type recordingDispatcher struct {
	mu     sync.Mutex
	events []alerting.Event
}

func (r *recordingDispatcher) Notify(_ context.Context, event alerting.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingDispatcher) Events() []alerting.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]alerting.Event, len(r.events))
	copy(out, r.events)
	return out
}

func testerDescriptor(t *testing.T) provider.Descriptor {
	t.Helper()

	backend, err := provider.NewTestBackend()
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })
	return provider.Descriptor{Provider: provider.NewTester(backend)}
}

func newTestInterface(t *testing.T, opts Options) *Interface {
	t.Helper()

	if opts.ProviderURI == "" && len(opts.Providers) == 0 {
		opts.Providers = []provider.Descriptor{testerDescriptor(t)}
	}
	core, err := New(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(core.Close)
	return core
}

func TestNewRequiresExactlyOneProviderSource(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Options{})
	require.Equal(t, xerrors.CodeConfiguration, xerrors.CodeOf(err))

	_, err = New(context.Background(), Options{
		ProviderURI: "http://127.0.0.1:8545",
		Providers:   []provider.Descriptor{{URI: "http://127.0.0.1:8546"}},
	})
	require.Equal(t, xerrors.CodeConfiguration, xerrors.CodeOf(err))
}

func TestNewRejectsUnsupportedScheme(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Options{ProviderURI: "ftp://ledger.example"})
	require.Equal(t, xerrors.CodeUnsupportedProvider, xerrors.CodeOf(err))

	_, err = New(context.Background(), Options{ProviderURI: "tester://unknown"})
	require.Equal(t, xerrors.CodeUnsupportedProvider, xerrors.CodeOf(err))
}

func TestAutoConnectWithTesterURI(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	core, err := New(ctx, Options{ProviderURI: "tester://pyevm", AutoConnect: true})
	require.NoError(t, err)
	tb, ok := core.Client().TesterBackend()
	require.True(t, ok)
	t.Cleanup(func() {
		core.Close()
		_ = tb.Close()
	})

	require.Equal(t, DefaultNetwork, core.Network())
	require.Equal(t, ethereum.StateConnected, core.Client().State())
	require.True(t, core.IsConnected(ctx))
	require.Len(t, core.Client().Providers(), 1)
	require.NotNil(t, core.Registry())
	require.NotNil(t, core.Signer())
}

func TestContractFactoryDistinguishesEmptyCache(t *testing.T) {
	t.Parallel()

	empty := newTestInterface(t, Options{})
	_, err := empty.ContractFactory("Ping")
	require.True(t, errors.Is(err, contracts.ErrCacheEmpty))
	require.Equal(t, xerrors.CodeCacheEmpty, xerrors.CodeOf(err))

	populated := newTestInterface(t, Options{Compiler: contractstest.Compiler()})
	_, err = populated.ContractFactory("Missing")
	require.Equal(t, xerrors.CodeUnknownContract, xerrors.CodeOf(err))

	art, err := populated.ContractFactory("Ping")
	require.NoError(t, err)
	require.Equal(t, "Ping", art.Name)
	require.NotEmpty(t, art.Bytecode)
}

func TestContractByNameBindsRecord(t *testing.T) {
	t.Parallel()

	addr := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	store := registry.NewMemoryStore(registry.Record{Name: "Ping", Address: addr, ABI: contractstest.PingABI})
	core := newTestInterface(t, Options{Registry: store, AutoConnect: true})

	contract, err := core.ContractByName(context.Background(), "Ping", false)
	require.NoError(t, err)
	require.Equal(t, addr, contract.Address)
	require.Contains(t, contract.ABI.Events, "Ping")

	byAddr, err := core.ContractByAddress(context.Background(), addr)
	require.NoError(t, err)
	require.Equal(t, "Ping", byAddr.Name)
}

func TestContractByNameRequiresConnection(t *testing.T) {
	t.Parallel()

	addr := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	store := registry.NewMemoryStore(registry.Record{Name: "Ping", Address: addr, ABI: contractstest.PingABI})
	core := newTestInterface(t, Options{Registry: store})

	require.False(t, core.IsConnected(context.Background()))
	_, err := core.ContractByName(context.Background(), "Ping", false)
	require.True(t, errors.Is(err, ethereum.ErrNotConnected))
}

func TestResolutionFailuresRaiseAlertsByCode(t *testing.T) {
	t.Parallel()

	store := registry.NewMemoryStore(
		registry.Record{Name: "Ping", Address: common.HexToAddress("0x01"), ABI: contractstest.PingABI},
		registry.Record{Name: "Ping", Address: common.HexToAddress("0x02"), ABI: contractstest.PingABI},
	)
	alerts := &recordingDispatcher{}
	core := newTestInterface(t, Options{Registry: store, Alerts: alerts, Network: "devnet", AutoConnect: true})

	_, err := core.ContractByName(context.Background(), "Missing", false)
	require.True(t, errors.Is(err, registry.ErrNotFound))
	require.Empty(t, alerts.Events())

	_, err = core.ContractByName(context.Background(), "Ping", false)
	require.True(t, errors.Is(err, registry.ErrAmbiguousRecord))

	events := alerts.Events()
	require.Len(t, events, 1)
	require.Equal(t, xerrors.CodeAmbiguousRecord, events[0].Code)
	require.Equal(t, "resolve", events[0].Operation)
	require.Equal(t, "devnet", events[0].Network)
}
