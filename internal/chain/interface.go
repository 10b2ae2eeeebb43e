// Package chain composes the connection manager, the contract registry and the
// compiled-artifact cache into the single entry point applications use to
// reach contracts on an EVM network.
package chain

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"ContractHub/internal/contracts"
	xerrors "ContractHub/internal/errors"
	"ContractHub/internal/observability/alerting"
	"ContractHub/internal/observability/metrics"
	"ContractHub/internal/registry"
	"ContractHub/internal/signing"
	"ContractHub/internal/web3"
	"ContractHub/internal/web3/ethereum"
	"ContractHub/internal/web3/provider"
	"ContractHub/pkg/logger"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// DefaultNetwork names the network when none is configured.
const DefaultNetwork = "local"

// Options configures an Interface. Exactly one of ProviderURI and Providers
// must be set.
type Options struct {
	Network     string
	ProviderURI string
	Providers   []provider.Descriptor
	Timeout     time.Duration
	Registry    registry.Store
	Compiler    contracts.Compiler
	AutoConnect bool
	Alerts      alerting.Dispatcher
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

// Interface is the connection, registry and factory cache of one network.
type Interface struct {
	network  string
	client   *ethereum.Client
	store    registry.Store
	resolver *registry.Resolver
	cache    *contracts.Cache
	signer   *signing.Bridge
	alerts   alerting.Dispatcher
	metrics  *metrics.Metrics
	log      *slog.Logger
}

// New validates opts, registers the providers and, when AutoConnect is set,
// connects.
func New(ctx context.Context, opts Options) (*Interface, error) {
	hasURI := strings.TrimSpace(opts.ProviderURI) != ""
	hasProviders := len(opts.Providers) > 0
	if hasURI == hasProviders {
		return nil, xerrors.New(xerrors.CodeConfiguration, "必须且只能指定 provider URI 或 provider 列表之一")
	}

	network := opts.Network
	if network == "" {
		network = DefaultNetwork
	}
	log := opts.Logger
	if log == nil {
		log = logger.Named("blockchain-interface")
	}

	clientOpts := []ethereum.Option{ethereum.WithLogger(log)}
	if opts.Timeout > 0 {
		clientOpts = append(clientOpts, ethereum.WithTimeout(opts.Timeout))
	}
	client := ethereum.NewClient(network, clientOpts...)

	descriptors := opts.Providers
	if hasURI {
		descriptors = []provider.Descriptor{{URI: opts.ProviderURI, Timeout: opts.Timeout}}
	}
	for _, d := range descriptors {
		if err := client.AddProvider(d); err != nil {
			return nil, err
		}
	}

	cache, err := contracts.NewCache(opts.Compiler)
	if err != nil {
		return nil, err
	}

	store := opts.Registry
	if store == nil {
		log.Warn("no registry configured, using in-memory registry", slog.String("network", network))
		store = registry.NewMemoryStore()
	}
	alerts := opts.Alerts
	if alerts == nil {
		alerts = alerting.NewFanout(&alerting.LogNotifier{})
	}

	iface := &Interface{
		network: network,
		client:  client,
		store:   store,
		cache:   cache,
		signer:  signing.NewBridge(client),
		alerts:  alerts,
		metrics: opts.Metrics,
		log:     log,
	}
	iface.resolver = registry.NewResolver(store, iface.caller)

	if opts.AutoConnect {
		if err := iface.Connect(ctx); err != nil {
			return nil, err
		}
	}
	return iface, nil
}

func (i *Interface) caller() (bind.ContractCaller, error) {
	return i.client.Backend()
}

// Network returns the configured network name.
func (i *Interface) Network() string { return i.network }

// Client returns the connection manager.
func (i *Interface) Client() *ethereum.Client { return i.client }

// Registry returns the registry store.
func (i *Interface) Registry() registry.Store { return i.store }

// Resolver returns the registry resolver.
func (i *Interface) Resolver() *registry.Resolver { return i.resolver }

// Cache returns the compiled-artifact cache.
func (i *Interface) Cache() *contracts.Cache { return i.cache }

// Signer returns the signing bridge bound to this connection.
func (i *Interface) Signer() *signing.Bridge { return i.signer }

// Metrics returns the meters, which may be nil.
func (i *Interface) Metrics() *metrics.Metrics { return i.metrics }

// Logger returns the interface logger.
func (i *Interface) Logger() *slog.Logger { return i.log }

// Connect connects to the configured providers.
func (i *Interface) Connect(ctx context.Context) (err error) {
	defer i.track(ctx, "connect", time.Now(), &err)
	return i.client.Connect(ctx)
}

// IsConnected re-probes the active connection.
func (i *Interface) IsConnected(ctx context.Context) bool {
	return i.client.IsConnected(ctx)
}

// Close releases the connection.
func (i *Interface) Close() {
	i.client.Close()
}

// ContractFactory returns the compiled artifact for name.
func (i *Interface) ContractFactory(name string) (contracts.Artifact, error) {
	return i.cache.Factory(name)
}

// ContractByName resolves name through the registry and binds it to the live
// connection.
func (i *Interface) ContractByName(ctx context.Context, name string, upgradeable bool) (_ *web3.Contract, err error) {
	defer i.track(ctx, "resolve", time.Now(), &err)

	callCtx, cancel := i.client.Context(ctx)
	defer cancel()
	binding, err := i.resolver.Resolve(callCtx, name, upgradeable)
	if err != nil {
		return nil, err
	}
	return i.Bind(binding)
}

// ContractByAddress looks up the unique record at address.
func (i *Interface) ContractByAddress(ctx context.Context, address common.Address) (_ *web3.Contract, err error) {
	defer i.track(ctx, "resolve_address", time.Now(), &err)

	binding, err := i.resolver.ResolveAddress(ctx, address)
	if err != nil {
		return nil, err
	}
	return i.Bind(binding)
}

// Bind attaches binding to the active backend.
func (i *Interface) Bind(binding web3.Binding) (*web3.Contract, error) {
	backend, err := i.client.Backend()
	if err != nil {
		return nil, err
	}
	return web3.NewContract(binding, backend), nil
}

// Report records the outcome of operation and raises an alert when the error
// code asks for one.
func (i *Interface) Report(ctx context.Context, operation string, start time.Time, err error) {
	i.track(ctx, operation, start, &err)
}

func (i *Interface) track(ctx context.Context, operation string, start time.Time, errp *error) {
	var err error
	if errp != nil {
		err = *errp
	}
	i.metrics.Observe(operation, start, err)
	if err == nil {
		return
	}
	i.log.Debug("operation failed", slog.String("operation", operation), slog.String("code", string(xerrors.CodeOf(err))), slog.String("error", err.Error()))
	event, ok := alerting.FromError(operation, i.network, err)
	if !ok {
		return
	}
	if notifyErr := i.alerts.Notify(ctx, event); notifyErr != nil {
		i.log.Warn("alert dispatch failed", slog.String("operation", operation), slog.String("error", notifyErr.Error()))
	}
}
