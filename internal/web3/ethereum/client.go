package ethereum

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	xerrors "ContractHub/internal/errors"
	"ContractHub/internal/web3"
	"ContractHub/internal/web3/provider"
	"ContractHub/pkg/logger"
)

// State is the connection state of a Client.
type State int

const (
	StateDisconnected State = iota
	StateConnected
)

func (s State) String() string {
	if s == StateConnected {
		return "connected"
	}
	return "disconnected"
}

// ErrNotConnected is returned by operations that need a live connection.
var ErrNotConnected = xerrors.New(xerrors.CodeConnection, "尚未连接到区块链网络")

// Client aggregates one or more providers into a single connection. Calls on
// the active backend go to the first provider that answered the liveness
// probe; the remaining transports are kept for fallthrough on the next probe.
type Client struct {
	network    string
	timeout    time.Duration
	providers  []*provider.Provider
	transports []*provider.Transport
	active     *provider.Transport
	state      State
	log        *slog.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithTimeout bounds every blocking call made through the client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger overrides the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// NewClient returns a disconnected client for the named network.
func NewClient(network string, opts ...Option) *Client {
	c := &Client{
		network: network,
		timeout: provider.DefaultTimeout,
		state:   StateDisconnected,
		log:     logger.Named("blockchain-interface"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Network returns the network name the client was created for.
func (c *Client) Network() string { return c.network }

// State reports whether Connect has succeeded.
func (c *Client) State() State { return c.state }

// AddProvider resolves d and appends it to the provider list.
func (c *Client) AddProvider(d provider.Descriptor) error {
	if d.Timeout <= 0 {
		d.Timeout = c.timeout
	}
	p, err := provider.FromDescriptor(d)
	if err != nil {
		return err
	}
	if c.providers == nil {
		c.providers = make([]*provider.Provider, 0, 1)
	}
	c.providers = append(c.providers, p)
	c.log.Debug("provider added", slog.String("provider", p.String()))
	return nil
}

// Providers returns a copy of the provider list.
func (c *Client) Providers() []*provider.Provider {
	out := make([]*provider.Provider, len(c.providers))
	copy(out, c.providers)
	return out
}

// Connect dials every provider, replaces any previous aggregate connection and
// runs the liveness probe.
func (c *Client) Connect(ctx context.Context) error {
	c.log.Info("connecting", slog.String("network", c.network), slog.String("providers", c.describeProviders()))

	if len(c.providers) == 0 {
		return xerrors.New(xerrors.CodeConnection, "没有配置任何区块链 provider")
	}

	c.closeTransports()

	var dialErrs []error
	transports := make([]*provider.Transport, 0, len(c.providers))
	for _, p := range c.providers {
		transport, err := p.Dial(ctx)
		if err != nil {
			dialErrs = append(dialErrs, err)
			c.log.Warn("provider dial failed", slog.String("provider", p.String()), slog.String("error", err.Error()))
			continue
		}
		transports = append(transports, transport)
	}
	c.transports = transports

	if err := c.probe(ctx); err != nil {
		c.state = StateDisconnected
		return xerrors.Wrapf(xerrors.CodeConnection, errors.Join(append(dialErrs, err)...), "无法连接到 providers: %s", c.describeProviders())
	}

	c.state = StateConnected
	c.log.Info("connected", slog.String("network", c.network), slog.String("provider", c.active.Provider().String()))
	return nil
}

// IsConnected re-runs the liveness probe. The result is never cached.
func (c *Client) IsConnected(ctx context.Context) bool {
	if len(c.transports) == 0 {
		return false
	}
	if err := c.probe(ctx); err != nil {
		if c.state == StateConnected {
			c.log.Warn("connection lost", slog.String("network", c.network), slog.String("error", err.Error()))
		}
		c.state = StateDisconnected
		return false
	}
	c.state = StateConnected
	return true
}

// probe selects the first transport that answers eth_chainId.
func (c *Client) probe(ctx context.Context) error {
	if len(c.transports) == 0 {
		return errors.New("没有可用的 provider 连接")
	}
	var errs []error
	for _, transport := range c.transports {
		callCtx, cancel := c.callContext(ctx, transport)
		_, err := transport.Backend().ChainID(callCtx)
		cancel()
		if err == nil {
			c.active = transport
			return nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", transport.Provider(), err))
	}
	c.active = nil
	return errors.Join(errs...)
}

// Backend returns the chain access surface of the active provider.
func (c *Client) Backend() (web3.Backend, error) {
	if c.state != StateConnected || c.active == nil {
		return nil, ErrNotConnected
	}
	return c.active.Backend(), nil
}

// ActiveProvider returns the provider currently serving requests.
func (c *Client) ActiveProvider() (*provider.Provider, error) {
	if c.state != StateConnected || c.active == nil {
		return nil, ErrNotConnected
	}
	return c.active.Provider(), nil
}

// TesterBackend returns the in-process chain when the active provider is the
// tester kind.
func (c *Client) TesterBackend() (*provider.TestBackend, bool) {
	p, err := c.ActiveProvider()
	if err != nil {
		return nil, false
	}
	return p.Tester()
}

// RPC returns the raw JSON-RPC client of the active provider. Tester
// providers have none.
func (c *Client) RPC() (web3.RPCCaller, error) {
	if c.state != StateConnected || c.active == nil {
		return nil, ErrNotConnected
	}
	rpc, ok := c.active.RPC()
	if !ok {
		return nil, xerrors.Newf(xerrors.CodeConfiguration, "%s 不支持原始 RPC 调用", c.active.Provider())
	}
	return rpc, nil
}

// Context derives a context bounded by the active provider's timeout.
func (c *Client) Context(ctx context.Context) (context.Context, context.CancelFunc) {
	return c.callContext(ctx, c.active)
}

func (c *Client) callContext(ctx context.Context, transport *provider.Transport) (context.Context, context.CancelFunc) {
	timeout := c.timeout
	if transport != nil {
		if t := transport.Provider().Endpoint().Timeout; t > 0 {
			timeout = t
		}
	}
	return context.WithTimeout(ctx, timeout)
}

// GasPrice queries the network's current gas price.
func (c *Client) GasPrice(ctx context.Context) (*big.Int, error) {
	backend, err := c.Backend()
	if err != nil {
		return nil, err
	}
	callCtx, cancel := c.Context(ctx)
	defer cancel()
	price, err := backend.SuggestGasPrice(callCtx)
	if err != nil {
		return nil, WrapCallError(err, "获取 gas price 失败")
	}
	return price, nil
}

// NodeVersion returns the node's client version string.
func (c *Client) NodeVersion(ctx context.Context) (string, error) {
	p, err := c.ActiveProvider()
	if err != nil {
		return "", err
	}
	if p.Kind() == provider.KindTester {
		return provider.TesterNodeVersion, nil
	}
	rpc, err := c.RPC()
	if err != nil {
		return "", err
	}
	callCtx, cancel := c.Context(ctx)
	defer cancel()
	var version string
	if err := rpc.CallContext(callCtx, &version, "web3_clientVersion"); err != nil {
		return "", WrapCallError(err, "获取节点版本失败")
	}
	return version, nil
}

// Snapshot gathers lightweight metadata from the chain.
func (c *Client) Snapshot(ctx context.Context) (web3.ChainSnapshot, error) {
	backend, err := c.Backend()
	if err != nil {
		return web3.ChainSnapshot{}, err
	}
	callCtx, cancel := c.Context(ctx)
	defer cancel()

	chainID, err := backend.ChainID(callCtx)
	if err != nil {
		return web3.ChainSnapshot{}, WrapCallError(err, "获取链 ID 失败")
	}
	blockNumber, err := backend.BlockNumber(callCtx)
	if err != nil {
		return web3.ChainSnapshot{}, WrapCallError(err, "获取最新区块高度失败")
	}
	return web3.ChainSnapshot{
		Network:     c.network,
		ChainID:     web3.ToHexBig(chainID),
		BlockNumber: fmt.Sprintf("0x%x", blockNumber),
		Provider:    c.active.Provider().String(),
	}, nil
}

// Close releases network connections held by the client.
func (c *Client) Close() {
	c.closeTransports()
	c.state = StateDisconnected
}

func (c *Client) closeTransports() {
	for _, transport := range c.transports {
		transport.Close()
	}
	c.transports = nil
	c.active = nil
}

func (c *Client) describeProviders() string {
	if len(c.providers) == 0 {
		return "<none>"
	}
	parts := make([]string, 0, len(c.providers))
	for _, p := range c.providers {
		parts = append(parts, p.Endpoint().URI)
	}
	return strings.Join(parts, ",")
}

// WrapCallError classifies a transport failure as a timeout or connection error.
func WrapCallError(err error, message string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return xerrors.Wrap(xerrors.CodeTimeout, err, message)
	}
	return xerrors.Wrap(xerrors.CodeConnection, err, message)
}
