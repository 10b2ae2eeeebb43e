package provider

import (
	"context"
	"fmt"
	"net/http"

	xerrors "ContractHub/internal/errors"
	"ContractHub/internal/web3"

	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// GethDevIPCPath is the socket used by tester://geth.
const GethDevIPCPath = "/tmp/geth.ipc"

var (
	// ErrUnsupportedProvider is returned for endpoint schemes with no transport.
	ErrUnsupportedProvider = xerrors.New(xerrors.CodeUnsupportedProvider, "不支持的 provider")
	// ErrConfiguration is returned for missing or conflicting provider arguments.
	ErrConfiguration = xerrors.New(xerrors.CodeConfiguration, "provider 配置无效")
)

// Kind tags the transport flavour of a provider.
type Kind int

const (
	KindHTTP Kind = iota + 1
	KindWebSocket
	KindIPC
	KindTester
)

func (k Kind) String() string {
	switch k {
	case KindHTTP:
		return "http"
	case KindWebSocket:
		return "websocket"
	case KindIPC:
		return "ipc"
	case KindTester:
		return "tester"
	default:
		return "unknown"
	}
}

// Provider is a transport-specific connector to a ledger node. Remote kinds
// carry only their endpoint; the tester kind carries the in-process backend
// whose keys the signing bridge uses directly.
type Provider struct {
	kind     Kind
	endpoint Endpoint
	tester   *TestBackend
}

// NewRemote builds a remote provider of the given kind.
func NewRemote(kind Kind, endpoint Endpoint) (*Provider, error) {
	switch kind {
	case KindHTTP, KindWebSocket, KindIPC:
		return &Provider{kind: kind, endpoint: endpoint}, nil
	default:
		return nil, xerrors.Wrapf(xerrors.CodeUnsupportedProvider, ErrUnsupportedProvider, "%s 不是远程 provider 类型", kind)
	}
}

// NewTester wraps an in-process test backend as a provider.
func NewTester(backend *TestBackend) *Provider {
	return &Provider{
		kind:     KindTester,
		endpoint: Endpoint{URI: "tester://pyevm", Scheme: "tester", Host: "pyevm", Timeout: DefaultTimeout},
		tester:   backend,
	}
}

// Kind returns the transport tag.
func (p *Provider) Kind() Kind { return p.kind }

// Endpoint returns the endpoint the provider was built from.
func (p *Provider) Endpoint() Endpoint { return p.endpoint }

// Remote reports whether the provider talks to a node over the network.
func (p *Provider) Remote() bool { return p.kind != KindTester }

// Tester returns the in-process backend for tester providers.
func (p *Provider) Tester() (*TestBackend, bool) {
	if p.kind != KindTester || p.tester == nil {
		return nil, false
	}
	return p.tester, true
}

func (p *Provider) String() string {
	return fmt.Sprintf("%s(%s)", p.kind, p.endpoint.URI)
}

// Resolve classifies an endpoint by scheme and instantiates the matching
// provider. Remote providers are not dialed until Dial is called.
func Resolve(ep Endpoint) (*Provider, error) {
	switch ep.Scheme {
	case "tester":
		switch ep.Host {
		case "pyevm":
			backend, err := NewTestBackend()
			if err != nil {
				return nil, err
			}
			p := NewTester(backend)
			p.endpoint = ep
			return p, nil
		case "geth":
			ipc := ep
			ipc.Path = GethDevIPCPath
			return NewRemote(KindIPC, ipc)
		default:
			return nil, xerrors.Wrapf(xerrors.CodeUnsupportedProvider, ErrUnsupportedProvider, "%s 是不明确或不支持的 provider URI", ep.URI)
		}
	case "ipc":
		return NewRemote(KindIPC, ep)
	case "ws", "wss":
		return NewRemote(KindWebSocket, ep)
	case "http", "https":
		return NewRemote(KindHTTP, ep)
	default:
		return nil, xerrors.Wrapf(xerrors.CodeUnsupportedProvider, ErrUnsupportedProvider, "'%s' 不是区块链 provider 协议", ep.Scheme)
	}
}

// FromDescriptor returns the descriptor's provider, resolving its URI when no
// instance was supplied.
func FromDescriptor(d Descriptor) (*Provider, error) {
	switch {
	case d.URI == "" && d.Provider == nil:
		return nil, xerrors.Wrap(xerrors.CodeConfiguration, ErrConfiguration, "未提供 provider URI 或实例")
	case d.URI != "" && d.Provider != nil:
		return nil, xerrors.Wrap(xerrors.CodeConfiguration, ErrConfiguration, "provider URI 与实例只能二选一")
	case d.Provider != nil:
		return d.Provider, nil
	}
	ep, err := ParseEndpoint(d.URI, d.Timeout)
	if err != nil {
		return nil, err
	}
	return Resolve(ep)
}

// Transport is a dialed provider.
type Transport struct {
	provider *Provider
	backend  web3.Backend
	rpc      *gethrpc.Client
}

// Dial opens the provider's transport. Tester providers never touch the
// network.
func (p *Provider) Dial(ctx context.Context) (*Transport, error) {
	if p.kind == KindTester {
		if p.tester == nil {
			return nil, xerrors.Wrap(xerrors.CodeConfiguration, ErrConfiguration, "tester provider 缺少后端")
		}
		return &Transport{provider: p, backend: p.tester.Client()}, nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, p.endpoint.Timeout)
	defer cancel()

	var (
		client *gethrpc.Client
		err    error
	)
	switch p.kind {
	case KindHTTP:
		client, err = gethrpc.DialHTTPWithClient(p.endpoint.URI, &http.Client{Timeout: p.endpoint.Timeout})
	case KindWebSocket:
		client, err = gethrpc.DialWebsocket(dialCtx, p.endpoint.URI, "")
	case KindIPC:
		client, err = gethrpc.DialIPC(dialCtx, p.endpoint.Path)
	default:
		return nil, xerrors.Wrapf(xerrors.CodeUnsupportedProvider, ErrUnsupportedProvider, "无法拨号 %s", p.kind)
	}
	if err != nil {
		return nil, xerrors.Wrapf(xerrors.CodeConnection, err, "连接 %s 失败", p)
	}
	return &Transport{provider: p, backend: ethclient.NewClient(client), rpc: client}, nil
}

// Provider returns the provider the transport was dialed from.
func (t *Transport) Provider() *Provider { return t.provider }

// Backend returns the chain access surface.
func (t *Transport) Backend() web3.Backend { return t.backend }

// RPC returns the raw JSON-RPC client of remote transports.
func (t *Transport) RPC() (web3.RPCCaller, bool) {
	if t.rpc == nil {
		return nil, false
	}
	return t.rpc, true
}

// Close releases the network connection. The tester backend outlives its
// transports and is closed through TestBackend.Close.
func (t *Transport) Close() {
	if t == nil || t.rpc == nil {
		return
	}
	t.rpc.Close()
}
