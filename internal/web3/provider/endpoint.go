package provider

import (
	"net/url"
	"strings"
	"time"

	xerrors "ContractHub/internal/errors"
)

// DefaultTimeout bounds every blocking transport call when no timeout is set.
const DefaultTimeout = 10 * time.Second

// Endpoint is a parsed provider URI. It is immutable once a provider has been
// built from it.
type Endpoint struct {
	URI     string
	Scheme  string
	Host    string
	Path    string
	Timeout time.Duration
}

// ParseEndpoint splits uri into scheme, authority and path.
func ParseEndpoint(uri string, timeout time.Duration) (Endpoint, error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return Endpoint{}, xerrors.Wrap(xerrors.CodeConfiguration, ErrConfiguration, "provider URI 不能为空")
	}
	parsed, err := url.Parse(uri)
	if err != nil {
		return Endpoint{}, xerrors.Wrapf(xerrors.CodeConfiguration, err, "无法解析 provider URI %q", uri)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ep := Endpoint{
		URI:     uri,
		Scheme:  strings.ToLower(parsed.Scheme),
		Host:    parsed.Host,
		Path:    parsed.Path,
		Timeout: timeout,
	}
	if ep.Scheme == "ipc" {
		// ipc://relative.ipc parses the file name as the host.
		ep.Path = parsed.Opaque + parsed.Host + parsed.Path
		if ep.Path == "" {
			return Endpoint{}, xerrors.Wrapf(xerrors.CodeConfiguration, ErrConfiguration, "IPC provider URI %q 缺少 socket 路径", uri)
		}
	}
	return ep, nil
}

// String returns the original URI.
func (e Endpoint) String() string {
	return e.URI
}

// Descriptor names a provider either by URI or by an already built instance.
// Exactly one of the two must be set.
type Descriptor struct {
	URI      string
	Provider *Provider
	Timeout  time.Duration
}
