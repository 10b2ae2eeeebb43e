package provider

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	xerrors "ContractHub/internal/errors"
	"ContractHub/internal/web3"
)

// ProfilesConfig selects where network profiles come from.
type ProfilesConfig struct {
	DefinitionsPath string
	ProviderURI     string
	DefaultNetwork  string
	Timeout         time.Duration
}

// Profiles maps human readable network names to provider descriptors.
type Profiles struct {
	defaultNetwork string
	networks       map[string][]Descriptor
	descriptions   map[string]string
}

// NewProfiles loads network definitions and validates every provider URI
// without dialing it. A bare ProviderURI becomes the "default" network when no
// definitions file names any network.
func NewProfiles(cfg ProfilesConfig) (*Profiles, error) {
	defs, err := web3.LoadNetworkDefinitions(cfg.DefinitionsPath)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeConfiguration, err, "加载网络配置失败")
	}
	return newProfiles(defs, cfg)
}

func newProfiles(defs web3.NetworkDefinitions, cfg ProfilesConfig) (*Profiles, error) {
	networks := make(map[string][]Descriptor)
	descriptions := make(map[string]string)
	for name, def := range defs.Networks {
		if len(def.Providers) == 0 {
			return nil, xerrors.Wrapf(xerrors.CodeConfiguration, ErrConfiguration, "网络 %s 未配置任何 provider", name)
		}
		timeout := def.Timeout(cfg.Timeout)
		descriptors := make([]Descriptor, 0, len(def.Providers))
		for _, uri := range def.Providers {
			ep, err := ParseEndpoint(uri, timeout)
			if err != nil {
				return nil, fmt.Errorf("网络 %s: %w", name, err)
			}
			if err := checkScheme(ep); err != nil {
				return nil, fmt.Errorf("网络 %s: %w", name, err)
			}
			descriptors = append(descriptors, Descriptor{URI: uri, Timeout: timeout})
		}
		networks[name] = descriptors
		descriptions[name] = def.Description
	}

	if len(networks) == 0 && strings.TrimSpace(cfg.ProviderURI) != "" {
		networks["default"] = []Descriptor{{URI: strings.TrimSpace(cfg.ProviderURI), Timeout: cfg.Timeout}}
		if cfg.DefaultNetwork == "" {
			cfg.DefaultNetwork = "default"
		}
	}

	if len(networks) == 0 {
		return nil, xerrors.Wrap(xerrors.CodeConfiguration, ErrConfiguration, "未配置任何网络的 provider")
	}

	defaultNetwork := cfg.DefaultNetwork
	if defaultNetwork == "" {
		defaultNetwork = defs.Default
	}
	if defaultNetwork == "" {
		names := make([]string, 0, len(networks))
		for name := range networks {
			names = append(names, name)
		}
		sort.Strings(names)
		defaultNetwork = names[0]
	}
	if _, ok := networks[defaultNetwork]; !ok {
		return nil, xerrors.Wrapf(xerrors.CodeConfiguration, ErrConfiguration, "默认网络 %s 未在配置中找到", defaultNetwork)
	}

	return &Profiles{defaultNetwork: defaultNetwork, networks: networks, descriptions: descriptions}, nil
}

// checkScheme rejects endpoints Resolve would refuse, without building
// tester backends.
func checkScheme(ep Endpoint) error {
	switch ep.Scheme {
	case "ipc", "ws", "wss", "http", "https":
		return nil
	case "tester":
		if ep.Host == "pyevm" || ep.Host == "geth" {
			return nil
		}
	}
	return xerrors.Wrapf(xerrors.CodeUnsupportedProvider, ErrUnsupportedProvider, "不支持的 provider URI %s", ep.URI)
}

// Default returns the default network name.
func (p *Profiles) Default() string {
	if p == nil {
		return ""
	}
	return p.defaultNetwork
}

// Descriptors returns the provider descriptors of the named network. An empty
// name selects the default network.
func (p *Profiles) Descriptors(name string) ([]Descriptor, error) {
	if p == nil {
		return nil, errors.New("未初始化的网络配置")
	}
	if name == "" {
		name = p.defaultNetwork
	}
	descriptors, ok := p.networks[name]
	if !ok {
		return nil, xerrors.Wrapf(xerrors.CodeConfiguration, ErrConfiguration, "网络 %s 未在配置中找到", name)
	}
	out := make([]Descriptor, len(descriptors))
	copy(out, descriptors)
	return out, nil
}

// Description returns the free-form description of a network.
func (p *Profiles) Description(name string) string {
	if p == nil {
		return ""
	}
	return p.descriptions[name]
}

// Networks returns the list of configured network names.
func (p *Profiles) Networks() []string {
	if p == nil {
		return nil
	}
	names := make([]string, 0, len(p.networks))
	for name := range p.networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
