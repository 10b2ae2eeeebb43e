package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	xerrors "ContractHub/internal/errors"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadYAMLAppliesDefaults(t *testing.T) {
	path := writeFile(t, "contracthub.yaml", `
network:
  provider_uri: tester://pyevm
registry:
  backend: sqlite
  path: /var/lib/contracthub/registry.db
compiler:
  artifacts: [build/combined.json]
deployer:
  receipt_timeout: 30s
`)

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)
	require.Equal(t, "tester://pyevm", cfg.Network.ProviderURI)
	require.Equal(t, "local", cfg.Network.Name)
	require.Equal(t, 10*time.Second, cfg.Network.Timeout)
	require.True(t, cfg.Network.AutoConnect)
	require.Equal(t, RegistrySQLite, cfg.Registry.Backend)
	require.Equal(t, []string{"build/combined.json"}, cfg.Compiler.Artifacts)
	require.Equal(t, 30*time.Second, cfg.Deployer.ReceiptTimeout)
	require.Equal(t, 500*time.Millisecond, cfg.Deployer.PollInterval)
	require.Equal(t, EventsNone, cfg.Events.Backend)
	require.Equal(t, "contracthub:deployments", cfg.Events.Redis.Channel)
	require.Equal(t, ":8080", cfg.Server.Address)
	require.Equal(t, "info", cfg.Log.Level)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	path := writeFile(t, "contracthub.json", `{"network":{"provider_uri":"http://127.0.0.1:8545"},"registry":{"backend":"memory"}}`)
	t.Setenv("CONTRACTHUB_NETWORK_PROVIDER_URI", "ws://127.0.0.1:8546")
	t.Setenv("CONTRACTHUB_EVENTS_BACKEND", "redis")
	t.Setenv("CONTRACTHUB_EVENTS_REDIS_ADDRESS", "127.0.0.1:6379")
	t.Setenv("CONTRACTHUB_DEPLOYER_ADDRESS", "0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf")

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)
	require.Equal(t, "ws://127.0.0.1:8546", cfg.Network.ProviderURI)
	require.Equal(t, RegistryMemory, cfg.Registry.Backend)
	require.Equal(t, EventsRedis, cfg.Events.Backend)
	require.Equal(t, "127.0.0.1:6379", cfg.Events.Redis.Address)
	require.Equal(t, "0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf", cfg.Deployer.Address)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "absent.yaml"))
	require.Equal(t, xerrors.CodeConfiguration, xerrors.CodeOf(err))
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() Config {
		return Config{
			Network:  NetworkConfig{ProviderURI: "tester://pyevm"},
			Registry: RegistryConfig{Backend: RegistryMemory},
		}
	}

	cases := map[string]func(*Config){
		"no provider source": func(c *Config) { c.Network.ProviderURI = "" },
		"both provider sources": func(c *Config) {
			c.Network.Profiles = "configs/networks.yaml"
		},
		"unknown registry":      func(c *Config) { c.Registry.Backend = "etcd" },
		"file without path":     func(c *Config) { c.Registry.Backend = RegistryFile },
		"mysql without dsn":     func(c *Config) { c.Registry.Backend = RegistryMySQL },
		"redis without address": func(c *Config) { c.Registry.Backend = RegistryRedis },
		"unknown events":        func(c *Config) { c.Events.Backend = "kafka" },
		"rabbitmq without url":  func(c *Config) { c.Events.Backend = EventsRabbitMQ },
		"malformed deployer":    func(c *Config) { c.Deployer.Address = "0x1234" },
	}

	base := valid()
	require.NoError(t, base.Validate())
	for name, mutate := range cases {
		cfg := valid()
		mutate(&cfg)
		err := cfg.Validate()
		require.Equal(t, xerrors.CodeConfiguration, xerrors.CodeOf(err), name)
	}
}
