package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	xerrors "ContractHub/internal/errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
)

// EnvPrefix 是所有环境变量覆盖项的前缀，例如 CONTRACTHUB_NETWORK_PROVIDER_URI。
const EnvPrefix = "CONTRACTHUB"

// 登记库后端。
const (
	RegistryMemory = "memory"
	RegistryFile   = "file"
	RegistryMySQL  = "mysql"
	RegistrySQLite = "sqlite"
	RegistryRedis  = "redis"
)

// 部署事件发布后端。
const (
	EventsNone     = "none"
	EventsMemory   = "memory"
	EventsRedis    = "redis"
	EventsRabbitMQ = "rabbitmq"
)

// Config 描述了 ContractHub 在启动阶段需要加载的全部配置。
type Config struct {
	Network  NetworkConfig  `mapstructure:"network"`
	Registry RegistryConfig `mapstructure:"registry"`
	Compiler CompilerConfig `mapstructure:"compiler"`
	Deployer DeployerConfig `mapstructure:"deployer"`
	Events   EventsConfig   `mapstructure:"events"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
}

// NetworkConfig 选择要连接的区块链网络。ProviderURI 与 Profiles 二选一。
type NetworkConfig struct {
	Name        string        `mapstructure:"name"`
	ProviderURI string        `mapstructure:"provider_uri"`
	Profiles    string        `mapstructure:"profiles"`
	Timeout     time.Duration `mapstructure:"timeout"`
	AutoConnect bool          `mapstructure:"auto_connect"`
}

// RegistryConfig 选择合约登记库的存储后端。
type RegistryConfig struct {
	Backend string      `mapstructure:"backend"`
	Path    string      `mapstructure:"path"`
	MySQL   MySQLConfig `mapstructure:"mysql"`
	Redis   RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 描述 MySQL 登记库的连接池参数。
type MySQLConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// RedisConfig 是登记库与事件发布共用的 Redis 连接信息。
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// CompilerConfig 列出 solc --combined-json 的输出文件。
type CompilerConfig struct {
	Artifacts []string `mapstructure:"artifacts"`
}

// DeployerConfig 描述部署账户与回执等待策略。
type DeployerConfig struct {
	Address        string        `mapstructure:"address"`
	PrivateKey     string        `mapstructure:"private_key"`
	ReceiptTimeout time.Duration `mapstructure:"receipt_timeout"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
}

// EventsConfig 选择部署事件的发布方式。
type EventsConfig struct {
	Backend  string         `mapstructure:"backend"`
	Redis    RedisEvents    `mapstructure:"redis"`
	RabbitMQ RabbitMQEvents `mapstructure:"rabbitmq"`
}

// RedisEvents 配置 Redis 发布通道。
type RedisEvents struct {
	RedisConfig `mapstructure:",squash"`
	Channel     string `mapstructure:"channel"`
	History     int64  `mapstructure:"history"`
}

// RabbitMQEvents 配置 RabbitMQ 队列。
type RabbitMQEvents struct {
	URL        string `mapstructure:"url"`
	Queue      string `mapstructure:"queue"`
	Durable    bool   `mapstructure:"durable"`
	AutoDelete bool   `mapstructure:"auto_delete"`
}

// ServerConfig 控制 HTTP API 与指标端点的监听地址。
type ServerConfig struct {
	Address        string `mapstructure:"address"`
	MetricsAddress string `mapstructure:"metrics_address"`
	WebhookURL     string `mapstructure:"webhook_url"`
	// APIToken 非空时 /api/v1 下的接口要求 Bearer 令牌。
	APIToken string `mapstructure:"api_token"`
}

// LogConfig 控制日志级别、格式与审计日志轮转。
type LogConfig struct {
	Level       string   `mapstructure:"level"`
	Format      string   `mapstructure:"format"`
	OutputPaths []string `mapstructure:"output_paths"`
	Audit       AuditConfig `mapstructure:"audit"`
}

// AuditConfig 描述审计日志文件及其轮转策略。
type AuditConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// SetDefaults 写入所有默认值。没有默认值的键也登记为空串，
// 这样 AutomaticEnv 才能在 Unmarshal 时覆盖它们。
func SetDefaults(v *viper.Viper) {
	for _, key := range []string{
		"network.provider_uri", "network.profiles",
		"registry.mysql.dsn", "registry.redis.address", "registry.redis.password",
		"deployer.address", "deployer.private_key",
		"events.redis.address", "events.redis.password", "events.rabbitmq.url",
		"server.metrics_address", "server.webhook_url", "server.api_token",
	} {
		v.SetDefault(key, "")
	}

	v.SetDefault("network.name", "local")
	v.SetDefault("network.timeout", 10*time.Second)
	v.SetDefault("network.auto_connect", true)

	v.SetDefault("registry.backend", RegistryFile)
	v.SetDefault("registry.path", filepath.Join("data", "contract_registry.json"))
	v.SetDefault("registry.mysql.max_open_conns", 10)
	v.SetDefault("registry.mysql.max_idle_conns", 5)
	v.SetDefault("registry.mysql.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("registry.redis.prefix", "contracthub:registry")

	v.SetDefault("deployer.receipt_timeout", 2*time.Minute)
	v.SetDefault("deployer.poll_interval", 500*time.Millisecond)

	v.SetDefault("events.backend", EventsNone)
	v.SetDefault("events.redis.channel", "contracthub:deployments")
	v.SetDefault("events.redis.history", 100)
	v.SetDefault("events.rabbitmq.queue", "contracthub.deployments")
	v.SetDefault("events.rabbitmq.durable", true)

	v.SetDefault("server.address", ":8080")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.audit.path", filepath.Join("logs", "audit.log"))
}

// Load 依次合并默认值、配置文件（JSON/YAML）与 CONTRACTHUB_ 前缀的环境变量。
// configFile 为空时在当前目录与 /etc/contracthub 下查找 contracthub.*，找不到不视为错误。
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("contracthub")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/contracthub")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || configFile != "" {
			return nil, xerrors.Wrap(xerrors.CodeConfiguration, err, "读取配置文件失败")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeConfiguration, err, "解析配置失败")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 检查互斥项与各后端的必填字段。
func (c *Config) Validate() error {
	hasURI := strings.TrimSpace(c.Network.ProviderURI) != ""
	hasProfiles := strings.TrimSpace(c.Network.Profiles) != ""
	if hasURI == hasProfiles {
		return xerrors.New(xerrors.CodeConfiguration, "network.provider_uri 与 network.profiles 必须且只能配置一个")
	}

	switch c.Registry.Backend {
	case RegistryMemory:
	case RegistryFile, RegistrySQLite:
		if strings.TrimSpace(c.Registry.Path) == "" {
			return xerrors.Newf(xerrors.CodeConfiguration, "%s 登记库需要配置 registry.path", c.Registry.Backend)
		}
	case RegistryMySQL:
		if strings.TrimSpace(c.Registry.MySQL.DSN) == "" {
			return xerrors.New(xerrors.CodeConfiguration, "mysql 登记库需要配置 registry.mysql.dsn")
		}
	case RegistryRedis:
		if strings.TrimSpace(c.Registry.Redis.Address) == "" {
			return xerrors.New(xerrors.CodeConfiguration, "redis 登记库需要配置 registry.redis.address")
		}
	default:
		return xerrors.Newf(xerrors.CodeConfiguration, "未知的登记库后端: %s", c.Registry.Backend)
	}

	switch c.Events.Backend {
	case "", EventsNone, EventsMemory:
	case EventsRedis:
		if strings.TrimSpace(c.Events.Redis.Address) == "" {
			return xerrors.New(xerrors.CodeConfiguration, "redis 事件发布需要配置 events.redis.address")
		}
	case EventsRabbitMQ:
		if strings.TrimSpace(c.Events.RabbitMQ.URL) == "" {
			return xerrors.New(xerrors.CodeConfiguration, "rabbitmq 事件发布需要配置 events.rabbitmq.url")
		}
	default:
		return xerrors.Newf(xerrors.CodeConfiguration, "未知的事件发布后端: %s", c.Events.Backend)
	}

	if c.Deployer.Address != "" && !common.IsHexAddress(c.Deployer.Address) {
		return xerrors.Newf(xerrors.CodeConfiguration, "部署账户地址格式错误: %s", c.Deployer.Address)
	}
	return nil
}

// String 返回不含敏感字段的摘要，便于启动日志输出。
func (c *Config) String() string {
	source := c.Network.ProviderURI
	if source == "" {
		source = "profiles:" + c.Network.Profiles
	}
	return fmt.Sprintf("network=%s provider=%s registry=%s events=%s", c.Network.Name, source, c.Registry.Backend, c.Events.Backend)
}
