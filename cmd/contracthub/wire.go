package main

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"ContractHub/internal/chain"
	"ContractHub/internal/config"
	"ContractHub/internal/contracts"
	"ContractHub/internal/deploy"
	xerrors "ContractHub/internal/errors"
	"ContractHub/internal/events"
	"ContractHub/internal/observability/alerting"
	"ContractHub/internal/observability/metrics"
	"ContractHub/internal/registry"
	"ContractHub/internal/storage/mysql"
	redisstore "ContractHub/internal/storage/redis"
	"ContractHub/internal/storage/sqlite"
	"ContractHub/internal/web3/provider"
	"ContractHub/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// runtime 持有一次命令执行期间装配好的全部组件。
type runtime struct {
	cfg       *config.Config
	core      *chain.Interface
	deployer  *deploy.Deployer
	publisher events.Publisher
	metrics   *metrics.Metrics
	closers   []func() error
}

// Close 按装配的逆序释放资源。
func (r *runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func initLogger(cfg config.LogConfig) error {
	return logger.Init(logger.Config{
		Level:       cfg.Level,
		Format:      cfg.Format,
		OutputPaths: cfg.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Audit.Enabled,
			Path:       cfg.Audit.Path,
			MaxSizeMB:  cfg.Audit.MaxSizeMB,
			MaxBackups: cfg.Audit.MaxBackups,
			MaxAgeDays: cfg.Audit.MaxAgeDays,
			Compress:   cfg.Audit.Compress,
		},
	})
}

// buildRuntime 根据配置装配登记库、事件发布、告警、指标与链接口。
func buildRuntime(ctx context.Context, cfg *config.Config) (_ *runtime, err error) {
	rt := &runtime{cfg: cfg, metrics: metrics.New()}
	defer func() {
		if err != nil {
			_ = rt.Close()
		}
	}()

	store, closeStore, err := openRegistry(ctx, cfg.Registry)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, closeStore)

	publisher, err := openPublisher(ctx, cfg.Events)
	if err != nil {
		return nil, err
	}
	rt.publisher = publisher
	rt.closers = append(rt.closers, publisher.Close)

	opts := chain.Options{
		Network:     cfg.Network.Name,
		Timeout:     cfg.Network.Timeout,
		Registry:    store,
		Compiler:    compilerFor(cfg.Compiler),
		AutoConnect: cfg.Network.AutoConnect,
		Alerts:      alertsFor(cfg.Server),
		Metrics:     rt.metrics,
		Logger:      logger.Named("contracthub").With(slog.String("network", cfg.Network.Name)),
	}
	if cfg.Network.ProviderURI != "" {
		opts.ProviderURI = cfg.Network.ProviderURI
	} else {
		opts.Providers, err = profileDescriptors(cfg.Network)
		if err != nil {
			return nil, err
		}
	}

	core, err := chain.New(ctx, opts)
	if err != nil {
		return nil, err
	}
	rt.core = core
	rt.closers = append(rt.closers, func() error {
		core.Close()
		var errs []error
		for _, p := range core.Client().Providers() {
			if tb, ok := p.Tester(); ok {
				errs = append(errs, tb.Close())
			}
		}
		return errors.Join(errs...)
	})

	deployOpts, err := deployerOptions(cfg.Deployer)
	if err != nil {
		return nil, err
	}
	deployOpts = append(deployOpts, deploy.WithPublisher(publisher))
	rt.deployer, err = deploy.NewDeployer(core, deployOpts...)
	if err != nil {
		return nil, err
	}
	return rt, nil
}

// openRegistry 根据后端类型打开登记库，并返回对应的释放函数。
func openRegistry(ctx context.Context, cfg config.RegistryConfig) (registry.Store, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Backend {
	case config.RegistryMemory:
		return registry.NewMemoryStore(), noop, nil
	case config.RegistryFile:
		if err := ensureDir(cfg.Path); err != nil {
			return nil, nil, err
		}
		store, err := registry.NewFileStore(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, noop, nil
	case config.RegistrySQLite:
		if err := ensureDir(cfg.Path); err != nil {
			return nil, nil, err
		}
		store, err := sqlite.Open(ctx, cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case config.RegistryMySQL:
		store, err := mysql.NewRegistryStore(ctx, mysql.Config{
			DSN:             cfg.MySQL.DSN,
			MaxOpenConns:    cfg.MySQL.MaxOpenConns,
			MaxIdleConns:    cfg.MySQL.MaxIdleConns,
			ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case config.RegistryRedis:
		store, err := redisstore.NewRegistryStore(ctx, redisstore.Config{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return nil, nil, xerrors.Newf(xerrors.CodeConfiguration, "未知的登记库后端: %s", cfg.Backend)
	}
}

func ensureDir(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "创建登记库目录失败")
	}
	return nil
}

// openPublisher 构造部署事件发布器；未配置时返回空实现。
func openPublisher(ctx context.Context, cfg config.EventsConfig) (events.Publisher, error) {
	switch cfg.Backend {
	case "", config.EventsNone:
		return events.Nop{}, nil
	case config.EventsMemory:
		return events.NewMemoryPublisher(), nil
	case config.EventsRedis:
		return events.NewRedisPublisher(ctx, events.RedisConfig{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Channel:  cfg.Redis.Channel,
			History:  cfg.Redis.History,
		})
	case config.EventsRabbitMQ:
		return events.NewRabbitMQPublisher(events.RabbitMQConfig{
			URL:        cfg.RabbitMQ.URL,
			Queue:      cfg.RabbitMQ.Queue,
			Durable:    cfg.RabbitMQ.Durable,
			AutoDelete: cfg.RabbitMQ.AutoDelete,
		})
	default:
		return nil, xerrors.Newf(xerrors.CodeConfiguration, "未知的事件发布后端: %s", cfg.Backend)
	}
}

func compilerFor(cfg config.CompilerConfig) contracts.Compiler {
	if len(cfg.Artifacts) == 0 {
		return nil
	}
	return contracts.CombinedJSON{Paths: cfg.Artifacts}
}

func alertsFor(cfg config.ServerConfig) alerting.Dispatcher {
	notifiers := []alerting.Notifier{&alerting.LogNotifier{}}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, &alerting.WebhookNotifier{URL: cfg.WebhookURL})
	}
	return alerting.NewFanout(notifiers...)
}

func profileDescriptors(cfg config.NetworkConfig) ([]provider.Descriptor, error) {
	profiles, err := provider.NewProfiles(provider.ProfilesConfig{
		DefinitionsPath: cfg.Profiles,
		DefaultNetwork:  profileName(cfg.Name),
		Timeout:         cfg.Timeout,
	})
	if err != nil {
		return nil, err
	}
	return profiles.Descriptors(profileName(cfg.Name))
}

// profileName 把内置的默认网络名映射为“使用配置文件中的默认网络”。
func profileName(name string) string {
	if name == chain.DefaultNetwork {
		return ""
	}
	return name
}

func deployerOptions(cfg config.DeployerConfig) ([]deploy.Option, error) {
	opts := []deploy.Option{
		deploy.WithReceiptTimeout(cfg.ReceiptTimeout),
		deploy.WithPollInterval(cfg.PollInterval),
	}
	if cfg.PrivateKey != "" {
		key, err := parsePrivateKey(cfg.PrivateKey)
		if err != nil {
			return nil, err
		}
		opts = append(opts, deploy.WithSigningKey(key))
	}
	if cfg.Address != "" {
		opts = append(opts, deploy.WithDeployer(common.HexToAddress(cfg.Address)))
	}
	return opts, nil
}

func parsePrivateKey(raw string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(raw), "0x"))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeConfiguration, err, "部署私钥格式错误")
	}
	return key, nil
}

func describeStore(store registry.Store) string {
	switch s := store.(type) {
	case *registry.FileStore:
		return fmt.Sprintf("file(%s)", s.Path())
	case *sqlite.Store:
		return fmt.Sprintf("sqlite(%s)", s.Path())
	case *mysql.RegistryStore:
		return "mysql"
	case *redisstore.RegistryStore:
		return "redis"
	case *registry.MemoryStore:
		return "memory"
	default:
		return fmt.Sprintf("%T", store)
	}
}
