package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ContractHub/internal/config"
	"ContractHub/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// main 是 contracthub 命令行的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	_ = logger.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	var configFile string

	root := &cobra.Command{
		Use:   "contracthub",
		Short: "Resolve, deploy and serve smart contracts on an EVM network",
		Long: `contracthub connects to an EVM ledger, resolves contract names through a
persistent registry (including upgradeable contracts behind a Dispatcher) and
deploys compiled contracts.

Examples:
  contracthub status --provider tester://pyevm
  contracthub resolve Token --upgradeable
  contracthub deploy Token 1000000
  contracthub registry list Token
  contracthub serve --config /etc/contracthub/contracthub.yaml`,
		SilenceUsage: true,
	}

	f := root.PersistentFlags()
	f.StringVarP(&configFile, "config", "c", "", "config file path (JSON or YAML)")
	f.String("provider", "", "provider URI (tester://pyevm, http://, ws://, ipc://)")
	f.String("profiles", "", "network profiles YAML file")
	f.String("network", "", "network name")
	f.String("registry", "", "registry backend (memory, file, sqlite, mysql, redis)")
	f.String("registry-path", "", "registry file for the file and sqlite backends")
	f.StringSlice("artifacts", nil, "solc --combined-json abi,bin output files")
	f.String("log-level", "", "log level (debug, info, warn, error)")

	_ = v.BindPFlag("network.provider_uri", f.Lookup("provider"))
	_ = v.BindPFlag("network.profiles", f.Lookup("profiles"))
	_ = v.BindPFlag("network.name", f.Lookup("network"))
	_ = v.BindPFlag("registry.backend", f.Lookup("registry"))
	_ = v.BindPFlag("registry.path", f.Lookup("registry-path"))
	_ = v.BindPFlag("compiler.artifacts", f.Lookup("artifacts"))
	_ = v.BindPFlag("log.level", f.Lookup("log-level"))

	env := &cmdEnv{v: v, configFile: &configFile}
	root.AddCommand(
		newStatusCmd(env),
		newResolveCmd(env),
		newDeployCmd(env),
		newRegistryCmd(env),
		newServeCmd(env),
	)
	return root
}

// cmdEnv 在子命令之间共享配置来源。
type cmdEnv struct {
	v          *viper.Viper
	configFile *string
}

// run 加载配置、装配组件并在 fn 返回后释放它们。
func (e *cmdEnv) run(ctx context.Context, fn func(context.Context, *runtime) error) error {
	cfg, err := config.Load(e.v, *e.configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := initLogger(cfg.Log); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	rt, err := buildRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}
