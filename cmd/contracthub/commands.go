package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"

	"ContractHub/internal/api"
	xerrors "ContractHub/internal/errors"
	"ContractHub/internal/registry"
	"ContractHub/internal/web3"
	"ContractHub/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newStatusCmd(env *cmdEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show connection, node and registry status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return env.run(cmd.Context(), func(ctx context.Context, rt *runtime) error {
				return printStatus(ctx, cmd.OutOrStdout(), rt)
			})
		},
	}
}

func printStatus(ctx context.Context, out io.Writer, rt *runtime) error {
	core := rt.core
	client := core.Client()

	providers := make([]string, 0, len(client.Providers()))
	for _, p := range client.Providers() {
		providers = append(providers, p.String())
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "network\t%s\n", core.Network())
	fmt.Fprintf(w, "providers\t%s\n", strings.Join(providers, ", "))
	fmt.Fprintf(w, "registry\t%s\n", describeStore(core.Registry()))
	fmt.Fprintf(w, "contracts\t%s (%s)\n", strings.Join(core.Cache().Names(), ", "), core.Cache().State())

	connected := core.IsConnected(ctx)
	fmt.Fprintf(w, "connected\t%t\n", connected)
	if connected {
		version, err := client.NodeVersion(ctx)
		if err != nil {
			return err
		}
		snapshot, err := client.Snapshot(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "node\t%s\n", version)
		fmt.Fprintf(w, "chain id\t%s\n", snapshot.ChainID)
		fmt.Fprintf(w, "block\t%s\n", snapshot.BlockNumber)
	}
	if deployer, ok := rt.deployer.Deployer(); ok {
		fmt.Fprintf(w, "deployer\t%s\n", deployer.Hex())
	}
	return w.Flush()
}

func newResolveCmd(env *cmdEnv) *cobra.Command {
	var (
		upgradeable bool
		withABI     bool
	)
	cmd := &cobra.Command{
		Use:   "resolve <name>",
		Short: "Resolve a contract name to its on-chain address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return env.run(cmd.Context(), func(ctx context.Context, rt *runtime) error {
				contract, err := rt.core.ContractByName(ctx, args[0], upgradeable)
				if err != nil {
					return err
				}
				return printBinding(cmd.OutOrStdout(), contract.Binding, withABI)
			})
		},
	}
	cmd.Flags().BoolVar(&upgradeable, "upgradeable", false, "resolve through Dispatcher proxies")
	cmd.Flags().BoolVar(&withABI, "abi", false, "print the ABI as JSON")
	return cmd
}

func printBinding(out io.Writer, b web3.Binding, withABI bool) error {
	fmt.Fprintf(out, "%s\t%s\n", b.Name, b.Address.Hex())
	if !withABI {
		return nil
	}
	var pretty json.RawMessage = []byte(b.RawABI)
	encoded, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(encoded))
	return err
}

func newDeployCmd(env *cmdEnv) *cobra.Command {
	var deployer string
	cmd := &cobra.Command{
		Use:   "deploy <name> [constructor args...]",
		Short: "Deploy a compiled contract and enroll it in the registry",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return env.run(cmd.Context(), func(ctx context.Context, rt *runtime) error {
				if deployer != "" {
					if !common.IsHexAddress(deployer) {
						return xerrors.Newf(xerrors.CodeConfiguration, "invalid deployer address %q", deployer)
					}
					if err := rt.deployer.SetDeployer(common.HexToAddress(deployer)); err != nil {
						return err
					}
				}

				name := args[0]
				art, err := rt.core.ContractFactory(name)
				if err != nil {
					return err
				}
				ctorArgs, err := convertArgs(art.ABI.Constructor.Inputs, args[1:])
				if err != nil {
					return err
				}

				result, err := rt.deployer.Deploy(ctx, name, ctorArgs...)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintf(w, "contract\t%s\n", name)
				fmt.Fprintf(w, "address\t%s\n", result.Contract.Address.Hex())
				fmt.Fprintf(w, "tx\t%s\n", result.TxHash.Hex())
				fmt.Fprintf(w, "block\t%d\n", result.Receipt.BlockNumber.Uint64())
				fmt.Fprintf(w, "gas used\t%d\n", result.Receipt.GasUsed)
				fmt.Fprintf(w, "event\t%s\n", result.EventID)
				return w.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&deployer, "deployer", "", "deployer account (overrides deployer.address)")
	return cmd
}

func newRegistryCmd(env *cmdEnv) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Inspect the contract registry",
	}

	list := &cobra.Command{
		Use:   "list <name>",
		Short: "List every record enrolled under a name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return env.run(cmd.Context(), func(ctx context.Context, rt *runtime) error {
				records, err := rt.core.Registry().Search(ctx, registry.ByName(args[0]))
				if err != nil {
					return err
				}
				return printRecords(cmd.OutOrStdout(), records)
			})
		},
	}

	show := &cobra.Command{
		Use:   "show <address>",
		Short: "Show the record enrolled at an address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !common.IsHexAddress(args[0]) {
				return xerrors.Newf(xerrors.CodeConfiguration, "invalid address %q", args[0])
			}
			return env.run(cmd.Context(), func(ctx context.Context, rt *runtime) error {
				q := registry.ByAddress(common.HexToAddress(args[0]))
				records, err := rt.core.Registry().Search(ctx, q)
				if err != nil {
					return err
				}
				if len(records) == 0 {
					return registry.ErrNotFound
				}
				if _, err := registry.CheckAddressMatches(q, records); err != nil {
					return err
				}
				return printRecords(cmd.OutOrStdout(), records)
			})
		},
	}

	cmd.AddCommand(list, show)
	return cmd
}

func printRecords(out io.Writer, records []registry.Record) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS")
	for _, rec := range records {
		fmt.Fprintf(w, "%s\t%s\n", rec.Name, rec.Address.Hex())
	}
	return w.Flush()
}

func newServeCmd(env *cmdEnv) *cobra.Command {
	var addr, metricsAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return env.run(cmd.Context(), func(ctx context.Context, rt *runtime) error {
				if addr == "" {
					addr = rt.cfg.Server.Address
				}
				if metricsAddr == "" {
					metricsAddr = rt.cfg.Server.MetricsAddress
				}

				log := logger.Named("serve")
				g, gctx := errgroup.WithContext(ctx)
				g.Go(func() error {
					log.Info("api listening", slog.String("address", addr))
					return api.NewServer(addr, rt.core, rt.metrics, api.WithAPIToken(rt.cfg.Server.APIToken)).Start(gctx)
				})
				if metricsAddr != "" {
					g.Go(func() error {
						log.Info("metrics listening", slog.String("address", metricsAddr))
						return rt.metrics.StartServer(gctx, metricsAddr)
					})
				}
				if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "API listen address (overrides server.address)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "standalone metrics listen address")
	return cmd
}
