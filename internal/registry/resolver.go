package registry

import (
	"context"
	"log/slog"

	xerrors "ContractHub/internal/errors"
	"ContractHub/internal/web3"
	"ContractHub/pkg/logger"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// CallerFunc 返回用于只读合约调用的实时连接。
type CallerFunc func() (bind.ContractCaller, error)

// Resolver 将合约名称解析为链上绑定。可升级合约的目标地址以 Dispatcher
// 的实时 target() 为准，登记表只提供历史部署信息。
type Resolver struct {
	store  Store
	caller CallerFunc
	log    *slog.Logger
}

// NewResolver 创建解析器。caller 仅在解析可升级合约时使用，可以为 nil。
func NewResolver(store Store, caller CallerFunc) *Resolver {
	return &Resolver{store: store, caller: caller, log: logger.Named("registry")}
}

// Store 返回解析器使用的登记表。
func (r *Resolver) Store() Store { return r.store }

// Resolve 按名称解析合约。upgradeable 为 true 时通过 Dispatcher 定位。
func (r *Resolver) Resolve(ctx context.Context, name string, upgradeable bool) (web3.Binding, error) {
	targets, err := r.store.Search(ctx, ByName(name))
	if err != nil {
		return web3.Binding{}, err
	}
	if len(targets) == 0 {
		return web3.Binding{}, xerrors.Wrapf(xerrors.CodeNotFound, ErrNotFound, "合约 %s 没有登记记录", name)
	}

	if !upgradeable {
		if len(targets) > 1 {
			r.log.Error("multiple records for non-upgradeable contract", slog.String("name", name), slog.Int("records", len(targets)))
			return web3.Binding{}, xerrors.Wrapf(xerrors.CodeAmbiguousRecord, ErrAmbiguousRecord, "非升级合约 %s 存在 %d 条记录", name, len(targets))
		}
		return bindRecord(name, targets[0].Address, targets[0].ABI)
	}

	address, abiJSON, err := r.selectDispatcher(ctx, name, targets)
	if err != nil {
		return web3.Binding{}, err
	}
	return bindRecord(name, address, abiJSON)
}

// selectDispatcher 扫描全部 Dispatcher，返回唯一指向 targets 之一的代理地址及目标 ABI。
func (r *Resolver) selectDispatcher(ctx context.Context, name string, targets []Record) (common.Address, string, error) {
	dispatchers, err := r.store.Search(ctx, ByName(ReservedDispatcherName))
	if err != nil {
		return common.Address{}, "", err
	}

	type candidate struct {
		dispatcher common.Address
		abi        string
	}
	var candidates []candidate

	if len(dispatchers) > 0 {
		if r.caller == nil {
			return common.Address{}, "", xerrors.New(xerrors.CodeConnection, "解析可升级合约需要区块链连接")
		}
		caller, err := r.caller()
		if err != nil {
			return common.Address{}, "", err
		}
		for _, rec := range dispatchers {
			binding, err := web3.ParseBinding(ReservedDispatcherName, rec.Address, rec.ABI)
			if err != nil {
				return common.Address{}, "", xerrors.Wrapf(xerrors.CodeConfiguration, err, "Dispatcher %s 的 ABI 无效", rec.Address.Hex())
			}
			live, err := web3.NewReader(binding, caller).CallAddress(ctx, "target")
			if err != nil {
				return common.Address{}, "", xerrors.Wrapf(xerrors.CodeConnection, err, "读取 Dispatcher %s 的 target 失败", rec.Address.Hex())
			}
			for _, target := range targets {
				if target.Address == live {
					candidates = append(candidates, candidate{dispatcher: rec.Address, abi: target.ABI})
				}
			}
		}
	}

	switch len(candidates) {
	case 0:
		return common.Address{}, "", xerrors.Wrapf(xerrors.CodeNoDispatcherTarget, ErrNoDispatcherTarget, "没有 Dispatcher 指向 %s 的已知记录", name)
	case 1:
		r.log.Debug("dispatcher selected", slog.String("name", name), slog.String("dispatcher", candidates[0].dispatcher.Hex()))
		return candidates[0].dispatcher, candidates[0].abi, nil
	default:
		r.log.Error("multiple dispatchers target contract", slog.String("name", name), slog.Int("candidates", len(candidates)))
		return common.Address{}, "", xerrors.Wrapf(xerrors.CodeAmbiguousDispatcher, ErrAmbiguousDispatcher, "%d 个 Dispatcher 指向 %s", len(candidates), name)
	}
}

// ResolveAddress 按地址查找唯一记录并构造绑定。
func (r *Resolver) ResolveAddress(ctx context.Context, address common.Address) (web3.Binding, error) {
	records, err := r.store.Search(ctx, ByAddress(address))
	if err != nil {
		return web3.Binding{}, err
	}
	switch len(records) {
	case 0:
		return web3.Binding{}, xerrors.Wrapf(xerrors.CodeNotFound, ErrNotFound, "地址 %s 没有登记记录", address.Hex())
	case 1:
		return bindRecord(records[0].Name, records[0].Address, records[0].ABI)
	default:
		return web3.Binding{}, xerrors.Wrapf(xerrors.CodeAmbiguousRecord, ErrAmbiguousRecord, "地址 %s 对应 %d 条记录", address.Hex(), len(records))
	}
}

func bindRecord(name string, address common.Address, abiJSON string) (web3.Binding, error) {
	binding, err := web3.ParseBinding(name, address, abiJSON)
	if err != nil {
		return web3.Binding{}, xerrors.Wrap(xerrors.CodeConfiguration, err, "登记记录中的 ABI 无效")
	}
	return binding, nil
}
