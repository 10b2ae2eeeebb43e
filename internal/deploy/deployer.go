// Package deploy builds, sends and confirms constructor transactions and
// enrolls confirmed contracts in the registry.
package deploy

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"log/slog"
	"math/big"
	"time"

	"ContractHub/internal/chain"
	xerrors "ContractHub/internal/errors"
	"ContractHub/internal/events"
	"ContractHub/internal/registry"
	"ContractHub/internal/signing"
	"ContractHub/internal/web3"
	"ContractHub/internal/web3/ethereum"
	"ContractHub/internal/web3/provider"
	"ContractHub/pkg/logger"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	// DefaultReceiptTimeout bounds the wait for a deployment receipt.
	DefaultReceiptTimeout = 2 * time.Minute
	// DefaultPollInterval is the delay between receipt lookups.
	DefaultPollInterval = 500 * time.Millisecond
)

var (
	// ErrDeployerNotConfigured is returned by Deploy before a deployer is set.
	ErrDeployerNotConfigured = xerrors.New(xerrors.CodeDeployerNotConfigured, "尚未设置部署账户")
	// ErrDeployerAlreadySet is returned by a second SetDeployer call.
	ErrDeployerAlreadySet = xerrors.New(xerrors.CodeDeployerAlreadySet, "部署账户已经设置")
)

// Result describes a confirmed and enrolled deployment.
type Result struct {
	Contract *web3.Contract
	TxHash   common.Hash
	Receipt  *types.Receipt
	EventID  string
}

// Deployer adds deployment to a chain interface. The deployer identity is
// write-once.
type Deployer struct {
	core           *chain.Interface
	deployer       *common.Address
	key            *ecdsa.PrivateKey
	receiptTimeout time.Duration
	pollInterval   time.Duration
	publisher      events.Publisher
	log            *slog.Logger
	audit          *slog.Logger
}

// Option customises a Deployer.
type Option func(*options)

type options struct {
	deployer       *common.Address
	key            *ecdsa.PrivateKey
	receiptTimeout time.Duration
	pollInterval   time.Duration
	publisher      events.Publisher
}

// WithDeployer sets the deployer identity at construction.
func WithDeployer(addr common.Address) Option {
	return func(o *options) { o.deployer = &addr }
}

// WithSigningKey signs deployments locally with key. The deployer identity
// defaults to the key's address.
func WithSigningKey(key *ecdsa.PrivateKey) Option {
	return func(o *options) { o.key = key }
}

// WithReceiptTimeout bounds how long Deploy waits for a receipt.
func WithReceiptTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.receiptTimeout = d
		}
	}
}

// WithPollInterval sets the delay between receipt lookups.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithPublisher publishes an event for every enrolled deployment.
func WithPublisher(p events.Publisher) Option {
	return func(o *options) { o.publisher = p }
}

// NewDeployer wraps core with deployment capability.
func NewDeployer(core *chain.Interface, opts ...Option) (*Deployer, error) {
	if core == nil {
		return nil, xerrors.New(xerrors.CodeConfiguration, "chain interface 不能为空")
	}
	cfg := options{receiptTimeout: DefaultReceiptTimeout, pollInterval: DefaultPollInterval}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	publisher := cfg.publisher
	if publisher == nil {
		publisher = events.Nop{}
	}

	d := &Deployer{
		core:           core,
		key:            cfg.key,
		receiptTimeout: cfg.receiptTimeout,
		pollInterval:   cfg.pollInterval,
		publisher:      publisher,
		log:            logger.Named("deployer"),
		audit:          logger.Audit(),
	}

	identity := cfg.deployer
	if identity == nil && cfg.key != nil {
		addr := crypto.PubkeyToAddress(cfg.key.PublicKey)
		identity = &addr
	}
	if identity != nil {
		if cfg.key != nil && crypto.PubkeyToAddress(cfg.key.PublicKey) != *identity {
			return nil, xerrors.Newf(xerrors.CodeConfiguration, "签名私钥与部署账户 %s 不匹配", identity.Hex())
		}
		if err := d.SetDeployer(*identity); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Core returns the wrapped chain interface.
func (d *Deployer) Core() *chain.Interface { return d.core }

// SetDeployer sets the deployer identity once. Later calls fail and keep the
// first value.
func (d *Deployer) SetDeployer(addr common.Address) error {
	if d.deployer != nil {
		return xerrors.Wrapf(xerrors.CodeDeployerAlreadySet, ErrDeployerAlreadySet, "部署账户已设置为 %s", d.deployer.Hex())
	}
	d.deployer = &addr
	d.log.Info("deployer set", slog.String("deployer", addr.Hex()))
	return nil
}

// Deployer returns the deployer identity.
func (d *Deployer) Deployer() (common.Address, bool) {
	if d.deployer == nil {
		return common.Address{}, false
	}
	return *d.deployer, true
}

// Deploy sends the constructor transaction for name, waits for its receipt
// and enrolls the deployed contract. Nothing is enrolled unless the receipt
// reports success.
func (d *Deployer) Deploy(ctx context.Context, name string, args ...any) (_ Result, err error) {
	start := time.Now()
	defer func() { d.core.Report(ctx, "deploy", start, err) }()

	if d.deployer == nil {
		return Result{}, ErrDeployerNotConfigured
	}
	from := *d.deployer

	art, err := d.core.ContractFactory(name)
	if err != nil {
		return Result{}, err
	}
	client := d.core.Client()
	backend, err := client.Backend()
	if err != nil {
		return Result{}, err
	}
	gasPrice, err := client.GasPrice(ctx)
	if err != nil {
		return Result{}, err
	}

	ctorInput, err := art.ABI.Pack("", args...)
	if err != nil {
		return Result{}, xerrors.Wrapf(xerrors.CodeConfiguration, err, "编码 %s 构造参数失败", name)
	}

	d.audit.Info("deploy submitted",
		slog.String("contract", name),
		slog.String("deployer", from.Hex()),
		slog.String("gas_price", gasPrice.String()),
	)
	var txHash common.Hash
	if d.signsLocally() {
		txHash, err = d.submitLocal(ctx, backend, from, gasPrice, art.ABI, art.Bytecode, args)
	} else {
		data := append(append([]byte{}, art.Bytecode...), ctorInput...)
		txHash, err = d.submitRemote(ctx, from, gasPrice, data)
	}
	if err != nil {
		return Result{}, err
	}

	receipt, err := d.waitForReceipt(ctx, backend, txHash)
	if err != nil {
		d.audit.Warn("deploy unconfirmed", slog.String("contract", name), slog.String("tx_hash", txHash.Hex()), slog.String("error", err.Error()))
		return Result{TxHash: txHash}, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return Result{TxHash: txHash, Receipt: receipt}, xerrors.Newf(xerrors.CodeTransaction, "部署 %s 的交易 %s 执行失败", name, txHash.Hex())
	}

	binding := web3.Binding{Name: name, Address: receipt.ContractAddress, ABI: art.ABI, RawABI: art.RawABI}
	result := Result{
		Contract: web3.NewContract(binding, backend),
		TxHash:   txHash,
		Receipt:  receipt,
	}

	record := registry.Record{Name: name, Address: receipt.ContractAddress, ABI: art.RawABI}
	if err := d.core.Registry().Enroll(ctx, record); err != nil {
		return result, err
	}
	d.audit.Info("deploy confirmed",
		slog.String("contract", name),
		slog.String("address", receipt.ContractAddress.Hex()),
		slog.String("tx_hash", txHash.Hex()),
		slog.Uint64("gas_used", receipt.GasUsed),
	)

	d.core.Metrics().ObserveDeployment(name)

	event := events.NewEvent(name, receipt.ContractAddress, txHash, from, blockNumber(receipt))
	result.EventID = event.ID.String()
	if pubErr := d.publisher.Publish(ctx, event); pubErr != nil {
		d.log.Warn("publish deployment event failed", slog.String("contract", name), slog.String("error", pubErr.Error()))
	}
	return result, nil
}

// signsLocally reports whether the constructor transaction is signed in
// process. A configured key or a tester-held key signs locally; otherwise the
// node signs via eth_sendTransaction.
func (d *Deployer) signsLocally() bool {
	if d.key != nil {
		return true
	}
	active, err := d.core.Client().ActiveProvider()
	return err == nil && active.Kind() == provider.KindTester
}

func (d *Deployer) submitLocal(ctx context.Context, backend web3.Backend, from common.Address, gasPrice *big.Int, parsed abi.ABI, bytecode []byte, args []any) (common.Hash, error) {
	client := d.core.Client()
	callCtx, cancel := client.Context(ctx)
	defer cancel()

	chainID, err := backend.ChainID(callCtx)
	if err != nil {
		return common.Hash{}, ethereum.WrapCallError(err, "获取链 ID 失败")
	}
	opts := &bind.TransactOpts{
		From:     from,
		GasPrice: gasPrice,
		Context:  callCtx,
		Signer: func(addr common.Address, tx *types.Transaction) (*types.Transaction, error) {
			if d.key != nil {
				return signing.SignTxWithKey(d.key, tx, chainID)
			}
			return d.core.Signer().SignTx(addr, tx, chainID)
		},
	}
	_, tx, _, err := bind.DeployContract(opts, parsed, bytecode, backend, args...)
	if err != nil {
		if _, ok := xerrors.From(err); ok {
			return common.Hash{}, err
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return common.Hash{}, xerrors.Wrap(xerrors.CodeTimeout, err, "发送部署交易超时")
		}
		return common.Hash{}, xerrors.Wrap(xerrors.CodeTransaction, err, "发送部署交易失败")
	}
	return tx.Hash(), nil
}

func (d *Deployer) submitRemote(ctx context.Context, from common.Address, gasPrice *big.Int, data []byte) (common.Hash, error) {
	client := d.core.Client()
	rpc, err := client.RPC()
	if err != nil {
		return common.Hash{}, err
	}
	callCtx, cancel := client.Context(ctx)
	defer cancel()

	var hash common.Hash
	tx := map[string]any{
		"from":     from,
		"gasPrice": (*hexutil.Big)(gasPrice),
		"data":     hexutil.Bytes(data),
	}
	if err := rpc.CallContext(callCtx, &hash, "eth_sendTransaction", tx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return common.Hash{}, xerrors.Wrap(xerrors.CodeTimeout, err, "eth_sendTransaction 超时")
		}
		return common.Hash{}, xerrors.Wrap(xerrors.CodeTransaction, err, "eth_sendTransaction 调用失败")
	}
	return hash, nil
}

// waitForReceipt polls until the receipt appears or the receipt timeout
// elapses. Lookup errors are retried; nodes report not-found and indexing
// states as errors while a transaction is pending.
func (d *Deployer) waitForReceipt(ctx context.Context, backend web3.Backend, hash common.Hash) (*types.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, d.receiptTimeout)
	defer cancel()

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()
	var lastErr error
	for {
		receipt, err := backend.TransactionReceipt(waitCtx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, gethcore.NotFound) && waitCtx.Err() == nil {
			lastErr = err
			d.log.Debug("receipt lookup failed", slog.String("tx_hash", hash.Hex()), slog.String("error", err.Error()))
		}
		select {
		case <-waitCtx.Done():
			if lastErr != nil {
				return nil, xerrors.Wrapf(xerrors.CodeTimeout, waitCtx.Err(), "等待交易 %s 回执超时, 最近一次错误: %v", hash.Hex(), lastErr)
			}
			return nil, xerrors.Wrapf(xerrors.CodeTimeout, waitCtx.Err(), "等待交易 %s 回执超时", hash.Hex())
		case <-ticker.C:
		}
	}
}

func blockNumber(receipt *types.Receipt) uint64 {
	if receipt == nil || receipt.BlockNumber == nil {
		return 0
	}
	return receipt.BlockNumber.Uint64()
}
