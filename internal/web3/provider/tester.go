package provider

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"sync"

	xerrors "ContractHub/internal/errors"
	"ContractHub/internal/web3"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
)

const (
	// TesterGasLimit is the genesis block gas limit of the in-process chain.
	TesterGasLimit uint64 = 8_000_000
	// TesterAccountCount is the number of funded accounts by default.
	TesterAccountCount = 10
)

// TesterNodeVersion is reported as the client version of the in-process chain.
const TesterNodeVersion = "ContractHub/tester/simulated"

var testerFunding = new(big.Int).Mul(big.NewInt(1_000_000), big.NewInt(1e18))

// TesterOption customises a TestBackend.
type TesterOption func(*testerConfig)

type testerConfig struct {
	accounts   int
	manualMine bool
}

// WithTesterAccounts sets how many deterministic accounts are funded.
func WithTesterAccounts(n int) TesterOption {
	return func(c *testerConfig) {
		if n > 0 {
			c.accounts = n
		}
	}
}

// WithManualMining disables auto-mining; transactions stay pending until
// Commit is called.
func WithManualMining() TesterOption {
	return func(c *testerConfig) { c.manualMine = true }
}

// TestBackend is a deterministic in-process chain. Account i (1-based) holds
// the private key whose scalar is i, so addresses are stable across runs.
type TestBackend struct {
	sim      *simulated.Backend
	client   *autoMiner
	accounts []common.Address
	keys     map[common.Address]*ecdsa.PrivateKey
	autoMine bool

	closeOnce sync.Once
	closeErr  error
}

// NewTestBackend starts an in-process chain with pre-funded accounts.
func NewTestBackend(opts ...TesterOption) (*TestBackend, error) {
	cfg := testerConfig{accounts: TesterAccountCount}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	alloc := make(types.GenesisAlloc, cfg.accounts)
	keys := make(map[common.Address]*ecdsa.PrivateKey, cfg.accounts)
	accounts := make([]common.Address, 0, cfg.accounts)
	for i := 1; i <= cfg.accounts; i++ {
		key, err := crypto.ToECDSA(common.LeftPadBytes(big.NewInt(int64(i)).Bytes(), 32))
		if err != nil {
			return nil, xerrors.Wrapf(xerrors.CodeConfiguration, err, "生成测试账户 %d 失败", i)
		}
		addr := crypto.PubkeyToAddress(key.PublicKey)
		alloc[addr] = types.Account{Balance: new(big.Int).Set(testerFunding)}
		keys[addr] = key
		accounts = append(accounts, addr)
	}

	sim := simulated.NewBackend(alloc, simulated.WithBlockGasLimit(TesterGasLimit))
	backend := &TestBackend{
		sim:      sim,
		accounts: accounts,
		keys:     keys,
		autoMine: !cfg.manualMine,
	}
	backend.client = &autoMiner{Client: sim.Client(), owner: backend}
	return backend, nil
}

// Client returns the chain access surface of the in-process chain.
func (b *TestBackend) Client() web3.Backend { return b.client }

// Accounts returns the funded accounts in key order.
func (b *TestBackend) Accounts() []common.Address {
	out := make([]common.Address, len(b.accounts))
	copy(out, b.accounts)
	return out
}

// Key returns the private key held for account.
func (b *TestBackend) Key(account common.Address) (*ecdsa.PrivateKey, bool) {
	key, ok := b.keys[account]
	return key, ok
}

// Commit mines the pending transactions into a new block.
func (b *TestBackend) Commit() common.Hash {
	return b.sim.Commit()
}

// Close stops the in-process chain. Repeated calls return the first result.
func (b *TestBackend) Close() error {
	b.closeOnce.Do(func() { b.closeErr = b.sim.Close() })
	return b.closeErr
}

type autoMiner struct {
	simulated.Client
	owner *TestBackend
}

// SendTransaction submits tx and mines it immediately unless manual mining
// was requested.
func (m *autoMiner) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if err := m.Client.SendTransaction(ctx, tx); err != nil {
		return err
	}
	if m.owner.autoMine {
		m.owner.sim.Commit()
	}
	return nil
}
