// Package signing signs messages and transactions for an account, either with
// a key held by the in-process chain or through the remote node.
package signing

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"log/slog"
	"math/big"
	"time"

	xerrors "ContractHub/internal/errors"
	"ContractHub/internal/web3"
	"ContractHub/internal/web3/ethereum"
	"ContractHub/internal/web3/provider"
	"ContractHub/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrUnknownAccount is returned when the tester chain holds no key for the account.
var ErrUnknownAccount = xerrors.New(xerrors.CodeConfiguration, "测试链未持有该账户的私钥")

// Connection is the part of the connection manager the bridge relies on.
type Connection interface {
	ActiveProvider() (*provider.Provider, error)
	RPC() (web3.RPCCaller, error)
	Context(ctx context.Context) (context.Context, context.CancelFunc)
}

// Bridge dispatches signing on the kind of the active provider.
type Bridge struct {
	conn Connection
	log  *slog.Logger
}

// NewBridge returns a bridge bound to conn.
func NewBridge(conn Connection) *Bridge {
	return &Bridge{conn: conn, log: logger.Named("signing")}
}

// Sign signs message for account. With the tester provider the held key signs
// keccak256(message) directly; otherwise the node signs through eth_sign.
func (b *Bridge) Sign(ctx context.Context, account common.Address, message []byte) ([]byte, error) {
	p, err := b.conn.ActiveProvider()
	if err != nil {
		return nil, err
	}

	switch p.Kind() {
	case provider.KindTester:
		key, err := testerKey(p, account)
		if err != nil {
			return nil, err
		}
		sig, err := crypto.Sign(crypto.Keccak256(message), key)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeConfiguration, err, "签名消息失败")
		}
		return sig, nil
	default:
		rpc, err := b.conn.RPC()
		if err != nil {
			return nil, err
		}
		callCtx, cancel := b.conn.Context(ctx)
		defer cancel()
		var sig hexutil.Bytes
		if err := rpc.CallContext(callCtx, &sig, "eth_sign", account, hexutil.Bytes(message)); err != nil {
			return nil, ethereum.WrapCallError(err, "eth_sign 调用失败")
		}
		return sig, nil
	}
}

// SignTx signs tx for account with the key held by the tester chain. Remote
// nodes sign through eth_sendTransaction instead, so they are rejected here.
func (b *Bridge) SignTx(account common.Address, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	p, err := b.conn.ActiveProvider()
	if err != nil {
		return nil, err
	}
	if p.Kind() != provider.KindTester {
		return nil, xerrors.Newf(xerrors.CodeConfiguration, "%s provider 不持有本地私钥", p.Kind())
	}
	key, err := testerKey(p, account)
	if err != nil {
		return nil, err
	}
	return SignTxWithKey(key, tx, chainID)
}

// SignTxWithKey signs tx with key for chainID.
func SignTxWithKey(key *ecdsa.PrivateKey, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), key)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeTransaction, err, "签名交易失败")
	}
	return signed, nil
}

// UnlockAccount unlocks account on the node for duration. The tester chain
// needs no unlocking and always reports success.
func (b *Bridge) UnlockAccount(ctx context.Context, account common.Address, password string, duration time.Duration) (bool, error) {
	p, err := b.conn.ActiveProvider()
	if err != nil {
		return false, err
	}
	if p.Kind() == provider.KindTester {
		return true, nil
	}
	rpc, err := b.conn.RPC()
	if err != nil {
		return false, err
	}
	callCtx, cancel := b.conn.Context(ctx)
	defer cancel()
	var ok bool
	if err := rpc.CallContext(callCtx, &ok, "personal_unlockAccount", account, password, uint64(duration/time.Second)); err != nil {
		return false, ethereum.WrapCallError(err, "personal_unlockAccount 调用失败")
	}
	b.log.Info("account unlocked", slog.String("account", account.Hex()), slog.Bool("ok", ok))
	return ok, nil
}

// Verify reports whether signature is a valid signature of hash by pubkey.
// A valid signature by any other key verifies false.
func Verify(pubkey *ecdsa.PublicKey, signature, hash []byte) bool {
	if pubkey == nil || len(signature) != crypto.SignatureLength || len(hash) != 32 {
		return false
	}
	sig := make([]byte, len(signature))
	copy(sig, signature)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	expected := crypto.FromECDSAPub(pubkey)
	if !crypto.VerifySignature(expected, hash, sig[:crypto.RecoveryIDOffset]) {
		return false
	}
	recovered, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return false
	}
	return bytes.Equal(crypto.FromECDSAPub(recovered), expected)
}

func testerKey(p *provider.Provider, account common.Address) (*ecdsa.PrivateKey, error) {
	backend, ok := p.Tester()
	if !ok {
		return nil, xerrors.New(xerrors.CodeConfiguration, "tester provider 缺少测试链实例")
	}
	key, ok := backend.Key(account)
	if !ok {
		return nil, xerrors.Wrapf(xerrors.CodeConfiguration, ErrUnknownAccount, "测试链未持有 %s 的私钥", account.Hex())
	}
	return key, nil
}
