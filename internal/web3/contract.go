package web3

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// Binding pairs an on-chain address with the interface used to talk to it.
type Binding struct {
	Name    string
	Address common.Address
	ABI     abi.ABI
	RawABI  string
}

// ParseBinding decodes rawABI and builds a binding at address.
func ParseBinding(name string, address common.Address, rawABI string) (Binding, error) {
	parsed, err := abi.JSON(strings.NewReader(rawABI))
	if err != nil {
		return Binding{}, fmt.Errorf("解析 %s 的 ABI 失败: %w", name, err)
	}
	return Binding{Name: name, Address: address, ABI: parsed, RawABI: rawABI}, nil
}

// Contract is a binding attached to a live connection.
type Contract struct {
	Binding
	bound *bind.BoundContract
}

// NewContract attaches b to backend.
func NewContract(b Binding, backend bind.ContractBackend) *Contract {
	return &Contract{Binding: b, bound: bind.NewBoundContract(b.Address, b.ABI, backend, backend, backend)}
}

// NewReader attaches b to caller for read-only calls.
func NewReader(b Binding, caller bind.ContractCaller) *Contract {
	return &Contract{Binding: b, bound: bind.NewBoundContract(b.Address, b.ABI, caller, nil, nil)}
}

// Call performs a read-only call of method against the latest state and
// returns the decoded outputs.
func (c *Contract) Call(ctx context.Context, method string, args ...any) ([]any, error) {
	if c == nil || c.bound == nil {
		return nil, fmt.Errorf("合约 %s 未绑定连接", method)
	}
	var out []any
	if err := c.bound.Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		return nil, fmt.Errorf("调用 %s.%s 失败: %w", c.Address.Hex(), method, err)
	}
	return out, nil
}

// CallAddress calls a method that returns a single address.
func (c *Contract) CallAddress(ctx context.Context, method string, args ...any) (common.Address, error) {
	values, err := c.Call(ctx, method, args...)
	if err != nil {
		return common.Address{}, err
	}
	if len(values) != 1 {
		return common.Address{}, fmt.Errorf("%s 返回了 %d 个值", method, len(values))
	}
	addr, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%s 返回值不是地址: %T", method, values[0])
	}
	return addr, nil
}
