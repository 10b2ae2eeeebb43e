package main

import (
	"math/big"
	"reflect"
	"strconv"
	"strings"

	xerrors "ContractHub/internal/errors"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// convertArgs turns command line strings into the Go values abi.Pack expects
// for inputs. Only scalar types are supported.
func convertArgs(inputs abi.Arguments, raw []string) ([]any, error) {
	if len(raw) != len(inputs) {
		return nil, xerrors.Newf(xerrors.CodeConfiguration, "constructor takes %d arguments, got %d", len(inputs), len(raw))
	}
	out := make([]any, 0, len(raw))
	for i, input := range inputs {
		value, err := convertArg(input.Type, raw[i])
		if err != nil {
			return nil, xerrors.Wrapf(xerrors.CodeConfiguration, err, "argument %d (%s %s)", i, input.Type, input.Name)
		}
		out = append(out, value)
	}
	return out, nil
}

func convertArg(t abi.Type, raw string) (any, error) {
	switch t.T {
	case abi.AddressTy:
		if !common.IsHexAddress(raw) {
			return nil, xerrors.Newf(xerrors.CodeConfiguration, "%q is not an address", raw)
		}
		return common.HexToAddress(raw), nil
	case abi.BoolTy:
		return strconv.ParseBool(raw)
	case abi.StringTy:
		return raw, nil
	case abi.BytesTy:
		return hexutil.Decode(raw)
	case abi.FixedBytesTy:
		b, err := hexutil.Decode(raw)
		if err != nil {
			return nil, err
		}
		if len(b) != t.Size {
			return nil, xerrors.Newf(xerrors.CodeConfiguration, "want %d bytes, got %d", t.Size, len(b))
		}
		arr := reflect.New(t.GetType()).Elem()
		reflect.Copy(arr, reflect.ValueOf(b))
		return arr.Interface(), nil
	case abi.IntTy, abi.UintTy:
		n, ok := new(big.Int).SetString(strings.TrimSpace(raw), 0)
		if !ok {
			return nil, xerrors.Newf(xerrors.CodeConfiguration, "%q is not an integer", raw)
		}
		goType := t.GetType()
		if goType == reflect.TypeOf(n) {
			return n, nil
		}
		if t.T == abi.UintTy {
			if n.Sign() < 0 || n.BitLen() > t.Size {
				return nil, xerrors.Newf(xerrors.CodeConfiguration, "%s overflows %s", raw, t)
			}
			return reflect.ValueOf(n.Uint64()).Convert(goType).Interface(), nil
		}
		limit := new(big.Int).Lsh(big.NewInt(1), uint(t.Size-1))
		if n.Cmp(limit) >= 0 || n.Cmp(new(big.Int).Neg(limit)) < 0 {
			return nil, xerrors.Newf(xerrors.CodeConfiguration, "%s overflows %s", raw, t)
		}
		return reflect.ValueOf(n.Int64()).Convert(goType).Interface(), nil
	default:
		return nil, xerrors.Newf(xerrors.CodeConfiguration, "unsupported argument type %s", t)
	}
}
