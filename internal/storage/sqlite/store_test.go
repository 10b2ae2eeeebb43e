package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	xerrors "ContractHub/internal/errors"
	"ContractHub/internal/registry"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

const tokenABI = `[{"inputs":[],"name":"totalSupply","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}]`

func openStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreEnrollAndSearch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openStore(t)

	addr := common.HexToAddress("0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf")
	require.NoError(t, store.Enroll(ctx, registry.Record{Name: "Token", Address: addr, ABI: tokenABI}))

	records, err := store.Search(ctx, registry.ByName("Token"))
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, addr, records[0].Address)
	require.Equal(t, tokenABI, records[0].ABI)

	records, err = store.Search(ctx, registry.ByAddress(addr))
	require.NoError(t, err)
	require.Len(t, records, 1)

	records, err = store.Search(ctx, registry.ByName("Escrow"))
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestStoreKeepsDuplicateNames(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := openStore(t)

	first := common.HexToAddress("0x01")
	second := common.HexToAddress("0x02")
	require.NoError(t, store.Enroll(ctx, registry.Record{Name: "Token", Address: first, ABI: tokenABI}))
	require.NoError(t, store.Enroll(ctx, registry.Record{Name: "Token", Address: second, ABI: tokenABI}))
	require.NoError(t, store.Enroll(ctx, registry.Record{Name: "Alias", Address: second, ABI: tokenABI}))

	records, err := store.Search(ctx, registry.ByName("Token"))
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, first, records[0].Address)

	_, err = store.Search(ctx, registry.ByAddress(second))
	require.True(t, errors.Is(err, registry.ErrAmbiguousRecord))

	names, err := store.Names(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"Token", "Alias"}, names)
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), " ")
	require.Equal(t, xerrors.CodeConfiguration, xerrors.CodeOf(err))
}
