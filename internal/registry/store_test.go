package registry

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	xerrors "ContractHub/internal/errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestQueryValidation(t *testing.T) {
	t.Parallel()

	addr := common.HexToAddress("0x01")
	require.ErrorIs(t, Query{}.Validate(), ErrInvalidQuery)
	require.ErrorIs(t, Query{Name: "Token", Address: &addr}.Validate(), ErrInvalidQuery)
	require.NoError(t, ByName("Token").Validate())
	require.NoError(t, ByAddress(addr).Validate())
}

func TestMemoryStoreEnrollValidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := NewMemoryStore()
	err := store.Enroll(ctx, Record{Name: "Token", ABI: tokenABI})
	require.Equal(t, xerrors.CodeConfiguration, xerrors.CodeOf(err))
	err = store.Enroll(ctx, Record{Name: "Token", Address: tokenV1Addr, ABI: "{"})
	require.Equal(t, xerrors.CodeConfiguration, xerrors.CodeOf(err))
	require.Empty(t, store.Records())
}

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "nested", "registry.json")
	store, err := NewFileStore(path)
	require.NoError(t, err)

	_, err = store.Search(ctx, ByName("Token"))
	require.True(t, errors.Is(err, fs.ErrNotExist))
	require.Equal(t, xerrors.CodeStorageFailure, xerrors.CodeOf(err))

	require.NoError(t, store.Enroll(ctx, Record{Name: "Token", Address: tokenV1Addr, ABI: tokenABI}))
	require.NoError(t, store.Enroll(ctx, Record{Name: ReservedDispatcherName, Address: dispatcherAddr, ABI: dispatcherABI}))

	records, err := store.Search(ctx, ByName("Token"))
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, tokenV1Addr, records[0].Address)
	require.JSONEq(t, tokenABI, records[0].ABI)

	records, err = store.Search(ctx, ByAddress(dispatcherAddr))
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, ReservedDispatcherName, records[0].Name)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `["Token","`+tokenV1Addr.Hex()+`",[{`)
}

func TestFileStoreReadsStringEncodedABI(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "registry.json")
	content := `[["Token","` + tokenV1Addr.Hex() + `","[]"]]`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	store, err := NewFileStore(path)
	require.NoError(t, err)
	records, err := store.Search(ctx, ByName("Token"))
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "[]", records[0].ABI)
}

func TestFileStoreRejectsCorruptedRegistry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "registry.json")
	require.NoError(t, os.WriteFile(path, []byte(`[["Token","0x01"]]`), 0o644))

	store, err := NewFileStore(path)
	require.NoError(t, err)
	_, err = store.Search(ctx, ByName("Token"))
	require.Equal(t, xerrors.CodeStorageFailure, xerrors.CodeOf(err))
	require.True(t, errors.Is(err, ErrIllegalRegistry))
}

func TestFileStoreAmbiguousAddress(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store, err := NewFileStore(filepath.Join(t.TempDir(), "registry.json"))
	require.NoError(t, err)
	require.NoError(t, store.Enroll(ctx, Record{Name: "Token", Address: tokenV1Addr, ABI: tokenABI}))
	require.NoError(t, store.Enroll(ctx, Record{Name: "Alias", Address: tokenV1Addr, ABI: tokenABI}))

	_, err = store.Search(ctx, ByAddress(tokenV1Addr))
	require.True(t, errors.Is(err, ErrAmbiguousRecord))
}

func TestTemporaryFileStoreCommit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tmp, err := NewTemporaryFileStore()
	require.NoError(t, err)
	t.Cleanup(func() { _ = tmp.Cleanup() })

	records, err := tmp.Search(ctx, ByName("Token"))
	require.NoError(t, err)
	require.Empty(t, records)

	require.NoError(t, tmp.Enroll(ctx, Record{Name: "Token", Address: tokenV1Addr, ABI: tokenABI}))
	require.NoError(t, tmp.Clear())
	records, err = tmp.Search(ctx, ByName("Token"))
	require.NoError(t, err)
	require.Empty(t, records)

	require.NoError(t, tmp.Enroll(ctx, Record{Name: "Token", Address: tokenV2Addr, ABI: tokenV2ABI}))
	target := filepath.Join(t.TempDir(), "committed.json")
	committed, err := tmp.Commit(target)
	require.NoError(t, err)
	require.Equal(t, target, committed)
	require.Equal(t, target, tmp.Path())

	reopened, err := NewFileStore(target)
	require.NoError(t, err)
	records, err = reopened.Search(ctx, ByName("Token"))
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, tokenV2Addr, records[0].Address)

	_, err = tmp.Commit(target)
	require.Equal(t, xerrors.CodeConfiguration, xerrors.CodeOf(err))
}
