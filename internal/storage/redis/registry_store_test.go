package redis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	xerrors "ContractHub/internal/errors"
	"ContractHub/internal/registry"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

const tokenABI = `[{"inputs":[],"name":"totalSupply","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}]`

func TestRecordEncoding(t *testing.T) {
	t.Parallel()

	rec := registry.Record{Name: "Token", Address: common.HexToAddress("0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf"), ABI: tokenABI}
	payload, err := encodeRecord(rec)
	require.NoError(t, err)
	require.Contains(t, payload, `"abi":[{`)

	decoded, err := decodeRecord(payload)
	require.NoError(t, err)
	require.Equal(t, rec, decoded)

	_, err = decodeRecord(`{"name":"Token","address":"nope","abi":[]}`)
	require.Equal(t, xerrors.CodeStorageFailure, xerrors.CodeOf(err))
}

func TestNewRegistryStoreRequiresAddress(t *testing.T) {
	t.Parallel()

	_, err := NewRegistryStore(context.Background(), Config{})
	require.Equal(t, xerrors.CodeConfiguration, xerrors.CodeOf(err))
}

// TestRegistryStoreAgainstServer runs only when CONTRACTHUB_TEST_REDIS_ADDR points at a live server.
func TestRegistryStoreAgainstServer(t *testing.T) {
	addr := os.Getenv("CONTRACTHUB_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CONTRACTHUB_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()

	client := redis.NewClient(&redis.Options{Addr: addr})
	prefix := fmt.Sprintf("contracthub:test:%d", time.Now().UnixNano())
	store := NewRegistryStoreWithClient(client, prefix)
	t.Cleanup(func() {
		keys, _ := client.Keys(ctx, prefix+":*").Result()
		if len(keys) > 0 {
			_ = client.Del(ctx, keys...).Err()
		}
		_ = store.Close()
	})

	first := common.HexToAddress("0x01")
	second := common.HexToAddress("0x02")
	require.NoError(t, store.Enroll(ctx, registry.Record{Name: "Token", Address: first, ABI: tokenABI}))
	require.NoError(t, store.Enroll(ctx, registry.Record{Name: "Token", Address: second, ABI: tokenABI}))
	require.NoError(t, store.Enroll(ctx, registry.Record{Name: "Alias", Address: second, ABI: tokenABI}))

	records, err := store.Search(ctx, registry.ByName("Token"))
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, first, records[0].Address)

	records, err = store.Search(ctx, registry.ByAddress(first))
	require.NoError(t, err)
	require.Len(t, records, 1)

	_, err = store.Search(ctx, registry.ByAddress(second))
	require.True(t, errors.Is(err, registry.ErrAmbiguousRecord))
}
