package redis

import (
	"context"
	"encoding/json"
	"strings"

	xerrors "ContractHub/internal/errors"
	"ContractHub/internal/registry"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
)

// Config 描述 Redis 登记表的连接参数。
type Config struct {
	Address  string
	Password string
	DB       int
	Prefix   string
}

// RegistryStore 使用 Redis list 保存登记记录。
type RegistryStore struct {
	client redis.UniversalClient
	prefix string
}

var _ registry.Store = (*RegistryStore)(nil)

type storedRecord struct {
	Name    string          `json:"name"`
	Address string          `json:"address"`
	ABI     json.RawMessage `json:"abi"`
}

// NewRegistryStore 连接 Redis 并返回登记表。
func NewRegistryStore(ctx context.Context, cfg Config) (*RegistryStore, error) {
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, xerrors.New(xerrors.CodeConfiguration, "Redis address 不能为空")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 Redis 失败")
	}
	return NewRegistryStoreWithClient(client, cfg.Prefix), nil
}

// NewRegistryStoreWithClient 复用已有的 Redis 客户端。
func NewRegistryStoreWithClient(client redis.UniversalClient, prefix string) *RegistryStore {
	if prefix == "" {
		prefix = "contracthub:registry"
	}
	return &RegistryStore{client: client, prefix: prefix}
}

func (s *RegistryStore) nameKey(name string) string {
	return s.prefix + ":name:" + name
}

func (s *RegistryStore) addressKey(addr common.Address) string {
	return s.prefix + ":address:" + strings.ToLower(addr.Hex())
}

// Search 实现 registry.Store。
func (s *RegistryStore) Search(ctx context.Context, q registry.Query) ([]registry.Record, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	key := s.nameKey(q.Name)
	if q.Address != nil {
		key = s.addressKey(*q.Address)
	}
	values, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取 Redis 登记记录失败")
	}
	records := make([]registry.Record, 0, len(values))
	for _, value := range values {
		rec, err := decodeRecord(value)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return registry.CheckAddressMatches(q, records)
}

// Enroll 实现 registry.Store，两个索引在同一个事务中写入。
func (s *RegistryStore) Enroll(ctx context.Context, rec registry.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	payload, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, s.nameKey(rec.Name), payload)
		pipe.RPush(ctx, s.addressKey(rec.Address), payload)
		return nil
	})
	if err != nil {
		return xerrors.Wrapf(xerrors.CodeStorageFailure, err, "写入 Redis 登记记录 %s 失败", rec.Name)
	}
	return nil
}

// Close 关闭 Redis 连接。
func (s *RegistryStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func encodeRecord(rec registry.Record) (string, error) {
	data, err := json.Marshal(storedRecord{
		Name:    rec.Name,
		Address: rec.Address.Hex(),
		ABI:     json.RawMessage(rec.ABI),
	})
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeStorageFailure, err, "编码登记记录失败")
	}
	return string(data), nil
}

func decodeRecord(value string) (registry.Record, error) {
	var stored storedRecord
	if err := json.Unmarshal([]byte(value), &stored); err != nil {
		return registry.Record{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析 Redis 登记记录失败")
	}
	if !common.IsHexAddress(stored.Address) {
		return registry.Record{}, xerrors.Newf(xerrors.CodeStorageFailure, "Redis 登记记录地址无效: %s", stored.Address)
	}
	return registry.Record{
		Name:    stored.Name,
		Address: common.HexToAddress(stored.Address),
		ABI:     string(stored.ABI),
	}, nil
}
