package mysql

import (
	"context"
	"database/sql"
	"strings"
	"time"

	xerrors "ContractHub/internal/errors"
	"ContractHub/internal/registry"

	"github.com/ethereum/go-ethereum/common"
)

const (
	searchByNameSQL = `SELECT name, address, abi FROM contract_registry
        WHERE name = ? ORDER BY id`
	searchByAddressSQL = `SELECT name, address, abi FROM contract_registry
        WHERE address = ? ORDER BY id`
	enrollSQL = `INSERT INTO contract_registry (name, address, abi, enrolled_at)
        VALUES (?, ?, ?, ?)`
)

// RegistryStore 使用 MySQL 保存合约登记记录。
type RegistryStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ registry.Store = (*RegistryStore)(nil)

// NewRegistryStore 建立连接池并执行迁移。
func NewRegistryStore(ctx context.Context, cfg Config) (*RegistryStore, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "执行 MySQL 迁移失败")
	}
	return newRegistryStore(db), nil
}

func newRegistryStore(db *sql.DB) *RegistryStore {
	return &RegistryStore{db: db, now: time.Now}
}

// Search 实现 registry.Store。
func (s *RegistryStore) Search(ctx context.Context, q registry.Query) ([]registry.Record, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	query, arg := searchByNameSQL, q.Name
	if q.Address != nil {
		query, arg = searchByAddressSQL, addressKey(*q.Address)
	}

	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询合约登记记录失败")
	}
	defer rows.Close()

	var records []registry.Record
	for rows.Next() {
		var (
			rec     registry.Record
			address string
		)
		if err := rows.Scan(&rec.Name, &address, &rec.ABI); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析合约登记记录失败")
		}
		rec.Address = common.HexToAddress(address)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历合约登记记录失败")
	}
	return registry.CheckAddressMatches(q, records)
}

// Enroll 实现 registry.Store。
func (s *RegistryStore) Enroll(ctx context.Context, rec registry.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, enrollSQL, rec.Name, addressKey(rec.Address), rec.ABI, s.now().Unix()); err != nil {
		return xerrors.Wrapf(xerrors.CodeStorageFailure, err, "登记合约 %s 失败", rec.Name)
	}
	return nil
}

// Close 关闭底层数据库连接。
func (s *RegistryStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func addressKey(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}
