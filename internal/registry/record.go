package registry

import (
	"context"
	"encoding/json"
	"strings"

	xerrors "ContractHub/internal/errors"

	"github.com/ethereum/go-ethereum/common"
)

// ReservedDispatcherName 是可升级代理合约在登记表中的保留名称。
const ReservedDispatcherName = "Dispatcher"

var (
	// ErrNotFound 表示登记表中没有匹配的记录。
	ErrNotFound = xerrors.New(xerrors.CodeNotFound, "登记表中没有匹配的合约记录")
	// ErrAmbiguousRecord 表示同一名称或地址存在多条记录。
	ErrAmbiguousRecord = xerrors.New(xerrors.CodeAmbiguousRecord, "登记表中存在多条匹配记录")
	// ErrNoDispatcherTarget 表示没有任何 Dispatcher 指向目标合约。
	ErrNoDispatcherTarget = xerrors.New(xerrors.CodeNoDispatcherTarget, "没有 Dispatcher 指向该合约")
	// ErrAmbiguousDispatcher 表示多个 Dispatcher 指向同一合约。
	ErrAmbiguousDispatcher = xerrors.New(xerrors.CodeAmbiguousDispatcher, "多个 Dispatcher 指向该合约")
	// ErrInvalidQuery 表示查询条件必须且只能指定名称或地址之一。
	ErrInvalidQuery = xerrors.New(xerrors.CodeConfiguration, "查询条件必须且只能指定合约名称或地址之一")
)

// Record 是登记表中的一条合约记录。ABI 保存原始 JSON 文本。
type Record struct {
	Name    string         `json:"name"`
	Address common.Address `json:"address"`
	ABI     string         `json:"abi"`
}

// Query 描述一次登记表查询，Name 与 Address 二选一。
type Query struct {
	Name    string
	Address *common.Address
}

// ByName 构造按名称查询的条件。
func ByName(name string) Query {
	return Query{Name: name}
}

// ByAddress 构造按地址查询的条件。
func ByAddress(addr common.Address) Query {
	return Query{Address: &addr}
}

// Validate 校验查询条件。
func (q Query) Validate() error {
	hasName := strings.TrimSpace(q.Name) != ""
	hasAddress := q.Address != nil
	if hasName == hasAddress {
		return ErrInvalidQuery
	}
	return nil
}

// Match 判断记录是否满足查询条件。
func (q Query) Match(rec Record) bool {
	if q.Address != nil {
		return rec.Address == *q.Address
	}
	return rec.Name == q.Name
}

// Store 抽象了合约登记表的持久化接口。
type Store interface {
	// Search 返回满足查询的全部记录。按地址查询命中多条时返回 ErrAmbiguousRecord。
	Search(ctx context.Context, q Query) ([]Record, error)
	// Enroll 追加一条记录。
	Enroll(ctx context.Context, rec Record) error
}

// Validate 校验记录字段。
func (r Record) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return xerrors.New(xerrors.CodeConfiguration, "合约名称不能为空")
	}
	if r.Address == (common.Address{}) {
		return xerrors.Newf(xerrors.CodeConfiguration, "合约 %s 的地址不能为空", r.Name)
	}
	if !json.Valid([]byte(r.ABI)) {
		return xerrors.Newf(xerrors.CodeConfiguration, "合约 %s 的 ABI 不是合法 JSON", r.Name)
	}
	return nil
}

// filterRecords 在内存中执行查询，供简单实现复用。
func filterRecords(records []Record, q Query) ([]Record, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	var matches []Record
	for _, rec := range records {
		if q.Match(rec) {
			matches = append(matches, rec)
		}
	}
	return CheckAddressMatches(q, matches)
}

// CheckAddressMatches 对按地址查询的结果执行唯一性检查。
func CheckAddressMatches(q Query, matches []Record) ([]Record, error) {
	if q.Address != nil && len(matches) > 1 {
		return nil, xerrors.Wrapf(xerrors.CodeAmbiguousRecord, ErrAmbiguousRecord, "地址 %s 对应 %d 条记录", q.Address.Hex(), len(matches))
	}
	return matches, nil
}
