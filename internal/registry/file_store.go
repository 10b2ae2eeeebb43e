package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	xerrors "ContractHub/internal/errors"
	"ContractHub/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
)

// ErrIllegalRegistry 表示登记文件内容缺失或损坏。
var ErrIllegalRegistry = errors.New("登记文件内容缺失或损坏")

// FileStore 将登记记录以 JSON 数组 [[name, address, abi], ...] 的形式保存在单个文件中。
// 每次登记都会读取现有内容、追加后整体重写。
type FileStore struct {
	mu   sync.Mutex
	path string
	log  *slog.Logger
}

// NewFileStore 创建基于文件的登记表。文件可以暂不存在，首次登记时创建。
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, xerrors.New(xerrors.CodeConfiguration, "登记文件路径不能为空")
	}
	return &FileStore{path: path, log: logger.Named("registry")}, nil
}

// Path 返回当前登记文件路径。
func (s *FileStore) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

// Search 实现 Store 接口。
func (s *FileStore) Search(_ context.Context, q Query) ([]Record, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.read()
	if err != nil {
		return nil, err
	}
	return filterRecords(records, q)
}

// Enroll 实现 Store 接口。
func (s *FileStore) Enroll(_ context.Context, rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.read()
	if errors.Is(err, fs.ErrNotExist) {
		s.log.Info("blank registry encountered", slog.String("name", rec.Name), slog.String("address", rec.Address.Hex()))
		records = nil
	} else if err != nil {
		return err
	}
	records = append(records, rec)
	if err := s.write(records); err != nil {
		return err
	}
	s.log.Info("contract enrolled", slog.String("name", rec.Name), slog.String("address", rec.Address.Hex()), slog.String("path", s.path))
	return nil
}

// Records 返回文件中的全部记录。
func (s *FileStore) Records() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

func (s *FileStore) read() ([]Record, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, xerrors.Wrapf(xerrors.CodeStorageFailure, err, "登记文件 %s 不存在", s.path)
	}
	if err != nil {
		return nil, xerrors.Wrapf(xerrors.CodeStorageFailure, err, "读取登记文件 %s 失败", s.path)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	records, err := decodeRegistry(data)
	if err != nil {
		s.log.Error("illegal registry", slog.String("path", s.path), slog.String("error", err.Error()))
		return nil, xerrors.Wrapf(xerrors.CodeStorageFailure, err, "登记文件 %s 内容损坏", s.path)
	}
	return records, nil
}

func (s *FileStore) write(records []Record) error {
	data, err := encodeRegistry(records)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "编码登记记录失败")
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return xerrors.Wrapf(xerrors.CodeStorageFailure, err, "创建登记目录 %s 失败", dir)
		}
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return xerrors.Wrapf(xerrors.CodeStorageFailure, err, "写入登记文件 %s 失败", s.path)
	}
	return nil
}

func encodeRegistry(records []Record) ([]byte, error) {
	rows := make([][3]any, 0, len(records))
	for _, rec := range records {
		rows = append(rows, [3]any{rec.Name, rec.Address.Hex(), json.RawMessage(rec.ABI)})
	}
	return json.Marshal(rows)
}

func decodeRegistry(data []byte) ([]Record, error) {
	var rows []json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIllegalRegistry, err)
	}
	records := make([]Record, 0, len(rows))
	for i, row := range rows {
		var fields []json.RawMessage
		if err := json.Unmarshal(row, &fields); err != nil || len(fields) != 3 {
			return nil, fmt.Errorf("%w: 第 %d 条记录格式错误", ErrIllegalRegistry, i)
		}
		var name, address string
		if err := json.Unmarshal(fields[0], &name); err != nil {
			return nil, fmt.Errorf("%w: 第 %d 条记录名称错误", ErrIllegalRegistry, i)
		}
		if err := json.Unmarshal(fields[1], &address); err != nil || !common.IsHexAddress(address) {
			return nil, fmt.Errorf("%w: 第 %d 条记录地址错误", ErrIllegalRegistry, i)
		}
		abiJSON := fields[2]
		var encoded string
		if err := json.Unmarshal(abiJSON, &encoded); err == nil {
			abiJSON = json.RawMessage(encoded)
		}
		records = append(records, Record{Name: name, Address: common.HexToAddress(address), ABI: string(abiJSON)})
	}
	return records, nil
}

// TemporaryFileStore 是位于临时文件中的登记表，可在结束时提交到正式路径。
type TemporaryFileStore struct {
	*FileStore
	tempPath string
}

// NewTemporaryFileStore 在系统临时目录中创建空登记文件。
func NewTemporaryFileStore() (*TemporaryFileStore, error) {
	f, err := os.CreateTemp("", "contract-registry-*.json")
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "创建临时登记文件失败")
	}
	path := f.Name()
	if err := f.Close(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "关闭临时登记文件失败")
	}
	store, err := NewFileStore(path)
	if err != nil {
		return nil, err
	}
	return &TemporaryFileStore{FileStore: store, tempPath: path}, nil
}

// Clear 清空当前登记文件。
func (t *TemporaryFileStore) Clear() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := os.WriteFile(t.path, nil, 0o644); err != nil {
		return xerrors.Wrapf(xerrors.CodeStorageFailure, err, "清空登记文件 %s 失败", t.path)
	}
	t.log.Info("cleared temporary registry", slog.String("path", t.path))
	return nil
}

// Cleanup 删除临时文件。已提交的登记表不会被删除。
func (t *TemporaryFileStore) Cleanup() error {
	if t.tempPath == "" {
		return nil
	}
	if err := os.Remove(t.tempPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return xerrors.Wrapf(xerrors.CodeStorageFailure, err, "删除临时登记文件 %s 失败", t.tempPath)
	}
	t.tempPath = ""
	return nil
}

// Commit 将临时登记表的内容写入 path，并将后续读写切换到该文件。
func (t *TemporaryFileStore) Commit(path string) (string, error) {
	if path == "" {
		return "", xerrors.New(xerrors.CodeConfiguration, "提交路径不能为空")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.tempPath == "" {
		return "", xerrors.New(xerrors.CodeConfiguration, "临时登记表已经提交或清理")
	}

	t.log.Info("committing temporary registry", slog.String("path", path))
	data, err := os.ReadFile(t.tempPath)
	if err != nil {
		return "", xerrors.Wrapf(xerrors.CodeStorageFailure, err, "读取临时登记文件 %s 失败", t.tempPath)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", xerrors.Wrapf(xerrors.CodeStorageFailure, err, "创建登记目录 %s 失败", dir)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", xerrors.Wrapf(xerrors.CodeStorageFailure, err, "写入登记文件 %s 失败", path)
	}
	_ = os.Remove(t.tempPath)
	t.tempPath = ""
	t.path = path
	t.log.Info("wrote temporary registry", slog.String("path", path))
	return path, nil
}
