package registry

import (
	"context"
	"sync"
)

// MemoryStore 以内存方式保存登记记录，主要用于测试与临时部署。
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
}

// NewMemoryStore 创建 MemoryStore，可选地预置记录。
func NewMemoryStore(records ...Record) *MemoryStore {
	clone := make([]Record, len(records))
	copy(clone, records)
	return &MemoryStore{records: clone}
}

// Search 实现 Store 接口。
func (m *MemoryStore) Search(_ context.Context, q Query) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return filterRecords(m.records, q)
}

// Enroll 实现 Store 接口。
func (m *MemoryStore) Enroll(_ context.Context, rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

// Records 返回全部记录的副本。
func (m *MemoryStore) Records() []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, len(m.records))
	copy(out, m.records)
	return out
}
