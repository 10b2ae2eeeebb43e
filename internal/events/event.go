// Package events 在合约部署确认并登记之后对外广播部署事件。
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Event 描述一次已确认并登记的合约部署。
type Event struct {
	ID          uuid.UUID      `json:"id"`
	Name        string         `json:"name"`
	Address     common.Address `json:"address"`
	TxHash      common.Hash    `json:"tx_hash"`
	Deployer    common.Address `json:"deployer"`
	BlockNumber uint64         `json:"block_number"`
	OccurredAt  time.Time      `json:"occurred_at"`
}

// NewEvent 生成带唯一 ID 的部署事件。
func NewEvent(name string, address common.Address, txHash common.Hash, deployer common.Address, block uint64) Event {
	return Event{
		ID:          uuid.New(),
		Name:        name,
		Address:     address,
		TxHash:      txHash,
		Deployer:    deployer,
		BlockNumber: block,
		OccurredAt:  time.Now().UTC(),
	}
}

// Encode 将事件序列化为 JSON。
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Publisher 抽象部署事件的投递通道。
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// MemoryPublisher 将事件保存在内存中，主要用于测试。
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

// NewMemoryPublisher 创建 MemoryPublisher。
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

// Publish 实现 Publisher 接口。
func (m *MemoryPublisher) Publish(_ context.Context, event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

// Events 返回已发布事件的副本。
func (m *MemoryPublisher) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// Close 实现 Publisher 接口。
func (m *MemoryPublisher) Close() error { return nil }

// Nop 丢弃所有事件。
type Nop struct{}

// Publish 实现 Publisher 接口。
func (Nop) Publish(context.Context, Event) error { return nil }

// Close 实现 Publisher 接口。
func (Nop) Close() error { return nil }
