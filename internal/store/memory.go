package store

import (
	"context"
	"sync"

	"github.com/yourusername/pdf2img/internal/conversion"
)

// Memory はプロセス内のマップに保存します。開発とテスト用です。
type Memory struct {
	mu      sync.RWMutex
	records map[string]conversion.Conversion
}

// NewMemory は空の Memory を作成します。
func NewMemory() *Memory {
	return &Memory{records: make(map[string]conversion.Conversion)}
}

func (m *Memory) Create(ctx context.Context, c *conversion.Conversion) error {
	if err := validateNew(c); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[c.ID]; ok {
		return conversion.ErrDuplicateID
	}
	m.records[c.ID] = *c
	return nil
}

func (m *Memory) GetByID(ctx context.Context, id string) (*conversion.Conversion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	record, ok := m.records[id]
	if !ok {
		return nil, nil
	}
	return &record, nil
}

func (m *Memory) GetAll(ctx context.Context) ([]conversion.Conversion, error) {
	m.mu.RLock()
	records := make([]conversion.Conversion, 0, len(m.records))
	for _, record := range m.records {
		records = append(records, record)
	}
	m.mu.RUnlock()

	sortByStartDate(records)
	return records, nil
}

func (m *Memory) UpdateStatus(ctx context.Context, id string, status conversion.Status) error {
	if err := validateTarget(status); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[id]
	if !ok {
		return conversion.ErrRecordNotFound
	}
	if !conversion.CanTransition(record.Status, status) {
		return conversion.ErrStatusFinal
	}
	record.Status = status
	m.records[id] = record
	return nil
}
