package facts

import (
	"context"
	"fmt"
	"sync"
)

// MemorySource serves queries from tuples held in memory.
type MemorySource struct {
	mu     sync.RWMutex
	tuples map[Query][]Tuple
	closed bool
}

// NewMemorySource returns an empty in-memory source.
func NewMemorySource() *MemorySource {
	return &MemorySource{tuples: make(map[Query][]Tuple)}
}

// Add appends tuples to a query's relation.
func (m *MemorySource) Add(q Query, tuples ...Tuple) *MemorySource {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tuples[q] = append(m.tuples[q], tuples...)
	return m
}

// Query implements Source.
func (m *MemorySource) Query(ctx context.Context, q Query) (*Stream, error) {
	if !Known(q) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownQuery, q)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, fmt.Errorf("%w: memory source closed", ErrSourceUnavailable)
	}
	snapshot := make([]Tuple, len(m.tuples[q]))
	copy(snapshot, m.tuples[q])
	return SliceStream(q, snapshot), nil
}

// Close implements Source.
func (m *MemorySource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
