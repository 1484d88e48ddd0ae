package async

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokligence/tokligence-relay/internal/ledger"
)

type memStore struct {
	mu      sync.Mutex
	entries []ledger.Entry
	closed  bool
}

func (m *memStore) Record(_ context.Context, e ledger.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *memStore) Summary(context.Context) (ledger.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ledger.Summary{Requests: int64(len(m.entries))}, nil
}

func (m *memStore) ListRecent(context.Context, int) ([]ledger.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ledger.Entry(nil), m.entries...), nil
}

func (m *memStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func entry(target string) ledger.Entry {
	return ledger.Entry{Mode: "stream", Method: "POST", Target: target, Outcome: ledger.OutcomeOK}
}

func TestCloseFlushesQueuedEntries(t *testing.T) {
	mem := &memStore{}
	s := New(mem, Config{BatchSize: 1000, FlushInterval: time.Hour, NumWorkers: 2})
	for i := 0; i < 25; i++ {
		require.NoError(t, s.Record(context.Background(), entry("http://a")))
	}
	require.NoError(t, s.Close())
	assert.Equal(t, 25, mem.count())
	assert.True(t, mem.closed)
	require.NoError(t, s.Close())
}

func TestFlushOnBatchSize(t *testing.T) {
	mem := &memStore{}
	s := New(mem, Config{BatchSize: 3, FlushInterval: time.Hour})
	t.Cleanup(func() { _ = s.Close() })
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Record(context.Background(), entry("http://a")))
	}
	assert.Eventually(t, func() bool { return mem.count() == 3 }, time.Second, 5*time.Millisecond)
}

func TestFlushOnInterval(t *testing.T) {
	mem := &memStore{}
	s := New(mem, Config{BatchSize: 100, FlushInterval: 10 * time.Millisecond})
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Record(context.Background(), entry("http://a")))
	assert.Eventually(t, func() bool { return mem.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestRecordRejectsInvalidEntry(t *testing.T) {
	s := New(&memStore{}, Config{})
	t.Cleanup(func() { _ = s.Close() })
	assert.Error(t, s.Record(context.Background(), ledger.Entry{Mode: "unary"}))
}

func TestRecordAfterCloseWritesThrough(t *testing.T) {
	mem := &memStore{}
	s := New(mem, Config{})
	require.NoError(t, s.Close())
	require.NoError(t, s.Record(context.Background(), entry("http://late")))
	assert.Equal(t, 1, mem.count())
}
