package journal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStorage struct {
	mu      sync.Mutex
	batches [][]Event
	err     error
}

func (m *memStorage) WriteBatch(_ context.Context, events []Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := append([]Event(nil), events...)
	m.batches = append(m.batches, cp)
	return m.err
}

func (m *memStorage) total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.batches {
		n += len(b)
	}
	return n
}

func (m *memStorage) maxBatch() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	max := 0
	for _, b := range m.batches {
		if len(b) > max {
			max = len(b)
		}
	}
	return max
}

func TestJournal_DrainsOnStop(t *testing.T) {
	repo := &memStorage{}
	j := New(repo, nil, nil)
	j.Start()

	for i := 0; i < 250; i++ {
		j.Log(NewEvent(KindHealth, map[string]interface{}{"i": i}))
	}
	j.Stop()

	assert.Equal(t, 250, repo.total())
	assert.LessOrEqual(t, repo.maxBatch(), batchSize)
}

func TestJournal_FlushesOnTicker(t *testing.T) {
	repo := &memStorage{}
	j := New(repo, nil, nil)
	j.Start()
	defer j.Stop()

	j.Log(Event{ID: "1", Kind: KindFailure})
	require.Eventually(t, func() bool { return repo.total() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestJournal_DropsAfterStopAndRestarts(t *testing.T) {
	repo := &memStorage{}
	j := New(repo, nil, nil)

	j.Log(Event{ID: "before-start"})
	j.Start()
	j.Stop()
	j.Stop()
	j.Log(Event{ID: "after-stop"})
	assert.Equal(t, 0, repo.total())

	j.Start()
	j.Log(Event{ID: "again"})
	j.Stop()
	assert.Equal(t, 1, repo.total())
}

func TestJournal_SetsTimestamp(t *testing.T) {
	repo := &memStorage{}
	j := New(repo, nil, nil)
	j.Start()
	j.Log(Event{ID: "x"})
	j.Stop()

	require.Len(t, repo.batches, 1)
	assert.False(t, repo.batches[0][0].Timestamp.IsZero())
}

func TestMulti_ContinuesOnError(t *testing.T) {
	bad := &memStorage{err: errors.New("db down")}
	good := &memStorage{}

	err := Multi{bad, good}.WriteBatch(context.Background(), []Event{{ID: "1"}})
	assert.Error(t, err)
	assert.Equal(t, 1, good.total())
}
