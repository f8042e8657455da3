package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	q, err := Open(Config{InMemory: true, PollInterval: 10 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })
	return q
}

func TestFIFOOrder(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, q.Enqueue([]byte(fmt.Sprintf("entry-%d", i))))
	}

	for i := 0; i < 10; i++ {
		payload, err := q.Dequeue(ctx, false, 0)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("entry-%d", i), string(payload))
	}
}

func TestNonBlockingEmpty(t *testing.T) {
	q := newTestQueue(t)

	_, err := q.Dequeue(context.Background(), false, 0)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestBlockingTimeout(t *testing.T) {
	q := newTestQueue(t)

	start := time.Now()
	_, err := q.Dequeue(context.Background(), true, 100*time.Millisecond)
	assert.ErrorIs(t, err, ErrEmpty)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestBlockingReceivesLateEntry(t *testing.T) {
	q := newTestQueue(t)

	go func() {
		time.Sleep(50 * time.Millisecond)
		q.Enqueue([]byte("late"))
	}()

	payload, err := q.Dequeue(context.Background(), true, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "late", string(payload))
}

func TestDequeueContextCancel(t *testing.T) {
	q := newTestQueue(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	_, err := q.Dequeue(ctx, true, 5*time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEnqueueRejectsEmptyPayload(t *testing.T) {
	q := newTestQueue(t)
	assert.Error(t, q.Enqueue(nil))
}

func TestLen(t *testing.T) {
	q := newTestQueue(t)

	n, err := q.Len()
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	require.NoError(t, q.Enqueue([]byte("a")))
	require.NoError(t, q.Enqueue([]byte("b")))

	n, err = q.Len()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = q.Dequeue(context.Background(), false, 0)
	require.NoError(t, err)

	n, err = q.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDurabilityAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	q, err := Open(Config{Path: dir})
	require.NoError(t, err)
	require.NoError(t, q.Enqueue([]byte("survives")))
	require.NoError(t, q.Close())

	q, err = Open(Config{Path: dir})
	require.NoError(t, err)
	defer q.Close()

	payload, err := q.Dequeue(context.Background(), false, 0)
	require.NoError(t, err)
	assert.Equal(t, "survives", string(payload))
}

func TestConcurrentConsumersExactlyOnceDelivery(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	const entries = 200
	for i := 0; i < entries; i++ {
		require.NoError(t, q.Enqueue([]byte(fmt.Sprintf("entry-%d", i))))
	}

	var mu sync.Mutex
	seen := make(map[string]int)

	const consumers = 8
	var wg sync.WaitGroup
	for c := 0; c < consumers; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				payload, err := q.Dequeue(ctx, false, 0)
				if err == ErrEmpty {
					return
				}
				require.NoError(t, err)
				mu.Lock()
				seen[string(payload)]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, entries)
	for entry, count := range seen {
		assert.Equal(t, 1, count, "entry %s delivered %d times", entry, count)
	}
}

func TestInterleavedProducers(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	const producers = 4
	const perProducer = 25
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				require.NoError(t, q.Enqueue([]byte(fmt.Sprintf("p%d-%d", p, i))))
			}
		}(p)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for i := 0; i < producers*perProducer; i++ {
		payload, err := q.Dequeue(ctx, false, 0)
		require.NoError(t, err)
		seen[string(payload)] = true
	}
	assert.Len(t, seen, producers*perProducer)

	_, err := q.Dequeue(ctx, false, 0)
	assert.ErrorIs(t, err, ErrEmpty)
}
