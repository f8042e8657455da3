// Package queue provides the durable work queue carrying article
// envelopes from fetch producers to the dedup consumers.
//
// The queue is backed by BadgerDB: entries are keyed by a monotonically
// increasing sequence number so lexicographic key order is FIFO order.
// Delivery is at-most-once: an entry is deleted at the moment it is
// dequeued, before the consumer has durably stored it, so a consumer
// crash between dequeue and persistence loses that entry. This is a
// documented property of the pipeline, not an accident.
package queue

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

const (
	defaultPollInterval      = 100 * time.Millisecond
	defaultSequenceBandwidth = 64
)

// ErrEmpty is returned by Dequeue when no entry became available within
// the wait budget.
var ErrEmpty = errors.New("queue: empty")

// Config holds configuration for Open.
type Config struct {
	// Path is the Badger directory. Ignored when InMemory is set.
	Path string
	// InMemory runs the queue without persistence (testing).
	InMemory bool
	// Name namespaces the queue's keys; defaults to "articles".
	Name string
	// PollInterval governs how often a blocking Dequeue re-checks for
	// new entries.
	PollInterval time.Duration
}

// Queue is a durable multi-producer/multi-consumer FIFO queue.
type Queue struct {
	db           *badger.DB
	seq          *badger.Sequence
	prefix       []byte
	pollInterval time.Duration
}

// Open opens (creating if needed) the queue at the configured path.
func Open(cfg Config) (*Queue, error) {
	if cfg.Name == "" {
		cfg.Name = "articles"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, fmt.Errorf("queue path is required")
		}
		if err := os.MkdirAll(cfg.Path, 0755); err != nil {
			return nil, fmt.Errorf("creating queue directory: %w", err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts.Logger = &slogAdapter{logger: slog.Default()}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening queue database: %w", err)
	}

	seq, err := db.GetSequence([]byte("seq:"+cfg.Name), defaultSequenceBandwidth)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("opening queue sequence: %w", err)
	}

	return &Queue{
		db:           db,
		seq:          seq,
		prefix:       []byte("q:" + cfg.Name + ":"),
		pollInterval: cfg.PollInterval,
	}, nil
}

// Close releases the sequence and closes the database.
func (q *Queue) Close() error {
	if err := q.seq.Release(); err != nil {
		q.db.Close()
		return fmt.Errorf("releasing queue sequence: %w", err)
	}
	return q.db.Close()
}

// Enqueue appends a payload to the tail of the queue.
func (q *Queue) Enqueue(payload []byte) error {
	if len(payload) == 0 {
		return fmt.Errorf("queue: empty payload")
	}
	n, err := q.seq.Next()
	if err != nil {
		return fmt.Errorf("advancing queue sequence: %w", err)
	}
	key := q.key(n)
	err = q.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, payload)
	})
	if err != nil {
		return fmt.Errorf("enqueuing entry %d: %w", n, err)
	}
	return nil
}

// Dequeue removes and returns the oldest entry. When block is false an
// empty queue returns ErrEmpty immediately; when block is true the call
// polls until an entry appears, the timeout elapses (ErrEmpty), or ctx
// is canceled.
func (q *Queue) Dequeue(ctx context.Context, block bool, timeout time.Duration) ([]byte, error) {
	payload, ok, err := q.tryDequeue()
	if err != nil {
		return nil, err
	}
	if ok {
		return payload, nil
	}
	if !block {
		return nil, ErrEmpty
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, ErrEmpty
		case <-ticker.C:
			payload, ok, err := q.tryDequeue()
			if err != nil {
				return nil, err
			}
			if ok {
				return payload, nil
			}
		}
	}
}

// Len returns the number of entries currently in the queue.
func (q *Queue) Len() (int, error) {
	count := 0
	err := q.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = q.prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("counting queue entries: %w", err)
	}
	return count, nil
}

// tryDequeue pops the head entry if one exists. Two consumers racing on
// the same head conflict at commit; the loser retries against the new
// head.
func (q *Queue) tryDequeue() ([]byte, bool, error) {
	for {
		payload, ok, err := q.dequeueHead()
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		return payload, ok, err
	}
}

func (q *Queue) dequeueHead() ([]byte, bool, error) {
	txn := q.db.NewTransaction(true)
	defer txn.Discard()

	opts := badger.DefaultIteratorOptions
	opts.Prefix = q.prefix
	it := txn.NewIterator(opts)

	it.Rewind()
	if !it.Valid() {
		it.Close()
		return nil, false, nil
	}
	item := it.Item()
	key := item.KeyCopy(nil)
	payload, err := item.ValueCopy(nil)
	it.Close()
	if err != nil {
		return nil, false, fmt.Errorf("reading queue entry: %w", err)
	}

	if err := txn.Delete(key); err != nil {
		return nil, false, fmt.Errorf("removing queue entry: %w", err)
	}
	if err := txn.Commit(); err != nil {
		return nil, false, err
	}
	return payload, true, nil
}

// key builds "q:<name>:" followed by the big-endian sequence number so
// lexicographic iteration order matches enqueue order.
func (q *Queue) key(n uint64) []byte {
	buf := make([]byte, len(q.prefix)+8)
	offset := copy(buf, q.prefix)
	binary.BigEndian.PutUint64(buf[offset:], n)
	return buf
}

// slogAdapter adapts slog.Logger to badger.Logger.
type slogAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*slogAdapter)(nil)

func (l *slogAdapter) Errorf(msg string, args ...any) {
	l.logger.Error(fmt.Sprintf(msg, args...))
}

func (l *slogAdapter) Warningf(msg string, args ...any) {
	l.logger.Warn(fmt.Sprintf(msg, args...))
}

func (l *slogAdapter) Infof(msg string, args ...any) {
	l.logger.Debug(fmt.Sprintf(msg, args...))
}

func (l *slogAdapter) Debugf(msg string, args ...any) {
	l.logger.Debug(fmt.Sprintf(msg, args...))
}
