package async

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tokligence/tokligence-relay/internal/ledger"
)

// Store wraps a ledger.Store with asynchronous batch writes so recording an
// exchange never blocks the relay path.
// Entries may be lost if the process crashes before flushing.
type Store struct {
	underlying    ledger.Store
	entryChan     chan ledger.Entry
	batchSize     int
	flushInterval time.Duration
	wg            sync.WaitGroup
	stopChan      chan struct{}
	stopOnce      sync.Once
	logger        *zap.Logger

	mu      sync.Mutex
	dropped int64
}

// Config configures the async ledger behavior.
type Config struct {
	BatchSize     int           // maximum entries per batch (default 100)
	FlushInterval time.Duration // maximum time between flushes (default 1s)
	ChannelBuffer int           // queued entries before drops (default 10000)
	NumWorkers    int           // parallel batch writers (default 1)
	Logger        *zap.Logger
}

// New wraps an existing ledger store with async batch writing.
func New(underlying ledger.Store, cfg Config) *Store {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	if cfg.ChannelBuffer <= 0 {
		cfg.ChannelBuffer = 10000
	}
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	s := &Store{
		underlying:    underlying,
		entryChan:     make(chan ledger.Entry, cfg.ChannelBuffer),
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		stopChan:      make(chan struct{}),
		logger:        cfg.Logger.Named("async-ledger"),
	}

	for i := 0; i < cfg.NumWorkers; i++ {
		s.wg.Add(1)
		go s.batchWriter(i)
	}

	s.logger.Info("started",
		zap.Int("workers", cfg.NumWorkers),
		zap.Int("batch_size", cfg.BatchSize),
		zap.Duration("flush_interval", cfg.FlushInterval),
		zap.Int("buffer", cfg.ChannelBuffer))

	return s
}

func (s *Store) batchWriter(workerID int) {
	defer s.wg.Done()

	batch := make([]ledger.Entry, 0, s.batchSize)
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		ctx := context.Background()
		written := 0
		for _, entry := range batch {
			if err := s.underlying.Record(ctx, entry); err != nil {
				s.logger.Error("write entry", zap.Int("worker", workerID), zap.String("target", entry.Target), zap.Error(err))
				continue
			}
			written++
		}
		s.logger.Debug("flushed",
			zap.Int("worker", workerID),
			zap.Int("written", written),
			zap.Int("batch", len(batch)),
			zap.Duration("elapsed", time.Since(start)))
		batch = batch[:0]
	}

	for {
		select {
		case entry := <-s.entryChan:
			batch = append(batch, entry)
			if len(batch) >= s.batchSize {
				flush()
			}

		case <-ticker.C:
			flush()

		case <-s.stopChan:
			// drain whatever is still queued; other workers compete for it
			for {
				select {
				case entry := <-s.entryChan:
					batch = append(batch, entry)
					if len(batch) >= s.batchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

// Record queues an entry for asynchronous writing. It never blocks; when the
// queue is full the entry is dropped and counted.
func (s *Store) Record(ctx context.Context, entry ledger.Entry) error {
	entry, err := ledger.Normalize(entry)
	if err != nil {
		return err
	}
	select {
	case <-s.stopChan:
		return s.underlying.Record(ctx, entry)
	default:
	}
	select {
	case s.entryChan <- entry:
		return nil
	default:
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
		s.logger.Warn("queue full, dropping entry", zap.String("target", entry.Target))
		return nil
	}
}

// Dropped returns how many entries were discarded because the queue was full.
func (s *Store) Dropped() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Summary delegates to the underlying store (blocking operation).
func (s *Store) Summary(ctx context.Context) (ledger.Summary, error) {
	return s.underlying.Summary(ctx)
}

// ListRecent delegates to the underlying store (blocking operation).
func (s *Store) ListRecent(ctx context.Context, limit int) ([]ledger.Entry, error) {
	return s.underlying.ListRecent(ctx, limit)
}

// Close flushes remaining entries and closes the underlying store.
func (s *Store) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return s.underlying.Close()
}
