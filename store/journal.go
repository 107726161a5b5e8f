package store

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nvr-ai/galton-goalie/controller"
	"github.com/pkg/errors"
)

// DefaultJournalQueue is how many pending writes the journal buffers before dropping.
const DefaultJournalQueue = 256

// ErrJournalClosed is returned by Sync after Close.
var ErrJournalClosed = errors.New("journal closed")

type journalOp struct {
	event controller.DetectionEvent
	// gen is the reset generation the op was queued under.
	gen    uint64
	marker bool
	synced chan struct{}
}

// Journal writes the running engine's detections and resets into a session. The engine
// calls OnDetection and OnReset on its processing loop; both only queue work, and a
// single writer goroutine performs the database I/O in the order it was queued.
type Journal struct {
	store   *Store
	session Session
	logger  *slog.Logger
	timeout time.Duration

	queue   chan journalOp
	done    chan struct{}
	mu      sync.RWMutex
	closed  bool
	gen     atomic.Uint64
	dropped atomic.Uint64

	// Writer-owned.
	applied uint64
}

// NewJournal creates a journal for session and starts its writer. Register it with
// Engine.Subscribe and Engine.OnReset, and Close it once the engine has stopped.
func NewJournal(store *Store, session Session, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	j := &Journal{
		store:   store,
		session: session,
		logger:  logger,
		timeout: 2 * time.Second,
		queue:   make(chan journalOp, DefaultJournalQueue),
		done:    make(chan struct{}),
	}
	go j.run()
	return j
}

// Session returns the session being written.
func (j *Journal) Session() Session {
	return j.session
}

// Dropped reports how many detections were discarded because the queue was full.
func (j *Journal) Dropped() uint64 {
	return j.dropped.Load()
}

// OnDetection queues event for writing. It never waits on the database; when the queue is
// full the event is dropped from the log, and the final Flush still stores the counts.
func (j *Journal) OnDetection(event controller.DetectionEvent) {
	j.enqueue(journalOp{event: event, gen: j.gen.Load()})
}

// OnReset queues a reset of the session counts behind every detection queued so far.
func (j *Journal) OnReset() {
	gen := j.gen.Add(1)
	// The marker only makes an idle writer apply the reset early; any later op, or Close,
	// applies it too.
	j.enqueue(journalOp{gen: gen, marker: true})
}

func (j *Journal) enqueue(op journalOp) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return
	}
	select {
	case j.queue <- op:
	default:
		if !op.marker {
			n := j.dropped.Add(1)
			j.logger.Warn("journal queue full, detection not logged",
				"session", j.session.ID, "bucket", op.event.Position(), "dropped", n)
		}
	}
}

// Sync waits until every write queued before it has been applied.
func (j *Journal) Sync(ctx context.Context) error {
	synced := make(chan struct{})
	op := journalOp{marker: true, synced: synced, gen: j.gen.Load()}

	j.mu.RLock()
	if j.closed {
		j.mu.RUnlock()
		return ErrJournalClosed
	}
	select {
	case j.queue <- op:
		j.mu.RUnlock()
	case <-ctx.Done():
		j.mu.RUnlock()
		return ctx.Err()
	}

	select {
	case <-synced:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting work, writes everything still queued and waits for the writer.
func (j *Journal) Close() {
	j.mu.Lock()
	if !j.closed {
		j.closed = true
		close(j.queue)
	}
	j.mu.Unlock()
	<-j.done
}

// Flush stores counts as the session's authoritative totals.
func (j *Journal) Flush(ctx context.Context, counts []uint64) error {
	return j.store.SaveCounts(ctx, j.session.ID, counts)
}

func (j *Journal) run() {
	defer close(j.done)
	for op := range j.queue {
		j.apply(op)
	}
	// A reset whose marker was dropped still lands.
	j.catchUp(j.gen.Load())
}

func (j *Journal) apply(op journalOp) {
	j.catchUp(op.gen)
	if op.synced != nil {
		close(op.synced)
	}
	if op.marker {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	if err := j.store.RecordDetection(ctx, j.session.ID, op.event); err != nil {
		j.logger.Error("persisting detection", "error", err, "session", j.session.ID, "bucket", op.event.Position())
	}
}

// catchUp applies the resets queued up to generation gen.
func (j *Journal) catchUp(gen uint64) {
	if gen <= j.applied {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	if err := j.store.ResetCounts(ctx, j.session.ID); err != nil {
		j.logger.Error("resetting counts", "error", err, "session", j.session.ID)
	}
	j.applied = gen
	j.logger.Debug("session counts reset", "session", j.session.ID)
}
