package persist

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// ValidationWriter batches validation records onto a buffered channel and
// flushes them to the store from a single background worker, so a
// validation handler is never blocked on a disk write.
type ValidationWriter struct {
	store *Store
	log   *slog.Logger
	queue chan *ValidationRecord
	group *errgroup.Group
	stop  context.CancelFunc
}

// NewValidationWriter starts the background worker. Call Close to drain and stop it.
func NewValidationWriter(ctx context.Context, store *Store, bufferSize int, log *slog.Logger) *ValidationWriter {
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(ctx)
	group, ctx := errgroup.WithContext(ctx)

	w := &ValidationWriter{
		store: store,
		log:   log,
		queue: make(chan *ValidationRecord, bufferSize),
		group: group,
		stop:  cancel,
	}
	group.Go(func() error { return w.run(ctx) })
	return w
}

// Enqueue schedules v for asynchronous persistence. It never blocks the
// caller on disk I/O; if the queue is full the record is dropped and logged
// (the in-memory `by_ledger`/`current` indexes remain authoritative — this
// queue only feeds the forensic copy).
func (w *ValidationWriter) Enqueue(v *ValidationRecord) {
	select {
	case w.queue <- v:
	default:
		w.log.Warn("persist: validation write queue full, dropping", "ledger_hash", v.LedgerHash.String())
	}
}

func (w *ValidationWriter) run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return nil
		case v := <-w.queue:
			w.write(ctx, v)
		}
	}
}

func (w *ValidationWriter) write(ctx context.Context, v *ValidationRecord) {
	if err := w.store.SaveValidation(ctx, v); err != nil {
		w.log.Warn("persist: async validation write failed", "err", err, "ledger_hash", v.LedgerHash.String())
	}
}

func (w *ValidationWriter) drain() {
	for {
		select {
		case v := <-w.queue:
			w.write(context.Background(), v)
		default:
			return
		}
	}
}

// Close stops the worker, which drains whatever is already queued, and
// waits for it to exit. Enqueue is not guarded after Close: a record
// enqueued after the drain sits in the queue and is never written.
func (w *ValidationWriter) Close() error {
	w.stop()
	return w.group.Wait()
}
