package storage

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// RecordWriter is the write half of the record store.
type RecordWriter interface {
	Set(key string, value []byte) error
}

// Debouncer coalesces high-frequency record writes. Only the latest value per
// key is written once the delay elapses without a newer Set. Pending writes
// are flushed by Flush and Close; after Close, Set writes through.
type Debouncer struct {
	w      RecordWriter
	delay  time.Duration
	logger *slog.Logger

	writeMu sync.Mutex // orders flushes so an older value never lands after a newer one

	mu      sync.Mutex
	pending map[string][]byte
	timer   *time.Timer
	closed  bool
}

// NewDebouncer creates a Debouncer writing to w. If delay <= 0 it defaults to 250ms.
func NewDebouncer(w RecordWriter, delay time.Duration) *Debouncer {
	if delay <= 0 {
		delay = 250 * time.Millisecond
	}
	return &Debouncer{
		w:       w,
		delay:   delay,
		logger:  slog.Default(),
		pending: make(map[string][]byte),
	}
}

// Set schedules value to be written under key.
func (d *Debouncer) Set(key string, value []byte) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return d.w.Set(key, value)
	}
	d.pending[key] = value
	if d.timer == nil {
		d.timer = time.AfterFunc(d.delay, d.fire)
	} else {
		d.timer.Reset(d.delay)
	}
	d.mu.Unlock()
	return nil
}

func (d *Debouncer) fire() {
	if err := d.Flush(); err != nil {
		d.logger.Warn("debounced write failed, will retry on next write", "error", err)
	}
}

// Flush writes all pending values now. Values that fail to write are kept
// pending unless a newer value arrived meanwhile.
func (d *Debouncer) Flush() error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	d.mu.Lock()
	batch := d.pending
	d.pending = make(map[string][]byte)
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()

	var errs []error
	for key, value := range batch {
		if err := d.w.Set(key, value); err != nil {
			errs = append(errs, fmt.Errorf("writing %s: %w", key, err))
			d.mu.Lock()
			if _, newer := d.pending[key]; !newer {
				d.pending[key] = value
			}
			d.mu.Unlock()
		}
	}
	return errors.Join(errs...)
}

// Pending reports how many keys are waiting to be written.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Close flushes pending writes and switches the Debouncer to write-through.
func (d *Debouncer) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return d.Flush()
}
