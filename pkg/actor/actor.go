// Package actor provides a minimal per-key serial executor. Every key owns a
// mailbox drained by a single goroutine, so all turns submitted under one key
// run one at a time in arrival order while different keys proceed
// independently. The song-request core uses one key per channel to reproduce
// the single-writer guarantee its state transitions rely on.
package actor

import (
	"context"
	"sync"
)

// Runtime dispatches turns to per-key mailboxes. The zero value is not
// usable; construct with New.
type Runtime struct {
	mu     sync.Mutex
	boxes  map[string]*mailbox
	closed bool
	wg     sync.WaitGroup
}

type mailbox struct {
	turns chan func()
}

// New returns a Runtime ready to accept turns.
func New() *Runtime {
	return &Runtime{boxes: make(map[string]*mailbox)}
}

// Do runs fn on the mailbox goroutine for key and waits for it to finish.
// Turns for the same key never interleave. When ctx is cancelled before the
// turn completes Do returns ctx.Err(); the turn itself still runs to
// completion on the mailbox so state is never left half-applied.
func (r *Runtime) Do(ctx context.Context, key string, fn func()) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return context.Canceled
	}
	box, ok := r.boxes[key]
	if !ok {
		box = &mailbox{turns: make(chan func(), 64)}
		r.boxes[key] = box
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			for turn := range box.turns {
				turn()
			}
		}()
	}
	r.mu.Unlock()

	done := make(chan struct{})
	select {
	case box.turns <- func() { fn(); close(done) }:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting new turns and waits for queued turns to drain.
func (r *Runtime) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	for _, box := range r.boxes {
		close(box.turns)
	}
	r.mu.Unlock()
	r.wg.Wait()
}
