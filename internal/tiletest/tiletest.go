// Package tiletest provides recording fakes of the tile collaborators for tests.
package tiletest

import (
	"context"
	"fmt"
	"sync"

	"github.com/eak1mov/go-tilestream/event"
	"github.com/eak1mov/go-tilestream/tile"
)

// Loader fills payloads with "tile:i:j" and records every call.
// Errors registered with FailOnce are returned once for the given index.
type Loader struct {
	mu     sync.Mutex
	calls  []tile.Index
	counts map[tile.Index]int
	fail   map[tile.Index]error
}

func NewLoader() *Loader {
	return &Loader{
		counts: make(map[tile.Index]int),
		fail:   make(map[tile.Index]error),
	}
}

func (l *Loader) FailOnce(idx tile.Index, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fail[idx] = err
}

func (l *Loader) Load(_ context.Context, t *tile.Tile) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.calls = append(l.calls, t.Index)
	if err, ok := l.fail[t.Index]; ok {
		delete(l.fail, t.Index)
		return err
	}
	l.counts[t.Index]++
	t.Payload = Payload(t.Index)
	return nil
}

// Calls returns every index Load was called with, failed calls included.
func (l *Loader) Calls() []tile.Index {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]tile.Index(nil), l.calls...)
}

// Loaded returns how many times idx was loaded successfully.
func (l *Loader) Loaded(idx tile.Index) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[idx]
}

func Payload(idx tile.Index) []byte {
	return fmt.Appendf(nil, "tile:%d:%d", idx.I, idx.J)
}

type Call struct {
	Op    string
	Index tile.Index
}

// Activator records activator calls.
type Activator struct {
	mu    sync.Mutex
	calls []Call
}

func (a *Activator) Activate(t *tile.Tile)   { a.record("activate", t) }
func (a *Activator) Deactivate(t *tile.Tile) { a.record("deactivate", t) }
func (a *Activator) Destroy(t *tile.Tile)    { a.record("destroy", t) }

func (a *Activator) record(op string, t *tile.Tile) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, Call{Op: op, Index: t.Index})
}

func (a *Activator) Calls() []Call {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Call(nil), a.calls...)
}

// Recorder is an event.Sink keeping every published event.
type Recorder struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *Recorder) Publish(e event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *Recorder) Events() []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event.Event(nil), r.events...)
}

// Indices returns the indices of events of the given kind, in order.
func (r *Recorder) Indices(kind event.Kind) []tile.Index {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []tile.Index
	for _, e := range r.events {
		if e.Kind == kind {
			result = append(result, e.Index)
		}
	}
	return result
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
