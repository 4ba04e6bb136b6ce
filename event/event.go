// Package event defines the tile lifecycle notifications published by the
// tile manager.
package event

import (
	"fmt"
	"sync"
	"time"

	"github.com/eak1mov/go-tilestream/tile"
	"github.com/paulmach/orb"
)

type Kind uint8

const (
	LoadStarted Kind = iota + 1
	LoadFinished
	Activated
	Deactivated
	Destroyed
)

var kindNames = map[Kind]string{
	LoadStarted:  "load_started",
	LoadFinished: "load_finished",
	Activated:    "activated",
	Deactivated:  "deactivated",
	Destroyed:    "destroyed",
}

// Kinds lists every kind in lifecycle order.
func Kinds() []Kind {
	return []Kind{LoadStarted, LoadFinished, Activated, Deactivated, Destroyed}
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Event is a single lifecycle notification.
//
// Tile is nil for LoadStarted: the tile does not exist yet, only its
// index and centre are known.
type Event struct {
	Kind   Kind
	Index  tile.Index
	Center orb.Point
	Tile   *tile.Tile
	Time   time.Time
}

// Sink receives lifecycle notifications. Publish must not call back into
// the publisher.
type Sink interface {
	Publish(e Event)
}

type SinkFunc func(e Event)

func (f SinkFunc) Publish(e Event) { f(e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// Bus fans events out to every subscribed sink, in subscription order.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	ids    []int
	sinks  map[int]Sink
}

func NewBus(sinks ...Sink) *Bus {
	b := &Bus{sinks: make(map[int]Sink)}
	for _, s := range sinks {
		b.Subscribe(s)
	}
	return b
}

// Subscribe adds s to the bus. The returned function removes it again.
func (b *Bus) Subscribe(s Sink) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.ids = append(b.ids, id)
	b.sinks[id] = s

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Bus) remove(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.sinks, id)
	for i, v := range b.ids {
		if v == id {
			b.ids = append(b.ids[:i], b.ids[i+1:]...)
			break
		}
	}
}

func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, id := range b.ids {
		b.sinks[id].Publish(e)
	}
}

// Len returns the number of subscribed sinks.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.ids)
}
