package core

import (
	"sync"

	"github.com/luciancaetano/duplexnet"
)

type namedEntry struct {
	id duplexnet.ListenerID
	fn duplexnet.EventListener
}

type anyEntry struct {
	id duplexnet.ListenerID
	fn duplexnet.AnyListener
}

// dispatcher owns the named-event and wildcard listener registries and
// fans out decoded broadcast frames. Insertion order is invocation order;
// dispatch iterates over a snapshot, so concurrent removal never affects a
// dispatch already in progress.
type dispatcher struct {
	mu       sync.Mutex
	nextID   duplexnet.ListenerID
	named    map[string][]namedEntry
	wildcard []anyEntry
}

func newDispatcher() *dispatcher {
	return &dispatcher{named: make(map[string][]namedEntry)}
}

func (d *dispatcher) on(event string, fn duplexnet.EventListener) duplexnet.ListenerID {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	id := d.nextID
	d.named[event] = append(d.named[event], namedEntry{id: id, fn: fn})
	return id
}

// once wraps fn so its first invocation removes the registration before
// delegating. The sync.Once guard keeps the wrapper at-most-once even if
// two dispatches snapshot it concurrently.
func (d *dispatcher) once(event string, fn duplexnet.EventListener) duplexnet.ListenerID {
	d.mu.Lock()
	d.nextID++
	id := d.nextID
	d.mu.Unlock()

	var fire sync.Once
	wrapper := func(client duplexnet.Client, args []any) {
		fire.Do(func() {
			d.off(event, id)
			fn(client, args)
		})
	}

	d.mu.Lock()
	d.named[event] = append(d.named[event], namedEntry{id: id, fn: wrapper})
	d.mu.Unlock()
	return id
}

// off removes one registration; no-op if absent.
func (d *dispatcher) off(event string, id duplexnet.ListenerID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	entries := d.named[event]
	for i, e := range entries {
		if e.id == id {
			d.named[event] = append(entries[:i:i], entries[i+1:]...)
			if len(d.named[event]) == 0 {
				delete(d.named, event)
			}
			return
		}
	}
}

func (d *dispatcher) onAny(fn duplexnet.AnyListener) duplexnet.ListenerID {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	id := d.nextID
	d.wildcard = append(d.wildcard, anyEntry{id: id, fn: fn})
	return id
}

func (d *dispatcher) offAny(id duplexnet.ListenerID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, e := range d.wildcard {
		if e.id == id {
			d.wildcard = append(d.wildcard[:i:i], d.wildcard[i+1:]...)
			return
		}
	}
}

// offAll clears one event's listener list.
func (d *dispatcher) offAll(event string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.named, event)
}

// reset clears every named event's listener list. The wildcard list is
// untouched.
func (d *dispatcher) reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.named = make(map[string][]namedEntry)
}

// dispatch fans one decoded broadcast out: wildcard listeners first (with
// the event name), then the event's own listeners, both in registration
// order. No registered listeners is a silent no-op.
func (d *dispatcher) dispatch(client duplexnet.Client, event string, args []any) {
	d.mu.Lock()
	wildcard := append([]anyEntry(nil), d.wildcard...)
	named := append([]namedEntry(nil), d.named[event]...)
	d.mu.Unlock()

	for _, e := range wildcard {
		e.fn(client, event, args)
	}
	for _, e := range named {
		e.fn(client, args)
	}
}
