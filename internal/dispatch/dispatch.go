package dispatch

import (
	"path"
	"strings"
	"sync"
	"time"

	"github.com/fakenotify/fakenotifyd/internal/registry"
	"github.com/fakenotify/fakenotifyd/internal/scanner"
	"github.com/fakenotify/fakenotifyd/internal/wire"
)

// Dispatcher implements scanner.Sink: it receives a root's diff records,
// debounces them per (watch, relative path), translates survivors to
// wire.Event, and fans them out to every client watching that root.
type Dispatcher struct {
	reg    *registry.Registry
	window time.Duration

	mu         sync.Mutex
	debouncers map[int32]*debouncer // wd -> debouncer
	locks      map[int32]*sync.Mutex
	queues     map[uint64]*ClientQueue // clientID -> outbound queue
}

// New builds a Dispatcher backed by reg. window overrides
// DefaultDebounceWindow when non-zero.
func New(reg *registry.Registry, window time.Duration) *Dispatcher {
	if window == 0 {
		window = DefaultDebounceWindow
	}
	return &Dispatcher{
		reg:        reg,
		window:     window,
		debouncers: make(map[int32]*debouncer),
		locks:      make(map[int32]*sync.Mutex),
		queues:     make(map[uint64]*ClientQueue),
	}
}

// QueueFor returns (creating if necessary) the outbound queue for a
// client connection, so the daemon's connection-writer goroutine can
// drain it.
func (d *Dispatcher) QueueFor(clientID uint64) *ClientQueue {
	d.mu.Lock()
	defer d.mu.Unlock()
	q, ok := d.queues[clientID]
	if !ok {
		q = NewClientQueue(DefaultQueueDepth)
		d.queues[clientID] = q
	}
	return q
}

// DropClient forgets a disconnected client's queue.
func (d *Dispatcher) DropClient(clientID uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.queues, clientID)
}

// Changed implements scanner.Sink. A root's scanner always walks
// recursively, so records below the root's immediate children are skipped
// for non-recursive watches.
func (d *Dispatcher) Changed(canonicalRoot string, records []scanner.Record) {
	for _, w := range d.reg.WatchersOf(canonicalRoot) {
		lock, deb := d.debouncerFor(w.Wd)
		for _, rec := range records {
			if !maskMatches(w.Mask, rec.Kind) {
				continue
			}
			if !w.Recursive && strings.Contains(rec.RelPath, "/") {
				continue
			}
			rec := rec
			deb.feed(lock, rec)
		}
	}
}

// Overflow implements scanner.Sink.
func (d *Dispatcher) Overflow(canonicalRoot string) {
	for _, w := range d.reg.WatchersOf(canonicalRoot) {
		d.enqueue(w.ClientID, wire.Event{Wd: w.Wd, Mask: wire.QOverflow})
	}
}

// RootGone implements scanner.Sink.
func (d *Dispatcher) RootGone(canonicalRoot string) {
	for _, w := range d.reg.WatchersOf(canonicalRoot) {
		d.enqueue(w.ClientID, wire.Event{Wd: w.Wd, Mask: wire.Delete | wire.Ignored})
	}
}

// Ignored enqueues the terminal IGNORED event a descriptor's owning
// client must see exactly once, for an explicit REMOVE on a still-live
// connection (the connection-loss and root-gone paths emit their own).
func (d *Dispatcher) Ignored(clientID uint64, wd int32) {
	d.enqueue(clientID, wire.Event{Wd: wd, Mask: wire.Ignored})
}

func (d *Dispatcher) debouncerFor(wd int32) (*sync.Mutex, *debouncer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	lock, ok := d.locks[wd]
	if !ok {
		lock = &sync.Mutex{}
		d.locks[wd] = lock
	}
	deb, ok := d.debouncers[wd]
	if !ok {
		deb = newDebouncer(d.window, d.makeFlush(wd))
		d.debouncers[wd] = deb
	}
	return lock, deb
}

func (d *Dispatcher) makeFlush(wd int32) func(relPath string, kind pendingKind, isDir bool) {
	return func(relPath string, kind pendingKind, isDir bool) {
		w := d.watchByWd(wd)
		if w == nil {
			return
		}
		ev := wire.Event{
			Wd:     wd,
			Mask:   maskFor(kind, isDir),
			Cookie: 0,
			Name:   path.Base(strings.TrimSuffix(relPath, "/")),
		}
		d.enqueue(w.ClientID, ev)
	}
}

func (d *Dispatcher) watchByWd(wd int32) *registry.Watch {
	for _, w := range d.reg.List() {
		if w.Wd == wd {
			return &w
		}
	}
	return nil
}

func (d *Dispatcher) enqueue(clientID uint64, ev wire.Event) {
	d.QueueFor(clientID).Push(ev)
}

func maskFor(kind pendingKind, isDir bool) wire.Mask {
	var m wire.Mask
	switch kind {
	case pendingCreate:
		m = wire.Create
	case pendingDelete:
		m = wire.Delete
	case pendingModify:
		m = wire.Modify
	}
	if isDir {
		m |= wire.IsDir
	}
	return m
}

func maskMatches(watchMask uint32, kind scanner.RecordKind) bool {
	m := wire.Mask(watchMask)
	switch kind {
	case scanner.RecordCreate:
		return m.Any(wire.Create)
	case scanner.RecordDelete:
		return m.Any(wire.Delete)
	default:
		return m.Any(wire.Modify)
	}
}
