// Package dispatch turns scanner diff records into wire events, holding
// each (watch, relative path) in a short debounce window before it is
// translated and queued for its client.
package dispatch

import (
	"sync"
	"time"

	"github.com/fakenotify/fakenotifyd/internal/scanner"
)

// DefaultDebounceWindow is the spec's "~500 ms" default.
const DefaultDebounceWindow = 500 * time.Millisecond

type pendingKind int

const (
	pendingNone pendingKind = iota
	pendingCreate
	pendingDelete
	pendingModify
)

type pendingEntry struct {
	kind  pendingKind
	isDir bool
	timer *time.Timer
}

// debouncer holds one watch's in-flight (path -> pending record) state.
// It is not safe for concurrent use by itself; the Dispatcher keeps one
// lock per watch descriptor and passes it to feed.
type debouncer struct {
	window  time.Duration
	pending map[string]*pendingEntry
	flush   func(path string, kind pendingKind, isDir bool)
}

func newDebouncer(window time.Duration, flush func(path string, kind pendingKind, isDir bool)) *debouncer {
	return &debouncer{window: window, pending: make(map[string]*pendingEntry), flush: flush}
}

// feed applies the collapse rules from spec.md §4.4 to one diff record:
//   - repeat records of the same kind for the same path inside the window
//     collapse into one, timestamped at the window's close;
//   - DELETE following CREATE inside the window cancels both;
//   - MODIFY following CREATE collapses to a single CREATE.
func (d *debouncer) feed(mu *sync.Mutex, rec scanner.Record) {
	kind := fromRecordKind(rec.Kind)

	mu.Lock()
	entry, exists := d.pending[rec.RelPath]
	switch {
	case !exists:
		entry = &pendingEntry{kind: kind, isDir: rec.IsDir}
		d.pending[rec.RelPath] = entry
	case entry.kind == pendingCreate && kind == pendingDelete:
		entry.timer.Stop()
		delete(d.pending, rec.RelPath)
		mu.Unlock()
		return
	case entry.kind == pendingCreate && kind == pendingModify:
		// stays CREATE; timer keeps its original deadline
		mu.Unlock()
		return
	default:
		entry.timer.Stop()
		entry.kind = kind
		entry.isDir = rec.IsDir
	}

	path := rec.RelPath
	entry.timer = time.AfterFunc(d.window, func() {
		mu.Lock()
		cur, ok := d.pending[path]
		if !ok {
			mu.Unlock()
			return
		}
		delete(d.pending, path)
		k, isDir := cur.kind, cur.isDir
		mu.Unlock()
		d.flush(path, k, isDir)
	})
	mu.Unlock()
}

func fromRecordKind(k scanner.RecordKind) pendingKind {
	switch k {
	case scanner.RecordCreate:
		return pendingCreate
	case scanner.RecordDelete:
		return pendingDelete
	default:
		return pendingModify
	}
}
