// Package scanner polls a watched filesystem root on a timer and diffs
// successive snapshots into create/delete/modify records, standing in for
// the kernel's own inotify machinery on filesystems (network mounts,
// mainly) where that machinery does not work.
package scanner

import (
	"sync"
	"time"

	"github.com/syndtr/gocapability/capability"

	"github.com/fakenotify/fakenotifyd/internal/logging"
)

// DefaultMaxEntries bounds a single watch's tracked entry count before the
// scanner gives up and reports overflow.
const DefaultMaxEntries = 50000

// Sink receives a scanner's output. The daemon wires this to
// internal/dispatch so a scanner never needs to know about clients,
// debounce windows, or the wire protocol.
type Sink interface {
	// Changed is called once per tick with the ordered diff records for
	// canonicalRoot. It must not block on network I/O.
	Changed(canonicalRoot string, records []Record)
	// Overflow is called when canonicalRoot's entry count exceeded the
	// configured limit; the scanner stops tracking the root afterward.
	Overflow(canonicalRoot string)
	// RootGone is called once, when canonicalRoot has disappeared from the
	// filesystem entirely; the scanner terminates afterward.
	RootGone(canonicalRoot string)
}

// Scanner owns one goroutine polling one canonical root.
type Scanner struct {
	root       string
	recursive  bool
	maxEntries int
	sink       Sink

	mu       sync.Mutex
	interval time.Duration
	ticker   *time.Ticker

	stop   chan struct{}
	stopped sync.Once
}

// Option configures a new Scanner.
type Option func(*Scanner)

func WithMaxEntries(n int) Option {
	return func(s *Scanner) { s.maxEntries = n }
}

// New starts a scanner for root, polling at interval, and returns
// immediately; the scan loop runs on its own goroutine.
func New(root string, recursive bool, interval time.Duration, sink Sink, opts ...Option) *Scanner {
	s := &Scanner{
		root:       root,
		recursive:  recursive,
		maxEntries: DefaultMaxEntries,
		sink:       sink,
		interval:   interval,
		stop:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	warnIfMissingCapability()
	s.ticker = time.NewTicker(interval)
	go s.run()
	return s
}

// SetInterval re-sizes the scan period to the minimum interval currently
// requested across this root's watchers; the registry calls this whenever
// a watcher is added to or removed from an already-running scanner.
func (s *Scanner) SetInterval(interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if interval == s.interval {
		return
	}
	s.interval = interval
	s.ticker.Reset(interval)
}

// Stop terminates the scan loop. Safe to call more than once.
func (s *Scanner) Stop() {
	s.stopped.Do(func() {
		close(s.stop)
	})
}

func (s *Scanner) run() {
	defer s.ticker.Stop()
	// The first successful walk only records the baseline snapshot: entries
	// already present when the scanner starts produce no records.
	prev, err := walk(s.root, s.recursive, s.maxEntries)
	if err != nil {
		prev = nil
	}
	for {
		select {
		case <-s.stop:
			return
		case <-s.ticker.C:
		}

		curr, err := walk(s.root, s.recursive, s.maxEntries)
		switch err {
		case nil:
			if prev != nil {
				records := diff(prev, curr)
				if len(records) > 0 {
					s.sink.Changed(s.root, records)
				}
			}
			prev = curr
		case ErrTooManyEntries:
			s.sink.Overflow(s.root)
			return
		case ErrRootGone:
			s.sink.RootGone(s.root)
			return
		default:
			// Transient I/O error walking the root itself; self-correct
			// on the next tick.
		}
	}
}

// warnIfMissingCapability logs (does not fail) when the daemon lacks
// CAP_DAC_READ_SEARCH, since a recursive walk under a directory it cannot
// read will silently skip entries rather than error.
func warnIfMissingCapability() {
	caps, err := capability.NewPid2(0)
	if err != nil {
		return
	}
	if err := caps.Load(); err != nil {
		return
	}
	if !caps.Get(capability.EFFECTIVE, capability.CAP_DAC_READ_SEARCH) {
		logging.LogSugar.Warn("CAP_DAC_READ_SEARCH not held; recursive walks may silently skip unreadable subtrees")
	}
}
