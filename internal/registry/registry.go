// Package registry tracks live watches: descriptor allocation, the
// client/path/descriptor graph, and the scanner reference counts that
// decide when a scanner root is torn down.
package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fakenotify/fakenotifyd/internal/proto"
)

var (
	ErrAlreadyWatching = errors.New("registry: client already watching this path")
	ErrUnknownWatch    = errors.New("registry: unknown watch descriptor")
	ErrDescriptorSpace = errors.New("registry: watch descriptor space exhausted")
	ErrNotADirectory   = errors.New("registry: recursive watch requires a directory")
)

// DefaultPollInterval is substituted for Add/AddWithWd callers that pass a
// non-positive interval, so a scanner is never started with a zero period.
const DefaultPollInterval = 5 * time.Second

// Watch is one (client, canonical path) registration: the unit spec.md
// calls a "watch record".
type Watch struct {
	Wd            int32
	ClientID      uint64
	CanonicalPath string
	Mask          uint32
	Recursive     bool
	Interval      time.Duration
}

// Client is one connected shim/application, identified by its accepted
// connection and (when available) its peer credentials.
type Client struct {
	ID            uint64
	CorrelationID string
	PID           int32
	UID           uint32
	watches       map[int32]struct{}
}

// ScannerHandle is the subset of a scanner's lifecycle the registry needs
// to drive: start it on first reference, retune its poll period whenever
// watchers join or leave its root, stop it when the last watcher goes
// away. The concrete scanner type lives in package scanner and is handed
// to the registry through this narrow interface, so package registry does
// not import package scanner.
type ScannerHandle interface {
	Stop()
	SetInterval(time.Duration)
}

// Registry is safe for concurrent use. Its lock is never held across I/O:
// callers read or mutate the maps, then release before touching the
// network or filesystem.
type Registry struct {
	mu sync.Mutex

	nextWd   int32
	watches  map[int32]*Watch
	byClient map[uint64]map[string]int32 // clientID -> canonicalPath -> wd
	clients  map[uint64]*Client

	scanners     map[string]ScannerHandle // canonicalPath -> scanner
	scannerRefs  map[string]int
	startScanner func(canonicalPath string, interval time.Duration) (ScannerHandle, error)
}

// New returns an empty Registry. startScanner is called the first time a
// path gains a watcher, with the interval that watcher requested; it is
// the registry's only hook into package scanner, injected by the daemon
// at wiring time.
func New(startScanner func(canonicalPath string, interval time.Duration) (ScannerHandle, error)) *Registry {
	return &Registry{
		nextWd:       1,
		watches:      make(map[int32]*Watch),
		byClient:     make(map[uint64]map[string]int32),
		clients:      make(map[uint64]*Client),
		scanners:     make(map[string]ScannerHandle),
		scannerRefs:  make(map[string]int),
		startScanner: startScanner,
	}
}

// RegisterClient records a newly accepted connection. pid/uid are 0 when
// SO_PEERCRED lookup failed or is unavailable on the platform.
func (r *Registry) RegisterClient(id uint64, pid int32, uid uint32) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := &Client{ID: id, CorrelationID: uuid.NewString(), PID: pid, UID: uid, watches: make(map[int32]struct{})}
	r.clients[id] = c
	return c
}

// UnregisterClient removes a client and releases every watch it held,
// stopping any scanner whose reference count drops to zero and returning
// the canonical paths of those drained scanners, for the caller to log.
func (r *Registry) UnregisterClient(id uint64) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[id]
	if !ok {
		return nil
	}
	var drained []string
	for wd := range c.watches {
		w := r.watches[wd]
		if w == nil {
			continue
		}
		delete(r.watches, wd)
		if r.releaseScannerRefLocked(w.CanonicalPath) {
			drained = append(drained, w.CanonicalPath)
		}
	}
	delete(r.byClient, id)
	delete(r.clients, id)
	return drained
}

// Add canonicalizes path, allocates a descriptor, and starts or attaches
// to a shared scanner for the root. Two watches from the same client on
// the same canonical path are rejected; watches from different clients on
// the same path get distinct descriptors but share one scanner, whose
// poll period is retuned to the minimum interval any of its watchers
// requested (spec.md §4.3). A non-positive interval is replaced with
// DefaultPollInterval.
func (r *Registry) Add(clientID uint64, path string, mask uint32, recursive bool, interval time.Duration) (int32, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	canonical, err := canonicalize(path, recursive)
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	if paths, ok := r.byClient[clientID]; ok {
		if _, dup := paths[canonical]; dup {
			r.mu.Unlock()
			return 0, ErrAlreadyWatching
		}
	}
	needsScanner := r.scannerRefs[canonical] == 0
	r.mu.Unlock()

	var handle ScannerHandle
	if needsScanner {
		handle, err = r.startScanner(canonical, interval)
		if err != nil {
			return 0, err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if needsScanner {
		// Another goroutine may have raced us to start the same scanner;
		// the loser's handle is stopped and the winner's kept.
		if existing, ok := r.scanners[canonical]; ok {
			handle.Stop()
			handle = existing
		} else {
			r.scanners[canonical] = handle
		}
	}

	wd, err := r.allocateLocked()
	if err != nil {
		if needsScanner && r.scannerRefs[canonical] == 0 {
			delete(r.scanners, canonical)
			handle.Stop()
		}
		return 0, err
	}

	w := &Watch{Wd: wd, ClientID: clientID, CanonicalPath: canonical, Mask: mask, Recursive: recursive, Interval: interval}
	r.watches[wd] = w
	if r.byClient[clientID] == nil {
		r.byClient[clientID] = make(map[string]int32)
	}
	r.byClient[clientID][canonical] = wd
	if c := r.clients[clientID]; c != nil {
		c.watches[wd] = struct{}{}
	}
	r.scannerRefs[canonical]++
	if !needsScanner {
		r.retuneScannerLocked(canonical)
	}
	return wd, nil
}

// AddWithWd is Add, but asserts the descriptor value instead of allocating
// a fresh one. It exists for shim reconnect replay (spec.md §4.1): the
// daemon must honour the original wd the shim asserts so the application
// never observes a descriptor change across a daemon restart.
func (r *Registry) AddWithWd(clientID uint64, wd int32, path string, mask uint32, recursive bool, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	canonical, err := canonicalize(path, recursive)
	if err != nil {
		return err
	}

	r.mu.Lock()
	if _, taken := r.watches[wd]; taken {
		r.mu.Unlock()
		return fmt.Errorf("registry: descriptor %d already in use", wd)
	}
	needsScanner := r.scannerRefs[canonical] == 0
	r.mu.Unlock()

	var handle ScannerHandle
	if needsScanner {
		handle, err = r.startScanner(canonical, interval)
		if err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if needsScanner {
		if _, ok := r.scanners[canonical]; ok {
			handle.Stop()
		} else {
			r.scanners[canonical] = handle
		}
	}

	w := &Watch{Wd: wd, ClientID: clientID, CanonicalPath: canonical, Mask: mask, Recursive: recursive, Interval: interval}
	r.watches[wd] = w
	if r.byClient[clientID] == nil {
		r.byClient[clientID] = make(map[string]int32)
	}
	r.byClient[clientID][canonical] = wd
	if c := r.clients[clientID]; c != nil {
		c.watches[wd] = struct{}{}
	}
	if wd >= r.nextWd {
		r.nextWd = wd + 1
	}
	r.scannerRefs[canonical]++
	if !needsScanner {
		r.retuneScannerLocked(canonical)
	}
	return nil
}

// Remove drops a descriptor, stopping the path's scanner if the
// descriptor was its last reference, and returns the canonical path of
// the drained scanner, or "" if the scanner is still referenced.
//
// Client authentication is recorded but not enforced (spec.md §4.2): any
// connected client, including the administrative CLI's own short-lived
// connection, may remove any descriptor it knows the value of.
func (r *Registry) Remove(clientID uint64, wd int32) (drainedPath string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.watches[wd]
	if !ok {
		return "", ErrUnknownWatch
	}
	delete(r.watches, wd)
	if paths := r.byClient[w.ClientID]; paths != nil {
		delete(paths, w.CanonicalPath)
	}
	if c := r.clients[w.ClientID]; c != nil {
		delete(c.watches, wd)
	}
	if r.releaseScannerRefLocked(w.CanonicalPath) {
		return w.CanonicalPath, nil
	}
	r.retuneScannerLocked(w.CanonicalPath)
	return "", nil
}

// WatchByWd returns a copy of the watch registered under wd, so a caller
// (handleRemove, in particular) can learn the watch's owning client before
// the descriptor is torn down.
func (r *Registry) WatchByWd(wd int32) (Watch, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.watches[wd]
	if !ok {
		return Watch{}, false
	}
	return *w, true
}

// releaseScannerRefLocked decrements the scanner reference count for path
// and reports whether it reached zero. When it does, the drained scanner
// is stopped before its entry is dropped: Stop only closes a channel, not
// I/O, so it is safe to call while holding r.mu. Callers hold r.mu.
func (r *Registry) releaseScannerRefLocked(path string) bool {
	r.scannerRefs[path]--
	if r.scannerRefs[path] <= 0 {
		delete(r.scannerRefs, path)
		if handle, ok := r.scanners[path]; ok {
			handle.Stop()
		}
		delete(r.scanners, path)
		return true
	}
	return false
}

// retuneScannerLocked resets path's scanner to the minimum interval among
// its remaining watchers (spec.md §4.3). A no-op if path has no scanner,
// e.g. it was just drained. Callers hold r.mu.
func (r *Registry) retuneScannerLocked(path string) {
	handle, ok := r.scanners[path]
	if !ok {
		return
	}
	var min time.Duration
	for _, w := range r.watches {
		if w.CanonicalPath != path {
			continue
		}
		if min == 0 || w.Interval < min {
			min = w.Interval
		}
	}
	if min > 0 {
		handle.SetInterval(min)
	}
}

// WatchersOf returns every watch currently registered against path,
// canonicalized the same way Add does. Used by the dispatcher to fan a
// scanner's diff records out to every client watching that root.
func (r *Registry) WatchersOf(canonicalPath string) []*Watch {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Watch
	for _, w := range r.watches {
		if w.CanonicalPath == canonicalPath {
			out = append(out, w)
		}
	}
	return out
}

// List returns a stable snapshot of every watch, for the LIST control
// operation. It never touches the scanner, satisfying spec.md §4.5's
// "MUST not block scanner progress" requirement by construction: it only
// ever takes r.mu.
func (r *Registry) List() []Watch {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Watch, 0, len(r.watches))
	for _, w := range r.watches {
		out = append(out, *w)
	}
	return out
}

// Status is the STATUS control operation's read model.
type Status struct {
	TotalClients int
	TotalWatches int
}

func (r *Registry) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Status{TotalClients: len(r.clients), TotalWatches: len(r.watches)}
}

func (r *Registry) allocateLocked() (int32, error) {
	if r.nextWd <= 0 {
		return 0, ErrDescriptorSpace
	}
	wd := r.nextWd
	r.nextWd++
	return wd, nil
}

func canonicalize(path string, recursive bool) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", &proto.Error{Code: proto.ErrInvalidArgument, Message: err.Error()}
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", &proto.Error{Code: proto.ErrNotFound, Message: err.Error()}
	}
	if recursive {
		info, err := os.Stat(resolved)
		if err != nil {
			return "", &proto.Error{Code: proto.ErrNotFound, Message: err.Error()}
		}
		if !info.IsDir() {
			return "", &proto.Error{Code: proto.ErrInvalidArgument, Message: ErrNotADirectory.Error()}
		}
	}
	return resolved, nil
}
