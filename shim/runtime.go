//go:build linux

package main

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sys/unix"

	"github.com/fakenotify/fakenotifyd/internal/proto"
	"github.com/fakenotify/fakenotifyd/internal/wire"
	"github.com/fakenotify/fakenotifyd/shim/internal/chanclose"
)

// fsnInstance is one inotify_init/inotify_init1 result: the pipe the
// application reads from, and the set of watch descriptors currently
// registered against it (kept so reconnects can replay them with their
// original wd values, per spec.md §4.1).
type fsnInstance struct {
	pipe            pipeEnds
	watches         map[int32]string // wd -> absolute path, as asserted to the app
	pendingOverflow bool
}

// runtime is the process-wide singleton: every interposed entry point
// funnels through it. Exactly one daemon connection is shared by every
// fsnInstance in the process, and exactly one goroutine (ingestionLoop)
// ever reads from it: RPC callers hand their request frame to doRPC,
// which writes it and waits for ingestionLoop to route the matching
// reply back over replyCh. This is what lets a single connection carry
// both the asynchronous EVENT stream and synchronous ADD/REMOVE/DETACH
// request-response pairs without either side racing the other's frame.
type runtime struct {
	mu   sync.Mutex
	once sync.Once

	connMu sync.Mutex
	conn   net.Conn
	epoch  chan struct{} // closed when conn is invalidated

	rpcMu   sync.Mutex // serializes control RPCs: only one in flight at a time
	replyCh chan proto.Frame

	instances map[int]*fsnInstance // reader fd -> instance
}

var globalRuntime = &runtime{
	instances: make(map[int]*fsnInstance),
	replyCh:   make(chan proto.Frame, 1),
}

func (r *runtime) ensureStarted() {
	r.once.Do(func() {
		resolveRealSymbols()
		go r.ingestionLoop()
	})
}

// initFSN implements inotify_init/inotify_init1: allocate a pipe, record
// the instance, and return the reader fd. A daemon connection failure is
// non-fatal; the pipe is returned regardless.
func (r *runtime) initFSN(flags int) (int, error) {
	r.ensureStarted()

	p, err := newPipe(flags)
	if err != nil {
		return -1, err
	}

	r.mu.Lock()
	r.instances[p.reader] = &fsnInstance{pipe: p, watches: make(map[int32]string)}
	r.mu.Unlock()

	r.connectIfNeeded()
	return p.reader, nil
}

// isManaged reports whether fd is a reader end this runtime owns.
func (r *runtime) isManaged(fd int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.instances[fd]
	return ok
}

// addWatch implements inotify_add_watch for a managed fd.
func (r *runtime) addWatch(fd int, path string, mask uint32) (int32, error) {
	f, err := r.doRPC(proto.NewAddFrame(proto.AddRequest{Mask: mask, Path: path}))
	if err != nil {
		return 0, err
	}
	switch f.Kind {
	case proto.KindAddOK:
		ok, perr := proto.ParseAddOK(f)
		if perr != nil {
			return 0, errTransport
		}
		r.mu.Lock()
		if inst, ok2 := r.instances[fd]; ok2 {
			inst.watches[ok.Wd] = path
		}
		r.mu.Unlock()
		return ok.Wd, nil
	case proto.KindAddErr:
		payload, perr := proto.ParseErrorPayload(f)
		if perr != nil {
			return 0, errTransport
		}
		return 0, payload.AsError()
	default:
		return 0, errTransport
	}
}

// rmWatch implements inotify_rm_watch for a managed fd.
func (r *runtime) rmWatch(fd int, wd int32) error {
	f, err := r.doRPC(proto.NewRemoveFrame(proto.RemoveRequest{Wd: wd}))
	if err != nil {
		return err
	}
	switch f.Kind {
	case proto.KindRemoveOK:
		r.mu.Lock()
		if inst, ok := r.instances[fd]; ok {
			delete(inst.watches, wd)
		}
		r.mu.Unlock()
		return nil
	case proto.KindRemoveErr:
		return errUnknownWatch
	default:
		return errTransport
	}
}

// detach implements close(fd) for a managed fd: notify the daemon, then
// forget the instance.
func (r *runtime) detach(fd int) {
	_, _ = r.doRPC(proto.NewDetachFrame())
	r.mu.Lock()
	delete(r.instances, fd)
	r.mu.Unlock()
}

var errTransport = errors.New("fakenotify: transport error")
var errUnknownWatch = errors.New("fakenotify: unknown watch descriptor")

// doRPC writes one request frame and waits for ingestionLoop to hand back
// the matching reply. rpcMu limits the process to one outstanding control
// RPC at a time, which is what lets a bare reply frame (no correlation
// ID on the wire) be routed back to the right caller.
func (r *runtime) doRPC(req proto.Frame) (proto.Frame, error) {
	r.rpcMu.Lock()
	defer r.rpcMu.Unlock()

	conn, epoch := r.connectIfNeeded()
	if conn == nil {
		return proto.Frame{}, errTransport
	}
	if err := proto.WriteFrame(conn, req); err != nil {
		r.dropConnection(conn)
		return proto.Frame{}, errTransport
	}

	select {
	case resp := <-r.replyCh:
		return resp, nil
	default:
	}
	select {
	case resp := <-r.replyCh:
		return resp, nil
	case <-epoch:
		return proto.Frame{}, errTransport
	}
}

// connectIfNeeded returns the current daemon connection and its epoch
// channel, dialing with bounded exponential backoff if absent. The dial
// itself runs with connMu held, so two goroutines racing in here never
// open two daemon connections; the loser just observes the winner's
// conn once the lock is released. A nil conn means the daemon is
// unreachable right now.
func (r *runtime) connectIfNeeded() (net.Conn, chan struct{}) {
	r.connMu.Lock()
	defer r.connMu.Unlock()
	if r.conn != nil {
		return r.conn, r.epoch
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 5 * time.Second
	b.MaxInterval = 2 * time.Second

	var conn net.Conn
	_ = backoff.Retry(func() error {
		c, err := net.DialTimeout("unix", proto.ResolveSocketPath(), 2*time.Second)
		if err != nil {
			return err
		}
		conn = c
		return nil
	}, b)

	if conn == nil {
		return nil, nil
	}

	r.conn = conn
	r.epoch = make(chan struct{})
	epoch := r.epoch
	go r.replayOnReconnect()
	return conn, epoch
}

// dropConnection invalidates conn if it is still the current one,
// closing its epoch channel so any doRPC call blocked waiting on a reply
// from it wakes up with errTransport instead of hanging forever.
func (r *runtime) dropConnection(stale net.Conn) {
	r.connMu.Lock()
	defer r.connMu.Unlock()
	if r.conn == stale {
		r.conn = nil
		chanclose.Close(r.epoch)
		r.epoch = nil
	}
}

// replayOnReconnect re-asserts every outstanding watch registration so
// descriptors stay valid from the application's perspective across a
// daemon restart (spec.md §4.1 "Connection loss").
func (r *runtime) replayOnReconnect() {
	r.mu.Lock()
	type replayItem struct {
		wd   int32
		path string
	}
	var items []replayItem
	for _, inst := range r.instances {
		for wd, path := range inst.watches {
			items = append(items, replayItem{wd: wd, path: path})
		}
	}
	r.mu.Unlock()

	for _, it := range items {
		_, _ = r.doRPC(proto.NewAddFrame(proto.AddRequest{Mask: uint32(wire.AllEvents), Path: it.path, AssertWd: it.wd}))
	}
}

// ingestionLoop is the single background worker per process that reads
// every frame off the daemon connection: EVENT frames are turned into
// pipe writes, everything else is routed to whichever doRPC call is
// currently waiting on replyCh.
func (r *runtime) ingestionLoop() {
	for {
		conn, _ := r.connectIfNeeded()
		if conn == nil {
			time.Sleep(time.Second)
			continue
		}

		for {
			f, err := proto.ReadFrame(conn)
			if err != nil {
				r.dropConnection(conn)
				break
			}
			if f.Kind == proto.KindEvent {
				r.deliver(f.Payload)
				continue
			}
			select {
			case r.replyCh <- f:
			default:
			}
		}
	}
}

// deliver writes one wire-encoded event to the pipe whose instance owns
// the event's wd. Writes are best-effort: EAGAIN/EWOULDBLOCK on a full
// pipe drops the event and flags a pending overflow for the next write.
func (r *runtime) deliver(encoded []byte) {
	ev, _, err := wire.Decode(encoded)
	if err != nil {
		return
	}

	r.mu.Lock()
	var target *fsnInstance
	for _, inst := range r.instances {
		if _, ok := inst.watches[ev.Wd]; ok {
			target = inst
			break
		}
	}
	r.mu.Unlock()
	if target == nil {
		return
	}

	payload := encoded
	if target.pendingOverflow {
		payload = append(wire.Overflow.Encode(), payload...)
	}

	if _, err := unix.Write(target.pipe.writer, payload); err != nil {
		if errors.Is(err, unix.EAGAIN) {
			r.mu.Lock()
			target.pendingOverflow = true
			r.mu.Unlock()
			return
		}
		return
	}
	if target.pendingOverflow {
		r.mu.Lock()
		target.pendingOverflow = false
		r.mu.Unlock()
	}
}
