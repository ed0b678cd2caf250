// Package daemon implements the control plane: the UDS listener, the
// per-connection request loop, and the dispatch table that backs
// ADD/REMOVE/DETACH/LIST/STATUS.
package daemon

import (
	"context"
	"net"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/fakenotify/fakenotifyd/internal/dispatch"
	"github.com/fakenotify/fakenotifyd/internal/logging"
	"github.com/fakenotify/fakenotifyd/internal/registry"
	"github.com/fakenotify/fakenotifyd/internal/scanner"
)

// Server owns the control-plane UDS listener and the registry/dispatcher
// pair it serves. The scanner factory that New passes to registry.New
// closes the loop back from the registry into package scanner.
type Server struct {
	SocketPath string
	Reg        *registry.Registry
	Dispatch   *dispatch.Dispatcher

	startedAt time.Time
	nextClientID uint64

	listener net.Listener
	conns    errgroup.Group
}

// New wires a fresh registry and dispatcher together: the registry's
// scanner factory starts a scanner.Scanner whose Sink is the dispatcher,
// and the dispatcher reads watch fan-out back out of the same registry.
func New(socketPath string, defaultPollInterval time.Duration, debounceWindow time.Duration) *Server {
	var d *dispatch.Dispatcher
	reg := registry.New(func(canonicalPath string, interval time.Duration) (registry.ScannerHandle, error) {
		if interval <= 0 {
			interval = defaultPollInterval
		}
		return scanner.New(canonicalPath, true, interval, d), nil
	})
	d = dispatch.New(reg, debounceWindow)

	return &Server{SocketPath: socketPath, Reg: reg, Dispatch: d}
}

// ListenAndServe binds the control socket and runs the accept loop until
// ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	_ = os.Remove(s.SocketPath)
	if err := os.MkdirAll(dirOf(s.SocketPath), 0750); err != nil {
		return err
	}
	l, err := net.Listen("unix", s.SocketPath)
	if err != nil {
		return err
	}
	if err := os.Chmod(s.SocketPath, 0660); err != nil {
		logging.LogSugar.Warnw("chmod socket failed", "error", err)
	}
	s.listener = l
	s.startedAt = time.Now()

	go func() {
		<-ctx.Done()
		l.Close()
	}()

	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				s.conns.Wait()
				return nil
			default:
				return err
			}
		}
		s.conns.Go(func() error {
			s.serveConn(conn)
			return nil
		})
	}
}

// Shutdown stops accepting new connections and waits up to timeout for
// in-flight connections to drain.
func (s *Server) Shutdown(timeout time.Duration) {
	if s.listener != nil {
		s.listener.Close()
	}
	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		logging.LogSugar.Warn("shutdown timeout exceeded with connections still open")
	}
}

func (s *Server) nextClient() uint64 {
	return atomic.AddUint64(&s.nextClientID, 1)
}

func peerCredOf(conn net.Conn) (pid int32, uid uint32) {
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		return 0, 0
	}
	raw, err := uc.SyscallConn()
	if err != nil {
		return 0, 0
	}
	var cred *unix.Ucred
	_ = raw.Control(func(fd uintptr) {
		cred, _ = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if cred == nil {
		return 0, 0
	}
	return cred.Pid, cred.Uid
}

func dirOf(p string) string {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			return p[:i]
		}
	}
	return "."
}
