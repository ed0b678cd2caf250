package daemon

import (
	"errors"
	"io"
	"net"
	"time"

	"github.com/fakenotify/fakenotifyd/internal/logging"
	"github.com/fakenotify/fakenotifyd/internal/proto"
	"github.com/fakenotify/fakenotifyd/internal/registry"
)

// serveConn runs for the lifetime of one accepted connection: it starts
// the outbound event-writer goroutine, then loops reading request frames
// and dispatching them until the connection closes.
func (s *Server) serveConn(conn net.Conn) {
	defer conn.Close()

	clientID := s.nextClient()
	pid, uid := peerCredOf(conn)
	client := s.Reg.RegisterClient(clientID, pid, uid)
	logging.LogSugar.Infow("client connected", "client_id", clientID, "correlation_id", client.CorrelationID, "pid", pid, "uid", uid)

	writerDone := make(chan struct{})
	go s.writeLoop(conn, clientID, writerDone)

	for {
		frame, err := proto.ReadFrame(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logging.LogSugar.Debugw("client read error", "client_id", clientID, "error", err)
			}
			break
		}
		if err := s.handleFrame(conn, clientID, frame); err != nil {
			logging.LogSugar.Warnw("handling frame failed", "client_id", clientID, "kind", frame.Kind, "error", err)
			break
		}
	}

	drained := s.Reg.UnregisterClient(clientID)
	for _, path := range drained {
		logging.LogSugar.Debugw("scanner drained", "path", path)
	}
	s.Dispatch.DropClient(clientID)
	<-writerDone
	logging.LogSugar.Infow("client disconnected", "client_id", clientID)
}

// writeLoop drains the client's outbound queue and writes EVENT frames
// until notify is no longer useful, i.e. the connection is closing.
func (s *Server) writeLoop(conn net.Conn, clientID uint64, done chan struct{}) {
	defer close(done)
	q := s.Dispatch.QueueFor(clientID)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		events := q.Drain()
		for _, ev := range events {
			if err := proto.WriteFrame(conn, proto.NewEventFrame(ev.Encode())); err != nil {
				return
			}
		}
		if isClosed(conn) {
			return
		}
	}
}

func isClosed(conn net.Conn) bool {
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		return false
	}
	_, err := uc.SyscallConn()
	return err != nil
}

func (s *Server) handleFrame(conn net.Conn, clientID uint64, f proto.Frame) error {
	switch f.Kind {
	case proto.KindAdd:
		return s.handleAdd(conn, clientID, f)
	case proto.KindRemove:
		return s.handleRemove(conn, clientID, f)
	case proto.KindDetach:
		return s.handleDetach(conn, clientID)
	case proto.KindList:
		return s.handleList(conn)
	case proto.KindStatus:
		return s.handleStatus(conn)
	default:
		return proto.WriteFrame(conn, proto.NewAddErrFrame(proto.ErrorPayload{Code: proto.ErrInvalidArgument, Message: "unknown request kind"}))
	}
}

func (s *Server) handleAdd(conn net.Conn, clientID uint64, f proto.Frame) error {
	req, err := proto.ParseAddRequest(f)
	if err != nil {
		return proto.WriteFrame(conn, proto.NewAddErrFrame(proto.ErrorPayload{Code: proto.ErrInvalidArgument, Message: err.Error()}))
	}
	interval := time.Duration(req.IntervalMS) * time.Millisecond
	if req.AssertWd != 0 {
		if err := s.Reg.AddWithWd(clientID, req.AssertWd, req.Path, req.Mask, req.Recursive, interval); err != nil {
			return proto.WriteFrame(conn, proto.NewAddErrFrame(errToPayload(err)))
		}
		return proto.WriteFrame(conn, proto.NewAddOKFrame(proto.AddOK{Wd: req.AssertWd}))
	}
	wd, err := s.Reg.Add(clientID, req.Path, req.Mask, req.Recursive, interval)
	if err != nil {
		return proto.WriteFrame(conn, proto.NewAddErrFrame(errToPayload(err)))
	}
	return proto.WriteFrame(conn, proto.NewAddOKFrame(proto.AddOK{Wd: wd}))
}

func (s *Server) handleRemove(conn net.Conn, clientID uint64, f proto.Frame) error {
	req, err := proto.ParseRemoveRequest(f)
	if err != nil {
		return proto.WriteFrame(conn, proto.NewRemoveErrFrame(proto.ErrorPayload{Code: proto.ErrInvalidArgument, Message: err.Error()}))
	}
	w, ok := s.Reg.WatchByWd(req.Wd)
	if !ok {
		return proto.WriteFrame(conn, proto.NewRemoveErrFrame(errToPayload(registry.ErrUnknownWatch)))
	}
	_, err = s.Reg.Remove(clientID, req.Wd)
	if err != nil {
		return proto.WriteFrame(conn, proto.NewRemoveErrFrame(errToPayload(err)))
	}
	s.Dispatch.Ignored(w.ClientID, w.Wd)
	return proto.WriteFrame(conn, proto.NewRemoveOKFrame())
}

// handleDetach releases every watch the shim's single connection holds,
// mirroring close(fd) severing the application's FSN descriptor.
func (s *Server) handleDetach(conn net.Conn, clientID uint64) error {
	s.Reg.UnregisterClient(clientID)
	s.Dispatch.DropClient(clientID)
	return proto.WriteFrame(conn, proto.NewDetachOKFrame())
}

func (s *Server) handleList(conn net.Conn) error {
	watches := s.Reg.List()
	entries := make([]proto.ListEntry, 0, len(watches))
	for _, w := range watches {
		entries = append(entries, proto.ListEntry{Wd: w.Wd, Path: w.CanonicalPath, Mask: w.Mask, Recursive: w.Recursive})
	}
	return proto.WriteFrame(conn, proto.NewListRespFrame(proto.ListResponse{Entries: entries}))
}

func (s *Server) handleStatus(conn net.Conn) error {
	st := s.Reg.Status()
	return proto.WriteFrame(conn, proto.NewStatusRespFrame(proto.StatusResponse{
		UptimeSeconds: uint64(time.Since(s.startedAt).Seconds()),
		TotalClients:  uint32(st.TotalClients),
		TotalWatches:  uint32(st.TotalWatches),
	}))
}

func errToPayload(err error) proto.ErrorPayload {
	var pe *proto.Error
	if errors.As(err, &pe) {
		return proto.ErrorPayload{Code: pe.Code, Message: pe.Message}
	}
	switch {
	case errors.Is(err, registry.ErrAlreadyWatching):
		return proto.ErrorPayload{Code: proto.ErrAlreadyExists, Message: err.Error()}
	case errors.Is(err, registry.ErrUnknownWatch):
		return proto.ErrorPayload{Code: proto.ErrNotFound, Message: err.Error()}
	case errors.Is(err, registry.ErrDescriptorSpace):
		return proto.ErrorPayload{Code: proto.ErrResourceExhausted, Message: err.Error()}
	default:
		return proto.ErrorPayload{Code: proto.ErrInternal, Message: err.Error()}
	}
}
