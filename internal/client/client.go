// Package client is a small synchronous RPC helper the administrative
// CLI uses to talk to a running daemon over its control socket. It is not
// used by the shim, which has its own persistent-connection runtime.
package client

import (
	"fmt"
	"net"
	"time"

	"github.com/fakenotify/fakenotifyd/internal/proto"
)

// ErrUnreachable wraps a dial failure so callers can map it to the CLI's
// exit code 3 ("daemon unreachable").
type ErrUnreachable struct{ Err error }

func (e *ErrUnreachable) Error() string { return fmt.Sprintf("daemon unreachable: %v", e.Err) }
func (e *ErrUnreachable) Unwrap() error { return e.Err }

// Conn is one short-lived control connection used for a single request.
type Conn struct {
	c net.Conn
}

// Dial connects to the daemon's control socket at path.
func Dial(path string) (*Conn, error) {
	c, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, &ErrUnreachable{Err: err}
	}
	return &Conn{c: c}, nil
}

func (c *Conn) Close() error { return c.c.Close() }

// Add sends ADD and returns the watch descriptor, or the daemon's error.
// A zero interval leaves the poll period up to the daemon's default.
func (c *Conn) Add(path string, mask uint32, recursive bool, interval time.Duration) (int32, error) {
	req := proto.AddRequest{Mask: mask, Path: path, Recursive: recursive, IntervalMS: uint32(interval / time.Millisecond)}
	if err := proto.WriteFrame(c.c, proto.NewAddFrame(req)); err != nil {
		return 0, err
	}
	f, err := proto.ReadFrame(c.c)
	if err != nil {
		return 0, err
	}
	switch f.Kind {
	case proto.KindAddOK:
		ok, err := proto.ParseAddOK(f)
		return ok.Wd, err
	case proto.KindAddErr:
		p, err := proto.ParseErrorPayload(f)
		if err != nil {
			return 0, err
		}
		return 0, p.AsError()
	default:
		return 0, fmt.Errorf("client: unexpected response kind %s", f.Kind)
	}
}

// Remove sends REMOVE for wd.
func (c *Conn) Remove(wd int32) error {
	if err := proto.WriteFrame(c.c, proto.NewRemoveFrame(proto.RemoveRequest{Wd: wd})); err != nil {
		return err
	}
	f, err := proto.ReadFrame(c.c)
	if err != nil {
		return err
	}
	switch f.Kind {
	case proto.KindRemoveOK:
		return nil
	case proto.KindRemoveErr:
		p, err := proto.ParseErrorPayload(f)
		if err != nil {
			return err
		}
		return p.AsError()
	default:
		return fmt.Errorf("client: unexpected response kind %s", f.Kind)
	}
}

// List sends LIST and returns the daemon's watch table.
func (c *Conn) List() ([]proto.ListEntry, error) {
	if err := proto.WriteFrame(c.c, proto.NewListFrame()); err != nil {
		return nil, err
	}
	f, err := proto.ReadFrame(c.c)
	if err != nil {
		return nil, err
	}
	resp, err := proto.ParseListResponse(f)
	if err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// Status sends STATUS and returns the daemon's counters.
func (c *Conn) Status() (proto.StatusResponse, error) {
	if err := proto.WriteFrame(c.c, proto.NewStatusFrame()); err != nil {
		return proto.StatusResponse{}, err
	}
	f, err := proto.ReadFrame(c.c)
	if err != nil {
		return proto.StatusResponse{}, err
	}
	return proto.ParseStatusResponse(f)
}
