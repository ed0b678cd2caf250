// Package proto implements the control+event wire protocol that binds the
// shim to the daemon: length-prefixed frames carrying a one-byte kind and
// a kind-specific payload.
package proto

import (
	"encoding/binary"
	"fmt"
)

// Kind identifies the payload carried by a Frame.
type Kind uint8

const (
	KindAdd        Kind = 0x01
	KindAddOK      Kind = 0x02
	KindAddErr     Kind = 0x03
	KindRemove     Kind = 0x04
	KindRemoveOK   Kind = 0x05
	KindRemoveErr  Kind = 0x06
	KindDetach     Kind = 0x07
	KindDetachOK   Kind = 0x08
	KindEvent      Kind = 0x10
	KindList       Kind = 0x20
	KindListResp   Kind = 0x21
	KindStatus     Kind = 0x22
	KindStatusResp Kind = 0x23
)

func (k Kind) String() string {
	switch k {
	case KindAdd:
		return "ADD"
	case KindAddOK:
		return "ADD_OK"
	case KindAddErr:
		return "ADD_ERR"
	case KindRemove:
		return "REMOVE"
	case KindRemoveOK:
		return "REMOVE_OK"
	case KindRemoveErr:
		return "REMOVE_ERR"
	case KindDetach:
		return "DETACH"
	case KindDetachOK:
		return "DETACH_OK"
	case KindEvent:
		return "EVENT"
	case KindList:
		return "LIST"
	case KindListResp:
		return "LIST_RESP"
	case KindStatus:
		return "STATUS"
	case KindStatusResp:
		return "STATUS_RESP"
	default:
		return fmt.Sprintf("Kind(%#02x)", byte(k))
	}
}

// AddRequest is the payload of a KindAdd frame. Recursive, IntervalMS and
// AssertWd are protocol extensions beyond the base (mask, pathlen, path)
// triple, each appended as its own trailing field so older encodings
// still decode: Recursive/IntervalMS carry the administrative CLI's
// --recursive/--poll-interval flags (and config file [[watch]] entries)
// over the same wire message application-originated ADDs use, and
// AssertWd lets a reconnecting shim replay its pre-restart watches under
// their original descriptors (spec.md §4.1) instead of receiving freshly
// allocated ones. An application's inotify_add_watch, relayed by the
// shim on its first connection, always sends Recursive=false,
// IntervalMS=0 and AssertWd=0; zero means "allocate a fresh descriptor",
// which is always correct since the registry's descriptor space starts
// at 1.
type AddRequest struct {
	Mask       uint32
	Path       string
	Recursive  bool
	IntervalMS uint32
	AssertWd   int32
}

func (r AddRequest) encode() []byte {
	buf := make([]byte, 4+4+len(r.Path)+1+4+4)
	binary.BigEndian.PutUint32(buf[0:4], r.Mask)
	binary.BigEndian.PutUint32(buf[4:8], uint32(len(r.Path)))
	copy(buf[8:8+len(r.Path)], r.Path)
	off := 8 + len(r.Path)
	if r.Recursive {
		buf[off] = 1
	}
	binary.BigEndian.PutUint32(buf[off+1:off+5], r.IntervalMS)
	binary.BigEndian.PutUint32(buf[off+5:off+9], uint32(r.AssertWd))
	return buf
}

func decodeAddRequest(p []byte) (AddRequest, error) {
	if len(p) < 8 {
		return AddRequest{}, fmt.Errorf("proto: ADD payload too short")
	}
	mask := binary.BigEndian.Uint32(p[0:4])
	pathLen := binary.BigEndian.Uint32(p[4:8])
	if uint32(len(p)-8) < pathLen {
		return AddRequest{}, fmt.Errorf("proto: ADD path length mismatch")
	}
	req := AddRequest{Mask: mask, Path: string(p[8 : 8+pathLen])}
	rest := p[8+pathLen:]
	if len(rest) > 0 {
		req.Recursive = rest[0] != 0
		rest = rest[1:]
	}
	if len(rest) >= 4 {
		req.IntervalMS = binary.BigEndian.Uint32(rest[0:4])
		rest = rest[4:]
	}
	if len(rest) >= 4 {
		req.AssertWd = int32(binary.BigEndian.Uint32(rest[0:4]))
	}
	return req, nil
}

// AddOK is the payload of a KindAddOK frame.
type AddOK struct{ Wd int32 }

func (r AddOK) encode() []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(r.Wd))
	return buf
}

func decodeAddOK(p []byte) (AddOK, error) {
	if len(p) < 4 {
		return AddOK{}, fmt.Errorf("proto: ADD_OK payload too short")
	}
	return AddOK{Wd: int32(binary.BigEndian.Uint32(p))}, nil
}

// ErrorPayload is the payload shared by every *_ERR frame kind.
type ErrorPayload struct {
	Code    ErrorCode
	Message string
}

func (r ErrorPayload) encode() []byte {
	buf := make([]byte, 4+len(r.Message))
	binary.BigEndian.PutUint32(buf[0:4], uint32(r.Code))
	copy(buf[4:], r.Message)
	return buf
}

func decodeErrorPayload(p []byte) (ErrorPayload, error) {
	if len(p) < 4 {
		return ErrorPayload{}, fmt.Errorf("proto: error payload too short")
	}
	return ErrorPayload{Code: ErrorCode(binary.BigEndian.Uint32(p[0:4])), Message: string(p[4:])}, nil
}

// RemoveRequest is the payload of a KindRemove frame.
type RemoveRequest struct{ Wd int32 }

func (r RemoveRequest) encode() []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(r.Wd))
	return buf
}

func decodeRemoveRequest(p []byte) (RemoveRequest, error) {
	if len(p) < 4 {
		return RemoveRequest{}, fmt.Errorf("proto: REMOVE payload too short")
	}
	return RemoveRequest{Wd: int32(binary.BigEndian.Uint32(p))}, nil
}

// ListEntry describes one active watch, as returned by LIST_RESP.
type ListEntry struct {
	Wd        int32
	Path      string
	Mask      uint32
	Recursive bool
}

// ListResponse is the payload of a KindListResp frame.
type ListResponse struct {
	Entries []ListEntry
}

func (r ListResponse) encode() []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(len(r.Entries)))
	for _, e := range r.Entries {
		entry := make([]byte, 4+4+1+4+len(e.Path))
		binary.BigEndian.PutUint32(entry[0:4], uint32(e.Wd))
		binary.BigEndian.PutUint32(entry[4:8], e.Mask)
		if e.Recursive {
			entry[8] = 1
		}
		binary.BigEndian.PutUint32(entry[9:13], uint32(len(e.Path)))
		copy(entry[13:], e.Path)
		buf = append(buf, entry...)
	}
	return buf
}

func decodeListResponse(p []byte) (ListResponse, error) {
	if len(p) < 4 {
		return ListResponse{}, fmt.Errorf("proto: LIST_RESP payload too short")
	}
	count := binary.BigEndian.Uint32(p[0:4])
	p = p[4:]
	entries := make([]ListEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		if len(p) < 13 {
			return ListResponse{}, fmt.Errorf("proto: LIST_RESP entry truncated")
		}
		wd := int32(binary.BigEndian.Uint32(p[0:4]))
		mask := binary.BigEndian.Uint32(p[4:8])
		recursive := p[8] != 0
		pathLen := binary.BigEndian.Uint32(p[9:13])
		if uint32(len(p)-13) < pathLen {
			return ListResponse{}, fmt.Errorf("proto: LIST_RESP path truncated")
		}
		path := string(p[13 : 13+pathLen])
		entries = append(entries, ListEntry{Wd: wd, Path: path, Mask: mask, Recursive: recursive})
		p = p[13+pathLen:]
	}
	return ListResponse{Entries: entries}, nil
}

// StatusResponse is the payload of a KindStatusResp frame.
type StatusResponse struct {
	UptimeSeconds uint64
	TotalClients  uint32
	TotalWatches  uint32
}

func (r StatusResponse) encode() []byte {
	buf := make([]byte, 8+4+4)
	binary.BigEndian.PutUint64(buf[0:8], r.UptimeSeconds)
	binary.BigEndian.PutUint32(buf[8:12], r.TotalClients)
	binary.BigEndian.PutUint32(buf[12:16], r.TotalWatches)
	return buf
}

func decodeStatusResponse(p []byte) (StatusResponse, error) {
	if len(p) < 16 {
		return StatusResponse{}, fmt.Errorf("proto: STATUS_RESP payload too short")
	}
	return StatusResponse{
		UptimeSeconds: binary.BigEndian.Uint64(p[0:8]),
		TotalClients:  binary.BigEndian.Uint32(p[8:12]),
		TotalWatches:  binary.BigEndian.Uint32(p[12:16]),
	}, nil
}
