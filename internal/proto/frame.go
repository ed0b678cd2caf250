package proto

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxPayloadSize bounds a single frame's payload so a malformed or hostile
// peer cannot make a reader allocate unbounded memory.
const MaxPayloadSize = 1 << 20

// Frame is one length-prefixed, kind-tagged message: a uint32 big-endian
// length (covering kind + payload), a one-byte kind, then the payload.
type Frame struct {
	Kind    Kind
	Payload []byte
}

// WriteFrame serializes f to w as a single frame.
func WriteFrame(w io.Writer, f Frame) error {
	if len(f.Payload) > MaxPayloadSize-1 {
		return fmt.Errorf("proto: payload of %d bytes exceeds limit", len(f.Payload))
	}
	length := uint32(1 + len(f.Payload))
	buf := make([]byte, 4+length)
	binary.BigEndian.PutUint32(buf[0:4], length)
	buf[4] = byte(f.Kind)
	copy(buf[5:], f.Payload)
	_, err := w.Write(buf)
	return err
}

// ReadFrame reads one frame from r, blocking until it is fully available.
func ReadFrame(r io.Reader) (Frame, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Frame{}, err
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if length == 0 {
		return Frame{}, fmt.Errorf("proto: zero-length frame")
	}
	if length > MaxPayloadSize {
		return Frame{}, fmt.Errorf("proto: frame length %d exceeds limit", length)
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return Frame{}, err
	}
	var payload []byte
	if length > 1 {
		payload = body[1:]
	}
	return Frame{Kind: Kind(body[0]), Payload: payload}, nil
}

func NewAddFrame(req AddRequest) Frame       { return Frame{Kind: KindAdd, Payload: req.encode()} }
func NewAddOKFrame(r AddOK) Frame            { return Frame{Kind: KindAddOK, Payload: r.encode()} }
func NewAddErrFrame(p ErrorPayload) Frame    { return Frame{Kind: KindAddErr, Payload: p.encode()} }
func NewRemoveFrame(req RemoveRequest) Frame { return Frame{Kind: KindRemove, Payload: req.encode()} }
func NewRemoveOKFrame() Frame                { return Frame{Kind: KindRemoveOK} }
func NewRemoveErrFrame(p ErrorPayload) Frame { return Frame{Kind: KindRemoveErr, Payload: p.encode()} }
func NewDetachFrame() Frame                  { return Frame{Kind: KindDetach} }
func NewDetachOKFrame() Frame                { return Frame{Kind: KindDetachOK} }
func NewListFrame() Frame                    { return Frame{Kind: KindList} }
func NewListRespFrame(r ListResponse) Frame  { return Frame{Kind: KindListResp, Payload: r.encode()} }
func NewStatusFrame() Frame                  { return Frame{Kind: KindStatus} }
func NewStatusRespFrame(r StatusResponse) Frame {
	return Frame{Kind: KindStatusResp, Payload: r.encode()}
}

// NewEventFrame wraps an already wire-encoded FSN event (see package wire)
// for transport as an EVENT frame; proto stays agnostic of wire's types to
// avoid an import cycle, since wire has no reason to know about proto.
func NewEventFrame(encodedEvent []byte) Frame {
	return Frame{Kind: KindEvent, Payload: encodedEvent}
}

func ParseAddRequest(f Frame) (AddRequest, error)       { return decodeAddRequest(f.Payload) }
func ParseAddOK(f Frame) (AddOK, error)                 { return decodeAddOK(f.Payload) }
func ParseErrorPayload(f Frame) (ErrorPayload, error)   { return decodeErrorPayload(f.Payload) }
func ParseRemoveRequest(f Frame) (RemoveRequest, error) { return decodeRemoveRequest(f.Payload) }
func ParseListResponse(f Frame) (ListResponse, error)   { return decodeListResponse(f.Payload) }
func ParseStatusResponse(f Frame) (StatusResponse, error) {
	return decodeStatusResponse(f.Payload)
}
