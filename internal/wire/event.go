// Package wire defines the on-the-wire FSN event layout shared by the
// daemon and the shim. The layout is byte-compatible with what an
// application expects to read back from an FSN file descriptor: a fixed
// 16-byte header followed by a NUL-padded name.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Mask is the event mask bitfield carried in every Event.
type Mask uint32

// Event mask flags. Values match the kernel's inotify mask bits so that a
// reader decoding these bytes with the real inotify_event layout in mind
// gets the answer it expects.
const (
	Access     Mask = 0x00000001
	Modify     Mask = 0x00000002
	Attrib     Mask = 0x00000004
	CloseWrite Mask = 0x00000008
	CloseNoWrite Mask = 0x00000010
	Open       Mask = 0x00000020
	MovedFrom  Mask = 0x00000040
	MovedTo    Mask = 0x00000080
	Create     Mask = 0x00000100
	Delete     Mask = 0x00000200
	DeleteSelf Mask = 0x00000400
	MoveSelf   Mask = 0x00000800

	Unmount   Mask = 0x00002000
	QOverflow Mask = 0x00004000
	Ignored   Mask = 0x00008000

	OnlyDir    Mask = 0x01000000
	DontFollow Mask = 0x02000000
	MaskAdd    Mask = 0x20000000
	IsDir      Mask = 0x40000000
	OneShot    Mask = 0x80000000

	Close Mask = CloseWrite | CloseNoWrite
	Move  Mask = MovedFrom | MovedTo

	AllEvents = Access | Modify | Attrib | CloseWrite | CloseNoWrite |
		Open | MovedFrom | MovedTo | Create | Delete | DeleteSelf | MoveSelf
)

// Has reports whether m contains every bit of other.
func (m Mask) Has(other Mask) bool { return m&other == other }

// Any reports whether m shares any bit with other.
func (m Mask) Any(other Mask) bool { return m&other != 0 }

// Or combines m with other.
func (m Mask) Or(other Mask) Mask { return m | other }

// HeaderSize is the size in bytes of the fixed portion of Event, matching
// the kernel's struct inotify_event.
const HeaderSize = 16

// NamePad is the alignment boundary the name field is padded to.
const NamePad = 8

// ErrShortBuffer is returned by Decode when buf does not hold a full header.
var ErrShortBuffer = errors.New("wire: buffer shorter than event header")

// Event is a single FSN notification. It is wd/mask/cookie/len/name,
// exactly as described in the data model: cookie is always 0 (no rename
// pairing), and len is the padded length of name including the trailing
// NUL bytes.
type Event struct {
	Wd     int32
	Mask   Mask
	Cookie uint32
	Name   string
}

// paddedNameLen returns the length, including a NUL terminator, padded up
// to the next multiple of NamePad. An empty name gets length 0, the "no
// name" case for an event about the watched path itself.
func paddedNameLen(name string) uint32 {
	if name == "" {
		return 0
	}
	n := uint32(len(name)) + 1
	rem := n % NamePad
	if rem != 0 {
		n += NamePad - rem
	}
	return n
}

// Encode serializes e to its wire representation.
func (e Event) Encode() []byte {
	nameLen := paddedNameLen(e.Name)
	buf := make([]byte, HeaderSize+int(nameLen))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(e.Wd))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(e.Mask))
	binary.LittleEndian.PutUint32(buf[8:12], e.Cookie)
	binary.LittleEndian.PutUint32(buf[12:16], nameLen)
	if nameLen > 0 {
		copy(buf[HeaderSize:], e.Name)
	}
	return buf
}

// Decode parses a single event from the front of buf and returns the
// number of bytes consumed. It implements the round-trip law: every byte
// stream produced by Encode decodes back to the same (wd, mask, cookie,
// name) tuple.
func Decode(buf []byte) (Event, int, error) {
	if len(buf) < HeaderSize {
		return Event{}, 0, ErrShortBuffer
	}
	wd := int32(binary.LittleEndian.Uint32(buf[0:4]))
	mask := Mask(binary.LittleEndian.Uint32(buf[4:8]))
	cookie := binary.LittleEndian.Uint32(buf[8:12])
	length := binary.LittleEndian.Uint32(buf[12:16])
	total := HeaderSize + int(length)
	if len(buf) < total {
		return Event{}, 0, fmt.Errorf("wire: need %d bytes for name, have %d", total, len(buf))
	}
	name := ""
	if length > 0 {
		raw := buf[HeaderSize:total]
		if i := indexZero(raw); i >= 0 {
			name = string(raw[:i])
		} else {
			name = string(raw)
		}
	}
	return Event{Wd: wd, Mask: mask, Cookie: cookie, Name: name}, total, nil
}

func indexZero(b []byte) int {
	for i, c := range b {
		if c == 0 {
			return i
		}
	}
	return -1
}

// Overflow is the sentinel event the shim prepends to the stream after
// dropping events because the application was too slow to read its pipe.
var Overflow = Event{Wd: -1, Mask: QOverflow}
