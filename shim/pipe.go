//go:build linux

package main

import (
	"golang.org/x/sys/unix"
)

// inNonblock and inCloexec mirror IN_NONBLOCK/IN_CLOEXEC, which alias
// O_NONBLOCK/O_CLOEXEC in the kernel's inotify_init1 ABI.
const (
	inNonblock = unix.O_NONBLOCK
	inCloexec  = unix.O_CLOEXEC
)

// pipeEnds is one anonymous pipe backing a single FSN instance: the
// application reads from reader, the ingestion goroutine writes to
// writer.
type pipeEnds struct {
	reader int
	writer int
}

// newPipe allocates a pipe. Both O_NONBLOCK and O_CLOEXEC are applied to
// the reader only when the application asked for them via
// inotify_init1's flags, so inotify_init's reader (flags 0) survives
// exec unchanged. The writer, owned by the ingestion goroutine and never
// seen by the application, always gets O_CLOEXEC and O_NONBLOCK
// regardless: it must not leak across exec, and a write to a full pipe
// must return EAGAIN rather than block the one ingestion goroutine
// shared by the whole process.
func newPipe(flags int) (pipeEnds, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], 0); err != nil {
		return pipeEnds{}, err
	}
	reader, writer := fds[0], fds[1]

	if err := unix.SetNonblock(writer, true); err != nil {
		unix.Close(reader)
		unix.Close(writer)
		return pipeEnds{}, err
	}
	unix.CloseOnExec(writer)
	if flags&inCloexec != 0 {
		unix.CloseOnExec(reader)
	}
	if flags&inNonblock != 0 {
		if err := unix.SetNonblock(reader, true); err != nil {
			unix.Close(reader)
			unix.Close(writer)
			return pipeEnds{}, err
		}
	}
	return pipeEnds{reader: reader, writer: writer}, nil
}

func (p pipeEnds) closeWriter() error {
	return unix.Close(p.writer)
}
