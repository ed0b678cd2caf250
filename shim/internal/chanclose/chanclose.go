// Package chanclose exists only so package main can close a channel.
// main's exported close(fd C.int) C.int, required by cgo's //export
// name-matching rule for LD_PRELOAD interposition of libc close(), shadows
// the builtin close identifier throughout package main, so a bare
// close(ch) there would resolve to the C-exported function instead.
package chanclose

// Close closes ch.
func Close(ch chan struct{}) {
	close(ch)
}
