//go:build linux

package main

/*
#include <stdint.h>
*/
import "C"

// Every exported entry point recovers from a panic and falls through to
// the real libc symbol: a bug in this shim must never be worse for the
// calling process than not having the shim at all.

//export inotify_init
func inotify_init() (ret C.int) {
	defer func() {
		if recover() != nil {
			ret = C.int(callRealInit(0))
		}
	}()
	fd, err := globalRuntime.initFSN(0)
	if err != nil {
		return C.int(callRealInit(0))
	}
	return C.int(fd)
}

//export inotify_init1
func inotify_init1(flags C.int) (ret C.int) {
	defer func() {
		if recover() != nil {
			ret = C.int(callRealInit(int(flags)))
		}
	}()
	fd, err := globalRuntime.initFSN(int(flags))
	if err != nil {
		return C.int(callRealInit(int(flags)))
	}
	return C.int(fd)
}

//export inotify_add_watch
func inotify_add_watch(fd C.int, pathname *C.char, mask C.uint32_t) (ret C.int) {
	goFd := int(fd)
	path := C.GoString(pathname)
	defer func() {
		if recover() != nil {
			ret = C.int(callRealAddWatch(goFd, path, uint32(mask)))
		}
	}()
	if !globalRuntime.isManaged(goFd) {
		return C.int(callRealAddWatch(goFd, path, uint32(mask)))
	}
	wd, err := globalRuntime.addWatch(goFd, path, uint32(mask))
	if err != nil {
		setErrno(err)
		return C.int(-1)
	}
	return C.int(wd)
}

//export inotify_rm_watch
func inotify_rm_watch(fd C.int, wd C.int) (ret C.int) {
	goFd := int(fd)
	defer func() {
		if recover() != nil {
			ret = C.int(callRealRmWatch(goFd, int(wd)))
		}
	}()
	if !globalRuntime.isManaged(goFd) {
		return C.int(callRealRmWatch(goFd, int(wd)))
	}
	if err := globalRuntime.rmWatch(goFd, int32(wd)); err != nil {
		setErrno(err)
		return C.int(-1)
	}
	return C.int(0)
}

//export close
func close(fd C.int) (ret C.int) {
	goFd := int(fd)
	defer func() {
		if recover() != nil {
			ret = C.int(callRealClose(goFd))
		}
	}()
	if globalRuntime.isManaged(goFd) {
		globalRuntime.detach(goFd)
	}
	return C.int(callRealClose(goFd))
}
