//go:build linux

package main

/*
#define _GNU_SOURCE 1
#include <dlfcn.h>
#include <errno.h>
#include <stdint.h>
#include <stdlib.h>
#include <unistd.h>

typedef int (*inotify_init_fn)(void);
typedef int (*inotify_init1_fn)(int);
typedef int (*inotify_add_watch_fn)(int, const char *, uint32_t);
typedef int (*inotify_rm_watch_fn)(int, int);
typedef int (*close_fn)(int);

static inotify_init_fn real_inotify_init = 0;
static inotify_init1_fn real_inotify_init1 = 0;
static inotify_add_watch_fn real_inotify_add_watch = 0;
static inotify_rm_watch_fn real_inotify_rm_watch = 0;
static close_fn real_close = 0;

static void fakenotify_resolve_real_symbols(void) {
	real_inotify_init = (inotify_init_fn)dlsym(RTLD_NEXT, "inotify_init");
	real_inotify_init1 = (inotify_init1_fn)dlsym(RTLD_NEXT, "inotify_init1");
	real_inotify_add_watch = (inotify_add_watch_fn)dlsym(RTLD_NEXT, "inotify_add_watch");
	real_inotify_rm_watch = (inotify_rm_watch_fn)dlsym(RTLD_NEXT, "inotify_rm_watch");
	real_close = (close_fn)dlsym(RTLD_NEXT, "close");
}

static int fakenotify_call_real_init(int flags) {
	if (real_inotify_init1) {
		return real_inotify_init1(flags);
	}
	if (real_inotify_init) {
		return real_inotify_init();
	}
	return -1;
}

static int fakenotify_call_real_add_watch(int fd, const char *path, uint32_t mask) {
	if (!real_inotify_add_watch) {
		return -1;
	}
	return real_inotify_add_watch(fd, path, mask);
}

static int fakenotify_call_real_rm_watch(int fd, int wd) {
	if (!real_inotify_rm_watch) {
		return -1;
	}
	return real_inotify_rm_watch(fd, wd);
}

static int fakenotify_call_real_close(int fd) {
	if (real_close) {
		return real_close(fd);
	}
	return close(fd);
}

static void fakenotify_set_errno(int err) {
	errno = err;
}
*/
import "C"

import (
	"errors"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/fakenotify/fakenotifyd/internal/proto"
)

// resolveRealSymbols must run once, before any interposed entry point can
// be called, so a fall-through to genuine kernel inotify is always
// possible for fds this shim does not manage.
func resolveRealSymbols() {
	C.fakenotify_resolve_real_symbols()
}

func cString(s string) *C.char { return C.CString(s) }

func freeCString(p *C.char) { C.free(unsafe.Pointer(p)) }

func callRealInit(flags int) int {
	return int(C.fakenotify_call_real_init(C.int(flags)))
}

func callRealAddWatch(fd int, path string, mask uint32) int {
	cpath := cString(path)
	defer freeCString(cpath)
	return int(C.fakenotify_call_real_add_watch(C.int(fd), cpath, C.uint32_t(mask)))
}

func callRealRmWatch(fd, wd int) int {
	return int(C.fakenotify_call_real_rm_watch(C.int(fd), C.int(wd)))
}

func callRealClose(fd int) int {
	return int(C.fakenotify_call_real_close(C.int(fd)))
}

// setErrno sets the calling thread's errno, so an interposed entry point
// returning -1 reports a failure class the application's own errno
// checks can act on, the same as genuine kernel inotify would.
func setErrno(err error) {
	C.fakenotify_set_errno(C.int(errnoFor(err)))
}

// errnoFor maps a runtime/registry error to the errno value that best
// describes it. Unrecognised errors fall back to EIO, matching real
// inotify's behaviour for otherwise-unclassified kernel failures.
func errnoFor(err error) unix.Errno {
	var pe *proto.Error
	if errors.As(err, &pe) {
		switch pe.Code {
		case proto.ErrNotFound:
			return unix.ENOENT
		case proto.ErrPermissionDenied:
			return unix.EACCES
		case proto.ErrInvalidArgument:
			return unix.EINVAL
		case proto.ErrAlreadyExists:
			return unix.EEXIST
		case proto.ErrResourceExhausted:
			return unix.ENOSPC
		default:
			return unix.EIO
		}
	}
	if errors.Is(err, errUnknownWatch) {
		return unix.EINVAL
	}
	return unix.EIO
}
