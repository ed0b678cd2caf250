package scanner

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// ErrTooManyEntries is returned by walk when a root's entry count exceeds
// maxEntries; the caller treats this as an overflow, not a hard failure.
var ErrTooManyEntries = errors.New("scanner: entry count exceeds per-watch limit")

// ErrRootGone is returned by walk when the root itself no longer exists.
var ErrRootGone = errors.New("scanner: root no longer exists")

func walk(root string, recursive bool, maxEntries int) (*Snapshot, error) {
	rootInfo, err := os.Lstat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrRootGone
		}
		return nil, err
	}
	rootDev, ok := deviceOf(rootInfo)

	snap := newSnapshot()
	var walkErr error

	var visit func(dir, relBase string) error
	visit = func(dir, relBase string) error {
		entries, err := os.ReadDir(dir)
		if err != nil {
			// Transient I/O errors during walk are ignored; the next tick
			// self-corrects.
			return nil
		}
		for _, de := range entries {
			if len(snap.Entries) >= maxEntries {
				return ErrTooManyEntries
			}
			info, err := de.Info()
			if err != nil {
				continue
			}
			full := filepath.Join(dir, de.Name())
			rel := relPath(relBase, de.Name())

			if ok {
				if dev, sameOK := deviceOf(info); sameOK && dev != rootDev {
					continue // refuse to cross filesystem boundaries
				}
			}

			kind := entryKind(info)
			if kind == KindSymlink {
				// Do not follow symlinks out of the root; record the link
				// itself as an entry without descending through it.
				snap.Entries[rel] = Entry{Kind: KindSymlink, Mtime: info.ModTime().UnixNano(), Size: info.Size(), Inode: inodeOf(info)}
				continue
			}

			snap.Entries[rel] = Entry{Kind: kind, Mtime: info.ModTime().UnixNano(), Size: info.Size(), Inode: inodeOf(info)}

			if kind == KindDir && recursive {
				if err := visit(full, rel); err != nil {
					return err
				}
			}
		}
		return nil
	}

	walkErr = visit(root, "")
	if walkErr != nil {
		return nil, walkErr
	}
	return snap, nil
}

func deviceOf(info fs.FileInfo) (uint64, bool) {
	st, ok := info.Sys().(*unix.Stat_t)
	if !ok {
		return 0, false
	}
	return uint64(st.Dev), true
}

func inodeOf(info fs.FileInfo) uint64 {
	st, ok := info.Sys().(*unix.Stat_t)
	if !ok {
		return 0
	}
	return st.Ino
}
