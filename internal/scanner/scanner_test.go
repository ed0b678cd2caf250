package scanner

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu       sync.Mutex
	changed  [][]Record
	overflow []string
	gone     []string
}

func (s *recordingSink) Changed(root string, records []Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changed = append(s.changed, records)
}
func (s *recordingSink) Overflow(root string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overflow = append(s.overflow, root)
}
func (s *recordingSink) RootGone(root string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gone = append(s.gone, root)
}

func (s *recordingSink) allChanged() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Record
	for _, batch := range s.changed {
		out = append(out, batch...)
	}
	return out
}

// S1 — create then read: touching a file between ticks produces one
// CREATE record for that name.
func TestScannerDetectsCreateBetweenTicks(t *testing.T) {
	dir := t.TempDir()
	sink := &recordingSink{}
	s := New(dir, true, 20*time.Millisecond, sink)
	defer s.Stop()

	require.Eventually(t, func() bool { return len(sink.allChanged()) == 0 }, 50*time.Millisecond, 5*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a"), []byte("x"), 0644))

	require.Eventually(t, func() bool {
		for _, r := range sink.allChanged() {
			if r.RelPath == "a" && r.Kind == RecordCreate {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

func TestScannerDetectsDelete(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b"), []byte("x"), 0644))

	sink := &recordingSink{}
	s := New(dir, true, 20*time.Millisecond, sink)
	defer s.Stop()

	require.Eventually(t, func() bool { return len(sink.allChanged()) == 0 }, 60*time.Millisecond, 5*time.Millisecond)

	require.NoError(t, os.Remove(filepath.Join(dir, "b")))

	require.Eventually(t, func() bool {
		for _, r := range sink.allChanged() {
			if r.RelPath == "b" && r.Kind == RecordDelete {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

func TestScannerRootGoneTerminates(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "root")
	require.NoError(t, os.Mkdir(sub, 0755))

	sink := &recordingSink{}
	s := New(sub, true, 20*time.Millisecond, sink)
	defer s.Stop()

	require.NoError(t, os.RemoveAll(sub))

	require.Eventually(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.gone) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestScannerOverflow(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(dir, string(rune('a'+i))), []byte("x"), 0644))
	}

	sink := &recordingSink{}
	s := New(dir, false, 20*time.Millisecond, sink, WithMaxEntries(3))
	defer s.Stop()

	require.Eventually(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.overflow) > 0
	}, time.Second, 5*time.Millisecond)
}

func TestDiffOrderingLexicographicAndParentFirst(t *testing.T) {
	prev := newSnapshot()
	curr := newSnapshot()
	curr.Entries["a"] = Entry{Kind: KindDir}
	curr.Entries["a/b"] = Entry{Kind: KindFile}
	curr.Entries["z"] = Entry{Kind: KindFile}

	records := diff(prev, curr)
	require.Len(t, records, 3)
	assert.Equal(t, "a", records[0].RelPath)
	assert.Equal(t, "a/b", records[1].RelPath)
	assert.Equal(t, "z", records[2].RelPath)
}

// S6 — directory ordering: deleting a populated subdirectory must emit
// the descendant's DELETE before the directory's own DELETE.
func TestDiffOrderingPostOrderOnDelete(t *testing.T) {
	prev := newSnapshot()
	prev.Entries["d"] = Entry{Kind: KindDir}
	prev.Entries["d/f"] = Entry{Kind: KindFile}
	curr := newSnapshot()

	records := diff(prev, curr)
	require.Len(t, records, 2)
	assert.Equal(t, "d/f", records[0].RelPath)
	assert.Equal(t, RecordDelete, records[0].Kind)
	assert.Equal(t, "d", records[1].RelPath)
	assert.True(t, records[1].IsDir)
}

func TestDiffInodeChangeEmitsDeleteThenCreate(t *testing.T) {
	prev := newSnapshot()
	prev.Entries["f"] = Entry{Kind: KindFile, Inode: 1, Mtime: 100}
	curr := newSnapshot()
	curr.Entries["f"] = Entry{Kind: KindFile, Inode: 2, Mtime: 200}

	records := diff(prev, curr)
	require.Len(t, records, 2)
	assert.Equal(t, RecordDelete, records[0].Kind)
	assert.Equal(t, RecordCreate, records[1].Kind)
}

func TestDiffModifySameInode(t *testing.T) {
	prev := newSnapshot()
	prev.Entries["f"] = Entry{Kind: KindFile, Inode: 1, Mtime: 100, Size: 10}
	curr := newSnapshot()
	curr.Entries["f"] = Entry{Kind: KindFile, Inode: 1, Mtime: 200, Size: 10}

	records := diff(prev, curr)
	require.Len(t, records, 1)
	assert.Equal(t, RecordModify, records[0].Kind)
}

func TestDiffUnchangedEntryProducesNoRecord(t *testing.T) {
	prev := newSnapshot()
	prev.Entries["f"] = Entry{Kind: KindFile, Inode: 1, Mtime: 100, Size: 10}
	curr := newSnapshot()
	curr.Entries["f"] = Entry{Kind: KindFile, Inode: 1, Mtime: 100, Size: 10}

	assert.Empty(t, diff(prev, curr))
}
