package scanner

import (
	"sort"
	"strings"
)

// RecordKind classifies one diff record before it reaches the debouncer.
type RecordKind int

const (
	RecordCreate RecordKind = iota
	RecordDelete
	RecordModify
)

// Record is one distilled filesystem change for a relative path, the
// scanner's unit of output before debouncing and wire translation.
type Record struct {
	Kind    RecordKind
	RelPath string
	IsDir   bool
}

// order breaks ties between records that share a RelPath (the
// inode-changed replace case: DELETE must precede CREATE for the same
// name) while leaving records at different paths to sort purely by path.
func (k RecordKind) order() int {
	switch k {
	case RecordDelete:
		return 0
	case RecordCreate:
		return 1
	default:
		return 2
	}
}

// diff compares prev to curr and returns the distilled change records,
// already ordered per the scanner's ordering guarantee: stable
// lexicographic order by relative path, a directory's CREATE preceding
// its descendants' records and a directory's DELETE following its
// descendants' DELETEs.
func diff(prev, curr *Snapshot) []Record {
	var records []Record

	for path, newEntry := range curr.Entries {
		oldEntry, existed := prev.Entries[path]
		switch {
		case !existed:
			records = append(records, Record{Kind: RecordCreate, RelPath: path, IsDir: newEntry.Kind == KindDir})
		case oldEntry.Inode != newEntry.Inode:
			records = append(records,
				Record{Kind: RecordDelete, RelPath: path, IsDir: oldEntry.Kind == KindDir},
				Record{Kind: RecordCreate, RelPath: path, IsDir: newEntry.Kind == KindDir},
			)
		case oldEntry.Mtime != newEntry.Mtime || oldEntry.Size != newEntry.Size:
			records = append(records, Record{Kind: RecordModify, RelPath: path, IsDir: newEntry.Kind == KindDir})
		}
	}
	for path, oldEntry := range prev.Entries {
		if _, stillPresent := curr.Entries[path]; !stillPresent {
			records = append(records, Record{Kind: RecordDelete, RelPath: path, IsDir: oldEntry.Kind == KindDir})
		}
	}

	sort.SliceStable(records, func(i, j int) bool { return less(records[i], records[j]) })
	return records
}

// less orders two records for emission. Same-path records break ties by
// kind (DELETE before CREATE, for the inode-changed replace case).
// Different-path DELETE records additionally honour post-order: a
// directory's DELETE must follow the DELETE of everything under it, so an
// ancestor never sorts before its own descendant. CREATE keeps plain
// ascending order, which already yields pre-order for free since a
// directory's relative path is a string-prefix of its children's.
func less(a, b Record) bool {
	if a.RelPath == b.RelPath {
		return a.Kind.order() < b.Kind.order()
	}
	if a.Kind == RecordDelete && b.Kind == RecordDelete {
		if isAncestor(a.RelPath, b.RelPath) {
			return false
		}
		if isAncestor(b.RelPath, a.RelPath) {
			return true
		}
	}
	return a.RelPath < b.RelPath
}

// isAncestor reports whether child is a descendant of parent (i.e. parent
// is a proper path prefix of child, respecting path component boundaries).
func isAncestor(parent, child string) bool {
	return strings.HasPrefix(child, parent+"/")
}
