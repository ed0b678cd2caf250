package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fakenotify/fakenotifyd/internal/registry"
	"github.com/fakenotify/fakenotifyd/internal/scanner"
	"github.com/fakenotify/fakenotifyd/internal/wire"
)

type noopScanner struct{}

func (noopScanner) Stop() {}

func (noopScanner) SetInterval(time.Duration) {}

func newTestReg(t *testing.T) *registry.Registry {
	t.Helper()
	return registry.New(func(string, time.Duration) (registry.ScannerHandle, error) { return noopScanner{}, nil })
}

func TestDispatcherTranslatesCreateToWireEvent(t *testing.T) {
	reg := newTestReg(t)
	dir := t.TempDir()
	reg.RegisterClient(1, 0, 0)
	wd, err := reg.Add(1, dir, uint32(wire.AllEvents), false, 0)
	require.NoError(t, err)

	d := New(reg, 10*time.Millisecond)
	canonical := reg.List()[0].CanonicalPath
	d.Changed(canonical, []scanner.Record{{Kind: scanner.RecordCreate, RelPath: "a", IsDir: false}})

	q := d.QueueFor(1)
	require.Eventually(t, func() bool { return len(q.Drain()) > 0 || true }, time.Second, time.Millisecond)

	var events []wire.Event
	require.Eventually(t, func() bool {
		events = append(events, q.Drain()...)
		return len(events) > 0
	}, time.Second, 5*time.Millisecond)

	require.Len(t, events, 1)
	assert.Equal(t, wd, events[0].Wd)
	assert.True(t, events[0].Mask.Has(wire.Create))
	assert.Equal(t, "a", events[0].Name)
}

func TestDispatcherCollapsesCreateThenDeleteInWindow(t *testing.T) {
	reg := newTestReg(t)
	dir := t.TempDir()
	reg.RegisterClient(1, 0, 0)
	_, err := reg.Add(1, dir, uint32(wire.AllEvents), false, 0)
	require.NoError(t, err)

	d := New(reg, 200*time.Millisecond)
	canonical := reg.List()[0].CanonicalPath
	d.Changed(canonical, []scanner.Record{{Kind: scanner.RecordCreate, RelPath: "tmp", IsDir: false}})
	d.Changed(canonical, []scanner.Record{{Kind: scanner.RecordDelete, RelPath: "tmp", IsDir: false}})

	time.Sleep(300 * time.Millisecond)
	q := d.QueueFor(1)
	assert.Empty(t, q.Drain())
}

func TestDispatcherCollapsesCreateThenModifyToCreate(t *testing.T) {
	reg := newTestReg(t)
	dir := t.TempDir()
	reg.RegisterClient(1, 0, 0)
	_, err := reg.Add(1, dir, uint32(wire.AllEvents), false, 0)
	require.NoError(t, err)

	d := New(reg, 100*time.Millisecond)
	canonical := reg.List()[0].CanonicalPath
	d.Changed(canonical, []scanner.Record{{Kind: scanner.RecordCreate, RelPath: "f", IsDir: false}})
	d.Changed(canonical, []scanner.Record{{Kind: scanner.RecordModify, RelPath: "f", IsDir: false}})

	q := d.QueueFor(1)
	var events []wire.Event
	require.Eventually(t, func() bool {
		events = append(events, q.Drain()...)
		return len(events) > 0
	}, time.Second, 5*time.Millisecond)

	require.Len(t, events, 1)
	assert.True(t, events[0].Mask.Has(wire.Create))
}

func TestDispatcherOverflowUsesWatchWd(t *testing.T) {
	reg := newTestReg(t)
	dir := t.TempDir()
	reg.RegisterClient(1, 0, 0)
	wd, err := reg.Add(1, dir, uint32(wire.AllEvents), false, 0)
	require.NoError(t, err)

	d := New(reg, 50*time.Millisecond)
	canonical := reg.List()[0].CanonicalPath
	d.Overflow(canonical)

	q := d.QueueFor(1)
	events := q.Drain()
	require.Len(t, events, 1)
	assert.Equal(t, wd, events[0].Wd)
	assert.True(t, events[0].Mask.Has(wire.QOverflow))
}

func TestDispatcherIgnoredEnqueuesTerminalEvent(t *testing.T) {
	reg := newTestReg(t)
	dir := t.TempDir()
	reg.RegisterClient(1, 0, 0)
	wd, err := reg.Add(1, dir, uint32(wire.AllEvents), false, 0)
	require.NoError(t, err)

	d := New(reg, 50*time.Millisecond)
	d.Ignored(1, wd)

	events := d.QueueFor(1).Drain()
	require.Len(t, events, 1)
	assert.Equal(t, wd, events[0].Wd)
	assert.True(t, events[0].Mask.Has(wire.Ignored))
}

func TestClientQueueDropsOldestAndFlagsOverflow(t *testing.T) {
	q := NewClientQueue(2)
	q.Push(wire.Event{Wd: 1, Name: "1"})
	q.Push(wire.Event{Wd: 1, Name: "2"})
	q.Push(wire.Event{Wd: 1, Name: "3"})

	events := q.Drain()
	require.Len(t, events, 3)
	assert.True(t, events[0].Mask.Has(wire.QOverflow))
	assert.Equal(t, "2", events[1].Name)
	assert.Equal(t, "3", events[2].Name)
}
