package daemon

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fakenotify/fakenotifyd/internal/proto"
)

func startTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	sockPath := filepath.Join(t.TempDir(), "fakenotify.sock")
	s := New(sockPath, 20*time.Millisecond, 50*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	go s.ListenAndServe(ctx)
	t.Cleanup(cancel)

	require.Eventually(t, func() bool {
		c, err := net.Dial("unix", sockPath)
		if err != nil {
			return false
		}
		c.Close()
		return true
	}, time.Second, 5*time.Millisecond)

	return s, sockPath
}

func TestAddListRemoveOverUDS(t *testing.T) {
	_, sockPath := startTestServer(t)
	conn, err := net.Dial("unix", sockPath)
	require.NoError(t, err)
	defer conn.Close()

	dir := t.TempDir()
	require.NoError(t, proto.WriteFrame(conn, proto.NewAddFrame(proto.AddRequest{Mask: 0x3ff, Path: dir})))
	f, err := proto.ReadFrame(conn)
	require.NoError(t, err)
	require.Equal(t, proto.KindAddOK, f.Kind)
	addOK, err := proto.ParseAddOK(f)
	require.NoError(t, err)
	assert.Equal(t, int32(1), addOK.Wd)

	require.NoError(t, proto.WriteFrame(conn, proto.NewListFrame()))
	f, err = proto.ReadFrame(conn)
	require.NoError(t, err)
	require.Equal(t, proto.KindListResp, f.Kind)
	listResp, err := proto.ParseListResponse(f)
	require.NoError(t, err)
	require.Len(t, listResp.Entries, 1)
	assert.Equal(t, addOK.Wd, listResp.Entries[0].Wd)

	require.NoError(t, proto.WriteFrame(conn, proto.NewRemoveFrame(proto.RemoveRequest{Wd: addOK.Wd})))
	f, err = proto.ReadFrame(conn)
	require.NoError(t, err)
	assert.Equal(t, proto.KindRemoveOK, f.Kind)
}

func TestAddDuplicateSameClientReturnsErr(t *testing.T) {
	_, sockPath := startTestServer(t)
	conn, err := net.Dial("unix", sockPath)
	require.NoError(t, err)
	defer conn.Close()

	dir := t.TempDir()
	require.NoError(t, proto.WriteFrame(conn, proto.NewAddFrame(proto.AddRequest{Mask: 0x3ff, Path: dir})))
	_, err = proto.ReadFrame(conn)
	require.NoError(t, err)

	require.NoError(t, proto.WriteFrame(conn, proto.NewAddFrame(proto.AddRequest{Mask: 0x3ff, Path: dir})))
	f, err := proto.ReadFrame(conn)
	require.NoError(t, err)
	assert.Equal(t, proto.KindAddErr, f.Kind)
	errPayload, err := proto.ParseErrorPayload(f)
	require.NoError(t, err)
	assert.Equal(t, proto.ErrAlreadyExists, errPayload.Code)
}

func TestStatusOverUDS(t *testing.T) {
	_, sockPath := startTestServer(t)
	conn, err := net.Dial("unix", sockPath)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, proto.WriteFrame(conn, proto.NewStatusFrame()))
	f, err := proto.ReadFrame(conn)
	require.NoError(t, err)
	require.Equal(t, proto.KindStatusResp, f.Kind)
	status, err := proto.ParseStatusResponse(f)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), status.TotalClients)
}

// S5 — cross-client isolation via two real UDS connections.
func TestCrossClientDistinctDescriptorsOverUDS(t *testing.T) {
	_, sockPath := startTestServer(t)
	dir := t.TempDir()

	connA, err := net.Dial("unix", sockPath)
	require.NoError(t, err)
	defer connA.Close()
	connB, err := net.Dial("unix", sockPath)
	require.NoError(t, err)
	defer connB.Close()

	require.NoError(t, proto.WriteFrame(connA, proto.NewAddFrame(proto.AddRequest{Mask: 0x3ff, Path: dir})))
	fA, err := proto.ReadFrame(connA)
	require.NoError(t, err)
	okA, err := proto.ParseAddOK(fA)
	require.NoError(t, err)

	require.NoError(t, proto.WriteFrame(connB, proto.NewAddFrame(proto.AddRequest{Mask: 0x3ff, Path: dir})))
	fB, err := proto.ReadFrame(connB)
	require.NoError(t, err)
	okB, err := proto.ParseAddOK(fB)
	require.NoError(t, err)

	assert.NotEqual(t, okA.Wd, okB.Wd)
}

// A reconnecting shim asserts the descriptor its application already
// observed rather than accepting a freshly allocated one.
func TestAddWithAssertedWdOverUDS(t *testing.T) {
	_, sockPath := startTestServer(t)
	conn, err := net.Dial("unix", sockPath)
	require.NoError(t, err)
	defer conn.Close()

	dir := t.TempDir()
	require.NoError(t, proto.WriteFrame(conn, proto.NewAddFrame(proto.AddRequest{Mask: 0x3ff, Path: dir, AssertWd: 42})))
	f, err := proto.ReadFrame(conn)
	require.NoError(t, err)
	require.Equal(t, proto.KindAddOK, f.Kind)
	addOK, err := proto.ParseAddOK(f)
	require.NoError(t, err)
	assert.EqualValues(t, 42, addOK.Wd)

	require.NoError(t, proto.WriteFrame(conn, proto.NewListFrame()))
	f, err = proto.ReadFrame(conn)
	require.NoError(t, err)
	listResp, err := proto.ParseListResponse(f)
	require.NoError(t, err)
	require.Len(t, listResp.Entries, 1)
	assert.EqualValues(t, 42, listResp.Entries[0].Wd)
}
