package namenode

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaflag/hidoop/common"
)

func startTestServer(t *testing.T) (*Server, *Client) {
	t.Helper()
	ns := NewNameService(filepath.Join(t.TempDir(), common.SnapshotFileName))
	server := NewServer(ns)
	require.NoError(t, server.Start("127.0.0.1:0"))
	t.Cleanup(func() { server.Close() })
	return server, NewClient(server.Addr())
}

func TestClientServerRoundTrip(t *testing.T) {
	server, client := startTestServer(t)

	require.NoError(t, client.NotifyDataNodeAvailability("node1:8020"))
	require.NoError(t, client.NotifyDaemonAvailability("node1:8030"))

	servers, err := client.WriteChunkRequest(1)
	require.NoError(t, err)
	assert.Equal(t, []string{"node1:8020"}, servers)

	require.NoError(t, client.ChunkWritten("wc.txt", 0, 4096, 1, 0, "node1:8020"))
	require.NoError(t, client.AllChunksWritten("wc.txt"))

	servers, err = client.ReadFileRequest("wc.txt")
	require.NoError(t, err)
	assert.Equal(t, []string{"node1:8020"}, servers)

	servers, err = client.DeleteFileRequest("wc.txt")
	require.NoError(t, err)
	assert.Equal(t, []string{"node1:8020"}, servers)

	daemons, err := client.AvailableDaemons()
	require.NoError(t, err)
	assert.Equal(t, []string{"node1:8030"}, daemons)

	require.NoError(t, client.ChunkDeleted("wc.txt", 0, "node1:8020"))
	_, err = client.ReadFileRequest("wc.txt")
	assert.ErrorIs(t, err, common.ErrUnknownFile)

	assert.Contains(t, server.ns.LiveDataNodes(), "node1:8020")
}

func TestClientSurfacesSentinelErrors(t *testing.T) {
	_, client := startTestServer(t)

	_, err := client.WriteChunkRequest(1)
	assert.ErrorIs(t, err, common.ErrNoDataNodes)

	_, err = client.ReadFileRequest("ghost.txt")
	assert.ErrorIs(t, err, common.ErrUnknownFile)

	_, err = client.AvailableDaemons()
	assert.ErrorIs(t, err, common.ErrNoDaemons)
}

func TestClientTransportError(t *testing.T) {
	client := NewClient("127.0.0.1:1")
	_, err := client.WriteChunkRequest(1)
	assert.ErrorIs(t, err, common.ErrTransport)
}

func TestAdminRouter(t *testing.T) {
	ns := NewNameService(filepath.Join(t.TempDir(), common.SnapshotFileName))
	defer ns.Close()
	ns.NotifyDataNodeAvailability("node1:8020")
	ns.ChunkWritten("wc.txt", 0, 4096, 1, 0, "node1:8020")
	ns.AllChunksWritten("wc.txt")

	router := AdminRouter(ns)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metadata", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "wc.txt")
	assert.Contains(t, rec.Body.String(), `"complete":true`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nodes", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "node1:8020")
}
