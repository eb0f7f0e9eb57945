package datanode

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaflag/hidoop/common"
	"github.com/vaflag/hidoop/namenode"
)

type cluster struct {
	ns       *namenode.NameService
	nsClient *namenode.Client
}

func startNameService(t *testing.T) *cluster {
	t.Helper()
	ns := namenode.NewNameService(filepath.Join(t.TempDir(), common.SnapshotFileName))
	server := namenode.NewServer(ns)
	require.NoError(t, server.Start("127.0.0.1:0"))
	t.Cleanup(func() { server.Close() })
	return &cluster{ns: ns, nsClient: namenode.NewClient(server.Addr())}
}

func (c *cluster) startDataNode(t *testing.T) (*DataNode, string) {
	t.Helper()
	dataDir := t.TempDir()
	node := New(dataDir, c.nsClient)
	require.NoError(t, node.Start("127.0.0.1:0"))
	t.Cleanup(func() { node.Close() })

	require.Eventually(t, func() bool {
		for _, addr := range c.ns.LiveDataNodes() {
			if addr == node.Addr() {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond, "data node never registered")
	return node, dataDir
}

func TestWriteReadRoundTrip(t *testing.T) {
	c := startNameService(t)
	node, dataDir := c.startDataNode(t)

	payload := []byte("first line\nsecond line\n")
	err := WriteChunk(node.Addr(), "wc", ".txt", 0, 4096, nil, bytes.NewReader(payload))
	require.NoError(t, err)

	// The write acknowledgement implies the name service already knows.
	fd := c.ns.Metadata()["wc.txt"]
	require.NotNil(t, fd)
	assert.Equal(t, []string{node.Addr()}, fd.ChunkHandles[0])
	assert.Equal(t, int64(4096), fd.ChunkSize)

	stored, err := os.ReadFile(filepath.Join(dataDir, "wc-0.txt"))
	require.NoError(t, err)
	assert.Equal(t, payload, stored)

	var got bytes.Buffer
	found, err := ReadChunk(node.Addr(), "wc", ".txt", 0, &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, payload, got.Bytes())
}

func TestReadMissingChunk(t *testing.T) {
	c := startNameService(t)
	node, _ := c.startDataNode(t)

	var got bytes.Buffer
	found, err := ReadChunk(node.Addr(), "ghost", ".txt", 7, &got)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Zero(t, got.Len())
}

func TestReplicaForwarding(t *testing.T) {
	c := startNameService(t)
	primary, primaryDir := c.startDataNode(t)
	replica, replicaDir := c.startDataNode(t)

	payload := []byte(strings.Repeat("replicated data\n", 64))
	err := WriteChunk(primary.Addr(), "wc", ".txt", 0, 4096, []string{replica.Addr()}, bytes.NewReader(payload))
	require.NoError(t, err)

	for _, dir := range []string{primaryDir, replicaDir} {
		stored, err := os.ReadFile(filepath.Join(dir, "wc-0.txt"))
		require.NoError(t, err)
		assert.Equal(t, payload, stored)
	}

	fd := c.ns.Metadata()["wc.txt"]
	require.NotNil(t, fd)
	assert.ElementsMatch(t, []string{primary.Addr(), replica.Addr()}, fd.ChunkHandles[0])

	// Replica survival: the copy on the second node serves reads on its own.
	var got bytes.Buffer
	found, err := ReadChunk(replica.Addr(), "wc", ".txt", 0, &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, payload, got.Bytes())
}

func TestDeleteSingleChunk(t *testing.T) {
	c := startNameService(t)
	node, dataDir := c.startDataNode(t)

	require.NoError(t, WriteChunk(node.Addr(), "wc", ".txt", 0, 4096, nil, bytes.NewReader([]byte("data\n"))))
	require.NoError(t, DeleteChunk(node.Addr(), "wc", ".txt", 0))

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dataDir, "wc-0.txt"))
		return os.IsNotExist(err)
	}, 2*time.Second, 10*time.Millisecond, "chunk file never deleted")

	require.Eventually(t, func() bool {
		_, ok := c.ns.Metadata()["wc.txt"]
		return !ok
	}, 2*time.Second, 10*time.Millisecond, "metadata never cleaned up")
}

func TestDeleteAllChunks(t *testing.T) {
	c := startNameService(t)
	node, dataDir := c.startDataNode(t)

	require.NoError(t, WriteChunk(node.Addr(), "wc", ".txt", 0, 4096, nil, bytes.NewReader([]byte("one\n"))))
	require.NoError(t, WriteChunk(node.Addr(), "wc", ".txt", 1, 4096, nil, bytes.NewReader([]byte("two\n"))))
	require.NoError(t, WriteChunk(node.Addr(), "other", ".txt", 0, 4096, nil, bytes.NewReader([]byte("keep\n"))))

	require.NoError(t, DeleteChunk(node.Addr(), "wc", ".txt", common.DeleteAllChunks))

	require.Eventually(t, func() bool {
		_, err0 := os.Stat(filepath.Join(dataDir, "wc-0.txt"))
		_, err1 := os.Stat(filepath.Join(dataDir, "wc-1.txt"))
		return os.IsNotExist(err0) && os.IsNotExist(err1)
	}, 2*time.Second, 10*time.Millisecond, "chunk files never deleted")

	// The unrelated file stays.
	_, err := os.Stat(filepath.Join(dataDir, "other-0.txt"))
	assert.NoError(t, err)
	require.Eventually(t, func() bool {
		md := c.ns.Metadata()
		_, gone := md["wc.txt"]
		_, kept := md["other.txt"]
		return !gone && kept
	}, 2*time.Second, 10*time.Millisecond, "metadata never converged")
}

func TestConcurrentWritesSamePath(t *testing.T) {
	c := startNameService(t)
	node, dataDir := c.startDataNode(t)

	payload := []byte(strings.Repeat("x", 1024) + "\n")
	done := make(chan error, 4)
	for i := 0; i < 4; i++ {
		go func() {
			done <- WriteChunk(node.Addr(), "race", ".txt", 0, 4096, nil, bytes.NewReader(payload))
		}()
	}
	for i := 0; i < 4; i++ {
		require.NoError(t, <-done)
	}

	stored, err := os.ReadFile(filepath.Join(dataDir, "race-0.txt"))
	require.NoError(t, err)
	assert.Equal(t, payload, stored)
}
