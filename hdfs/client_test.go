package hdfs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaflag/hidoop/common"
	"github.com/vaflag/hidoop/datanode"
	"github.com/vaflag/hidoop/format"
	"github.com/vaflag/hidoop/namenode"
)

type cluster struct {
	t        *testing.T
	ns       *namenode.NameService
	nsClient *namenode.Client
}

func startCluster(t *testing.T, dataNodes int) *cluster {
	t.Helper()
	ns := namenode.NewNameService(filepath.Join(t.TempDir(), common.SnapshotFileName))
	server := namenode.NewServer(ns)
	require.NoError(t, server.Start("127.0.0.1:0"))
	t.Cleanup(func() { server.Close() })

	c := &cluster{t: t, ns: ns, nsClient: namenode.NewClient(server.Addr())}
	for i := 0; i < dataNodes; i++ {
		node := datanode.New(t.TempDir(), c.nsClient)
		require.NoError(t, node.Start("127.0.0.1:0"))
		t.Cleanup(func() { node.Close() })
	}
	require.Eventually(t, func() bool {
		return len(ns.LiveDataNodes()) == dataNodes
	}, 2*time.Second, 10*time.Millisecond, "data nodes never registered")
	return c
}

func (c *cluster) writeLocal(name, content string) string {
	c.t.Helper()
	path := filepath.Join(c.t.TempDir(), name)
	require.NoError(c.t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestSingleChunkRoundTrip(t *testing.T) {
	c := startCluster(t, 1)
	client := NewClient(c.nsClient)

	content := "0123456789\n"
	src := c.writeLocal("single.txt", content)
	require.NoError(t, client.Write(format.Line, src, 1))

	fd := c.ns.Metadata()["single.txt"]
	require.NotNil(t, fd)
	assert.Equal(t, 1, fd.FileSize)

	dest := filepath.Join(t.TempDir(), "single-out.txt")
	require.NoError(t, client.Read("single.txt", dest))

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, content, string(got))
}

func TestThreeChunkSplit(t *testing.T) {
	c := startCluster(t, 1)
	client := NewClientWithChunkSize(c.nsClient, 16)

	// Three 10-byte lines with a 16-byte ceiling: each line lands in its own
	// chunk because the boundary record always opens the next chunk.
	content := "aaaaaaaaa\nbbbbbbbbb\nccccccccc\n"
	src := c.writeLocal("split.txt", content)
	require.NoError(t, client.Write(format.Line, src, 1))

	fd := c.ns.Metadata()["split.txt"]
	require.NotNil(t, fd)
	assert.Equal(t, 3, fd.FileSize)

	servers, err := c.nsClient.ReadFileRequest("split.txt")
	require.NoError(t, err)
	assert.Len(t, servers, 3)

	dest := filepath.Join(t.TempDir(), "split-out.txt")
	require.NoError(t, client.Read("split.txt", dest))
	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, content, string(got))
}

func TestExactChunkSizeSingleChunk(t *testing.T) {
	c := startCluster(t, 1)
	client := NewClientWithChunkSize(c.nsClient, 10)

	// Two five-byte records fill the ceiling exactly: still one chunk.
	src := c.writeLocal("exact.txt", "abcd\nefgh\n")
	require.NoError(t, client.Write(format.Line, src, 1))

	fd := c.ns.Metadata()["exact.txt"]
	require.NotNil(t, fd)
	assert.Equal(t, 1, fd.FileSize)
}

func TestOneByteOverSpills(t *testing.T) {
	c := startCluster(t, 1)
	client := NewClientWithChunkSize(c.nsClient, 10)

	// One record past the ceiling: a second chunk holding just that record.
	src := c.writeLocal("spill.txt", "abcd\nefgh\nij\n")
	require.NoError(t, client.Write(format.Line, src, 1))

	fd := c.ns.Metadata()["spill.txt"]
	require.NotNil(t, fd)
	assert.Equal(t, 2, fd.FileSize)

	dest := filepath.Join(t.TempDir(), "spill-out.txt")
	require.NoError(t, client.Read("spill.txt", dest))
	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "abcd\nefgh\nij\n", string(got))
}

func TestEmptyFile(t *testing.T) {
	c := startCluster(t, 1)
	client := NewClient(c.nsClient)

	src := c.writeLocal("empty.txt", "")
	require.NoError(t, client.Write(format.Line, src, 1))

	fd := c.ns.Metadata()["empty.txt"]
	require.NotNil(t, fd)
	assert.Equal(t, 0, fd.FileSize)
	assert.True(t, fd.Complete())

	dest := filepath.Join(t.TempDir(), "empty-out.txt")
	require.NoError(t, client.Read("empty.txt", dest))
	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRecordTooLarge(t *testing.T) {
	c := startCluster(t, 1)
	client := NewClientWithChunkSize(c.nsClient, 8)

	src := c.writeLocal("big.txt", "this record does not fit\n")
	err := client.Write(format.Line, src, 1)
	assert.ErrorIs(t, err, common.ErrRecordTooLarge)
}

func TestReplicatedWriteAndRead(t *testing.T) {
	c := startCluster(t, 2)
	client := NewClientWithChunkSize(c.nsClient, 16)

	content := "aaaaaaaaa\nbbbbbbbbb\n"
	src := c.writeLocal("repl.txt", content)
	require.NoError(t, client.Write(format.Line, src, 2))

	fd := c.ns.Metadata()["repl.txt"]
	require.NotNil(t, fd)
	assert.Equal(t, 2, fd.FileSize)
	for chunk, handles := range fd.ChunkHandles {
		assert.Len(t, handles, 2, "chunk %d should live on both nodes", chunk)
	}

	dest := filepath.Join(t.TempDir(), "repl-out.txt")
	require.NoError(t, client.Read("repl.txt", dest))
	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, content, string(got))
}

func TestReplicationAboveLiveNodes(t *testing.T) {
	c := startCluster(t, 1)
	client := NewClient(c.nsClient)

	src := c.writeLocal("short.txt", "data\n")
	require.NoError(t, client.Write(format.Line, src, 3))

	fd := c.ns.Metadata()["short.txt"]
	require.NotNil(t, fd)
	assert.Len(t, fd.ChunkHandles[0], 1)
}

func TestDeleteFile(t *testing.T) {
	c := startCluster(t, 1)
	client := NewClient(c.nsClient)

	src := c.writeLocal("gone.txt", "data\n")
	require.NoError(t, client.Write(format.Line, src, 1))
	require.NoError(t, client.Delete("gone.txt"))

	require.Eventually(t, func() bool {
		_, ok := c.ns.Metadata()["gone.txt"]
		return !ok
	}, 2*time.Second, 10*time.Millisecond, "metadata never cleaned up")

	err := client.Read("gone.txt", filepath.Join(t.TempDir(), "dest.txt"))
	assert.ErrorIs(t, err, common.ErrUnknownFile)
}

func TestMissingChunkAborts(t *testing.T) {
	c := startCluster(t, 1)
	client := NewClient(c.nsClient)

	// Chunk 1 only ever lived on a node that is not registered: the read
	// must fail without producing a destination file.
	live := c.ns.LiveDataNodes()[0]
	c.ns.ChunkWritten("holes.txt", 0, 4096, 1, 0, live)
	c.ns.ChunkWritten("holes.txt", 0, 4096, 1, 1, "dead:8020")
	c.ns.ChunkWritten("holes.txt", 0, 4096, 1, 2, live)
	c.ns.AllChunksWritten("holes.txt")

	dest := filepath.Join(t.TempDir(), "holes-out.txt")
	err := client.Read("holes.txt", dest)
	assert.ErrorIs(t, err, common.ErrMissingChunks)

	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr))
}
