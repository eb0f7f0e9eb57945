package mapred

import (
	"io"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaflag/hidoop/common"
	"github.com/vaflag/hidoop/datanode"
	"github.com/vaflag/hidoop/examples/wordcount"
	"github.com/vaflag/hidoop/format"
	"github.com/vaflag/hidoop/hdfs"
	"github.com/vaflag/hidoop/namenode"
)

func TestMatchDaemon(t *testing.T) {
	daemons := []string{"10.0.0.1:8030", "10.0.0.2:8030"}

	addr, err := matchDaemon("10.0.0.2:8020", daemons)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.2:8030", addr)

	_, err = matchDaemon("10.0.0.3:8020", daemons)
	assert.ErrorIs(t, err, common.ErrLocalityUnsatisfied)
}

// worker is one data node plus its co-located daemon, sharing a directory.
type worker struct {
	node   *datanode.DataNode
	daemon *Daemon
}

type testCluster struct {
	t        *testing.T
	ns       *namenode.NameService
	nsClient *namenode.Client
	jmClient *JobManagerClient
	workers  []*worker
}

func startTestCluster(t *testing.T, workers int) *testCluster {
	t.Helper()

	ns := namenode.NewNameService(filepath.Join(t.TempDir(), common.SnapshotFileName))
	nsServer := namenode.NewServer(ns)
	require.NoError(t, nsServer.Start("127.0.0.1:0"))
	t.Cleanup(func() { nsServer.Close() })
	nsClient := namenode.NewClient(nsServer.Addr())

	jm := NewJobManager(nsClient)
	require.NoError(t, jm.Start("127.0.0.1:0"))
	t.Cleanup(func() { jm.Close() })
	jmClient := NewJobManagerClient(jm.Addr())

	c := &testCluster{t: t, ns: ns, nsClient: nsClient, jmClient: jmClient}
	for i := 0; i < workers; i++ {
		dataDir := t.TempDir()
		node := datanode.New(dataDir, nsClient)
		require.NoError(t, node.Start("127.0.0.1:0"))
		t.Cleanup(func() { node.Close() })

		daemon := NewDaemon(dataDir, node.Addr(), nsClient, jmClient)
		require.NoError(t, daemon.Start("127.0.0.1:0"))
		t.Cleanup(func() { daemon.Close() })

		c.workers = append(c.workers, &worker{node: node, daemon: daemon})
	}

	require.Eventually(t, func() bool {
		daemons, err := ns.AvailableDaemons()
		return len(ns.LiveDataNodes()) == workers && err == nil && len(daemons) == workers
	}, 2*time.Second, 10*time.Millisecond, "workers never registered")
	return c
}

func (c *testCluster) newJobClient(inputFormat format.Type, inputFileName string, chunkSize int64) *JobClient {
	hc := hdfs.NewClientWithChunkSize(c.nsClient, chunkSize)
	var jc *JobClient
	if inputFileName == "" {
		jc = NewGeneratorJobClient(c.nsClient, c.jmClient, hc, "gen")
	} else {
		jc = NewJobClient(c.nsClient, c.jmClient, hc, inputFormat, inputFileName)
	}
	jc.SetResultFileName(filepath.Join(c.t.TempDir(), "result.kv"))
	jc.SetPollInterval(20 * time.Millisecond)
	return jc
}

func readCounts(t *testing.T, path string) map[string]string {
	t.Helper()
	reader, err := format.OpenKVReader(path)
	require.NoError(t, err)
	defer reader.Close()

	counts := make(map[string]string)
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		counts[rec.Key] = rec.Value
	}
	return counts
}

func TestWordCountJob(t *testing.T) {
	c := startTestCluster(t, 1)
	Register(wordcount.Name, wordcount.New())

	src := filepath.Join(t.TempDir(), "input.txt")
	require.NoError(t, os.WriteFile(src, []byte("a b a\nb c\na\n"), 0644))

	// An eight-byte ceiling splits the three lines into two chunks, so the
	// job runs two maps.
	hc := hdfs.NewClientWithChunkSize(c.nsClient, 8)
	require.NoError(t, hc.Write(format.Line, src, 1))

	jc := c.newJobClient(format.Line, "input.txt", 8)
	result, err := jc.Run(wordcount.Name)
	require.NoError(t, err)

	counts := readCounts(t, result)
	assert.Equal(t, map[string]string{"a": "3", "b": "2", "c": "1"}, counts)

	// The barrier only releases once every map reported in, and the output
	// file's chunks are all catalogued.
	fd := c.ns.Metadata()["input-map.kv"]
	require.NotNil(t, fd)
	assert.Equal(t, 2, fd.FileSize)
	assert.True(t, fd.Complete())
}

// pinger is a generator job: each map emits a single record with no input.
type pinger struct{}

func (pinger) Map(reader format.Reader, writer format.Writer) error {
	return writer.Write(&format.Record{Key: "ping", Value: "1"})
}

func (pinger) Reduce(reader format.Reader, writer format.Writer) error {
	total := 0
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if rec.Key == "ping" {
			total++
		}
	}
	return writer.Write(&format.Record{Key: "ping", Value: strconv.Itoa(total)})
}

func TestGeneratorJob(t *testing.T) {
	c := startTestCluster(t, 2)
	Register("pinger", pinger{})

	jc := c.newJobClient("", "", common.DefaultChunkSize)
	result, err := jc.Run("pinger")
	require.NoError(t, err)

	counts := readCounts(t, result)
	assert.Equal(t, map[string]string{"ping": "2"}, counts)

	fd := c.ns.Metadata()["gen-map.kv"]
	require.NotNil(t, fd)
	assert.Equal(t, 2, fd.FileSize)
}

func TestRunUnknownFunction(t *testing.T) {
	c := startTestCluster(t, 1)
	jc := c.newJobClient("", "", common.DefaultChunkSize)
	_, err := jc.Run("no-such-function")
	assert.ErrorIs(t, err, common.ErrUnknownFunction)
}

func TestRunUnsatisfiedLocality(t *testing.T) {
	c := startTestCluster(t, 1)
	Register(wordcount.Name, wordcount.New())

	// The input chunk is catalogued on a host with no daemon.
	c.ns.NotifyDataNodeAvailability("elsewhere:8020")
	c.ns.ChunkWritten("remote.txt", 0, 4096, 1, 0, "elsewhere:8020")
	c.ns.AllChunksWritten("remote.txt")

	jc := c.newJobClient(format.Line, "remote.txt", common.DefaultChunkSize)
	_, err := jc.Run(wordcount.Name)
	assert.ErrorIs(t, err, common.ErrLocalityUnsatisfied)
}
