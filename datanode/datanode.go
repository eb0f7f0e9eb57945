// Package datanode implements the chunk storage server. A data node persists
// chunks under a local directory, serves WRITE, READ and DELETE over the
// framed data protocol, forwards writes to replica peers and keeps the name
// service informed of what it holds.
package datanode

import (
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vaflag/hidoop/common"
	"github.com/vaflag/hidoop/namenode"
)

// DataNode is one storage host.
type DataNode struct {
	addr    string // advertised host:port
	dataDir string
	ns      *namenode.Client

	listener net.Listener
	locks    pathLocks
	stopCh   chan struct{}
	log      *logrus.Entry
}

// New creates a data node storing chunks under dataDir and registering with
// the name service behind ns.
func New(dataDir string, ns *namenode.Client) *DataNode {
	return &DataNode{
		dataDir: dataDir,
		ns:      ns,
		locks:   pathLocks{locks: make(map[string]*sync.Mutex)},
		stopCh:  make(chan struct{}),
		log:     logrus.WithField("component", "datanode"),
	}
}

// Start listens on addr, registers with the name service and begins serving.
// The node re-registers on a heartbeat ticker so a restarted name service
// relearns the live set.
func (d *DataNode) Start(addr string) error {
	if err := os.MkdirAll(d.dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	d.listener = listener
	d.addr = listener.Addr().String()
	d.log = d.log.WithField("addr", d.addr)
	d.log.Infof("data node started, data directory %s", d.dataDir)

	go d.acceptLoop()
	go d.heartbeatLoop()
	return nil
}

// Addr returns the advertised address.
func (d *DataNode) Addr() string { return d.addr }

// Close stops the listener and the heartbeat.
func (d *DataNode) Close() error {
	close(d.stopCh)
	if d.listener != nil {
		return d.listener.Close()
	}
	return nil
}

func (d *DataNode) heartbeatLoop() {
	if err := d.ns.NotifyDataNodeAvailability(d.addr); err != nil {
		d.log.WithError(err).Warn("failed to register with name service")
	}
	ticker := time.NewTicker(common.HeartbeatInterval * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-d.stopCh:
			return
		case <-ticker.C:
			if err := d.ns.NotifyDataNodeAvailability(d.addr); err != nil {
				d.log.WithError(err).Warn("failed to send heartbeat to name service")
			}
		}
	}
}

func (d *DataNode) acceptLoop() {
	for {
		conn, err := d.listener.Accept()
		if err != nil {
			return
		}
		go d.handleConn(conn)
	}
}

// handleConn serves a single data-plane operation.
func (d *DataNode) handleConn(conn net.Conn) {
	defer conn.Close()

	cmd, err := common.ReadCommand(conn)
	if err != nil {
		d.log.WithError(err).Error("error reading command")
		return
	}

	switch cmd {
	case common.CmdWrite:
		d.handleWrite(conn)
	case common.CmdRead:
		d.handleRead(conn)
	case common.CmdDelete:
		d.handleDelete(conn)
	default:
		d.log.Errorf("unknown command: %s", cmd)
	}
}

// handleWrite stores an incoming chunk, notifies the name service, forwards
// the chunk to replica peers and acknowledges the client. A fatal local
// write closes the connection without acknowledgement or callback.
func (d *DataNode) handleWrite(conn net.Conn) {
	fileName, err := common.ReadWireString(conn)
	if err != nil {
		d.log.WithError(err).Error("error reading write header")
		return
	}
	extension, err := common.ReadWireString(conn)
	if err != nil {
		d.log.WithError(err).Error("error reading write header")
		return
	}
	chunkNumber, err := common.ReadWireInt(conn)
	if err != nil {
		d.log.WithError(err).Error("error reading write header")
		return
	}
	chunkSize, err := common.ReadWireInt(conn)
	if err != nil {
		d.log.WithError(err).Error("error reading write header")
		return
	}
	replicationFactor, err := common.ReadWireInt(conn)
	if err != nil {
		d.log.WithError(err).Error("error reading write header")
		return
	}
	peers := make([]string, 0, replicationFactor-1)
	for i := int64(1); i < replicationFactor; i++ {
		peer, err := common.ReadWireString(conn)
		if err != nil {
			d.log.WithError(err).Error("error reading replica peer")
			return
		}
		peers = append(peers, peer)
	}

	path := d.chunkPath(fileName, int(chunkNumber), extension)
	unlock := d.locks.lock(path)
	written, err := storeStream(path, conn)
	unlock()
	if err != nil {
		d.log.WithError(err).Errorf("failed to store chunk %d of %s", chunkNumber, fileName)
		return
	}
	d.log.WithFields(logrus.Fields{
		"file":  fileName + extension,
		"chunk": chunkNumber,
		"bytes": written,
	}).Info("chunk stored")

	// The name service must observe the chunk before the client is told the
	// write finished.
	if err := d.ns.ChunkWritten(fileName+extension, 0, chunkSize, int(replicationFactor), int(chunkNumber), d.addr); err != nil {
		d.log.WithError(err).Error("failed to notify name service of chunk write")
		return
	}

	for _, peer := range peers {
		if err := d.forwardChunk(peer, fileName, extension, int(chunkNumber), chunkSize, path); err != nil {
			d.log.WithError(err).Warnf("failed to forward chunk %d of %s to replica %s",
				chunkNumber, fileName, peer)
		}
	}

	if err := common.WriteMessage(conn, common.MsgTypeAck, nil); err != nil {
		d.log.WithError(err).Error("failed to acknowledge write")
	}
}

// forwardChunk replays a stored chunk to one replica peer with a replication
// factor of one, so peers do not chain any further.
func (d *DataNode) forwardChunk(peer, fileName, extension string, chunkNumber int, chunkSize int64, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to reopen chunk for forwarding: %w", err)
	}
	defer file.Close()
	return WriteChunk(peer, fileName, extension, chunkNumber, chunkSize, nil, file)
}

// handleRead streams a chunk back to the client. A missing chunk closes the
// connection without a payload.
func (d *DataNode) handleRead(conn net.Conn) {
	fileName, err := common.ReadWireString(conn)
	if err != nil {
		d.log.WithError(err).Error("error reading read header")
		return
	}
	extension, err := common.ReadWireString(conn)
	if err != nil {
		d.log.WithError(err).Error("error reading read header")
		return
	}
	chunkNumber, err := common.ReadWireInt(conn)
	if err != nil {
		d.log.WithError(err).Error("error reading read header")
		return
	}

	path := d.chunkPath(fileName, int(chunkNumber), extension)
	file, err := os.Open(path)
	if err != nil {
		d.log.Warnf("chunk %d of %s not found, closing without payload", chunkNumber, fileName)
		return
	}
	defer file.Close()

	if err := common.WriteCommand(conn, common.CmdRead); err != nil {
		d.log.WithError(err).Error("failed to write read response header")
		return
	}
	if err := common.WriteWireString(conn, fileName); err != nil {
		return
	}
	if err := common.WriteWireString(conn, extension); err != nil {
		return
	}
	if err := common.WriteWireInt(conn, chunkNumber); err != nil {
		return
	}
	n, err := io.Copy(conn, file)
	if err != nil {
		d.log.WithError(err).Errorf("failed to stream chunk %d of %s", chunkNumber, fileName)
		return
	}
	d.log.WithFields(logrus.Fields{
		"file":  fileName + extension,
		"chunk": chunkNumber,
		"bytes": n,
	}).Info("chunk served")
}

// handleDelete removes local chunks of a file and reports each removal to
// the name service. A chunk number of DeleteAllChunks removes every chunk of
// the file this node holds.
func (d *DataNode) handleDelete(conn net.Conn) {
	fileName, err := common.ReadWireString(conn)
	if err != nil {
		d.log.WithError(err).Error("error reading delete header")
		return
	}
	extension, err := common.ReadWireString(conn)
	if err != nil {
		d.log.WithError(err).Error("error reading delete header")
		return
	}
	chunkNumber, err := common.ReadWireInt(conn)
	if err != nil {
		d.log.WithError(err).Error("error reading delete header")
		return
	}

	var chunks []int
	if chunkNumber == common.DeleteAllChunks {
		chunks = d.localChunks(fileName, extension)
	} else {
		chunks = []int{int(chunkNumber)}
	}

	for _, chunk := range chunks {
		path := d.chunkPath(fileName, chunk, extension)
		unlock := d.locks.lock(path)
		err := os.Remove(path)
		unlock()
		if err != nil {
			if !os.IsNotExist(err) {
				d.log.WithError(err).Errorf("failed to delete chunk %d of %s", chunk, fileName)
			}
			continue
		}
		if err := d.ns.ChunkDeleted(fileName+extension, chunk, d.addr); err != nil {
			d.log.WithError(err).Error("failed to notify name service of chunk deletion")
		}
		d.log.WithFields(logrus.Fields{
			"file":  fileName + extension,
			"chunk": chunk,
		}).Info("chunk deleted")
	}
}

// localChunks lists the chunk numbers of a file present in the data
// directory.
func (d *DataNode) localChunks(fileName, extension string) []int {
	pattern := filepath.Join(d.dataDir, fileName+"-*"+extension)
	matches, err := filepath.Glob(pattern)
	if err != nil {
		d.log.WithError(err).Error("failed to scan data directory")
		return nil
	}
	var chunks []int
	for _, match := range matches {
		name := filepath.Base(match)
		numPart := strings.TrimSuffix(strings.TrimPrefix(name, fileName+"-"), extension)
		chunk, err := strconv.Atoi(numPart)
		if err != nil {
			continue
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}

func (d *DataNode) chunkPath(fileName string, chunkNumber int, extension string) string {
	return filepath.Join(d.dataDir, common.ChunkFileName(fileName, chunkNumber, extension))
}

// storeStream writes the remaining connection payload to path.
func storeStream(path string, r io.Reader) (int64, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create chunk file: %w", err)
	}
	n, err := io.Copy(file, r)
	if err != nil {
		file.Close()
		os.Remove(path)
		return 0, fmt.Errorf("failed to write chunk file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(path)
		return 0, fmt.Errorf("failed to close chunk file: %w", err)
	}
	return n, nil
}

// pathLocks serializes file operations on the same chunk path.
type pathLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (p *pathLocks) lock(path string) func() {
	p.mu.Lock()
	l, ok := p.locks[path]
	if !ok {
		l = &sync.Mutex{}
		p.locks[path] = l
	}
	p.mu.Unlock()
	l.Lock()
	return l.Unlock
}
