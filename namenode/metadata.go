// Package namenode implements the name service: the authoritative catalog of
// files to chunk placements, the live-node registries, placement decisions
// for new chunks and the durable metadata snapshot.
package namenode

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/vaflag/hidoop/common"
)

// FileData is the per-file metadata record.
type FileData struct {
	// FileSize is the total number of chunks, authoritative once the file
	// has been declared complete.
	FileSize int `msgpack:"file_size"`
	// ChunkSize is the nominal byte ceiling for a chunk.
	ChunkSize int64 `msgpack:"chunk_size"`
	// ReplicationFactor is the intended replica count.
	ReplicationFactor int `msgpack:"replication_factor"`
	// ChunkHandles maps chunk index to the servers holding a replica.
	ChunkHandles map[int][]string `msgpack:"chunk_handles"`
}

// NewFileData creates an empty metadata record.
func NewFileData(fileSize int, chunkSize int64, replicationFactor int) *FileData {
	return &FileData{
		FileSize:          fileSize,
		ChunkSize:         chunkSize,
		ReplicationFactor: replicationFactor,
		ChunkHandles:      make(map[int][]string),
	}
}

// Complete reports whether every chunk index in [0, FileSize) has a handle
// and the handle count matches the declared size.
func (fd *FileData) Complete() bool {
	if fd.FileSize != len(fd.ChunkHandles) {
		return false
	}
	for chunk := 0; chunk < fd.FileSize; chunk++ {
		if _, ok := fd.ChunkHandles[chunk]; !ok {
			return false
		}
	}
	return true
}

// addChunkLocation records server as a holder of chunk, idempotently.
func (fd *FileData) addChunkLocation(chunk int, server string) {
	for _, s := range fd.ChunkHandles[chunk] {
		if s == server {
			return
		}
	}
	fd.ChunkHandles[chunk] = append(fd.ChunkHandles[chunk], server)
}

// NameService holds the metadata catalog and the live-node registries.
type NameService struct {
	mu       sync.RWMutex
	metadata map[string]*FileData

	nodesMu       sync.Mutex
	liveDataNodes []string
	liveDaemons   []string

	snapshotPath string
	snapshotCh   chan struct{}
	snapshotWg   sync.WaitGroup

	log *logrus.Entry
}

// NewNameService creates a name service persisting its snapshot at
// snapshotPath. An existing snapshot is loaded; a corrupt one is discarded
// with a warning and the service starts empty.
func NewNameService(snapshotPath string) *NameService {
	ns := &NameService{
		metadata:     make(map[string]*FileData),
		snapshotPath: snapshotPath,
		snapshotCh:   make(chan struct{}, 1),
		log:          logrus.WithField("component", "namenode"),
	}
	if err := ns.recoverData(); err != nil {
		ns.log.WithError(err).Warn("could not load metadata snapshot, starting empty")
	}
	ns.snapshotWg.Add(1)
	go ns.snapshotWorker()
	return ns
}

// WriteChunkRequest returns min(replicationFactor, live data nodes) distinct
// addresses chosen uniformly at random, primary first.
func (ns *NameService) WriteChunkRequest(replicationFactor int) ([]string, error) {
	ns.nodesMu.Lock()
	defer ns.nodesMu.Unlock()

	if len(ns.liveDataNodes) == 0 {
		ns.log.Error("write chunk request with no data node available")
		return nil, common.ErrNoDataNodes
	}
	candidates := make([]string, len(ns.liveDataNodes))
	copy(candidates, ns.liveDataNodes)
	rand.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})

	n := replicationFactor
	if n > len(candidates) {
		ns.log.Warnf("replication factor %d exceeds %d live data nodes, placing fewer replicas",
			replicationFactor, len(candidates))
		n = len(candidates)
	}
	if n <= 0 {
		return nil, common.ErrNoDataNodes
	}
	return candidates[:n], nil
}

// ReadFileRequest returns the first live replica address for each chunk of a
// complete file, in chunk order.
func (ns *NameService) ReadFileRequest(fileName string) ([]string, error) {
	ns.mu.RLock()
	defer ns.mu.RUnlock()

	fileData, ok := ns.metadata[fileName]
	if !ok {
		ns.log.Errorf("file %s unknown to name service", fileName)
		return nil, fmt.Errorf("file %s: %w", fileName, common.ErrUnknownFile)
	}
	if !fileData.Complete() {
		ns.log.Errorf("missing chunk information for file %s", fileName)
		return nil, fmt.Errorf("file %s: %w", fileName, common.ErrIncomplete)
	}

	servers := make([]string, 0, fileData.FileSize)
	for chunk := 0; chunk < fileData.FileSize; chunk++ {
		replica := ""
		for _, server := range fileData.ChunkHandles[chunk] {
			if ns.isLiveDataNode(server) {
				replica = server
				break
			}
		}
		if replica == "" {
			ns.log.Errorf("no live replica for chunk %d of file %s", chunk, fileName)
			return nil, fmt.Errorf("chunk %d of file %s: %w", chunk, fileName, common.ErrNoLiveReplica)
		}
		servers = append(servers, replica)
	}
	return servers, nil
}

// DeleteFileRequest returns the distinct live servers holding any chunk of
// the file. Unavailable replicas are logged but not an error; metadata is
// only mutated by the ChunkDeleted callbacks that follow.
func (ns *NameService) DeleteFileRequest(fileName string) ([]string, error) {
	ns.mu.RLock()
	defer ns.mu.RUnlock()

	fileData, ok := ns.metadata[fileName]
	if !ok {
		ns.log.Errorf("file %s unknown to name service", fileName)
		return nil, fmt.Errorf("file %s: %w", fileName, common.ErrUnknownFile)
	}

	var servers []string
	seen := make(map[string]bool)
	for chunk, handles := range fileData.ChunkHandles {
		for _, server := range handles {
			if seen[server] {
				continue
			}
			seen[server] = true
			if !ns.isLiveDataNode(server) {
				ns.log.Warnf("server %s holding chunk %d of file %s is not available, its replicas will not be deleted",
					server, chunk, fileName)
				continue
			}
			servers = append(servers, server)
		}
	}
	return servers, nil
}

// ChunkWritten idempotently records that server holds chunk chunkNumber of
// fileName. The first call creates the metadata record. A chunk size
// mismatch together with a file size or replication mismatch is a rewrite
// and clears existing handles; a chunk size mismatch alone is the signature
// of a map-output write and only updates the chunk size.
func (ns *NameService) ChunkWritten(fileName string, fileSize int, chunkSize int64, replicationFactor, chunkNumber int, server string) {
	ns.mu.Lock()
	fileData, ok := ns.metadata[fileName]
	if !ok {
		fileData = NewFileData(fileSize, chunkSize, replicationFactor)
		ns.metadata[fileName] = fileData
	} else if fileData.ChunkSize != chunkSize {
		if fileData.FileSize != fileSize || fileData.ReplicationFactor != replicationFactor {
			fileData.FileSize = fileSize
			fileData.ChunkSize = chunkSize
			fileData.ReplicationFactor = replicationFactor
			fileData.ChunkHandles = make(map[int][]string)
			ns.log.Warnf("metadata for file %s has been overwritten by a rewrite", fileName)
		} else {
			fileData.ChunkSize = chunkSize
		}
	}
	fileData.addChunkLocation(chunkNumber, server)
	ns.mu.Unlock()

	ns.log.WithFields(logrus.Fields{
		"file":   fileName,
		"chunk":  chunkNumber,
		"server": server,
	}).Info("chunk written")
	ns.requestSnapshot()
}

// AllChunksWritten marks the file complete, fixing its size to the number of
// chunk handles. An unknown file becomes an empty zero-chunk file.
func (ns *NameService) AllChunksWritten(fileName string) {
	ns.mu.Lock()
	fileData, ok := ns.metadata[fileName]
	if !ok {
		fileData = NewFileData(0, 0, 1)
		ns.metadata[fileName] = fileData
	} else {
		fileData.FileSize = len(fileData.ChunkHandles)
	}
	size := fileData.FileSize
	ns.mu.Unlock()

	ns.log.WithFields(logrus.Fields{
		"file":   fileName,
		"chunks": size,
	}).Info("file complete")
	ns.requestSnapshot()
}

// ChunkDeleted removes server from the chunk's handle set, dropping the
// handle when its set empties and the file record once every handle is gone.
func (ns *NameService) ChunkDeleted(fileName string, chunkNumber int, server string) {
	ns.mu.Lock()
	if fileData, ok := ns.metadata[fileName]; ok {
		if handles, ok := fileData.ChunkHandles[chunkNumber]; ok {
			remaining := handles[:0]
			for _, s := range handles {
				if s != server {
					remaining = append(remaining, s)
				}
			}
			if len(remaining) == 0 {
				delete(fileData.ChunkHandles, chunkNumber)
			} else {
				fileData.ChunkHandles[chunkNumber] = remaining
			}
		}
		if len(fileData.ChunkHandles) == 0 {
			delete(ns.metadata, fileName)
			ns.log.Infof("file %s removed from metadata", fileName)
		}
	}
	ns.mu.Unlock()

	ns.log.WithFields(logrus.Fields{
		"file":   fileName,
		"chunk":  chunkNumber,
		"server": server,
	}).Info("chunk deleted")
	ns.requestSnapshot()
}

// NotifyDataNodeAvailability registers a live data node, idempotently.
func (ns *NameService) NotifyDataNodeAvailability(addr string) {
	ns.nodesMu.Lock()
	defer ns.nodesMu.Unlock()
	for _, a := range ns.liveDataNodes {
		if a == addr {
			return
		}
	}
	ns.liveDataNodes = append(ns.liveDataNodes, addr)
	ns.log.Infof("data node running on %s connected", addr)
}

// NotifyDaemonAvailability registers a live daemon, idempotently.
func (ns *NameService) NotifyDaemonAvailability(addr string) {
	ns.nodesMu.Lock()
	defer ns.nodesMu.Unlock()
	for _, a := range ns.liveDaemons {
		if a == addr {
			return
		}
	}
	ns.liveDaemons = append(ns.liveDaemons, addr)
	ns.log.Infof("daemon running on %s connected", addr)
}

// AvailableDaemons returns a snapshot of the live daemon set.
func (ns *NameService) AvailableDaemons() ([]string, error) {
	ns.nodesMu.Lock()
	defer ns.nodesMu.Unlock()
	if len(ns.liveDaemons) == 0 {
		return nil, common.ErrNoDaemons
	}
	daemons := make([]string, len(ns.liveDaemons))
	copy(daemons, ns.liveDaemons)
	return daemons, nil
}

// LiveDataNodes returns a snapshot of the live data node set.
func (ns *NameService) LiveDataNodes() []string {
	ns.nodesMu.Lock()
	defer ns.nodesMu.Unlock()
	nodes := make([]string, len(ns.liveDataNodes))
	copy(nodes, ns.liveDataNodes)
	return nodes
}

func (ns *NameService) isLiveDataNode(addr string) bool {
	ns.nodesMu.Lock()
	defer ns.nodesMu.Unlock()
	for _, a := range ns.liveDataNodes {
		if a == addr {
			return true
		}
	}
	return false
}

// Metadata returns a deep copy of the catalog, for the admin API and tests.
func (ns *NameService) Metadata() map[string]*FileData {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	out := make(map[string]*FileData, len(ns.metadata))
	for name, fd := range ns.metadata {
		cp := NewFileData(fd.FileSize, fd.ChunkSize, fd.ReplicationFactor)
		for chunk, handles := range fd.ChunkHandles {
			cp.ChunkHandles[chunk] = append([]string(nil), handles...)
		}
		out[name] = cp
	}
	return out
}
