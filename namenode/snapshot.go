package namenode

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/vaflag/hidoop/common"
)

// requestSnapshot signals the snapshot worker. The channel has capacity one,
// so any number of requests arriving while a snapshot is in flight collapse
// into a single follow-up snapshot.
func (ns *NameService) requestSnapshot() {
	select {
	case ns.snapshotCh <- struct{}{}:
	default:
	}
}

// snapshotWorker is the dedicated task serializing metadata to disk. It runs
// until Close drains the signal channel.
func (ns *NameService) snapshotWorker() {
	defer ns.snapshotWg.Done()
	for range ns.snapshotCh {
		if err := ns.writeSnapshot(); err != nil {
			ns.log.WithError(err).Error("failed to write metadata snapshot")
		}
	}
}

// writeSnapshot serializes the catalog to the snapshot path. The write goes
// through a temp file and a rename so the previous snapshot survives a crash
// mid-write.
func (ns *NameService) writeSnapshot() error {
	ns.mu.RLock()
	data, err := msgpack.Marshal(ns.metadata)
	ns.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to serialize metadata: %w", err)
	}

	dir := filepath.Dir(ns.snapshotPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "namenode-snapshot-*")
	if err != nil {
		return fmt.Errorf("failed to create snapshot temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), ns.snapshotPath); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

// recoverData loads an existing snapshot. A missing snapshot is not an
// error; an unreadable one is reported as SnapshotCorrupt and discarded.
func (ns *NameService) recoverData() error {
	data, err := os.ReadFile(ns.snapshotPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read snapshot file: %w", err)
	}
	metadata := make(map[string]*FileData)
	if err := msgpack.Unmarshal(data, &metadata); err != nil {
		return fmt.Errorf("%s: %w", ns.snapshotPath, common.ErrSnapshotCorrupt)
	}
	for _, fd := range metadata {
		if fd.ChunkHandles == nil {
			fd.ChunkHandles = make(map[int][]string)
		}
	}
	ns.metadata = metadata
	ns.log.Infof("recovered metadata for %d files from %s", len(metadata), ns.snapshotPath)
	return nil
}

// Close flushes a final snapshot and stops the snapshot worker.
func (ns *NameService) Close() error {
	ns.requestSnapshot()
	close(ns.snapshotCh)
	ns.snapshotWg.Wait()
	return nil
}
