// Package hdfs is the client library for the distributed file store. It
// splits local files into record-aligned chunks, places them through the
// name service and reassembles them on read.
package hdfs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vaflag/hidoop/common"
	"github.com/vaflag/hidoop/datanode"
	"github.com/vaflag/hidoop/format"
	"github.com/vaflag/hidoop/namenode"
)

// Client performs HDFS operations against one name service.
type Client struct {
	ns        *namenode.Client
	chunkSize int64
	log       *logrus.Entry
}

// NewClient returns a client with the default chunk size.
func NewClient(ns *namenode.Client) *Client {
	return &Client{
		ns:        ns,
		chunkSize: common.DefaultChunkSize,
		log:       logrus.WithField("component", "hdfs"),
	}
}

// NewClientWithChunkSize returns a client with an explicit chunk ceiling.
func NewClientWithChunkSize(ns *namenode.Client, chunkSize int64) *Client {
	c := NewClient(ns)
	c.chunkSize = chunkSize
	return c
}

// Write splits the local file into record-aligned chunks and streams each to
// a data node chosen by the name service. The first record of a chunk is
// admitted unconditionally; a record whose value exceeds the chunk ceiling
// is fatal. After the last chunk the file is declared complete.
func (c *Client) Write(fmtType format.Type, localPath string, replicationFactor int) error {
	name, ext := common.SplitFileName(localPath)
	hdfsName := name + ext

	reader, err := format.OpenReader(fmtType, localPath)
	if err != nil {
		return fmt.Errorf("failed to open input file: %w", err)
	}
	defer reader.Close()

	c.log.Infof("processing file %s", localPath)

	pending, err := reader.Read()
	if err != nil && err != io.EOF {
		return fmt.Errorf("failed to read first record: %w", err)
	}
	pendingStart := int64(0)

	chunkNumber := 0
	for pending != nil {
		if int64(len(pending.Value)) > c.chunkSize {
			return fmt.Errorf("record of %d bytes in chunk %d: %w",
				len(pending.Value), chunkNumber, common.ErrRecordTooLarge)
		}

		chunkStart := pendingStart
		tempPath := filepath.Join(os.TempDir(),
			common.ChunkFileName(name+"-clientwritechunk", chunkNumber, ext))
		writer, err := format.CreateWriter(fmtType, tempPath)
		if err != nil {
			return fmt.Errorf("failed to create chunk file: %w", err)
		}
		if err := writer.Write(pending); err != nil {
			writer.Close()
			os.Remove(tempPath)
			return fmt.Errorf("failed to write record: %w", err)
		}
		pending = nil

		// Records join the chunk while the bytes consumed stay under the
		// ceiling; the boundary record opens the next chunk, never both.
		for {
			before := reader.Index()
			rec, err := reader.Read()
			if err == io.EOF {
				break
			}
			if err != nil {
				writer.Close()
				os.Remove(tempPath)
				return fmt.Errorf("failed to read record: %w", err)
			}
			if reader.Index()-chunkStart > c.chunkSize {
				pending = rec
				pendingStart = before
				break
			}
			if err := writer.Write(rec); err != nil {
				writer.Close()
				os.Remove(tempPath)
				return fmt.Errorf("failed to write record: %w", err)
			}
		}
		if err := writer.Close(); err != nil {
			os.Remove(tempPath)
			return fmt.Errorf("failed to close chunk file: %w", err)
		}

		if err := c.sendChunk(name, ext, chunkNumber, replicationFactor, tempPath); err != nil {
			os.Remove(tempPath)
			return err
		}
		os.Remove(tempPath)
		chunkNumber++
	}

	if err := c.ns.AllChunksWritten(hdfsName); err != nil {
		return fmt.Errorf("failed to declare file complete: %w", err)
	}
	c.log.Infof("file %s: process completed (%d chunks)", hdfsName, chunkNumber)
	return nil
}

// sendChunk asks the name service for placement and streams one chunk file
// to the chosen primary, naming the remaining servers as replica peers.
func (c *Client) sendChunk(name, ext string, chunkNumber, replicationFactor int, path string) error {
	servers, err := c.ns.WriteChunkRequest(replicationFactor)
	if err != nil {
		return fmt.Errorf("chunk placement failed: %w", err)
	}
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to reopen chunk file: %w", err)
	}
	defer file.Close()

	if err := datanode.WriteChunk(servers[0], name, ext, chunkNumber, c.chunkSize, servers[1:], file); err != nil {
		return fmt.Errorf("failed to send chunk %d: %w", chunkNumber, err)
	}
	c.log.Infof("chunk %d sent to server %s", chunkNumber, servers[0])
	return nil
}

// Read fetches every chunk of an HDFS file and concatenates them, in index
// order, into localDest. A gap in the received chunk set aborts with
// MissingChunks and leaves the destination untouched.
func (c *Client) Read(hdfsName, localDest string) error {
	name, ext := common.SplitFileName(hdfsName)

	servers, err := c.ns.ReadFileRequest(hdfsName)
	if err != nil {
		if errors.Is(err, common.ErrNoLiveReplica) {
			return fmt.Errorf("%w: %v", common.ErrMissingChunks, err)
		}
		return fmt.Errorf("read request failed: %w", err)
	}

	tempDir, err := os.MkdirTemp("", "hdfs-read-")
	if err != nil {
		return fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tempDir)

	received := make([]bool, len(servers))
	var g errgroup.Group
	for i, server := range servers {
		i, server := i, server
		g.Go(func() error {
			path := filepath.Join(tempDir, common.ChunkFileName(name+"-clientreadchunk", i, ext))
			file, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("failed to create chunk file: %w", err)
			}
			found, err := datanode.ReadChunk(server, name, ext, i, file)
			if closeErr := file.Close(); closeErr != nil && err == nil {
				err = closeErr
			}
			if err != nil {
				c.log.WithError(err).Errorf("failed to receive chunk %d from %s", i, server)
				return nil
			}
			if !found {
				c.log.Errorf("chunk %d of %s missing on %s", i, hdfsName, server)
				return nil
			}
			received[i] = true
			c.log.Infof("chunk received: %s", filepath.Base(path))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, ok := range received {
		if !ok {
			return fmt.Errorf("chunk %d of %s: %w", i, hdfsName, common.ErrMissingChunks)
		}
	}

	dest, err := os.Create(localDest)
	if err != nil {
		return fmt.Errorf("failed to create destination file: %w", err)
	}
	for i := range servers {
		path := filepath.Join(tempDir, common.ChunkFileName(name+"-clientreadchunk", i, ext))
		chunk, err := os.Open(path)
		if err != nil {
			dest.Close()
			return fmt.Errorf("failed to reopen chunk %d: %w", i, err)
		}
		_, err = io.Copy(dest, chunk)
		chunk.Close()
		if err != nil {
			dest.Close()
			return fmt.Errorf("failed to build destination file: %w", err)
		}
	}
	if err := dest.Close(); err != nil {
		return fmt.Errorf("failed to close destination file: %w", err)
	}
	c.log.Infof("file %s rebuilt from %d chunks into %s", hdfsName, len(servers), localDest)
	return nil
}

// Delete asks every data node holding chunks of the file to drop them. No
// confirmation is awaited; the nodes' own callbacks drive metadata cleanup.
func (c *Client) Delete(hdfsName string) error {
	name, ext := common.SplitFileName(hdfsName)

	servers, err := c.ns.DeleteFileRequest(hdfsName)
	if err != nil {
		return fmt.Errorf("delete request failed: %w", err)
	}
	for _, server := range servers {
		if err := datanode.DeleteChunk(server, name, ext, common.DeleteAllChunks); err != nil {
			c.log.WithError(err).Warnf("failed to send delete to %s", server)
		}
	}
	c.log.Infof("delete command sent to %d servers for file %s", len(servers), hdfsName)
	return nil
}
