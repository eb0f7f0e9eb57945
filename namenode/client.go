package namenode

import (
	"github.com/vaflag/hidoop/common"
)

// Client is the control stub for the name service. Each call is a one-shot
// framed exchange over a fresh connection.
type Client struct {
	addr string
}

// NewClient returns a stub for the name service at addr.
func NewClient(addr string) *Client {
	return &Client{addr: addr}
}

// Addr returns the name service address the stub talks to.
func (c *Client) Addr() string { return c.addr }

func (c *Client) call(msgType byte, req interface{}, wantType byte, resp interface{}) error {
	return common.Call(c.addr, msgType, req, wantType, resp)
}

// WriteChunkRequest asks where to place a new chunk.
func (c *Client) WriteChunkRequest(replicationFactor int) ([]string, error) {
	var resp common.WriteChunkResponse
	if err := c.call(common.MsgTypeWriteChunkRequest,
		&common.WriteChunkRequest{ReplicationFactor: replicationFactor},
		common.MsgTypeWriteChunkResponse, &resp); err != nil {
		return nil, err
	}
	if err := resp.Status.Err(); err != nil {
		return nil, err
	}
	return resp.Servers, nil
}

// ReadFileRequest returns one live replica address per chunk, in order.
func (c *Client) ReadFileRequest(fileName string) ([]string, error) {
	var resp common.ReadFileResponse
	if err := c.call(common.MsgTypeReadFileRequest,
		&common.ReadFileRequest{FileName: fileName},
		common.MsgTypeReadFileResponse, &resp); err != nil {
		return nil, err
	}
	if err := resp.Status.Err(); err != nil {
		return nil, err
	}
	return resp.Servers, nil
}

// DeleteFileRequest returns the distinct live servers holding chunks of the
// file.
func (c *Client) DeleteFileRequest(fileName string) ([]string, error) {
	var resp common.DeleteFileResponse
	if err := c.call(common.MsgTypeDeleteFileRequest,
		&common.DeleteFileRequest{FileName: fileName},
		common.MsgTypeDeleteFileResponse, &resp); err != nil {
		return nil, err
	}
	if err := resp.Status.Err(); err != nil {
		return nil, err
	}
	return resp.Servers, nil
}

// ChunkWritten notifies the name service that server holds a chunk.
func (c *Client) ChunkWritten(fileName string, fileSize int, chunkSize int64, replicationFactor, chunkNumber int, server string) error {
	var resp common.Ack
	if err := c.call(common.MsgTypeChunkWritten, &common.ChunkWrittenNotice{
		FileName:          fileName,
		FileSize:          fileSize,
		ChunkSize:         chunkSize,
		ReplicationFactor: replicationFactor,
		ChunkNumber:       chunkNumber,
		Server:            server,
	}, common.MsgTypeAck, &resp); err != nil {
		return err
	}
	return resp.Status.Err()
}

// AllChunksWritten marks the file complete.
func (c *Client) AllChunksWritten(fileName string) error {
	var resp common.Ack
	if err := c.call(common.MsgTypeAllChunksWritten,
		&common.AllChunksWrittenNotice{FileName: fileName},
		common.MsgTypeAck, &resp); err != nil {
		return err
	}
	return resp.Status.Err()
}

// ChunkDeleted notifies the name service that server dropped a chunk.
func (c *Client) ChunkDeleted(fileName string, chunkNumber int, server string) error {
	var resp common.Ack
	if err := c.call(common.MsgTypeChunkDeleted, &common.ChunkDeletedNotice{
		FileName:    fileName,
		ChunkNumber: chunkNumber,
		Server:      server,
	}, common.MsgTypeAck, &resp); err != nil {
		return err
	}
	return resp.Status.Err()
}

// NotifyDataNodeAvailability registers a live data node.
func (c *Client) NotifyDataNodeAvailability(addr string) error {
	var resp common.Ack
	if err := c.call(common.MsgTypeDataNodeAvailable,
		&common.NodeAvailableNotice{Address: addr},
		common.MsgTypeAck, &resp); err != nil {
		return err
	}
	return resp.Status.Err()
}

// NotifyDaemonAvailability registers a live daemon.
func (c *Client) NotifyDaemonAvailability(addr string) error {
	var resp common.Ack
	if err := c.call(common.MsgTypeDaemonAvailable,
		&common.NodeAvailableNotice{Address: addr},
		common.MsgTypeAck, &resp); err != nil {
		return err
	}
	return resp.Status.Err()
}

// AvailableDaemons returns the live daemon set.
func (c *Client) AvailableDaemons() ([]string, error) {
	var resp common.DaemonsResponse
	if err := c.call(common.MsgTypeDaemonsRequest,
		&common.DaemonsRequest{},
		common.MsgTypeDaemonsResponse, &resp); err != nil {
		return nil, err
	}
	if err := resp.Status.Err(); err != nil {
		return nil, err
	}
	return resp.Daemons, nil
}
