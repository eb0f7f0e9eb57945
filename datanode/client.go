package datanode

import (
	"fmt"
	"io"
	"net"

	"github.com/vaflag/hidoop/common"
)

// WriteChunk streams one chunk to the data node at addr. peers are the
// remaining replica holders the node should forward to; the replication
// factor on the wire is len(peers)+1. The payload is terminated by a TCP
// half-close and the call returns once the node acknowledges the write.
func WriteChunk(addr, fileName, extension string, chunkNumber int, chunkSize int64, peers []string, payload io.Reader) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("%w: failed to connect to data node at %s: %v", common.ErrTransport, addr, err)
	}
	defer conn.Close()

	if err := common.WriteCommand(conn, common.CmdWrite); err != nil {
		return fmt.Errorf("%w: %v", common.ErrTransport, err)
	}
	if err := common.WriteWireString(conn, fileName); err != nil {
		return fmt.Errorf("%w: %v", common.ErrTransport, err)
	}
	if err := common.WriteWireString(conn, extension); err != nil {
		return fmt.Errorf("%w: %v", common.ErrTransport, err)
	}
	if err := common.WriteWireInt(conn, int64(chunkNumber)); err != nil {
		return fmt.Errorf("%w: %v", common.ErrTransport, err)
	}
	if err := common.WriteWireInt(conn, chunkSize); err != nil {
		return fmt.Errorf("%w: %v", common.ErrTransport, err)
	}
	if err := common.WriteWireInt(conn, int64(len(peers)+1)); err != nil {
		return fmt.Errorf("%w: %v", common.ErrTransport, err)
	}
	for _, peer := range peers {
		if err := common.WriteWireString(conn, peer); err != nil {
			return fmt.Errorf("%w: %v", common.ErrTransport, err)
		}
	}
	if _, err := io.Copy(conn, payload); err != nil {
		return fmt.Errorf("%w: failed to stream chunk payload: %v", common.ErrTransport, err)
	}
	if err := halfClose(conn); err != nil {
		return fmt.Errorf("%w: %v", common.ErrTransport, err)
	}

	msgType, _, err := common.ReadMessage(conn)
	if err != nil {
		return fmt.Errorf("%w: no write acknowledgement from %s: %v", common.ErrTransport, addr, err)
	}
	if msgType != common.MsgTypeAck {
		return fmt.Errorf("%w: unexpected acknowledgement type %d", common.ErrTransport, msgType)
	}
	return nil
}

// ReadChunk retrieves one chunk from the data node at addr and copies its
// payload into dst. A node that closes without a payload reports the chunk
// missing through found=false.
func ReadChunk(addr, fileName, extension string, chunkNumber int, dst io.Writer) (found bool, err error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return false, fmt.Errorf("%w: failed to connect to data node at %s: %v", common.ErrTransport, addr, err)
	}
	defer conn.Close()

	if err := common.WriteCommand(conn, common.CmdRead); err != nil {
		return false, fmt.Errorf("%w: %v", common.ErrTransport, err)
	}
	if err := common.WriteWireString(conn, fileName); err != nil {
		return false, fmt.Errorf("%w: %v", common.ErrTransport, err)
	}
	if err := common.WriteWireString(conn, extension); err != nil {
		return false, fmt.Errorf("%w: %v", common.ErrTransport, err)
	}
	if err := common.WriteWireInt(conn, int64(chunkNumber)); err != nil {
		return false, fmt.Errorf("%w: %v", common.ErrTransport, err)
	}
	if err := halfClose(conn); err != nil {
		return false, fmt.Errorf("%w: %v", common.ErrTransport, err)
	}

	cmd, err := common.ReadCommand(conn)
	if err == io.EOF {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", common.ErrTransport, err)
	}
	if cmd != common.CmdRead {
		return false, fmt.Errorf("%w: unexpected response command %s", common.ErrTransport, cmd)
	}
	gotName, err := common.ReadWireString(conn)
	if err != nil {
		return false, fmt.Errorf("%w: %v", common.ErrTransport, err)
	}
	gotExt, err := common.ReadWireString(conn)
	if err != nil {
		return false, fmt.Errorf("%w: %v", common.ErrTransport, err)
	}
	gotChunk, err := common.ReadWireInt(conn)
	if err != nil {
		return false, fmt.Errorf("%w: %v", common.ErrTransport, err)
	}
	if gotName != fileName || gotExt != extension || int(gotChunk) != chunkNumber {
		return false, fmt.Errorf("%w: read response header names chunk %d of %s%s, want chunk %d of %s%s",
			common.ErrTransport, gotChunk, gotName, gotExt, chunkNumber, fileName, extension)
	}
	if _, err := io.Copy(dst, conn); err != nil {
		return false, fmt.Errorf("%w: failed to receive chunk payload: %v", common.ErrTransport, err)
	}
	return true, nil
}

// DeleteChunk asks the data node at addr to remove one chunk, or every chunk
// of the file when chunkNumber is DeleteAllChunks. No confirmation is
// awaited; the node's own callbacks drive metadata cleanup.
func DeleteChunk(addr, fileName, extension string, chunkNumber int) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("%w: failed to connect to data node at %s: %v", common.ErrTransport, addr, err)
	}
	defer conn.Close()

	if err := common.WriteCommand(conn, common.CmdDelete); err != nil {
		return fmt.Errorf("%w: %v", common.ErrTransport, err)
	}
	if err := common.WriteWireString(conn, fileName); err != nil {
		return fmt.Errorf("%w: %v", common.ErrTransport, err)
	}
	if err := common.WriteWireString(conn, extension); err != nil {
		return fmt.Errorf("%w: %v", common.ErrTransport, err)
	}
	if err := common.WriteWireInt(conn, int64(chunkNumber)); err != nil {
		return fmt.Errorf("%w: %v", common.ErrTransport, err)
	}
	return nil
}

// halfClose signals end of payload while keeping the read side open for the
// response.
func halfClose(conn net.Conn) error {
	if tcp, ok := conn.(*net.TCPConn); ok {
		return tcp.CloseWrite()
	}
	return nil
}
