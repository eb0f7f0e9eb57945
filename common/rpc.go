package common

import (
	"fmt"
	"net"

	"github.com/vmihailenco/msgpack/v5"
)

// Call performs a one-shot control exchange: dial, send one framed request,
// read one framed response, close. Transport-level failures are wrapped as
// ErrTransport.
func Call(addr string, msgType byte, req interface{}, wantType byte, resp interface{}) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("%w: failed to connect to %s: %v", ErrTransport, addr, err)
	}
	defer conn.Close()

	payload, err := msgpack.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	if err := WriteMessage(conn, msgType, payload); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	gotType, data, err := ReadMessage(conn)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if gotType != wantType {
		return fmt.Errorf("%w: unexpected response type %d, want %d", ErrTransport, gotType, wantType)
	}
	if err := msgpack.Unmarshal(data, resp); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}
