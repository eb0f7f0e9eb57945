package common

import (
	"encoding/binary"
	"fmt"
	"io"
)

// WriteMessage writes a control message to a connection with a header.
// The header format is: [Type (1 byte)][Length (4 bytes)]
// This is followed by the actual message payload.
func WriteMessage(w io.Writer, msgType byte, data []byte) error {
	header := make([]byte, 5)
	header[0] = msgType
	binary.BigEndian.PutUint32(header[1:], uint32(len(data)))

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write data: %w", err)
	}
	return nil
}

// ReadMessage reads a control message from a connection. It first reads the
// header to determine the message type and length, then reads the payload.
func ReadMessage(r io.Reader) (byte, []byte, error) {
	header := make([]byte, 5)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, nil, fmt.Errorf("failed to read header: %w", err)
	}

	msgType := header[0]
	length := binary.BigEndian.Uint32(header[1:])

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return 0, nil, fmt.Errorf("failed to read data: %w", err)
	}
	return msgType, data, nil
}
