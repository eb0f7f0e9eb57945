package common

import (
	"encoding/binary"
	"fmt"
	"io"
)

// The data-plane protocol between clients and data nodes is a sequence of
// length-prefixed, kind-tagged values followed by a raw byte stream that runs
// until the sender half-closes the connection.
//
// Each value is framed as [kind (1 byte)][length (4 bytes)][payload].

// Value kinds.
const (
	kindCommand byte = 1
	kindString  byte = 2
	kindInt     byte = 3
)

// Command is the operation tag opening every data-plane exchange.
type Command byte

const (
	CmdWrite Command = iota + 1
	CmdRead
	CmdDelete
)

func (c Command) String() string {
	switch c {
	case CmdWrite:
		return "WRITE"
	case CmdRead:
		return "READ"
	case CmdDelete:
		return "DELETE"
	}
	return fmt.Sprintf("Command(%d)", byte(c))
}

func writeValue(w io.Writer, kind byte, payload []byte) error {
	header := make([]byte, 5)
	header[0] = kind
	binary.BigEndian.PutUint32(header[1:], uint32(len(payload)))
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write value header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("failed to write value payload: %w", err)
	}
	return nil
}

func readValue(r io.Reader, wantKind byte) ([]byte, error) {
	header := make([]byte, 5)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	if header[0] != wantKind {
		return nil, fmt.Errorf("unexpected value kind %d, want %d", header[0], wantKind)
	}
	length := binary.BigEndian.Uint32(header[1:])
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("failed to read value payload: %w", err)
	}
	return payload, nil
}

// WriteCommand writes the command tag.
func WriteCommand(w io.Writer, cmd Command) error {
	return writeValue(w, kindCommand, []byte{byte(cmd)})
}

// ReadCommand reads the command tag. Returns io.EOF unchanged when the peer
// closed without sending anything, so callers can distinguish an empty
// response from a malformed one.
func ReadCommand(r io.Reader) (Command, error) {
	payload, err := readValue(r, kindCommand)
	if err != nil {
		return 0, err
	}
	if len(payload) != 1 {
		return 0, fmt.Errorf("command payload has %d bytes", len(payload))
	}
	return Command(payload[0]), nil
}

// WriteWireString writes a short string value.
func WriteWireString(w io.Writer, s string) error {
	return writeValue(w, kindString, []byte(s))
}

// ReadWireString reads a short string value.
func ReadWireString(r io.Reader) (string, error) {
	payload, err := readValue(r, kindString)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

// WriteWireInt writes an integer value.
func WriteWireInt(w io.Writer, n int64) error {
	payload := make([]byte, 8)
	binary.BigEndian.PutUint64(payload, uint64(n))
	return writeValue(w, kindInt, payload)
}

// ReadWireInt reads an integer value.
func ReadWireInt(r io.Reader) (int64, error) {
	payload, err := readValue(r, kindInt)
	if err != nil {
		return 0, err
	}
	if len(payload) != 8 {
		return 0, fmt.Errorf("integer payload has %d bytes", len(payload))
	}
	return int64(binary.BigEndian.Uint64(payload)), nil
}
