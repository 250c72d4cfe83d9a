package wire

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
)

// MaxFrameSize bounds a single gob-encoded Message frame (spec §4.1a). A
// well-formed sampling or content-response message is tiny by comparison;
// this mainly guards a misbehaving or hostile peer from making a node
// allocate an unbounded read buffer.
const MaxFrameSize = 1 << 20

// WriteFrame gob-encodes msg and writes it to w as a single frame: a 4-byte
// big-endian length prefix followed by the encoded bytes. Callers writing to
// a net.Conn should close the write half afterward (spec §4.1) so the peer's
// ReadFrame sees a clean end of frame.
func WriteFrame(w io.Writer, msg Message) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(msg); err != nil {
		return fmt.Errorf("wire: encode message: %w", err)
	}
	if buf.Len() > MaxFrameSize {
		return fmt.Errorf("wire: encoded message of %d bytes exceeds max frame size %d", buf.Len(), MaxFrameSize)
	}
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(buf.Len()))
	if _, err := w.Write(length[:]); err != nil {
		return fmt.Errorf("wire: write frame length: %w", err)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("wire: write frame body: %w", err)
	}
	return nil
}

// ReadFrame reads a single length-prefixed gob-encoded Message from r
// (spec §4.1a). It returns an error if the declared length exceeds
// MaxFrameSize, or on any I/O or decode failure.
func ReadFrame(r io.Reader) (Message, error) {
	var length [4]byte
	if _, err := io.ReadFull(r, length[:]); err != nil {
		return Message{}, fmt.Errorf("wire: read frame length: %w", err)
	}
	n := binary.BigEndian.Uint32(length[:])
	if n > MaxFrameSize {
		return Message{}, fmt.Errorf("wire: frame length %d exceeds max frame size %d", n, MaxFrameSize)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return Message{}, fmt.Errorf("wire: read frame body: %w", err)
	}
	var msg Message
	if err := gob.NewDecoder(bytes.NewReader(body)).Decode(&msg); err != nil {
		return Message{}, fmt.Errorf("wire: decode message: %w", err)
	}
	return msg, nil
}
