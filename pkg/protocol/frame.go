package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Frame layout: a uint32 little-endian payload length followed by exactly
// that many bytes of UTF-8 JSON. A declared length of zero or above the
// size cap is a protocol violation that ends the session.

// ErrFrameSize is returned when a frame declares a zero or oversized length.
var ErrFrameSize = errors.New("invalid frame length")

// WriteMessage encodes msg and writes one frame to w. Any error, including
// a short write, is fatal to the connection: the stream may hold a partial
// frame, so the caller must close it rather than retry.
func WriteMessage(w io.Writer, msg *Message) error {
	payload, err := msg.Encode()
	if err != nil {
		return err
	}
	if len(payload) > MaxMessageSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameSize, len(payload))
	}

	frame := make([]byte, 4+len(payload))
	binary.LittleEndian.PutUint32(frame, uint32(len(payload)))
	copy(frame[4:], payload)

	n, err := w.Write(frame)
	if err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	if n != len(frame) {
		return fmt.Errorf("failed to write frame: %w", io.ErrShortWrite)
	}
	return nil
}

// ReadMessage reads one frame from r and decodes its payload. It blocks
// until a complete frame arrives. Every failure mode (closed stream, short
// read, zero or oversized length, malformed JSON) returns an error, and all
// of them mean the same thing to the caller: the session is over.
func ReadMessage(r io.Reader, maxSize int) (*Message, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("failed to read frame length: %w", err)
	}

	length := binary.LittleEndian.Uint32(header[:])
	if length == 0 || length > uint32(maxSize) {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameSize, length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("failed to read frame payload: %w", err)
	}

	var msg Message
	if err := msg.Decode(payload); err != nil {
		return nil, err
	}
	return &msg, nil
}
