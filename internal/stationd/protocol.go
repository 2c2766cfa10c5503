package stationd

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
	"net"
)

// EnvelopeKind distinguishes request/response/event frames.
type EnvelopeKind uint8

const (
	EnvelopeRequest EnvelopeKind = iota + 1
	EnvelopeResponse
	EnvelopeEvent
)

// maxFrameSize bounds a single envelope on the wire. Output chunks are at
// most 32 KiB, so this is generous.
const maxFrameSize = 4 << 20

// Envelope is the framed message payload exchanged between client and
// daemon. Code carries the machine-readable error taxonomy alongside the
// human-readable Error text.
type Envelope struct {
	Kind    EnvelopeKind
	Op      Op
	Event   EventType
	ID      uint64
	Payload []byte
	Error   string
	Code    ErrorCode
}

func encodePayload(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return buf.Bytes(), nil
}

func decodePayload(data []byte, v any) error {
	if v == nil || len(data) == 0 {
		return nil
	}
	dec := gob.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}

// writeEnvelope frames an envelope as a big-endian length prefix plus gob.
func writeEnvelope(conn net.Conn, env Envelope) error {
	var body bytes.Buffer
	if err := gob.NewEncoder(&body).Encode(env); err != nil {
		return fmt.Errorf("stationd: encode envelope: %w", err)
	}
	if body.Len() > maxFrameSize {
		return fmt.Errorf("stationd: envelope too large: %d bytes", body.Len())
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(body.Len()))
	if _, err := conn.Write(hdr[:]); err != nil {
		return err
	}
	_, err := conn.Write(body.Bytes())
	return err
}

func readEnvelope(conn net.Conn) (Envelope, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(conn, hdr[:]); err != nil {
		return Envelope{}, err
	}
	size := binary.BigEndian.Uint32(hdr[:])
	if size == 0 || size > maxFrameSize {
		return Envelope{}, fmt.Errorf("stationd: invalid frame size %d", size)
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(conn, body); err != nil {
		return Envelope{}, err
	}
	var env Envelope
	if err := gob.NewDecoder(bytes.NewReader(body)).Decode(&env); err != nil {
		return Envelope{}, fmt.Errorf("stationd: decode envelope: %w", err)
	}
	return env, nil
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}
