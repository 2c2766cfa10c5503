package stationd

import (
	"errors"
	"io"
	"net"
	"syscall"
	"testing"

	"github.com/northslopetech/agent-station/internal/session"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	payload, err := encodePayload(SpawnTerminalRequest{ProjectID: "p1", Dir: "/tmp"})
	if err != nil {
		t.Fatalf("encodePayload() error: %v", err)
	}
	sent := Envelope{Kind: EnvelopeRequest, Op: OpSpawnTerminal, ID: 42, Payload: payload}

	errCh := make(chan error, 1)
	go func() { errCh <- writeEnvelope(client, sent) }()

	got, err := readEnvelope(server)
	if err != nil {
		t.Fatalf("readEnvelope() error: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("writeEnvelope() error: %v", err)
	}
	if got.Kind != sent.Kind || got.Op != sent.Op || got.ID != sent.ID {
		t.Fatalf("roundtrip envelope = %+v, want %+v", got, sent)
	}
	var req SpawnTerminalRequest
	if err := decodePayload(got.Payload, &req); err != nil {
		t.Fatalf("decodePayload() error: %v", err)
	}
	if req.ProjectID != "p1" || req.Dir != "/tmp" {
		t.Fatalf("payload = %+v", req)
	}
}

func TestEncodePayloadNil(t *testing.T) {
	data, err := encodePayload(nil)
	if err != nil || data != nil {
		t.Fatalf("encodePayload(nil) = %v %v, want nil/nil", data, err)
	}
	if err := decodePayload(nil, nil); err != nil {
		t.Fatalf("decodePayload(nil) error: %v", err)
	}
}

func TestReadEnvelopeRejectsOversizedFrame(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		// Header claims a frame larger than maxFrameSize.
		_, _ = client.Write([]byte{0xff, 0xff, 0xff, 0xff})
	}()
	if _, err := readEnvelope(server); err == nil {
		t.Fatalf("readEnvelope() should reject oversized frames")
	}
}

func TestCodeForError(t *testing.T) {
	if got := codeForError(nil); got != CodeNone {
		t.Fatalf("codeForError(nil)=%q", got)
	}
	if got := codeForError(session.ErrUnknownSession); got != CodeUnknownSession {
		t.Fatalf("codeForError(unknown session)=%q", got)
	}
	se := &session.SpawnError{ProjectID: "p", Dir: "/x", Cause: errors.New("boom")}
	if got := codeForError(se); got != CodeSpawnFailed {
		t.Fatalf("codeForError(spawn)=%q", got)
	}
	if got := codeForError(errors.New("other")); got != CodeInternal {
		t.Fatalf("codeForError(other)=%q", got)
	}
}

func TestRequestErrorMapsCodesBack(t *testing.T) {
	err := &RequestError{Op: OpWriteTerminal, Code: CodeUnknownSession, Message: "gone"}
	if !errors.Is(err, session.ErrUnknownSession) {
		t.Fatalf("unknown_session code should match session.ErrUnknownSession")
	}
	mismatch := &RequestError{Op: OpHello, Code: CodeVersionMismatch, Message: "nope"}
	if !errors.Is(mismatch, ErrVersionMismatch) {
		t.Fatalf("version_mismatch code should match ErrVersionMismatch")
	}
	if errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("codes should not cross-match")
	}
}

func TestCheckVersion(t *testing.T) {
	if err := checkVersion("", "anything"); err != nil {
		t.Fatalf("empty daemon version should disable the gate: %v", err)
	}
	if err := checkVersion("0.1.0", "0.9.9"); err != nil {
		t.Fatalf("same major should pass: %v", err)
	}
	if err := checkVersion("0.1.0", "1.0.0"); err == nil {
		t.Fatalf("major mismatch should fail")
	}
	if err := checkVersion("0.1.0", "garbage"); err == nil {
		t.Fatalf("unparseable client version should fail")
	}
}

func TestIsConnectionError(t *testing.T) {
	for _, err := range []error{io.EOF, io.ErrUnexpectedEOF, net.ErrClosed, syscall.EPIPE, syscall.ECONNRESET} {
		if !IsConnectionError(err) {
			t.Fatalf("expected connection error for %v", err)
		}
	}
	if IsConnectionError(nil) || IsConnectionError(errors.New("boom")) {
		t.Fatalf("unexpected connection error classification")
	}
}
