package ipcserver

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	in := Frame{Type: Bind, Data: []byte("30=48")}

	if err := WriteFrame(&buf, in); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if buf.Len() != frameSize {
		t.Fatalf("expected a fixed frame of %d bytes, got %d", frameSize, buf.Len())
	}

	out, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if out.Type != in.Type || string(out.Data) != string(in.Data) {
		t.Errorf("round trip mismatch: got %+v, want %+v", out, in)
	}
}

func TestWriteFrameRejectsOversizedPayload(t *testing.T) {
	var buf bytes.Buffer
	big := strings.Repeat("x", MaxIPCMessageSize+1)
	if err := WriteFrame(&buf, Frame{Type: Bind, Data: []byte(big)}); err == nil {
		t.Error("expected an error for an oversized payload")
	}
}

func TestReadFrameRejectsCorruptSize(t *testing.T) {
	buf := make([]byte, frameSize)
	// type = Bind, sz = MaxIPCMessageSize+1, an impossible value that
	// could only arise from a corrupt or malicious frame.
	binary.LittleEndian.PutUint32(buf[0:4], uint32(Bind))
	binary.LittleEndian.PutUint32(buf[4:8], MaxIPCMessageSize+1)

	if _, err := ReadFrame(bytes.NewReader(buf)); err == nil {
		t.Error("expected an error for a corrupt size field")
	}
}

func TestReadFrameShortRead(t *testing.T) {
	if _, err := ReadFrame(bytes.NewReader([]byte{1, 2, 3})); err == nil {
		t.Error("expected an error reading a short frame")
	}
}
