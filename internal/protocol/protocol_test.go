package protocol

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func roundTrip(t *testing.T, msg Message) Message {
	t.Helper()
	var buf bytes.Buffer
	if err := WriteFrame(&buf, msg); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	return got
}

func TestRegisterRoundTrip(t *testing.T) {
	got := roundTrip(t, Register{ClientID: "abc"})
	reg, ok := got.(Register)
	if !ok || reg.ClientID != "abc" {
		t.Fatalf("got %#v", got)
	}
}

func TestRegisterResultRoundTrip(t *testing.T) {
	got := roundTrip(t, RegisterResult{Success: false, Error: "duplicate"})
	res, ok := got.(RegisterResult)
	if !ok || res.Success || res.Error != "duplicate" {
		t.Fatalf("got %#v", got)
	}
}

func TestRequestNewProxyConnRoundTrip(t *testing.T) {
	got := roundTrip(t, RequestNewProxyConn{ProxyConnID: "1a"})
	req, ok := got.(RequestNewProxyConn)
	if !ok || req.ProxyConnID != "1a" {
		t.Fatalf("got %#v", got)
	}
}

func TestNewProxyConnRoundTrip(t *testing.T) {
	got := roundTrip(t, NewProxyConn{ProxyConnID: "1a", ClientID: "abc"})
	npc, ok := got.(NewProxyConn)
	if !ok || npc.ProxyConnID != "1a" || npc.ClientID != "abc" {
		t.Fatalf("got %#v", got)
	}
}

func TestReadFrameUnknownKind(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0, 0, 0, 1})
	buf.Write([]byte{99})
	if _, err := ReadFrame(&buf); err != ErrUnknownKind {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}

func TestReadFrameTruncated(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0, 0, 0, 10})
	buf.Write([]byte{byte(KindRegister)})
	if _, err := ReadFrame(&buf); err == nil {
		t.Fatal("expected error on truncated frame")
	}
}

func TestReadFrameTooLarge(t *testing.T) {
	var buf bytes.Buffer
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], MaxFrameSize+1)
	buf.Write(lenBuf[:])
	if _, err := ReadFrame(&buf); err != ErrFrameTooLarge {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}
