// Package protocol implements the length-prefixed framed wire protocol
// spoken between a client agent and the rendezvous server on the control
// and proxy ports.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Kind tags the body of a frame so the receiver knows which concrete
// message follows. The set is closed: an unknown tag is a protocol error.
type Kind byte

const (
	KindRegister Kind = iota + 1
	KindRegisterResult
	KindRequestNewProxyConn
	KindNewProxyConn
)

func (k Kind) String() string {
	switch k {
	case KindRegister:
		return "Register"
	case KindRegisterResult:
		return "RegisterResult"
	case KindRequestNewProxyConn:
		return "RequestNewProxyConn"
	case KindNewProxyConn:
		return "NewProxyConn"
	default:
		return fmt.Sprintf("Kind(%d)", byte(k))
	}
}

// MaxFrameSize bounds a single frame body to guard against a malformed or
// hostile peer claiming an enormous length prefix.
const MaxFrameSize = 1 << 20 // 1 MiB

// ErrUnknownKind is returned when a frame's tag byte doesn't match any
// known Kind.
var ErrUnknownKind = errors.New("protocol: unknown message kind")

// ErrFrameTooLarge is returned when a frame's declared length exceeds
// MaxFrameSize.
var ErrFrameTooLarge = errors.New("protocol: frame exceeds maximum size")

// Register is the first message a client sends on the control socket.
type Register struct {
	ClientID string
}

// RegisterResult is the server's reply to Register.
type RegisterResult struct {
	Success bool
	Error   string
}

// RequestNewProxyConn asks the client to dial the proxy port and present
// ProxyConnID there.
type RequestNewProxyConn struct {
	ProxyConnID string
}

// NewProxyConn is the first message on every proxy-port connection,
// pairing it with a pending request or parking it in the client's pool.
type NewProxyConn struct {
	ProxyConnID string
	ClientID    string
}

// Message is any of the four wire types above.
type Message interface {
	kind() Kind
}

func (Register) kind() Kind             { return KindRegister }
func (RegisterResult) kind() Kind       { return KindRegisterResult }
func (RequestNewProxyConn) kind() Kind  { return KindRequestNewProxyConn }
func (NewProxyConn) kind() Kind         { return KindNewProxyConn }

// WriteFrame serializes msg as a 4-byte big-endian length prefix followed
// by a one-byte kind tag and the kind's fields, each string prefixed by
// its own 2-byte length. It is self-delimiting and deterministic.
func WriteFrame(w io.Writer, msg Message) error {
	body, err := encodeBody(msg)
	if err != nil {
		return err
	}
	if len(body) > MaxFrameSize {
		return ErrFrameTooLarge
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

func encodeBody(msg Message) ([]byte, error) {
	buf := []byte{byte(msg.kind())}
	switch m := msg.(type) {
	case Register:
		buf = appendString(buf, m.ClientID)
	case RegisterResult:
		buf = appendBool(buf, m.Success)
		buf = appendString(buf, m.Error)
	case RequestNewProxyConn:
		buf = appendString(buf, m.ProxyConnID)
	case NewProxyConn:
		buf = appendString(buf, m.ProxyConnID)
		buf = appendString(buf, m.ClientID)
	default:
		return nil, fmt.Errorf("protocol: unsupported message type %T", msg)
	}
	return buf, nil
}

// ReadFrame reads and decodes one frame from r. Malformed frames and
// unknown kinds return a non-nil error; the caller must close the
// connection in response, per spec.
func ReadFrame(r io.Reader) (Message, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return decodeBody(body)
}

func decodeBody(body []byte) (Message, error) {
	if len(body) < 1 {
		return nil, io.ErrUnexpectedEOF
	}
	kind := Kind(body[0])
	rest := body[1:]
	switch kind {
	case KindRegister:
		clientID, _, err := readString(rest)
		if err != nil {
			return nil, err
		}
		return Register{ClientID: clientID}, nil
	case KindRegisterResult:
		success, rest, err := readBool(rest)
		if err != nil {
			return nil, err
		}
		errMsg, _, err := readString(rest)
		if err != nil {
			return nil, err
		}
		return RegisterResult{Success: success, Error: errMsg}, nil
	case KindRequestNewProxyConn:
		id, _, err := readString(rest)
		if err != nil {
			return nil, err
		}
		return RequestNewProxyConn{ProxyConnID: id}, nil
	case KindNewProxyConn:
		id, rest, err := readString(rest)
		if err != nil {
			return nil, err
		}
		clientID, _, err := readString(rest)
		if err != nil {
			return nil, err
		}
		return NewProxyConn{ProxyConnID: id, ClientID: clientID}, nil
	default:
		return nil, ErrUnknownKind
	}
}

func appendString(buf []byte, s string) []byte {
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(s)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, s...)
}

func appendBool(buf []byte, b bool) []byte {
	if b {
		return append(buf, 1)
	}
	return append(buf, 0)
}

func readString(buf []byte) (string, []byte, error) {
	if len(buf) < 2 {
		return "", nil, io.ErrUnexpectedEOF
	}
	n := int(binary.BigEndian.Uint16(buf[:2]))
	buf = buf[2:]
	if len(buf) < n {
		return "", nil, io.ErrUnexpectedEOF
	}
	return string(buf[:n]), buf[n:], nil
}

func readBool(buf []byte) (bool, []byte, error) {
	if len(buf) < 1 {
		return false, nil, io.ErrUnexpectedEOF
	}
	return buf[0] != 0, buf[1:], nil
}
