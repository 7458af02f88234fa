// Package wire implements component E: binary-framed replay and live
// delivery of one PTY's bytes over a WebSocket, plus a JSON control
// channel for resize/input commands and error/exit signaling.
//
// Grounded on internal/relay/state.go's JSON message-envelope idiom
// (sendJSON/TerminalMessage) for the control-plane frames, and
// internal/tunnel/tunnel.go's gorilla/websocket read-loop shape for
// the connection's reader goroutine.
package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// WireVersion is the fixed binary frame format version this package
// implements.
const WireVersion = 1

// FrameKind distinguishes history replay frames from live frames.
type FrameKind byte

const (
	FrameKindHistory FrameKind = 1
	FrameKindLive    FrameKind = 2
)

// HeaderSize is the fixed byte length of a frame header preceding the
// payload (§4.5's binary frame layout).
const HeaderSize = 30

// EncodeFrame serializes a binary frame: 1-byte version, 1-byte kind,
// 16-byte session id, 8-byte seq, 4-byte payload length, then payload.
// payload_len is truncated to uint32 max if the payload somehow
// exceeds it (never expected at this layer's chunk sizes).
func EncodeFrame(kind FrameKind, sessionID uuid.UUID, seq uint64, payload []byte) []byte {
	payloadLen := len(payload)
	if payloadLen > int(^uint32(0)) {
		payloadLen = int(^uint32(0))
		payload = payload[:payloadLen]
	}

	buf := make([]byte, HeaderSize+len(payload))
	buf[0] = WireVersion
	buf[1] = byte(kind)
	copy(buf[2:18], sessionID[:])
	binary.LittleEndian.PutUint64(buf[18:26], seq)
	binary.LittleEndian.PutUint32(buf[26:30], uint32(payloadLen))
	copy(buf[HeaderSize:], payload)
	return buf
}

// Frame is a decoded binary frame.
type Frame struct {
	Version   byte
	Kind      FrameKind
	SessionID uuid.UUID
	Seq       uint64
	Payload   []byte
}

// DecodeFrame parses a binary frame, validating the header length and
// the declared payload length against the actual buffer size.
func DecodeFrame(buf []byte) (Frame, error) {
	if len(buf) < HeaderSize {
		return Frame{}, fmt.Errorf("wire: frame too short: %d bytes", len(buf))
	}
	var sessionID uuid.UUID
	copy(sessionID[:], buf[2:18])

	payloadLen := binary.LittleEndian.Uint32(buf[26:30])
	if HeaderSize+int(payloadLen) > len(buf) {
		return Frame{}, fmt.Errorf("wire: payload_len %d exceeds buffer", payloadLen)
	}

	return Frame{
		Version:   buf[0],
		Kind:      FrameKind(buf[1]),
		SessionID: sessionID,
		Seq:       binary.LittleEndian.Uint64(buf[18:26]),
		Payload:   buf[HeaderSize : HeaderSize+int(payloadLen)],
	}, nil
}
