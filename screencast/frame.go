package screencast

import (
	"bytes"
	"errors"
	"fmt"
)

// SessionIDWidth is the fixed width of the session-id prefix on every frame message.
const SessionIDWidth = 36

// ErrSessionIDTooLong is returned when a session id does not fit the frame prefix.
var ErrSessionIDTooLong = errors.New("session id longer than frame prefix")

// EncodeFrame prefixes image with sessionID padded with NUL bytes to SessionIDWidth.
func EncodeFrame(sessionID string, image []byte) ([]byte, error) {
	if len(sessionID) > SessionIDWidth {
		return nil, fmt.Errorf("%w: %q", ErrSessionIDTooLong, sessionID)
	}
	out := make([]byte, SessionIDWidth+len(image))
	copy(out, sessionID)
	copy(out[SessionIDWidth:], image)
	return out, nil
}

// DecodeFrame splits a frame message into its session id and image bytes.
func DecodeFrame(msg []byte) (sessionID string, image []byte, err error) {
	if len(msg) < SessionIDWidth {
		return "", nil, fmt.Errorf("frame message too short: %d bytes", len(msg))
	}
	return string(bytes.TrimRight(msg[:SessionIDWidth], "\x00")), msg[SessionIDWidth:], nil
}
