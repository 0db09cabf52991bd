package spc

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSession indicates a nil session.
	ErrInvalidSession = errors.New("invalid session")
	// ErrProtocolViolation indicates a bit was offered to a session
	// which already holds a complete frame.
	ErrProtocolViolation = errors.New("protocol violation")
	// ErrInvalidState indicates Decode is called without a complete,
	// not yet decoded frame.
	ErrInvalidState = errors.New("invalid state")
	// ErrInvalidFrameData indicates a complete frame failed validation.
	ErrInvalidFrameData = errors.New("invalid frame data")
)

// FrameError describes why a complete frame was rejected.
// It matches ErrInvalidFrameData with errors.Is.
type FrameError struct {
	Reason   string
	Position int
	Frame    Frame
}

// Error implements error.
func (e *FrameError) Error() string {
	return fmt.Sprintf("invalid frame data: %s at nibble %d (%s)", e.Reason, e.Position, e.Frame)
}

// Is reports whether target is ErrInvalidFrameData.
func (e *FrameError) Is(target error) bool {
	return target == ErrInvalidFrameData
}
