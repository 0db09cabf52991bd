package spc

import "math"

// Reading is a decoded measurement.
type Reading struct {
	Value    float64
	Unit     Unit
	RawUnit  byte
	Decimals byte
	Negative bool
	Frame    Frame
}

// Session assembles bits into a frame and decodes it.
// The zero value is ready for the first bit of a frame.
// A Session must not be used from multiple goroutines concurrently.
type Session struct {
	// StrictBCD rejects digit nibbles above 9 instead of
	// folding them into the magnitude.
	StrictBCD bool

	frame   Frame
	bitIdx  uint8
	nibble  byte
	stored  int
	decoded bool
	reading Reading
}

// NewSession creates a Session.
func NewSession(strictBCD bool) *Session {
	return &Session{StrictBCD: strictBCD}
}

// Reset prepares the session for a new frame and clears the last reading.
func (s *Session) Reset() error {
	if s == nil {
		return ErrInvalidSession
	}
	s.frame = Frame{}
	s.bitIdx, s.nibble, s.stored = 0, 0, 0
	s.decoded = false
	s.reading = Reading{}
	return nil
}

// AcceptBit consumes one bit, only the lowest bit of b is used.
// complete is true when this bit completes the 13th nibble.
func (s *Session) AcceptBit(b byte) (complete bool, err error) {
	if s == nil {
		return false, ErrInvalidSession
	}
	if s.bitIdx >= BitsPerNibble || s.stored >= FrameLength {
		return false, ErrProtocolViolation
	}
	s.nibble |= (b & 1) << s.bitIdx
	s.bitIdx++
	if s.bitIdx < BitsPerNibble {
		return false, nil
	}
	s.frame[s.stored] = s.nibble & nibbleMask
	s.bitIdx, s.nibble = 0, 0
	s.stored++
	return s.stored == FrameLength, nil
}

// Decode validates and converts the complete frame.
// On error the previous reading is kept.
func (s *Session) Decode() (Reading, error) {
	if s == nil {
		return Reading{}, ErrInvalidSession
	}
	if s.stored != FrameLength || s.decoded {
		return s.reading, ErrInvalidState
	}
	s.decoded = true
	f := s.frame
	if pos := f.headerMismatch(); pos >= 0 {
		return s.reading, &FrameError{Reason: "header mismatch", Position: pos, Frame: f}
	}
	var magnitude uint64
	for i := posMSD; i <= posLSD; i++ {
		if s.StrictBCD && f[i] > 9 {
			return s.reading, &FrameError{Reason: "digit out of range", Position: i, Frame: f}
		}
		magnitude = magnitude*10 + uint64(f[i])
	}
	value := float64(magnitude) / math.Pow10(int(f[posDecimals]))
	if f.Negative() {
		value = -value
	}
	s.reading = Reading{
		Value:    value,
		Unit:     f.Unit(),
		RawUnit:  f[posUnit],
		Decimals: f[posDecimals],
		Negative: f.Negative(),
		Frame:    f,
	}
	return s.reading, nil
}

// Value returns the last decoded value.
func (s *Session) Value() float64 {
	return s.reading.Value
}

// Unit returns the last decoded unit.
func (s *Session) Unit() Unit {
	return s.reading.Unit
}

// RawUnit returns the unit nibble of the last decoded frame.
func (s *Session) RawUnit() byte {
	return s.reading.RawUnit
}

// Reading returns the last decoded reading.
func (s *Session) Reading() Reading {
	return s.reading
}

// Stored returns the number of nibbles stored for the current frame.
func (s *Session) Stored() int {
	return s.stored
}

// Receiving reports whether a frame is partially received.
func (s *Session) Receiving() bool {
	return (s.stored > 0 || s.bitIdx > 0) && s.stored < FrameLength
}

// Complete reports whether all 13 nibbles are stored.
func (s *Session) Complete() bool {
	return s.stored == FrameLength
}

// Frame returns a copy of the frame buffer.
func (s *Session) Frame() Frame {
	return s.frame
}
