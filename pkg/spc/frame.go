package spc

import (
	"fmt"
	"strconv"
	"strings"
)

// Frame layout.
const (
	FrameLength   = 13
	BitsPerNibble = 4
	FrameBits     = FrameLength * BitsPerNibble
	HeaderNibble  = 0x0f

	MaxMagnitude = 999999
	MaxDecimals  = 6
)

const (
	posHeader   = 0
	posSign     = 4
	posMSD      = 5
	posLSD      = 10
	posDecimals = 11
	posUnit     = 12

	headerLen   = 4
	nibbleMask  = 0x0f
	signBitMask = 0x08
)

// Unit is the measurement unit selected by the unit nibble.
type Unit int

// Units.
const (
	UnitMillimeter Unit = iota
	UnitInch
)

// String implements fmt.Stringer.
func (u Unit) String() string {
	switch u {
	case UnitMillimeter:
		return "mm"
	case UnitInch:
		return "in"
	}
	return "unit(" + strconv.Itoa(int(u)) + ")"
}

// ParseUnit parses "mm" or "in" (also "inch").
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mm", "millimeter", "millimeters":
		return UnitMillimeter, nil
	case "in", "inch", "inches":
		return UnitInch, nil
	}
	return UnitMillimeter, fmt.Errorf("unknown unit %q", s)
}

// Frame holds the 13 nibbles of one SPC reading, one nibble per byte.
type Frame [FrameLength]byte

// EncodeFrame builds a valid frame for the given reading.
func EncodeFrame(magnitude uint32, decimals uint8, negative bool, unit Unit) (Frame, error) {
	var f Frame
	if magnitude > MaxMagnitude {
		return f, fmt.Errorf("magnitude %d exceeds %d", magnitude, MaxMagnitude)
	}
	if decimals > MaxDecimals {
		return f, fmt.Errorf("decimals %d exceeds %d", decimals, MaxDecimals)
	}
	for i := posHeader; i < posHeader+headerLen; i++ {
		f[i] = HeaderNibble
	}
	if negative {
		f[posSign] = signBitMask
	}
	for i := posLSD; i >= posMSD; i-- {
		f[i] = byte(magnitude % 10)
		magnitude /= 10
	}
	f[posDecimals] = decimals
	if unit != UnitMillimeter {
		f[posUnit] = 1
	}
	return f, nil
}

// ParseFrame parses nibbles written as 13 contiguous hex digits
// or 13 hex values separated by spaces or commas.
func ParseFrame(s string) (f Frame, err error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == ',' || r == '\t'
	})
	if len(fields) == 1 {
		fields = strings.Split(fields[0], "")
	}
	if len(fields) != FrameLength {
		return f, fmt.Errorf("expect %d nibbles, got %d", FrameLength, len(fields))
	}
	for n, field := range fields {
		field = strings.TrimPrefix(strings.ToLower(field), "0x")
		v, err := strconv.ParseUint(field, 16, 8)
		if err != nil || v > nibbleMask {
			return f, fmt.Errorf("invalid nibble %q at %d", fields[n], n)
		}
		f[n] = byte(v)
	}
	return f, nil
}

// HeaderValid checks the four header nibbles.
func (f Frame) HeaderValid() bool {
	return f.headerMismatch() < 0
}

func (f Frame) headerMismatch() int {
	for i := posHeader; i < posHeader+headerLen; i++ {
		if f[i] != HeaderNibble {
			return i
		}
	}
	return -1
}

// Negative reports the sign flag.
func (f Frame) Negative() bool {
	return f[posSign]&signBitMask != 0
}

// Digits returns the six magnitude digits, most significant first.
func (f Frame) Digits() []byte {
	digits := make([]byte, posLSD-posMSD+1)
	copy(digits, f[posMSD:posLSD+1])
	return digits
}

// Decimals returns the decimal point nibble.
func (f Frame) Decimals() byte {
	return f[posDecimals]
}

// UnitNibble returns the raw unit nibble.
func (f Frame) UnitNibble() byte {
	return f[posUnit]
}

// Unit resolves the unit nibble.
func (f Frame) Unit() Unit {
	if f[posUnit] == 0 {
		return UnitMillimeter
	}
	return UnitInch
}

// Bits returns the frame as it is clocked out: nibble by nibble,
// least significant bit first.
func (f Frame) Bits() []byte {
	bits := make([]byte, 0, FrameBits)
	for _, nibble := range f {
		for k := uint(0); k < BitsPerNibble; k++ {
			bits = append(bits, (nibble>>k)&1)
		}
	}
	return bits
}

// String formats the nibbles as hex digits.
func (f Frame) String() string {
	var sb strings.Builder
	for _, nibble := range f {
		sb.WriteString(strconv.FormatUint(uint64(nibble&nibbleMask), 16))
	}
	return strings.ToUpper(sb.String())
}
