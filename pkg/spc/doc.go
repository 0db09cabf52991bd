// Package spc decodes the Mitutoyo SPC digimatic output protocol.
package spc

// A gauge (caliper, indicator, micrometer) clocks out 13 nibbles per
// reading after the host pulls REQ low. Each nibble is sent least
// significant bit first. The first four nibbles are all 0xF and act as
// the only integrity check, there is no checksum.
//
//   0-3   header, 0xF each
//   4     sign, bit 3 set means negative
//   5-10  six BCD digits, most significant first
//   11    decimal point position
//   12    unit, 0 for mm, otherwise inch
//
// Session is the frame assembler: AcceptBit is called once per clocked bit,
// and Decode once the 13th nibble is stored. Sampling the data line and
// generating REQ is the caller's business, see package receiver for a
// byte stream based bit source.
