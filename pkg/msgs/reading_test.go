package msgs

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/spc.go/pkg/spc"
	"github.com/robotalks/spc.go/pkg/spc/receiver"
)

func testMeasurement(t *testing.T) *receiver.Measurement {
	f, err := spc.EncodeFrame(123456, 2, true, spc.UnitInch)
	require.NoError(t, err)
	var s spc.Session
	for _, bit := range f.Bits() {
		_, err = s.AcceptBit(bit)
		require.NoError(t, err)
	}
	r, err := s.Decode()
	require.NoError(t, err)
	return &receiver.Measurement{
		Gauge:   "caliper",
		At:      time.Unix(1700000000, 250*int64(time.Millisecond)),
		Reading: r,
	}
}

func TestNewReading(t *testing.T) {
	r := NewReading("bench-1", testMeasurement(t))
	expect := &Reading{
		Station:     "bench-1",
		Gauge:       "caliper",
		TimestampMs: 1700000000250,
		Value:       -1234.56,
		Unit:        "in",
		RawUnit:     1,
		Decimals:    2,
		Negative:    true,
		Frame:       "FFFF812345621",
	}
	if diff := cmp.Diff(expect, r); diff != "" {
		t.Errorf("NewReading() mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, int64(1700000000250), r.Time().UnixNano()/int64(time.Millisecond))
	unit, err := r.SpcUnit()
	require.NoError(t, err)
	require.Equal(t, spc.UnitInch, unit)
}

func TestReadingEncoding(t *testing.T) {
	r := NewReading("bench-1", testMeasurement(t))
	data, err := r.Encode()
	require.NoError(t, err)
	decoded, err := DecodeReading(data)
	require.NoError(t, err)
	if diff := cmp.Diff(r, decoded); diff != "" {
		t.Errorf("DecodeReading() mismatch (-want +got):\n%s", diff)
	}

	_, err = DecodeReading([]byte{0xff, 0xff})
	require.Error(t, err)

	out, err := json.Marshal(r)
	require.NoError(t, err)
	require.Contains(t, string(out), `"frame":"FFFF812345621"`)
}
