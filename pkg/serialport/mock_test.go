package serialport

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/spc.go/pkg/spc"
	"github.com/robotalks/spc.go/pkg/spc/receiver"
)

func TestMockPortFeedsReceiver(t *testing.T) {
	f, err := spc.EncodeFrame(31750, 3, false, spc.UnitMillimeter)
	require.NoError(t, err)
	var data []byte
	for _, bit := range f.Bits() {
		data = append(data, '0'+bit)
	}
	data = append(data, '\n')

	port := NewMockPort(data)
	var got []float64
	rcv := receiver.New("indicator", port, false)
	rcv.Handler = receiver.HandleMeasurementFunc(func(ctx context.Context, m *receiver.Measurement) {
		got = append(got, m.Value)
	})
	require.Equal(t, io.EOF, rcv.Run(context.Background()))
	require.Len(t, got, 1)
	require.InDelta(t, 31.75, got[0], 1e-9)

	require.NoError(t, port.Close())
	require.True(t, port.Closed)
	n, err := port.Read(make([]byte, 1))
	require.Equal(t, 0, n)
	require.Equal(t, io.EOF, err)
}
