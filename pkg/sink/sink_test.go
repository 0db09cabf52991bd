package sink

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/spc.go/pkg/msgs"
	"github.com/robotalks/spc.go/pkg/spc"
	"github.com/robotalks/spc.go/pkg/spc/receiver"
)

func TestMux(t *testing.T) {
	var got []*msgs.Reading
	ok := PublishFunc(func(ctx context.Context, r *msgs.Reading) error {
		got = append(got, r)
		return nil
	})
	failing := PublishFunc(func(ctx context.Context, r *msgs.Reading) error {
		return errors.New("broker down")
	})

	m := NewMux("bench-1", ok)
	m.HandleMeasurement(context.Background(), &receiver.Measurement{
		Gauge:   "caliper",
		At:      time.Now(),
		Reading: spc.Reading{Value: 1.5, Unit: spc.UnitMillimeter},
	})
	require.Len(t, got, 1)
	require.Equal(t, "bench-1", got[0].Station)
	require.Equal(t, "caliper", got[0].Gauge)
	require.Equal(t, "mm", got[0].Unit)

	m.Add(failing, failing)
	err := m.Publish(context.Background(), got[0])
	require.Error(t, err)
	require.Contains(t, err.Error(), "broker down")
	require.Len(t, got, 2)

	m.HandleFrameError(context.Background(), "caliper", spc.ErrInvalidFrameData)
	m.HandleFrameError(context.Background(), "caliper", spc.ErrInvalidFrameData)
	require.Equal(t, uint64(2), m.Rejected("caliper"))
	require.Equal(t, uint64(0), m.Rejected("indicator"))
}
