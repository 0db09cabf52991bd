// Package sink distributes decoded readings to their consumers.
package sink

import (
	"context"
	"sync"

	"github.com/golang/glog"

	fx "github.com/robotalks/spc.go/pkg/framework"
	"github.com/robotalks/spc.go/pkg/msgs"
	"github.com/robotalks/spc.go/pkg/spc/receiver"
)

// Sink consumes readings.
type Sink interface {
	Publish(context.Context, *msgs.Reading) error
}

// PublishFunc is func form of Sink.
type PublishFunc func(context.Context, *msgs.Reading) error

// Publish implements Sink.
func (f PublishFunc) Publish(ctx context.Context, r *msgs.Reading) error {
	return f(ctx, r)
}

// Mux fans readings out to multiple sinks.
type Mux struct {
	Station string
	Sinks   []Sink

	lock     sync.Mutex
	rejected map[string]uint64
}

// NewMux creates a Mux.
func NewMux(station string, sinks ...Sink) *Mux {
	return &Mux{Station: station, Sinks: sinks}
}

// Add adds more sinks.
func (m *Mux) Add(sinks ...Sink) {
	m.Sinks = append(m.Sinks, sinks...)
}

// Publish implements Sink.
func (m *Mux) Publish(ctx context.Context, r *msgs.Reading) error {
	var errs fx.AggregatedError
	for _, s := range m.Sinks {
		errs.Add(s.Publish(ctx, r))
	}
	return errs.Aggregate()
}

// HandleMeasurement implements receiver.Handler.
func (m *Mux) HandleMeasurement(ctx context.Context, meas *receiver.Measurement) {
	if err := m.Publish(ctx, msgs.NewReading(m.Station, meas)); err != nil {
		glog.Errorf("%s: publish error: %v", meas.Gauge, err)
	}
}

// HandleFrameError implements receiver.Handler.
func (m *Mux) HandleFrameError(ctx context.Context, gauge string, err error) {
	m.lock.Lock()
	if m.rejected == nil {
		m.rejected = make(map[string]uint64)
	}
	m.rejected[gauge]++
	m.lock.Unlock()
}

// Rejected returns the number of rejected frames of a gauge.
func (m *Mux) Rejected(gauge string) uint64 {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.rejected[gauge]
}
