// Package receiver feeds SPC sessions from a byte stream of bit samples.
package receiver

// A bit bridge (e.g. a microcontroller clocking the gauge) forwards every
// sampled data bit as one byte; only the lowest bit is used so both raw
// 0x00/0x01 and ASCII '0'/'1' work. A line feed marks the end of a frame
// and resynchronizes a partial one. A stalled frame is dropped after
// FrameTimeout.

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/spc.go/pkg/spc"
)

// State is the reception state.
type State int

// States.
const (
	StateIdle State = iota
	StateReceiving
)

// String implements fmt.Stringer.
func (s State) String() string {
	if s == StateReceiving {
		return "receiving"
	}
	return "idle"
}

// Measurement is a decoded reading from a named gauge.
type Measurement struct {
	Gauge string
	At    time.Time
	spc.Reading
}

// Handler is called with decoding results.
type Handler interface {
	HandleMeasurement(context.Context, *Measurement)
	HandleFrameError(ctx context.Context, gauge string, err error)
}

// HandleMeasurementFunc adapts a func to Handler, frame errors are ignored.
type HandleMeasurementFunc func(context.Context, *Measurement)

// HandleMeasurement implements Handler.
func (f HandleMeasurementFunc) HandleMeasurement(ctx context.Context, m *Measurement) {
	f(ctx, m)
}

// HandleFrameError implements Handler.
func (f HandleMeasurementFunc) HandleFrameError(context.Context, string, error) {}

// StateNotifier is called when the reception state changes.
type StateNotifier interface {
	StateChanged(context.Context, State)
}

// StateChangedFunc is func type of StateNotifier.
type StateChangedFunc func(context.Context, State)

// StateChanged implements StateNotifier.
func (f StateChangedFunc) StateChanged(ctx context.Context, state State) {
	f(ctx, state)
}

// Stats are reception counters.
type Stats struct {
	Bits     uint64
	Frames   uint64
	Rejected uint64
	Resyncs  uint64
	Timeouts uint64
}

// DefaultFrameTimeout is the default gap that drops a partial frame.
const DefaultFrameTimeout = 100 * time.Millisecond

// Receiver reads bit samples and decodes frames.
type Receiver struct {
	Gauge        string
	Reader       io.Reader
	Handler      Handler
	Notifier     StateNotifier
	FrameTimeout time.Duration
	ReadTimeout  bool // set to true if Reader already supports timeout with Read

	session    *spc.Session
	state      State
	stats      Stats
	lock       sync.RWMutex
	frameTimer <-chan time.Time
}

// New creates a Receiver.
func New(gauge string, r io.Reader, strictBCD bool) *Receiver {
	return &Receiver{
		Gauge:        gauge,
		Reader:       r,
		FrameTimeout: DefaultFrameTimeout,
		session:      spc.NewSession(strictBCD),
	}
}

// State gets the state.
func (r *Receiver) State() State {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.state
}

// Stats gets a snapshot of the counters.
func (r *Receiver) Stats() Stats {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.stats
}

// Name implements framework.Named.
func (r *Receiver) Name() string {
	return "receiver:" + r.Gauge
}

// Run reads the stream until it fails or ctx is done.
func (r *Receiver) Run(ctx context.Context) error {
	if r.session == nil {
		r.session = spc.NewSession(false)
	}
	r.session.Reset()
	r.frameTimer = nil

	if r.ReadTimeout {
		buf := make([]byte, 1)
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-r.frameTimer:
				r.timeout(ctx)
			default:
				n, err := r.Reader.Read(buf)
				if err != nil && !os.IsTimeout(err) {
					return err
				}
				if n > 0 {
					r.process(ctx, buf[0])
				}
			}
		}
	}

	byteCh, errCh := make(chan byte), make(chan error, 1)
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go r.readLoop(subCtx, byteCh, errCh)
	for {
		select {
		case b := <-byteCh:
			r.process(ctx, b)
		case err := <-errCh:
			return err
		case <-ctx.Done():
			return ctx.Err()
		case <-r.frameTimer:
			r.timeout(ctx)
		}
	}
}

func (r *Receiver) readLoop(ctx context.Context, byteCh chan byte, errCh chan error) {
	buf := make([]byte, 1)
	for {
		n, err := r.Reader.Read(buf)
		if err != nil {
			errCh <- err
			return
		}
		if n == 0 {
			continue
		}
		select {
		case byteCh <- buf[0]:
		case <-ctx.Done():
			return
		}
	}
}

func (r *Receiver) process(ctx context.Context, b byte) {
	switch b {
	case ' ', '\t':
		return
	case '\r', '\n':
		if r.session.Receiving() {
			glog.V(2).Infof("%s: resync after %d nibbles", r.Gauge, r.session.Stored())
			r.count(func(s *Stats) { s.Resyncs++ })
			r.session.Reset()
		}
		r.setState(ctx, StateIdle)
		return
	}

	complete, err := r.session.AcceptBit(b)
	r.count(func(s *Stats) { s.Bits++ })
	if err != nil {
		// only reachable if a completed frame was not reset
		glog.Errorf("%s: %v", r.Gauge, err)
		r.session.Reset()
		r.setState(ctx, StateIdle)
		return
	}
	if !complete {
		r.setState(ctx, StateReceiving)
		return
	}

	reading, err := r.session.Decode()
	r.session.Reset()
	r.setState(ctx, StateIdle)
	if err != nil {
		r.count(func(s *Stats) { s.Rejected++ })
		if errors.Is(err, spc.ErrInvalidFrameData) {
			glog.Warningf("%s: %v", r.Gauge, err)
		} else {
			glog.Errorf("%s: %v", r.Gauge, err)
		}
		if h := r.Handler; h != nil {
			h.HandleFrameError(ctx, r.Gauge, err)
		}
		return
	}
	r.count(func(s *Stats) { s.Frames++ })
	glog.V(2).Infof("%s: %v %s (%s)", r.Gauge, reading.Value, reading.Unit, reading.Frame)
	if h := r.Handler; h != nil {
		h.HandleMeasurement(ctx, &Measurement{Gauge: r.Gauge, At: time.Now(), Reading: reading})
	}
}

func (r *Receiver) timeout(ctx context.Context) {
	r.frameTimer = nil
	if !r.session.Receiving() {
		return
	}
	glog.V(2).Infof("%s: frame timeout after %d nibbles", r.Gauge, r.session.Stored())
	r.count(func(s *Stats) { s.Timeouts++ })
	r.session.Reset()
	r.setState(ctx, StateIdle)
}

func (r *Receiver) count(fn func(*Stats)) {
	r.lock.Lock()
	fn(&r.stats)
	r.lock.Unlock()
}

func (r *Receiver) setState(ctx context.Context, state State) {
	if state == StateReceiving && r.FrameTimeout > 0 {
		r.frameTimer = time.After(r.FrameTimeout)
	} else if state == StateIdle {
		r.frameTimer = nil
	}

	var notifier StateNotifier
	r.lock.Lock()
	if r.state != state {
		r.state = state
		notifier = r.Notifier
	}
	r.lock.Unlock()
	if notifier != nil {
		notifier.StateChanged(ctx, state)
	}
}
