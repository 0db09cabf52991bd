// Package daemon wires gauges, receivers and sinks from a Config.
package daemon

import (
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/spc.go/pkg/config"
	fx "github.com/robotalks/spc.go/pkg/framework"
	"github.com/robotalks/spc.go/pkg/msgs"
	"github.com/robotalks/spc.go/pkg/serialport"
	"github.com/robotalks/spc.go/pkg/sink"
	"github.com/robotalks/spc.go/pkg/sink/mqtt"
	"github.com/robotalks/spc.go/pkg/sink/stream"
	"github.com/robotalks/spc.go/pkg/sink/websocket"
	"github.com/robotalks/spc.go/pkg/spc/receiver"
	"github.com/robotalks/spc.go/pkg/store/sqlite"
)

// ReadingsPath is the websocket endpoint of live readings.
const ReadingsPath = "/readings"

// PortOpener opens the bit source of a gauge.
type PortOpener func(config.GaugeConfig) (serialport.Port, error)

// OpenSerialPort is the default PortOpener.
func OpenSerialPort(g config.GaugeConfig) (serialport.Port, error) {
	return serialport.Open(g.Port, g.Baud, g.ReadTimeout())
}

// Daemon runs all gauges of a station.
type Daemon struct {
	Config    *config.Config
	Mux       *sink.Mux
	Receivers []*receiver.Receiver
	OpenPort  PortOpener

	hub       *websocket.Hub
	publisher *mqtt.Publisher
	closers   []io.Closer
}

// New creates sinks and receivers from conf.
// Ports are opened only when the daemon runs.
func New(conf *config.Config) (*Daemon, error) {
	d := &Daemon{
		Config:   conf,
		Mux:      sink.NewMux(conf.Station),
		OpenPort: OpenSerialPort,
	}
	if err := d.setupSinks(); err != nil {
		d.Close()
		return nil, err
	}
	for _, g := range conf.Gauges {
		rcv := receiver.New(g.Name, nil, g.StrictBCD)
		rcv.FrameTimeout = g.FrameTimeout()
		rcv.ReadTimeout = g.ReadTimeout() > 0
		rcv.Handler = d.Mux
		rcv.Notifier = receiver.StateChangedFunc(func(ctx context.Context, state receiver.State) {
			glog.V(3).Infof("%s: %s", g.Name, state)
		})
		d.Receivers = append(d.Receivers, rcv)
	}
	return d, nil
}

func (d *Daemon) setupSinks() error {
	conf := d.Config
	if conf.Database != "" {
		store, err := sqlite.Open(conf.Database)
		if err != nil {
			return err
		}
		d.closers = append(d.closers, store)
		d.Mux.Add(store)
	}
	if conf.Capture != "" {
		f, err := os.OpenFile(conf.Capture, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return err
		}
		w := stream.NewWriter(f)
		d.closers = append(d.closers, w)
		d.Mux.Add(w)
	}
	if conf.ListenAddr != "" {
		d.hub = websocket.NewHub()
		d.Mux.Add(d.hub)
	}
	if conf.MQTTBrokerURL != "" {
		var metas []msgs.GaugeMeta
		for _, g := range conf.Gauges {
			metas = append(metas, msgs.GaugeMeta{
				Station:     conf.Station,
				Gauge:       g.Name,
				Description: g.Description,
				Port:        g.Port,
				Labels:      g.Labels,
			})
		}
		publisher, err := mqtt.NewPublisher(conf.MQTTBrokerURL, conf.Station, metas...)
		if err != nil {
			return err
		}
		d.publisher = publisher
		d.Mux.Add(publisher)
	}
	return nil
}

// Runnables returns all Runnables to start.
func (d *Daemon) Runnables() []fx.Runnable {
	var runnables []fx.Runnable
	if d.publisher != nil {
		runnables = append(runnables, d.publisher)
	}
	if d.hub != nil {
		runnables = append(runnables, fx.NamedRun("http", fx.RunFunc(d.serveHTTP)))
	}
	for n, g := range d.Config.Gauges {
		runnables = append(runnables, d.gaugeRunnable(g, d.Receivers[n]))
	}
	return runnables
}

func (d *Daemon) gaugeRunnable(g config.GaugeConfig, rcv *receiver.Receiver) fx.Runnable {
	return fx.NamedRun(rcv.Name(), fx.RunFunc(func(ctx context.Context) error {
		port, err := d.OpenPort(g)
		if err != nil {
			return err
		}
		glog.Infof("%s: reading from %s", g.Name, g.Port)
		rcv.Reader = port
		err = fx.RunWithContextCloser(ctx, port, func() error {
			return rcv.Run(ctx)
		})
		stats := rcv.Stats()
		glog.Infof("%s: stopped, frames=%d rejected=%d resyncs=%d timeouts=%d",
			g.Name, stats.Frames, stats.Rejected, stats.Resyncs, stats.Timeouts)
		return err
	}))
}

func (d *Daemon) serveHTTP(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle(ReadingsPath, d.hub.Handler())
	ln, err := net.Listen("tcp", d.Config.ListenAddr)
	if err != nil {
		return err
	}
	glog.Infof("serving readings at ws://%s%s", ln.Addr(), ReadingsPath)
	server := &http.Server{Handler: mux}
	return fx.RunWithContextCancel(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}, func() error {
		err := server.Serve(ln)
		if err == http.ErrServerClosed {
			err = nil
		}
		return err
	})
}

// Close releases sinks opened by New.
func (d *Daemon) Close() error {
	var errs fx.AggregatedError
	for _, c := range d.closers {
		errs.Add(c.Close())
	}
	d.closers = nil
	return errs.Aggregate()
}

// Run runs the daemon until ctx is done or a gauge fails.
func (d *Daemon) Run(ctx context.Context) error {
	runner := fx.NewRunnerWith(ctx).Go(d.Runnables()...)
	err := runner.Wait()
	if closeErr := d.Close(); closeErr != nil {
		glog.Errorf("close: %v", closeErr)
	}
	return err
}
