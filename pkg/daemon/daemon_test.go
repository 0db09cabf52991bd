package daemon

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/spc.go/pkg/config"
	"github.com/robotalks/spc.go/pkg/msgs"
	"github.com/robotalks/spc.go/pkg/serialport"
	"github.com/robotalks/spc.go/pkg/sink"
	"github.com/robotalks/spc.go/pkg/spc"
	"github.com/robotalks/spc.go/pkg/store/sqlite"
)

// blockingPort serves data and then blocks until closed.
type blockingPort struct {
	data    []byte
	closeCh chan struct{}
	once    sync.Once
}

func newBlockingPort(data []byte) *blockingPort {
	return &blockingPort{data: data, closeCh: make(chan struct{})}
}

func (p *blockingPort) Read(b []byte) (int, error) {
	if len(p.data) > 0 {
		n := copy(b, p.data)
		p.data = p.data[n:]
		return n, nil
	}
	<-p.closeCh
	return 0, io.EOF
}

func (p *blockingPort) Write(b []byte) (int, error) {
	return len(b), nil
}

func (p *blockingPort) Close() error {
	p.once.Do(func() { close(p.closeCh) })
	return nil
}

func frameData(t *testing.T, magnitude uint32, decimals uint8, negative bool) []byte {
	f, err := spc.EncodeFrame(magnitude, decimals, negative, spc.UnitMillimeter)
	require.NoError(t, err)
	var data []byte
	for _, bit := range f.Bits() {
		data = append(data, '0'+bit)
	}
	return append(data, '\n')
}

func TestDaemonRun(t *testing.T) {
	dir := t.TempDir()
	conf := &config.Config{
		Station:  "bench",
		Database: filepath.Join(dir, "readings.db"),
		Capture:  filepath.Join(dir, "readings.cap"),
		Gauges: []config.GaugeConfig{
			{Name: "caliper", Port: "/dev/null"},
			{Name: "indicator", Port: "/dev/null", StrictBCD: true},
		},
	}
	d, err := New(conf)
	require.NoError(t, err)
	require.Len(t, d.Receivers, 2)

	data := map[string][]byte{
		"caliper":   frameData(t, 123456, 2, false),
		"indicator": frameData(t, 500, 3, true),
	}
	d.OpenPort = func(g config.GaugeConfig) (serialport.Port, error) {
		return newBlockingPort(data[g.Name]), nil
	}
	var lock sync.Mutex
	got := make(map[string]float64)
	doneCh := make(chan struct{})
	d.Mux.Add(sink.PublishFunc(func(ctx context.Context, r *msgs.Reading) error {
		lock.Lock()
		defer lock.Unlock()
		got[r.Gauge] = r.Value
		if len(got) == len(data) {
			close(doneCh)
		}
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- d.Run(ctx)
	}()
	select {
	case <-doneCh:
	case <-time.After(5 * time.Second):
		t.Fatal("readings timeout")
	}
	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon not stopped")
	}

	require.InDelta(t, 1234.56, got["caliper"], 1e-9)
	require.InDelta(t, -0.5, got["indicator"], 1e-9)

	store, err := sqlite.Open(conf.Database)
	require.NoError(t, err)
	defer store.Close()
	readings, err := store.Recent(context.Background(), "caliper", 10)
	require.NoError(t, err)
	require.Len(t, readings, 1)
	require.Equal(t, "bench", readings[0].Station)
	require.Equal(t, "FFFF012345620", readings[0].Frame)
}

func TestDaemonPortEOF(t *testing.T) {
	d, err := New(&config.Config{
		Station: "bench",
		Gauges:  []config.GaugeConfig{{Name: "caliper", Port: "/dev/null"}},
	})
	require.NoError(t, err)
	d.OpenPort = func(config.GaugeConfig) (serialport.Port, error) {
		return serialport.NewMockPort(frameData(t, 1, 0, false)), nil
	}
	require.ErrorIs(t, d.Run(context.Background()), io.EOF)
	require.Equal(t, uint64(1), d.Receivers[0].Stats().Frames)
}

func TestDaemonOpenPortFailure(t *testing.T) {
	d, err := New(&config.Config{
		Station: "bench",
		Gauges:  []config.GaugeConfig{{Name: "caliper", Port: "/dev/none"}},
	})
	require.NoError(t, err)
	d.OpenPort = func(config.GaugeConfig) (serialport.Port, error) {
		return nil, io.ErrClosedPipe
	}
	require.ErrorIs(t, d.Run(context.Background()), io.ErrClosedPipe)
}

func TestDaemonRunnables(t *testing.T) {
	d, err := New(&config.Config{
		Station:       "bench",
		ListenAddr:    "127.0.0.1:0",
		MQTTBrokerURL: "mqtt://127.0.0.1:1883/spc",
		Gauges:        []config.GaugeConfig{{Name: "caliper", Port: "/dev/null"}},
	})
	require.NoError(t, err)
	defer d.Close()
	require.Len(t, d.Runnables(), 3)
	require.Len(t, d.Mux.Sinks, 2)
}
