package mqtt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/spc.go/pkg/msgs"
)

type testToken struct {
	*paho.DummyToken
	err error
}

func (t *testToken) Error() error {
	return t.err
}

type published struct {
	topic   string
	payload []byte
}

// testClient fails the first connectFailures connects.
type testClient struct {
	paho.Client

	lock            sync.Mutex
	connectFailures int
	connects        int
	pubs            []published
}

func (c *testClient) Connect() paho.Token {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.connects++
	if c.connects <= c.connectFailures {
		return &testToken{DummyToken: &paho.DummyToken{}, err: errors.New("connection refused")}
	}
	return &testToken{DummyToken: &paho.DummyToken{}}
}

func (c *testClient) Disconnect(uint) {}

func (c *testClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.pubs = append(c.pubs, published{topic: topic, payload: payload.([]byte)})
	return &testToken{DummyToken: &paho.DummyToken{}}
}

func (c *testClient) connectCount() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.connects
}

func newTestPublisher(t *testing.T, client *testClient, metas ...msgs.GaugeMeta) *Publisher {
	p, err := NewPublisher("mqtt://127.0.0.1:1883/spc", "bench", metas...)
	require.NoError(t, err)
	p.Queue.Client = client
	p.ConnectRetry = 10 * time.Millisecond
	return p
}

func TestPublisherRetriesConnect(t *testing.T) {
	client := &testClient{connectFailures: 2}
	p := newTestPublisher(t, client, msgs.GaugeMeta{Station: "bench", Gauge: "caliper"})

	ctx, cancel := context.WithCancel(context.Background())
	doneCh := make(chan error, 1)
	go func() { doneCh <- p.Run(ctx) }()
	for i := 0; i < 100 && client.connectCount() < 3; i++ {
		time.Sleep(10 * time.Millisecond)
	}
	require.Equal(t, 3, client.connectCount())
	cancel()
	select {
	case err := <-doneCh:
		require.Equal(t, context.Canceled, err)
	case <-time.After(time.Second):
		t.Fatal("publisher not stopped")
	}

	// retained meta is cleared on exit
	client.lock.Lock()
	defer client.lock.Unlock()
	require.Len(t, client.pubs, 1)
	require.Equal(t, "spc/bench/caliper/meta", client.pubs[0].topic)
	require.Empty(t, client.pubs[0].payload)
}

func TestPublisherStopsWhileDisconnected(t *testing.T) {
	client := &testClient{connectFailures: 1 << 30}
	p := newTestPublisher(t, client)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.Equal(t, context.DeadlineExceeded, p.Run(ctx))
	require.True(t, client.connectCount() > 1)
}

func TestPublisherSkipsBadMeta(t *testing.T) {
	saved := marshalMeta
	defer func() { marshalMeta = saved }()
	marshalMeta = func(v interface{}) ([]byte, error) {
		if v.(*msgs.GaugeMeta).Gauge == "broken" {
			return nil, errors.New("unsupported value")
		}
		return saved(v)
	}

	client := &testClient{}
	p := newTestPublisher(t, client,
		msgs.GaugeMeta{Station: "bench", Gauge: "broken"},
		msgs.GaugeMeta{Station: "bench", Gauge: "caliper"})
	p.publishMeta(false)
	require.Len(t, client.pubs, 1)
	require.Equal(t, "spc/bench/caliper/meta", client.pubs[0].topic)
	require.Contains(t, string(client.pubs[0].payload), `"gauge":"caliper"`)
}

func TestPublisherPublish(t *testing.T) {
	client := &testClient{}
	p := newTestPublisher(t, client)
	r := &msgs.Reading{Station: "bench", Gauge: "caliper", Value: 1.5, Unit: "mm"}
	require.NoError(t, p.Publish(context.Background(), r))
	require.Len(t, client.pubs, 1)
	require.Equal(t, "spc/bench/caliper/reading", client.pubs[0].topic)
	decoded, err := msgs.DecodeReading(client.pubs[0].payload)
	require.NoError(t, err)
	require.Equal(t, 1.5, decoded.Value)
}
