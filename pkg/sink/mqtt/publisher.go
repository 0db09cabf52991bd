package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/spc.go/pkg/msgs"
)

// Topic suffixes under <prefix><station>/<gauge>/.
const (
	TopicReading = "reading"
	TopicMeta    = "meta"
)

// Defaults of Publisher.
const (
	// DefaultPublishTimeout bounds waiting for a broker ack.
	DefaultPublishTimeout = 2 * time.Second
	// DefaultConnectRetry is the wait between failed initial connects.
	DefaultConnectRetry = 5 * time.Second
)

var marshalMeta = json.Marshal

// ReadingTopic returns the topic of readings of a gauge.
func ReadingTopic(station, gauge string) string {
	return station + "/" + gauge + "/" + TopicReading
}

// MetaTopic returns the topic of the retained gauge metadata.
func MetaTopic(station, gauge string) string {
	return station + "/" + gauge + "/" + TopicMeta
}

// Publisher implements sink.Sink over MQTT.
type Publisher struct {
	Queue        *Queue
	Station      string
	Timeout      time.Duration
	ConnectRetry time.Duration

	metas []msgs.GaugeMeta
}

// NewPublisher creates a Publisher. Gauge metadata is published
// retained on every connect and cleared on Run exit.
func NewPublisher(brokerURL, station string, metas ...msgs.GaugeMeta) (*Publisher, error) {
	opts, topicPrefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	if opts.ClientID == "" {
		opts.SetClientID("spcd:" + station)
	}
	p := &Publisher{
		Station:      station,
		Timeout:      DefaultPublishTimeout,
		ConnectRetry: DefaultConnectRetry,
		metas:        metas,
	}
	p.Queue = NewQueue(opts, topicPrefix)
	p.Queue.OnConnect = func(*Queue) { p.publishMeta(false) }
	return p, nil
}

// Name implements framework.Named.
func (p *Publisher) Name() string {
	return "mqtt"
}

// Publish implements sink.Sink.
func (p *Publisher) Publish(ctx context.Context, r *msgs.Reading) error {
	payload, err := r.Encode()
	if err != nil {
		return err
	}
	token := p.Queue.PubWith(ReadingTopic(p.Station, r.Gauge), payload, 0, false)
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("mqtt publish %s: timeout", r.Gauge)
	}
	return token.Error()
}

// Run implements Runnable. An unreachable broker is retried until ctx
// is done, readings published meanwhile fail without stopping other sinks.
func (p *Publisher) Run(ctx context.Context) error {
	retry := p.ConnectRetry
	if retry <= 0 {
		retry = DefaultConnectRetry
	}
	for {
		token := p.Queue.Connect()
		token.Wait()
		err := token.Error()
		if err == nil {
			break
		}
		glog.Warningf("mqtt connect: %v, retry in %s", err, retry)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retry):
		}
	}
	<-ctx.Done()
	p.publishMeta(true)
	p.Queue.Close()
	return ctx.Err()
}

func (p *Publisher) publishMeta(clear bool) {
	for _, meta := range p.metas {
		var payload []byte
		if !clear {
			var err error
			if payload, err = marshalMeta(&meta); err != nil {
				glog.Errorf("mqtt meta %s: %v", meta.Gauge, err)
				continue
			}
		}
		p.Queue.PubWith(MetaTopic(p.Station, meta.Gauge), payload, 1, true).WaitTimeout(p.Timeout)
	}
}
