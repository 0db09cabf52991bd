// Package websocket serves live readings to web clients.
package websocket

import (
	"context"
	"net/http"
	"sync"

	"github.com/golang/glog"
	"golang.org/x/net/websocket"

	"github.com/robotalks/spc.go/pkg/msgs"
)

// DefaultClientBuffer is the number of readings queued per client
// before it is considered too slow and dropped.
const DefaultClientBuffer = 16

// Hub implements sink.Sink and broadcasts readings as JSON.
type Hub struct {
	ClientBuffer int

	clients map[*client]struct{}
	lock    sync.Mutex
}

type client struct {
	conn    *websocket.Conn
	gauge   string
	sendCh  chan *msgs.Reading
	closeCh chan struct{}
	once    sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.closeCh) })
}

// NewHub creates a Hub.
func NewHub() *Hub {
	return &Hub{ClientBuffer: DefaultClientBuffer}
}

// Handler returns the http.Handler accepting websocket clients.
// The optional query parameter gauge filters readings.
func (h *Hub) Handler() http.Handler {
	return websocket.Handler(h.serve)
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.lock.Lock()
	defer h.lock.Unlock()
	return len(h.clients)
}

// Publish implements sink.Sink.
func (h *Hub) Publish(ctx context.Context, r *msgs.Reading) error {
	h.lock.Lock()
	defer h.lock.Unlock()
	for c := range h.clients {
		if c.gauge != "" && c.gauge != r.Gauge {
			continue
		}
		select {
		case c.sendCh <- r:
		default:
			glog.Warningf("websocket %s: client too slow, dropped", c.conn.Request().RemoteAddr)
			delete(h.clients, c)
			c.close()
		}
	}
	return nil
}

func (h *Hub) serve(conn *websocket.Conn) {
	size := h.ClientBuffer
	if size <= 0 {
		size = DefaultClientBuffer
	}
	c := &client{
		conn:    conn,
		gauge:   conn.Request().URL.Query().Get("gauge"),
		sendCh:  make(chan *msgs.Reading, size),
		closeCh: make(chan struct{}),
	}
	h.lock.Lock()
	if h.clients == nil {
		h.clients = make(map[*client]struct{})
	}
	h.clients[c] = struct{}{}
	h.lock.Unlock()
	glog.V(2).Infof("websocket %s connected", conn.Request().RemoteAddr)

	defer func() {
		h.lock.Lock()
		delete(h.clients, c)
		h.lock.Unlock()
		conn.Close()
		glog.V(2).Infof("websocket %s disconnected", conn.Request().RemoteAddr)
	}()

	// clients never send, a read returns when the peer goes away
	go func() {
		var discard []byte
		for websocket.Message.Receive(conn, &discard) == nil {
		}
		c.close()
	}()

	for {
		select {
		case r := <-c.sendCh:
			if err := websocket.JSON.Send(conn, r); err != nil {
				return
			}
		case <-c.closeCh:
			return
		}
	}
}
