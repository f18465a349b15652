package report

import (
	"log"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// StreamServer upgrades HTTP requests to websocket connections and
// forwards every value published on the broker to each connected client
// as JSON. Slow clients miss values rather than stalling training.
type StreamServer[T any] struct {
	broker   *Broker[T]
	upgrader websocket.Upgrader
}

// NewStreamServer creates a stream server fed by the broker.
func NewStreamServer[T any](b *Broker[T]) *StreamServer[T] {
	return &StreamServer[T]{
		broker: b,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

// ServeHTTP subscribes the client to the broker for the lifetime of the
// connection.
func (s *StreamServer[T]) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("report: websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	id := "stream-" + uuid.New().String()
	ch := make(chan T, 64)
	if err := s.broker.Subscribe(id, ch); err != nil {
		log.Printf("report: subscribing %s: %v", id, err)
		return
	}
	defer s.broker.Unsubscribe(id)

	c := &client{conn: conn}

	// Drain client reads so close frames are processed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case v := <-ch:
			if err := c.send(v); err != nil {
				log.Printf("report: client send: %v", err)
				return
			}
		}
	}
}
