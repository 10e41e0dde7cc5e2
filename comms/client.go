package comms

import (
	"sync"
	"time"

	"github.com/edaniels/golog"
	"github.com/gorilla/websocket"
)

// statusClient buffers a single pending snapshot. A slow client skips frames
// rather than holding up the others.
type statusClient struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
	done chan struct{}
}

func newStatusClient(conn *websocket.Conn) *statusClient {
	return &statusClient{
		conn: conn,
		send: make(chan []byte, 1),
		done: make(chan struct{}),
	}
}

func (s *statusClient) queue(msg []byte) {
	select {
	case s.send <- msg:
	default:
		// drop the stale frame in favour of the new one
		select {
		case <-s.send:
		default:
		}
		select {
		case s.send <- msg:
		default:
		}
	}
}

func (s *statusClient) writePump(logger golog.Logger) {
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Debugw("status socket write", "error", err)
				s.conn.Close()
				return
			}
		}
	}
}

// readPump discards anything the client sends and returns once the
// connection is gone.
func (s *statusClient) readPump() {
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *statusClient) close() {
	s.once.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}
