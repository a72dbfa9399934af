package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// maxEventStreamConnections caps concurrent websocket subscribers so a
// runaway dashboard poller can't exhaust broker fanout capacity.
const maxEventStreamConnections = 200

var eventStreamUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleEventStream upgrades to a websocket and relays the broker events
// delivered to its subscription (the broker drops events for a subscriber
// whose buffer is full) until a write fails or the request context ends.
// Stopping the broker does not close subscriber channels, so it does not
// end the stream by itself.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	if s.vm.Events().SubscriberCount() >= maxEventStreamConnections {
		http.Error(w, "too many event stream subscribers", http.StatusServiceUnavailable)
		return
	}

	conn, err := eventStreamUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("event stream upgrade failed")
		return
	}
	defer conn.Close()

	sub := s.vm.Events().Subscribe()
	defer s.vm.Events().Unsubscribe(sub)

	s.logger.Debug().Msg("event stream subscriber connected")

	for {
		select {
		case event, ok := <-sub:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(event); err != nil {
				s.logger.Debug().Err(err).Msg("event stream write failed, dropping subscriber")
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}
