package daemon

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"lectern/internal/api"
	"lectern/internal/logging"
	"lectern/internal/workflow"
)

const (
	eventBuffer    = 64
	eventWriteWait = 10 * time.Second
	eventPongWait  = 60 * time.Second
	eventPingEvery = eventPongWait * 9 / 10
)

var eventUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// handleEvents relays orchestrator events to a websocket client until either
// side goes away. A client that cannot keep up misses events instead of
// stalling the queue.
func (s *apiServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	// Subscribe before the handshake completes so a client that acts right
	// after connecting sees its own events.
	events, unsubscribe := s.daemon.orchestrator.Subscribe(eventBuffer)
	defer unsubscribe()

	conn, err := eventUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", logging.Error(err))
		return
	}
	defer conn.Close()
	logger := logging.WithContext(r.Context(), s.logger)
	logger.Debug("event subscriber connected", logging.String("remote", r.RemoteAddr))

	// Clients never send data; reading keeps control frames flowing and
	// notices disconnects.
	closed := make(chan struct{})
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(eventPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(eventPongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if progress := s.daemon.orchestrator.ProgressSnapshot(); !progress.IsZero() {
		if err := writeEvent(conn, api.Event{
			Type:     string(workflow.EventJobProgress),
			Time:     time.Now().UTC(),
			Progress: api.FromProgress(progress),
		}); err != nil {
			return
		}
	}

	ping := time.NewTicker(eventPingEvery)
	defer ping.Stop()
	for {
		select {
		case <-closed:
			logger.Debug("event subscriber disconnected")
			return
		case evt, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "daemon stopping"),
					time.Now().Add(eventWriteWait))
				return
			}
			if err := writeEvent(conn, api.FromEvent(evt)); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(eventWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeEvent(conn *websocket.Conn, evt api.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(eventWriteWait))
	return conn.WriteJSON(evt)
}
