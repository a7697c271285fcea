package sessions

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/net/websocket"

	"github.com/wolfman30/medspa-booking/internal/workflow"
)

// streamMessage is what the booking widget receives over the socket.
type streamMessage struct {
	Type string         `json:"type"` // "snapshot", a workflow.EventType, "pong", "closed"
	View *workflow.View `json:"view,omitempty"`
}

type streamCommand struct {
	Type string `json:"type"` // "ping"
}

// Events upgrades to a websocket and pushes every workflow event until the
// client disconnects or the session is closed.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	s, err := h.manager.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeError(w, err, nil)
		return
	}
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveEvents(conn, s)
	}).ServeHTTP(w, r)
}

func (h *Handler) serveEvents(conn *websocket.Conn, s *Session) {
	events, unsubscribe := s.Controller.Subscribe()
	defer unsubscribe()

	view := s.Controller.View()
	if err := websocket.JSON.Send(conn, streamMessage{Type: "snapshot", View: &view}); err != nil {
		return
	}

	// Reader: answers pings and notices the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			var cmd streamCommand
			if err := websocket.JSON.Receive(conn, &cmd); err != nil {
				return
			}
			if cmd.Type == "ping" {
				_ = websocket.JSON.Send(conn, streamMessage{Type: "pong"})
			}
		}
	}()

	h.logger.Debug("booking event stream opened", "session_id", s.ID)
	for {
		select {
		case <-gone:
			h.logger.Debug("booking event stream closed by client", "session_id", s.ID)
			return
		case evt, ok := <-events:
			if !ok {
				_ = websocket.JSON.Send(conn, streamMessage{Type: "closed"})
				return
			}
			v := evt.View
			s.touch(h.manager.cfg.Clock())
			if err := websocket.JSON.Send(conn, streamMessage{Type: string(evt.Type), View: &v}); err != nil {
				h.logger.Debug("booking event stream send failed", "session_id", s.ID, "error", err)
				return
			}
		}
	}
}
