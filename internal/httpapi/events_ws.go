package httpapi

import (
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Clients authenticate with a JWT, not an Origin header.
		return true
	},
}

// handleSessionEvents upgrades to a websocket and streams the session's
// event feed until the session ends or the client goes away.
func (r *Router) handleSessionEvents(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	s, ok := r.manager.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	if r.streams != nil {
		if !r.streams.Add() {
			writeError(w, http.StatusServiceUnavailable, "server is shutting down")
			return
		}
		defer r.streams.Done()
	}

	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Printf("httpapi: websocket upgrade failed for session %s: %v", id, err)
		return
	}
	defer conn.Close()

	// Drain the read side so we notice when the client disconnects.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	events := s.Events()
	for {
		select {
		case ev, open := <-events:
			if !open {
				// Session finished; tell the client before hanging up.
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"))
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-clientGone:
			return
		}
	}
}
