package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hupe1980/supportdesk/internal/auth"
)

// handleEvents streams the caller's workspace orders as server-sent events:
//
//	event: order.created
//	id: <order id>
//	data: {...order json...}
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	p := auth.FromContext(r.Context())

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	orders, cancel := s.broker.Subscribe(p.WorkspaceID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "retry: 3000\n\n")
	s.writeSSEEvent(w, "ready", "", map[string]string{"workspace_id": p.WorkspaceID})
	flusher.Flush()

	s.logger.Debug("events.subscribe", "workspace_id", p.WorkspaceID, "user_id", p.UserID)

	heartbeat := time.NewTicker(s.opts.Heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case o, ok := <-orders:
			if !ok {
				return
			}
			s.writeSSEEvent(w, "order.created", o.ID, o)
			flusher.Flush()
		}
	}
}

// writeSSEEvent writes a single SSE event to the response writer.
func (s *Server) writeSSEEvent(w http.ResponseWriter, event, id string, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("events.marshal_failed", "error", err.Error())
		return
	}

	fmt.Fprintf(w, "event: %s\n", event)
	if id != "" {
		fmt.Fprintf(w, "id: %s\n", id)
	}
	fmt.Fprintf(w, "data: %s\n\n", dataJSON)
}
