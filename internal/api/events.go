package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rendis/blockflow/internal/streaming"
	"github.com/rendis/blockflow/pkg/schema"
)

// keepAliveInterval spaces the comment lines that hold idle streams open.
var keepAliveInterval = 25 * time.Second

// streamEvents streams every change event; ?types= narrows by event type.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	s.serveEvents(w, r, streaming.Filter{Types: eventTypes(r)})
}

func (s *Server) streamWorkflowEvents(w http.ResponseWriter, r *http.Request) {
	s.serveEvents(w, r, streaming.Filter{WorkflowID: chi.URLParam(r, "id"), Types: eventTypes(r)})
}

func eventTypes(r *http.Request) []streaming.EventType {
	raw := r.URL.Query().Get("types")
	if raw == "" {
		return nil
	}
	var out []streaming.EventType
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, streaming.EventType(t))
		}
	}
	return out
}

// serveEvents writes matching events as Server-Sent Events until the client
// goes away. A ": subscribed" comment is sent once the subscription is live.
func (s *Server) serveEvents(w http.ResponseWriter, r *http.Request, filter streaming.Filter) {
	if s.hub == nil {
		writeError(w, schema.NewError(schema.ErrCodeNotFound, "event streaming is not enabled"))
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, fmt.Errorf("streaming not supported"))
		return
	}

	ch, cancel, err := s.hub.Subscribe(r.Context(), filter)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "event subscribe failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": subscribed\n\n")
	flusher.Flush()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case ev, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			flusher.Flush()
		}
	}
}
