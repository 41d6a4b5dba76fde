package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// handleSSE streams run events as Server-Sent Events.
// GET /stream/sse?run_id=<id>[&last_event_id=<seq>]
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	runID := r.URL.Query().Get("run_id")
	if runID == "" {
		writeError(w, http.StatusBadRequest, "run_id is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	var lastSeq uint64
	if lei := r.Header.Get("Last-Event-ID"); lei != "" {
		lastSeq, _ = strconv.ParseUint(lei, 10, 64)
	}
	if q := r.URL.Query().Get("last_event_id"); q != "" && lastSeq == 0 {
		lastSeq, _ = strconv.ParseUint(q, 10, 64)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	ch := s.hub.Subscribe(runID, 256)
	defer s.hub.Unsubscribe(runID, ch)

	fmt.Fprintf(w, ": connected to run %s\n\n", runID)
	flusher.Flush()

	if lastSeq > 0 {
		for _, evt := range s.hub.ReplaySince(runID, lastSeq) {
			fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", evt.Seq, evt.Type, evt.Marshal())
		}
		flusher.Flush()
	}

	// heartbeats keep proxies from closing idle streams
	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt := <-ch:
			fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", evt.Seq, evt.Type, evt.Marshal())
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// origin checks happen at the proxy in front of this service
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWS streams run events over a websocket.
// GET /stream/ws?run_id=<id>[&last_event_id=<seq>]
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	runID := r.URL.Query().Get("run_id")
	if runID == "" {
		writeError(w, http.StatusBadRequest, "run_id is required")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	var lastSeq uint64
	if q := r.URL.Query().Get("last_event_id"); q != "" {
		lastSeq, _ = strconv.ParseUint(q, 10, 64)
	}

	ch := s.hub.Subscribe(runID, 256)
	defer s.hub.Unsubscribe(runID, ch)

	if lastSeq > 0 {
		for _, evt := range s.hub.ReplaySince(runID, lastSeq) {
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		}
	}

	// reader goroutine surfaces client disconnects
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-done:
			return
		case evt := <-ch:
			if err := conn.WriteJSON(evt); err != nil {
				s.logger.Debug("Websocket write failed",
					zap.String("run_id", runID), zap.Error(err))
				return
			}
		case <-heartbeat.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}
