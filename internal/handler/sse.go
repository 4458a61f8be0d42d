package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/YannKr/countersignal/internal/sse"
)

const keepAliveInterval = 25 * time.Second

// HitStream streams hit events as server-sent events. With ?campaign=<id>
// only that campaign's hits are sent.
func (h *Handler) HitStream(w http.ResponseWriter, r *http.Request) {
	topic := sse.TopicHits
	if id := r.URL.Query().Get("campaign"); id != "" {
		topic = sse.CampaignTopic(id)
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		renderJSONError(w, http.StatusInternalServerError, "STREAMING_UNSUPPORTED", "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, unsub := h.SSE.Subscribe(topic)
	defer unsub()

	fmt.Fprintf(w, ": connected\n\n")
	flusher.Flush()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			fmt.Fprintf(w, ": keepalive\n\n")
			flusher.Flush()
		case evt, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, evt.Data)
			flusher.Flush()
		}
	}
}
