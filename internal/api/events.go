package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/btouchard/craftlist/internal/api/middleware"
	"github.com/btouchard/craftlist/internal/broadcast"
	"github.com/btouchard/craftlist/internal/feed"
)

// events streams live updates as text/event-stream.
//
// The subscriber is closed when the client goes away but stays registered;
// the broadcaster's liveness probe removes it.
func (h *handler) events(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)

	sub, err := h.broadcaster.Subscribe()
	if err != nil {
		middleware.WriteError(w, http.StatusServiceUnavailable, "could not open event stream")
		return
	}
	defer sub.Close()

	log := slog.With("component", "events", "subscriber_id", sub.ID().String())

	for _, env := range feed.Snapshots(h.cache) {
		if err := sub.Send(broadcast.DataFrame(env.Encode())); err != nil {
			log.Debug("snapshot not queued", "event", string(env.Event), "error", err)
			break
		}
	}

	hdr := w.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("Connection", "keep-alive")
	hdr.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	// The stream outlives the server's write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	if err := rc.Flush(); err != nil {
		log.Warn("event stream not flushable", "error", err)
		return
	}

	log.Debug("event stream opened", "remote_addr", r.RemoteAddr)

	for {
		select {
		case <-r.Context().Done():
			log.Debug("event stream closed by client")
			return
		case <-sub.Done():
			log.Debug("event stream closed by broadcaster")
			return
		case frame := <-sub.Frames():
			if _, err := w.Write(frame); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}
