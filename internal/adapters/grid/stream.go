package grid

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// handleStream sends every active view snapshot as a server-sent "view" event
// until the client goes away or the manager closes.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	sub := h.Manager.SubscribeActive(r.Context())
	defer sub.Close()

	startEventStream(w)
	flusher.Flush()
	for view := range sub.Updates() {
		payload, err := json.Marshal(h.view(r.Context(), view))
		if err != nil {
			h.Logger.Error("encode view", "collection", view.Name, "error", err)
			continue
		}
		if _, err := fmt.Fprintf(w, "event: view\nid: %d\ndata: %s\n\n", view.Seq, payload); err != nil {
			return
		}
		flusher.Flush()
	}
}

func (h *Handler) handleScrapeStart(w http.ResponseWriter, r *http.Request) {
	if h.Scraper == nil {
		writeError(w, http.StatusServiceUnavailable, "scraper not configured")
		return
	}
	ack, err := h.Scraper.Start(r.Context())
	if err != nil {
		h.Logger.Error("start scrape", "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if ack == nil {
		ack = json.RawMessage("{}")
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"scrape": ack})
}

// handleScrapeOutput relays the scraper's terminal output as "output" events.
func (h *Handler) handleScrapeOutput(w http.ResponseWriter, r *http.Request) {
	if h.Scraper == nil {
		writeError(w, http.StatusServiceUnavailable, "scraper not configured")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	out, err := h.Scraper.Output(r.Context())
	if err != nil {
		h.Logger.Error("open scrape output", "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	defer func() { _ = out.Close() }()

	startEventStream(w)
	flusher.Flush()
	for line := range out.Lines() {
		if err := writeEvent(w, "output", line); err != nil {
			return
		}
		flusher.Flush()
	}
	if err := out.Err(); err != nil && !errors.Is(err, r.Context().Err()) {
		h.Logger.Warn("scrape output ended", "error", err)
		_ = writeEvent(w, "error", err.Error())
		flusher.Flush()
	}
}

func startEventStream(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
}

// writeEvent writes one event; multi-line payloads become multiple data lines.
func writeEvent(w http.ResponseWriter, event, data string) error {
	var b strings.Builder
	b.WriteString("event: ")
	b.WriteString(event)
	b.WriteByte('\n')
	for _, line := range strings.Split(data, "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	_, err := fmt.Fprint(w, b.String())
	return err
}
