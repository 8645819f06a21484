package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"ms-checkout/internal/auth"
)

// Statistics handles GET /api/statistics/data
func (h *Handler) Statistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Analytics.OrganizerStatistics(r.Context(), auth.UserID(r.Context()), h.now())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, "Statistics", stats)
}

// DailySales handles GET /api/statistics/daily
func (h *Handler) DailySales(w http.ResponseWriter, r *http.Request) {
	days, err := h.Analytics.DailySales(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, "Daily sales", days)
}

// StatisticsStream handles GET /api/statistics/stream. It pushes every
// transaction change on the organizer's events as a server-sent event.
func (h *Handler) StatisticsStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}
	organizerID := auth.UserID(r.Context())

	setupSSEHeaders(w)

	ctx := r.Context()
	eventChan := h.Emitter.SubscribeToOrganizer(ctx, organizerID)

	fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"connected\",\"organizerId\":%q}\n\n", organizerID)
	flusher.Flush()
	h.Logger.Info("SSE", fmt.Sprintf("Organizer %s connected to transaction stream", organizerID))

	for {
		select {
		case event, ok := <-eventChan:
			if !ok {
				return
			}
			jsonData, err := json.Marshal(event)
			if err != nil {
				h.Logger.Error("SSE", fmt.Sprintf("Failed to serialize transaction event: %v", err))
				continue
			}
			fmt.Fprintf(w, "event: transaction\ndata: %s\n\n", jsonData)
			flusher.Flush()

		case <-ctx.Done():
			h.Logger.Debug("SSE", fmt.Sprintf("Organizer %s disconnected from transaction stream", organizerID))
			return
		}
	}
}

func setupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream;charset=UTF-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Accel-Buffering", "no")
}
