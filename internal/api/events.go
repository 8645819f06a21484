package api

import (
	"net/http"

	"ms-checkout/internal/auth"
	"ms-checkout/internal/models"

	"github.com/go-chi/chi/v5"
)

// OngoingEvents handles GET /api/events/ongoing
func (h *Handler) OngoingEvents(w http.ResponseWriter, r *http.Request) {
	list, err := h.Events.ListOngoing(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, "Ongoing events", list)
}

// OrganizerEvents handles GET /api/events/organizer/{organizerId}
func (h *Handler) OrganizerEvents(w http.ResponseWriter, r *http.Request) {
	list, err := h.Events.ListByOrganizer(r.Context(), chi.URLParam(r, "organizerId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, "Organizer events", list)
}

// GetEvent handles GET /api/events/{eventId}
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.Events.GetByID(r.Context(), chi.URLParam(r, "eventId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, "Event", event)
}

// UpdateEvent handles PATCH /api/events/{eventId}
func (h *Handler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	var update models.EventUpdate
	if err := decodeJSON(r, &update); err != nil {
		h.fail(w, r, err)
		return
	}
	actor, _ := auth.PrincipalFrom(r.Context())

	event, err := h.Events.Update(r.Context(), actor, chi.URLParam(r, "eventId"), update)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, "Event updated", event)
}
