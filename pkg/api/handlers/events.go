package handlers

import (
	"net/http"

	"github.com/marmos91/depositd/pkg/ingress"
)

// EventNotifier offers change events to the pipeline. *ingress.Ingress is
// the production implementation.
type EventNotifier interface {
	Notify(e ingress.Event) bool
}

// EventsHandler receives change notifications from the record store's
// webhook. Delivery is best-effort: a dropped event is recovered by the
// periodic store scan, so the endpoint never signals an error for a full
// queue or a filtered event.
type EventsHandler struct {
	ingress EventNotifier
}

// NewEventsHandler creates a new EventsHandler.
func NewEventsHandler(notifier EventNotifier) *EventsHandler {
	return &EventsHandler{ingress: notifier}
}

// Post handles POST /api/v1/events.
func (h *EventsHandler) Post(w http.ResponseWriter, r *http.Request) {
	var event ingress.Event
	if !decodeJSONBody(w, r, &event) {
		return
	}

	if event.ID == "" {
		BadRequest(w, "Event id is required")
		return
	}

	accepted := h.ingress.Notify(event)
	Accepted(w, map[string]bool{"accepted": accepted})
}
