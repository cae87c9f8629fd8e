package httpapi

import (
	"net/http"
	"strings"

	"threattracker.org/internal/audit"
	"threattracker.org/internal/auth"
	"threattracker.org/internal/obs"
	"threattracker.org/internal/tracker"
)

type createTicketRequest struct {
	AlertID     string `json:"alert_id"`
	Description string `json:"description"`
}

func (a *API) handleTicketCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if _, ok := a.requireRole(w, r, auth.RoleAnalyst); !ok {
		return
	}

	var req createTicketRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	ticket, err := a.tracker.CreateTicket(r.Context(), req.AlertID, req.Description)
	if err != nil {
		handleTrackerError(w, r, err)
		return
	}

	obs.TicketTransitions.WithLabelValues(string(ticket.Status)).Inc()
	_ = audit.LogEvent(r.Context(), "ticket.created", map[string]any{
		"ticket_id": ticket.ID,
		"alert_id":  ticket.AlertID,
	})

	w.Header().Set("Location", "/api/ticket/"+ticket.ID)
	writeJSON(w, http.StatusCreated, ticket)
}

func (a *API) handleTicketsCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	orgID := r.URL.Query().Get("organization_id")
	tickets, err := a.tracker.ListTickets(r.Context(), orgID)
	if err != nil {
		handleTrackerError(w, r, err)
		return
	}
	if tickets == nil {
		tickets = []tracker.Ticket{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tickets": tickets})
}

type updateTicketRequest struct {
	Status string `json:"status"`
}

func (a *API) handleTicketResource(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/ticket/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	if _, ok := a.requireRole(w, r, auth.RoleIT); !ok {
		return
	}

	var req updateTicketRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	status, ok := tracker.ParseTicketStatus(req.Status)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "unknown ticket status")
		return
	}

	ticket, err := a.tracker.UpdateTicketStatus(r.Context(), id, status, ifMatchVersion(r))
	if err != nil {
		handleTrackerError(w, r, err)
		return
	}

	obs.TicketTransitions.WithLabelValues(string(ticket.Status)).Inc()
	_ = audit.LogEvent(r.Context(), "ticket.status.changed", map[string]any{
		"ticket_id": ticket.ID,
		"status":    string(ticket.Status),
	})

	writeEntity(w, r, ticket.Version, ticket)
}
