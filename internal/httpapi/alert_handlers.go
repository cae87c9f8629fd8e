package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"threattracker.org/internal/audit"
	"threattracker.org/internal/auth"
	"threattracker.org/internal/obs"
	"threattracker.org/internal/tracker"
)

type reportAlertRequest struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

func (a *API) handleAlertsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.reportAlert(w, r)
	case http.MethodGet:
		a.listAlerts(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) reportAlert(w http.ResponseWriter, r *http.Request) {
	var req reportAlertRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	alert, err := a.tracker.Report(r.Context(), req.UserID, req.Message)
	if err != nil {
		handleTrackerError(w, r, err)
		return
	}

	obs.AlertsReported.Inc()
	_ = audit.LogEvent(r.Context(), "alert.reported", map[string]any{
		"alert_id":        alert.ID,
		"organization_id": alert.OrganizationID,
	})

	w.Header().Set("Location", "/api/alerts/"+alert.ID)
	writeJSON(w, http.StatusCreated, alert)
}

func (a *API) listAlerts(w http.ResponseWriter, r *http.Request) {
	orgID := r.URL.Query().Get("organization_id")
	alerts, err := a.tracker.ListAlerts(r.Context(), orgID)
	if err != nil {
		handleTrackerError(w, r, err)
		return
	}
	if alerts == nil {
		alerts = []tracker.Alert{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

type classifyAlertRequest struct {
	Type string `json:"type"`
}

func (a *API) handleAlertResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/alerts/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if id, ok := strings.CutSuffix(path, "/review"); ok {
		id = strings.TrimSuffix(id, "/")
		if id == "" {
			writeError(w, r, http.StatusNotFound, "alert not found")
			return
		}
		if r.Method != http.MethodPut {
			methodNotAllowed(w, r, http.MethodPut)
			return
		}
		a.reviewAlert(w, r, id)
		return
	}

	if strings.Contains(path, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodPut:
		a.classifyAlert(w, r, path)
	default:
		methodNotAllowed(w, r, http.MethodPut)
	}
}

func (a *API) classifyAlert(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := a.requireRole(w, r, auth.RoleAnalyst); !ok {
		return
	}

	var req classifyAlertRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	typ, ok := tracker.ParseAlertType(req.Type)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "type must be Spam or Threat")
		return
	}

	alert, err := a.tracker.Classify(r.Context(), id, typ, ifMatchVersion(r))
	if err != nil {
		handleTrackerError(w, r, err)
		return
	}

	obs.AlertsClassified.WithLabelValues(string(typ)).Inc()
	_ = audit.LogEvent(r.Context(), "alert.classified", map[string]any{
		"alert_id": alert.ID,
		"type":     string(typ),
	})

	writeEntity(w, r, alert.Version, alert)
}

func (a *API) reviewAlert(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := a.requireRole(w, r, auth.RoleAnalyst, auth.RoleIT); !ok {
		return
	}

	alert, err := a.tracker.Review(r.Context(), id)
	if err != nil {
		handleTrackerError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "alert.reviewed", map[string]any{
		"alert_id": alert.ID,
	})

	writeEntity(w, r, alert.Version, alert)
}

// ifMatchVersion reads the optional concurrency token; zero means the
// caller opted out of the version check.
func ifMatchVersion(r *http.Request) int64 {
	raw := strings.Trim(strings.TrimSpace(r.Header.Get("If-Match")), `"`)
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// writeEntity responds with the entity and its version as an ETag so
// clients can do compare-and-swap on the next mutation.
func writeEntity(w http.ResponseWriter, r *http.Request, version int64, v any) {
	w.Header().Set("ETag", `"`+strconv.FormatInt(version, 10)+`"`)
	writeJSON(w, http.StatusOK, v)
}

func handleTrackerError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, tracker.ErrInvalidInput), errors.Is(err, tracker.ErrMissingScope):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, tracker.ErrUnauthenticated):
		w.Header().Set("WWW-Authenticate", `Bearer realm="tracker"`)
		writeError(w, r, http.StatusUnauthorized, "authentication required")
	case errors.Is(err, auth.ErrSessionExpired):
		w.Header().Set("WWW-Authenticate", `Bearer realm="tracker"`)
		writeError(w, r, http.StatusUnauthorized, "session expired")
	case errors.Is(err, tracker.ErrForbidden):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, tracker.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, tracker.ErrInvalidTransition), errors.Is(err, tracker.ErrVersionConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
