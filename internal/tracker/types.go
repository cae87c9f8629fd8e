package tracker

import (
	"errors"
	"strings"
	"time"
)

// AlertStatus is the alert lifecycle position: New -> Classified -> Reviewed.
type AlertStatus string

const (
	AlertNew        AlertStatus = "New"
	AlertClassified AlertStatus = "Classified"
	AlertReviewed   AlertStatus = "Reviewed"
)

// AlertType is the one-time analyst judgment. Empty until classification,
// immutable after.
type AlertType string

const (
	TypeSpam   AlertType = "Spam"
	TypeThreat AlertType = "Threat"
)

// ParseAlertType normalizes a classification value.
func ParseAlertType(s string) (AlertType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "spam":
		return TypeSpam, true
	case "threat":
		return TypeThreat, true
	}
	return "", false
}

// Alert is a reported incident. Created with status New and no type;
// mutated only by analyst classification; never deleted.
type Alert struct {
	ID             string      `json:"id"`
	UserID         string      `json:"user_id"`
	OrganizationID string      `json:"organization_id"`
	Message        string      `json:"message"`
	Status         AlertStatus `json:"status"`
	Type           AlertType   `json:"type,omitempty"`
	Version        int64       `json:"version"`
	TriggeredAt    time.Time   `json:"triggered_at"`
}

// TicketStatus is the remediation lifecycle position. Transitions are
// monotonic: Open -> In-Progress -> Closed, Closed terminal.
type TicketStatus string

const (
	TicketOpen       TicketStatus = "Open"
	TicketInProgress TicketStatus = "In-Progress"
	TicketClosed     TicketStatus = "Closed"
)

// ParseTicketStatus normalizes a status value; the dashboards send
// lowercase and space-separated variants.
func ParseTicketStatus(s string) (TicketStatus, bool) {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", "-")) {
	case "open":
		return TicketOpen, true
	case "in-progress":
		return TicketInProgress, true
	case "closed":
		return TicketClosed, true
	}
	return "", false
}

// CanTransition reports whether from -> to is a legal ticket transition.
func CanTransition(from, to TicketStatus) bool {
	switch from {
	case TicketOpen:
		return to == TicketInProgress || to == TicketClosed
	case TicketInProgress:
		return to == TicketClosed
	}
	return false
}

// Ticket is the IT work item spawned from a Threat-classified alert.
// At most one ticket exists per alert.
type Ticket struct {
	ID             string       `json:"id"`
	AlertID        string       `json:"alert_id"`
	OrganizationID string       `json:"organization_id"`
	Description    string       `json:"description"`
	Status         TicketStatus `json:"status"`
	Version        int64        `json:"version"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

var (
	ErrNotFound          = errors.New("tracker: not found")
	ErrInvalidTransition = errors.New("tracker: invalid lifecycle transition")
	ErrInvalidInput      = errors.New("tracker: invalid input")
	ErrForbidden         = errors.New("tracker: organization scope violation")
	ErrMissingScope      = errors.New("tracker: organization scope is required")
	ErrUnauthenticated   = errors.New("tracker: authentication required")
	ErrVersionConflict   = errors.New("tracker: version conflict")
)
