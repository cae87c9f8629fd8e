package tracker

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"threattracker.org/internal/auth"
	"threattracker.org/internal/ids"
)

// Service defines the alert and ticket lifecycle operations. Every
// operation resolves the calling principal from the context and enforces
// credential expiry and organization scope itself, so presentation code
// carries no authorization logic.
type Service interface {
	Report(ctx context.Context, userID, message string) (Alert, error)
	ListAlerts(ctx context.Context, organizationID string) ([]Alert, error)
	Classify(ctx context.Context, alertID string, typ AlertType, expectedVersion int64) (Alert, error)
	Review(ctx context.Context, alertID string) (Alert, error)

	CreateTicket(ctx context.Context, alertID, description string) (Ticket, error)
	ListTickets(ctx context.Context, organizationID string) ([]Ticket, error)
	UpdateTicketStatus(ctx context.Context, ticketID string, status TicketStatus, expectedVersion int64) (Ticket, error)
}

// Directory resolves user records so alerts can denormalize the reporter's
// organization. Satisfied by *auth.Service.
type Directory interface {
	FindUser(ctx context.Context, id string) (*auth.User, error)
}

// InMemory implements Service with in-process concurrency safety.
type InMemory struct {
	dir Directory

	mu         sync.RWMutex
	alerts     map[string]*Alert
	alertOrder []string
	tickets    map[string]*Ticket
	byAlert    map[string]string // alert id -> ticket id
	now        func() time.Time
}

// NewInMemory creates an empty tracker backed by the given directory.
func NewInMemory(dir Directory) *InMemory {
	return &InMemory{
		dir:     dir,
		alerts:  make(map[string]*Alert),
		tickets: make(map[string]*Ticket),
		byAlert: make(map[string]string),
		now:     time.Now,
	}
}

// SetClock overrides the time source. Intended for tests.
func (s *InMemory) SetClock(fn func() time.Time) {
	if fn != nil {
		s.now = fn
	}
}

var _ Service = (*InMemory)(nil)

// principal resolves the caller and rejects missing or expired sessions.
func (s *InMemory) principal(ctx context.Context) (auth.Principal, error) {
	p, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		return auth.Principal{}, ErrUnauthenticated
	}
	if p.ExpiredAt(s.now()) {
		return auth.Principal{}, auth.ErrSessionExpired
	}
	return p, nil
}

func sameOrg(p auth.Principal, organizationID string) bool {
	return p.Role == auth.RoleAnalyst || p.OrganizationID == organizationID
}

func (s *InMemory) Report(ctx context.Context, userID, message string) (Alert, error) {
	p, err := s.principal(ctx)
	if err != nil {
		return Alert{}, err
	}
	userID = strings.TrimSpace(userID)
	message = strings.TrimSpace(message)
	if userID == "" || message == "" {
		return Alert{}, ErrInvalidInput
	}
	// End users report on their own behalf only; analyst-side detectors may
	// file alerts for any account.
	if p.Role == auth.RoleUser && userID != p.UserID {
		return Alert{}, ErrForbidden
	}

	reporter, err := s.dir.FindUser(ctx, userID)
	if err != nil {
		return Alert{}, ErrNotFound
	}
	if reporter.OrganizationID == "" {
		return Alert{}, ErrInvalidInput
	}
	if !sameOrg(p, reporter.OrganizationID) {
		return Alert{}, ErrForbidden
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a := &Alert{
		ID:             ids.New(),
		UserID:         reporter.ID,
		OrganizationID: reporter.OrganizationID,
		Message:        message,
		Status:         AlertNew,
		Version:        1,
		TriggeredAt:    s.now().UTC(),
	}
	s.alerts[a.ID] = a
	s.alertOrder = append(s.alertOrder, a.ID)
	return *a, nil
}

func (s *InMemory) ListAlerts(ctx context.Context, organizationID string) ([]Alert, error) {
	p, err := s.principal(ctx)
	if err != nil {
		return nil, err
	}
	organizationID = strings.TrimSpace(organizationID)
	if p.Role != auth.RoleAnalyst {
		// Non-analyst views always read their own organization.
		if organizationID == "" {
			organizationID = p.OrganizationID
		}
		if organizationID != p.OrganizationID {
			return nil, ErrForbidden
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Alert
	for _, id := range s.alertOrder {
		a := s.alerts[id]
		if organizationID != "" && a.OrganizationID != organizationID {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

func (s *InMemory) Classify(ctx context.Context, alertID string, typ AlertType, expectedVersion int64) (Alert, error) {
	p, err := s.principal(ctx)
	if err != nil {
		return Alert{}, err
	}
	if p.Role != auth.RoleAnalyst {
		return Alert{}, ErrForbidden
	}
	if typ != TypeSpam && typ != TypeThreat {
		return Alert{}, ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.alerts[alertID]
	if !ok {
		return Alert{}, ErrNotFound
	}
	if expectedVersion != 0 && a.Version != expectedVersion {
		return Alert{}, ErrVersionConflict
	}
	// Classification is a one-time judgment: no re-classification.
	if a.Status != AlertNew {
		return Alert{}, ErrInvalidTransition
	}
	a.Status = AlertClassified
	a.Type = typ
	a.Version++
	return *a, nil
}

func (s *InMemory) Review(ctx context.Context, alertID string) (Alert, error) {
	p, err := s.principal(ctx)
	if err != nil {
		return Alert{}, err
	}
	if p.Role == auth.RoleUser {
		return Alert{}, ErrForbidden
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.alerts[alertID]
	if !ok {
		return Alert{}, ErrNotFound
	}
	if !sameOrg(p, a.OrganizationID) {
		return Alert{}, ErrForbidden
	}
	if a.Status != AlertClassified {
		return Alert{}, ErrInvalidTransition
	}
	a.Status = AlertReviewed
	a.Version++
	return *a, nil
}

func (s *InMemory) CreateTicket(ctx context.Context, alertID, description string) (Ticket, error) {
	p, err := s.principal(ctx)
	if err != nil {
		return Ticket{}, err
	}
	if p.Role != auth.RoleAnalyst {
		return Ticket{}, ErrForbidden
	}
	alertID = strings.TrimSpace(alertID)
	description = strings.TrimSpace(description)
	if alertID == "" || description == "" {
		return Ticket{}, ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.alerts[alertID]
	if !ok {
		return Ticket{}, ErrNotFound
	}
	// Escalation requires a Threat verdict on record.
	if a.Type != TypeThreat || (a.Status != AlertClassified && a.Status != AlertReviewed) {
		return Ticket{}, ErrInvalidTransition
	}

	// Idempotency: each Threat alert maps to at most one remediation
	// ticket; repeated creation returns the existing one.
	if existing, ok := s.byAlert[alertID]; ok {
		return *s.tickets[existing], nil
	}

	now := s.now().UTC()
	t := &Ticket{
		ID:             ids.New(),
		AlertID:        a.ID,
		OrganizationID: a.OrganizationID,
		Description:    description,
		Status:         TicketOpen,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.tickets[t.ID] = t
	s.byAlert[alertID] = t.ID
	return *t, nil
}

func (s *InMemory) ListTickets(ctx context.Context, organizationID string) ([]Ticket, error) {
	p, err := s.principal(ctx)
	if err != nil {
		return nil, err
	}
	organizationID = strings.TrimSpace(organizationID)
	if organizationID == "" {
		// An absent scope is a configuration bug, never an empty result.
		return nil, ErrMissingScope
	}
	if !sameOrg(p, organizationID) {
		return nil, ErrForbidden
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Ticket
	for _, t := range s.tickets {
		if t.OrganizationID == organizationID {
			out = append(out, *t)
		}
	}
	// ULIDs sort by creation time, so this keeps insertion order.
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemory) UpdateTicketStatus(ctx context.Context, ticketID string, status TicketStatus, expectedVersion int64) (Ticket, error) {
	p, err := s.principal(ctx)
	if err != nil {
		return Ticket{}, err
	}
	if p.Role != auth.RoleIT {
		return Ticket{}, ErrForbidden
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tickets[ticketID]
	if !ok {
		return Ticket{}, ErrNotFound
	}
	if t.OrganizationID != p.OrganizationID {
		return Ticket{}, ErrForbidden
	}
	if expectedVersion != 0 && t.Version != expectedVersion {
		return Ticket{}, ErrVersionConflict
	}
	if !CanTransition(t.Status, status) {
		return Ticket{}, ErrInvalidTransition
	}
	t.Status = status
	t.Version++
	t.UpdatedAt = s.now().UTC()
	return *t, nil
}
