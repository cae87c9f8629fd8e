package auth

import (
	"context"
	"strings"
	"time"

	"threattracker.org/internal/ids"
)

// Service provides authentication, session issuance and account
// provisioning on top of a Store.
type Service struct {
	store      Store
	now        func() time.Time
	sessionTTL time.Duration
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source. Intended for tests.
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithSessionTTL configures the credential validity window.
func WithSessionTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.sessionTTL = ttl
		}
	}
}

// NewService constructs a Service.
func NewService(store Store, opts ...ServiceOption) *Service {
	s := &Service{
		store:      store,
		now:        time.Now,
		sessionTTL: DefaultSessionTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Authenticate validates credentials and issues a session.
//
// Unknown username and wrong password both surface as
// ErrInvalidCredentials. Org-scoped roles (User, IT) must supply the
// organization their account belongs to; omission and mismatch both fail
// with ErrOrganizationRequired and never yield a session.
func (s *Service) Authenticate(ctx context.Context, username, password, organizationID string) (Session, Principal, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return Session{}, Principal{}, ErrInvalidInput
	}

	u, err := s.store.FindUserByUsername(ctx, username)
	if err != nil {
		return Session{}, Principal{}, ErrInvalidCredentials
	}
	if err := VerifyPassword(u.PasswordHash, password); err != nil {
		return Session{}, Principal{}, ErrInvalidCredentials
	}

	if u.Role.OrgScoped() {
		organizationID = strings.TrimSpace(organizationID)
		if organizationID == "" || organizationID != u.OrganizationID {
			return Session{}, Principal{}, ErrOrganizationRequired
		}
	}

	session, err := SignToken(u, s.sessionTTL, s.now())
	if err != nil {
		return Session{}, Principal{}, err
	}
	principal, err := VerifyToken(session.Token)
	if err != nil {
		return Session{}, Principal{}, err
	}
	return session, principal, nil
}

// AuthenticateToken verifies a bearer credential and returns its principal.
func (s *Service) AuthenticateToken(ctx context.Context, token string) (Principal, error) {
	return VerifyToken(token)
}

// ChangePassword rotates a password after validating the old one. It runs
// out-of-band of any active session and does not invalidate issued
// credentials.
func (s *Service) ChangePassword(ctx context.Context, username, oldPassword, newPassword string) error {
	username = strings.TrimSpace(username)
	if username == "" || oldPassword == "" || newPassword == "" {
		return ErrInvalidInput
	}
	u, err := s.store.FindUserByUsername(ctx, username)
	if err != nil {
		return ErrNotFound
	}
	if err := VerifyPassword(u.PasswordHash, oldPassword); err != nil {
		return ErrInvalidCredentials
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.store.UpdatePassword(ctx, u.ID, hash)
}

// CreateUserParams carries the provisioning request.
type CreateUserParams struct {
	Username       string
	Password       string
	Role           Role
	OrganizationID string
	CanCreateUsers bool
}

// CreateUser provisions a new account. Requires the CapCreateUsers
// capability on the requesting principal. Organization is mandatory for
// org-scoped roles and must reference an existing organization.
func (s *Service) CreateUser(ctx context.Context, principal Principal, params CreateUserParams) (*User, error) {
	if !principal.HasCapability(CapCreateUsers) {
		return nil, ErrForbidden
	}

	params.Username = strings.TrimSpace(params.Username)
	if params.Username == "" || params.Password == "" || !params.Role.Valid() {
		return nil, ErrInvalidInput
	}
	params.OrganizationID = strings.TrimSpace(params.OrganizationID)
	if params.Role.OrgScoped() {
		if params.OrganizationID == "" {
			return nil, ErrInvalidInput
		}
		if _, err := s.store.FindOrganization(ctx, params.OrganizationID); err != nil {
			return nil, ErrInvalidInput
		}
	} else {
		// Analysts are not organization-scoped.
		params.OrganizationID = ""
	}

	var caps []Capability
	if params.CanCreateUsers {
		if !RoleMayHold(params.Role, CapCreateUsers) {
			return nil, ErrInvalidInput
		}
		caps = append(caps, CapCreateUsers)
	}

	hash, err := HashPassword(params.Password)
	if err != nil {
		return nil, err
	}

	u := &User{
		ID:             ids.New(),
		Username:       params.Username,
		PasswordHash:   hash,
		Role:           params.Role,
		OrganizationID: params.OrganizationID,
		Capabilities:   caps,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// ListOrganizations returns all organizations for the login form.
func (s *Service) ListOrganizations(ctx context.Context) ([]*Organization, error) {
	return s.store.ListOrganizations(ctx)
}

// FindUser resolves a user record by id.
func (s *Service) FindUser(ctx context.Context, id string) (*User, error) {
	return s.store.FindUser(ctx, id)
}
