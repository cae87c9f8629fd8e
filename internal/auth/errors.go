package auth

import "errors"

var (
	// ErrInvalidCredentials covers both unknown username and wrong password;
	// callers cannot tell the two apart, to avoid username enumeration.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrOrganizationRequired is returned when an org-scoped role logs in
	// without an organization, or with one that does not match its account.
	ErrOrganizationRequired = errors.New("auth: organization is required for this role")
	// ErrSessionExpired marks a credential past its validity window. The
	// client must discard the session and return to the login view.
	ErrSessionExpired = errors.New("auth: session expired")
	// ErrInvalidToken indicates the credential failed signature or claim
	// validation.
	ErrInvalidToken = errors.New("auth: invalid token")

	ErrForbidden    = errors.New("auth: forbidden")
	ErrInvalidInput = errors.New("auth: invalid input")
	ErrNotFound     = errors.New("auth: not found")
	ErrConflict     = errors.New("auth: already exists")
)
