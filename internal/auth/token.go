package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	issuer            = "threattracker"
	secretEnvVariable = "TRACKER_AUTH_SECRET"

	// DefaultSessionTTL matches the original deployment's 86400-second
	// credential validity window.
	DefaultSessionTTL = 24 * time.Hour
)

var (
	errMissingSecret = errors.New("auth secret is not configured")

	secretMu sync.Mutex
	secret   cachedSecret
)

type cachedSecret struct {
	value []byte
	err   error
	ready bool
}

// Claims are the JWT claims embedded in every issued session credential.
type Claims struct {
	Username       string       `json:"username"`
	Role           Role         `json:"role"`
	OrganizationID string       `json:"organization_id,omitempty"`
	Capabilities   []Capability `json:"capabilities,omitempty"`
	jwt.RegisteredClaims
}

// SignToken issues an HS256 session credential for the user.
func SignToken(u *User, ttl time.Duration, now time.Time) (Session, error) {
	if u == nil || strings.TrimSpace(u.ID) == "" {
		return Session{}, errors.New("user is required")
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	secretBytes, err := loadSecret()
	if err != nil {
		return Session{}, err
	}

	now = now.UTC()
	expiresAt := now.Add(ttl)
	claims := Claims{
		Username:       u.Username,
		Role:           u.Role,
		OrganizationID: u.OrganizationID,
		Capabilities:   u.Capabilities,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secretBytes)
	if err != nil {
		return Session{}, fmt.Errorf("sign token: %w", err)
	}
	return Session{Token: signed, ExpiresAt: expiresAt}, nil
}

// VerifyToken validates the credential and reconstructs the principal.
// An expired-but-otherwise-valid credential yields ErrSessionExpired so the
// caller can force a return to the unauthenticated state; every other
// failure yields ErrInvalidToken.
func VerifyToken(token string) (Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Principal{}, ErrInvalidToken
	}
	secretBytes, err := loadSecret()
	if err != nil {
		return Principal{}, err
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return secretBytes, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Principal{}, ErrSessionExpired
		}
		return Principal{}, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Principal{}, ErrInvalidToken
	}
	if err := validateClaims(claims); err != nil {
		return Principal{}, ErrInvalidToken
	}

	caps := make(map[Capability]struct{}, len(claims.Capabilities))
	for _, c := range claims.Capabilities {
		caps[c] = struct{}{}
	}
	return Principal{
		UserID:         claims.Subject,
		Username:       claims.Username,
		Role:           claims.Role,
		OrganizationID: claims.OrganizationID,
		Capabilities:   caps,
		ExpiresAt:      claims.ExpiresAt.Time,
	}, nil
}

func validateClaims(claims *Claims) error {
	if claims.Issuer != issuer {
		return fmt.Errorf("unexpected issuer: %s", claims.Issuer)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return errors.New("subject missing")
	}
	if !claims.Role.Valid() {
		return fmt.Errorf("unknown role: %s", claims.Role)
	}
	if claims.Role.OrgScoped() && strings.TrimSpace(claims.OrganizationID) == "" {
		return errors.New("organization missing for org-scoped role")
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return errors.New("timestamps missing")
	}
	now := time.Now().UTC()
	// Allow a small clock skew of 5 seconds when validating issued-at.
	if claims.IssuedAt.Time.After(now.Add(5 * time.Second)) {
		return errors.New("token issued in the future")
	}
	if claims.ExpiresAt.Time.Before(claims.IssuedAt.Time) {
		return errors.New("token expiry precedes issued-at")
	}
	return nil
}

func loadSecret() ([]byte, error) {
	secretMu.Lock()
	defer secretMu.Unlock()
	if secret.ready {
		return secret.value, secret.err
	}
	raw := strings.TrimSpace(os.Getenv(secretEnvVariable))
	if raw == "" {
		secret.err = errMissingSecret
		secret.ready = true
		return nil, secret.err
	}
	secret.value = []byte(raw)
	secret.err = nil
	secret.ready = true
	return secret.value, nil
}

// ResetSecretForTests clears the cached secret value. Only intended for test use.
func ResetSecretForTests() {
	secretMu.Lock()
	defer secretMu.Unlock()
	secret = cachedSecret{}
}
