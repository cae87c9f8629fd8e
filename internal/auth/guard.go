package auth

import "time"

// LoginPath is where unauthenticated principals are sent.
const LoginPath = "/"

// Decision is the guard's verdict for a navigation attempt.
type Decision struct {
	Allowed bool
	// Redirect is the target route when the attempt is denied: the login
	// view for missing/expired credentials, the principal's own home view
	// for a role mismatch. Never the requested view.
	Redirect string
}

// Allow is the verdict for a permitted navigation.
var Allow = Decision{Allowed: true}

// RedirectTo builds a denial verdict.
func RedirectTo(target string) Decision {
	return Decision{Redirect: target}
}

// Authorize gates a role-scoped view. It is a pure function of the
// principal and the required role set: no side effects, safe to run on
// every navigation.
//
// A nil or expired principal is sent to login. A principal whose role is
// not in the required set is sent to its own home view, so it never
// observes the requested view or its data.
func Authorize(principal *Principal, now time.Time, required ...Role) Decision {
	if principal == nil || !principal.Role.Valid() {
		return RedirectTo(LoginPath)
	}
	if principal.ExpiredAt(now) {
		return RedirectTo(LoginPath)
	}
	for _, role := range required {
		if principal.Role == role {
			return Allow
		}
	}
	return RedirectTo(principal.Role.HomePath())
}
