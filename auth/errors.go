package auth

import "fmt"

// Reason classifies why an authorization attempt failed, used both for the
// AuthError message and as the Prometheus failure-reason label.
type Reason string

const (
	ReasonNoCredentials Reason = "no_credentials"
	ReasonBadPassword   Reason = "bad_password"
	ReasonUnknownUser   Reason = "unknown_user"
	ReasonMissingStore  Reason = "missing_store"
	ReasonForbidden     Reason = "forbidden_address"
	ReasonMissingRole   Reason = "missing_ability"
)

// Error is the AuthError taxonomy entry from spec §7: a failed login,
// missing ability, or unknown user, converted by the caller (the "auth"
// condition) into a 401 or 403 response.
type Error struct {
	Reason   Reason
	Username string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: %s (user=%q): %v", e.Reason, e.Username, e.Err)
	}
	return fmt.Sprintf("auth: %s (user=%q)", e.Reason, e.Username)
}

func (e *Error) Unwrap() error { return e.Err }

// StatusCode maps a Reason to the HTTP status the "auth" condition should
// write: 403 for address/ability denial, 401 for anything requiring the
// client to (re)authenticate.
func (e *Error) StatusCode() int {
	switch e.Reason {
	case ReasonForbidden, ReasonMissingRole:
		return 403
	default:
		return 401
	}
}
