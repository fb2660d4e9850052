package domain

import "errors"

var (
	// ErrNoSession means no token/user pair is held locally.
	ErrNoSession = errors.New("no session")

	// ErrInvalidSession means the authority rejected the held token.
	ErrInvalidSession = errors.New("session invalid")

	// ErrLicenseExpired is distinct from an invalid session: the token is
	// still accepted but the tenant license has lapsed, forcing a logout
	// after an explanatory notice.
	ErrLicenseExpired = errors.New("license expired")

	// ErrRoleMismatch means the session is valid but the user's role is not
	// allowed for the requested area. The session is kept.
	ErrRoleMismatch = errors.New("role not allowed for this area")

	// ErrStorageCorruption means a cached record failed to decode. Callers
	// degrade to "absent" and log; the error never reaches a response body.
	ErrStorageCorruption = errors.New("stored record is corrupt")

	// ErrInvalidCredentials is returned by the authority on a failed login.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUnknownSegment means a dashboard URL named a role segment outside
	// the routing policy.
	ErrUnknownSegment = errors.New("unknown role segment")
)
