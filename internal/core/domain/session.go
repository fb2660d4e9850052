package domain

import "time"

// Session pairs an opaque bearer token with the user record it authenticates.
// Token and user are written and cleared together; a session missing either
// half is treated as no session at all.
type Session struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

// IsComplete reports whether the session holds both halves of the pairing.
func (s *Session) IsComplete() bool {
	return s != nil && !IsBlankToken(s.Token) && s.User != nil
}

// IsBlankToken reports whether a stored token value is unusable. Older
// dashboard builds persisted the literal string "null" when logging out, so
// that value counts as absent too.
func IsBlankToken(token string) bool {
	return token == "" || token == "null"
}

// ValidationResult is the ephemeral outcome of one verification round trip
// against the authority. A LicenseExpired result is structurally valid but
// must still force a logout after the expiry notice.
type ValidationResult struct {
	Valid          bool
	LicenseExpired bool
	Timestamp      time.Time
}

// FreshWithin reports whether the result is recent enough to satisfy a
// verification request inside the cool-down window.
func (r ValidationResult) FreshWithin(window time.Duration, now time.Time) bool {
	if r.Timestamp.IsZero() {
		return false
	}
	return now.Sub(r.Timestamp) < window
}
