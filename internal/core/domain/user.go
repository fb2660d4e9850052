package domain

import (
	"encoding/json"
	"time"
)

// Role is the coarse authorization tier assigned to a dashboard account.
type Role string

const (
	RoleSuperAdmin   Role = "super_admin"
	RoleAdmin        Role = "admin"
	RoleUser         Role = "user"
	RoleReceptionist Role = "receptionist"
	RoleTicketInfo   Role = "ticket_info"
)

// knownRoles is the closed set of roles the authority may assign.
var knownRoles = map[Role]struct{}{
	RoleSuperAdmin:   {},
	RoleAdmin:        {},
	RoleUser:         {},
	RoleReceptionist: {},
	RoleTicketInfo:   {},
}

// IsValid reports whether r is one of the known roles.
func (r Role) IsValid() bool {
	_, ok := knownRoles[r]
	return ok
}

// BypassesPermissions reports whether the role is granted every fine-grained
// permission regardless of the user's permission map.
func (r Role) BypassesPermissions() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// PermissionMap holds per-user boolean flags gating individual dashboard
// capabilities, independent of the coarse role.
type PermissionMap map[string]bool

// User models a dashboard account as reported by the remote authority.
type User struct {
	ID          string        `json:"id"`
	Username    string        `json:"username"`
	Email       string        `json:"email,omitempty"`
	Role        Role          `json:"role"`
	AdminID     string        `json:"admin_id,omitempty"`
	Permissions PermissionMap `json:"permissions,omitempty"`
}

// HasPermission resolves a single permission flag. Admin-tier roles bypass
// the map entirely; unset or missing flags resolve to false.
func (u User) HasPermission(name string) bool {
	if u.Role.BypassesPermissions() {
		return true
	}
	return u.Permissions[name]
}

// Merge returns a copy of u with the non-nil fields of patch applied.
// The receiver is not modified.
func (u User) Merge(patch UserPatch) User {
	merged := u
	if patch.Username != nil {
		merged.Username = *patch.Username
	}
	if patch.Email != nil {
		merged.Email = *patch.Email
	}
	if patch.Role != nil {
		merged.Role = *patch.Role
	}
	if patch.AdminID != nil {
		merged.AdminID = *patch.AdminID
	}
	if patch.Permissions != nil {
		merged.Permissions = patch.Permissions
	}
	return merged
}

// UserPatch carries a partial update to a user record. Nil fields are left
// untouched by Merge.
type UserPatch struct {
	Username    *string       `json:"username,omitempty"`
	Email       *string       `json:"email,omitempty"`
	Role        *Role         `json:"role,omitempty"`
	AdminID     *string       `json:"admin_id,omitempty"`
	Permissions PermissionMap `json:"permissions,omitempty"`
}

// ParsePermissions normalizes the permission payload the authority attaches to
// a user. The backend sometimes double-encodes the map as a JSON string, so
// both forms are accepted. Malformed payloads degrade to nil rather than an
// error: a broken map means "no permissions", never a crash.
func ParsePermissions(raw json.RawMessage) PermissionMap {
	if len(raw) == 0 {
		return nil
	}

	var direct PermissionMap
	if err := json.Unmarshal(raw, &direct); err == nil {
		return direct
	}

	var encoded string
	if err := json.Unmarshal(raw, &encoded); err != nil || encoded == "" {
		return nil
	}
	var nested PermissionMap
	if err := json.Unmarshal([]byte(encoded), &nested); err != nil {
		return nil
	}
	return nested
}

// DecodeUser parses a serialized user record from storage or from the
// authority. A payload that does not decode, or decodes without an ID or
// role, yields ErrStorageCorruption so callers can treat the record as
// absent rather than failing.
func DecodeUser(data []byte) (*User, error) {
	var wire struct {
		ID          string          `json:"id"`
		Username    string          `json:"username"`
		Email       string          `json:"email"`
		Role        Role            `json:"role"`
		AdminID     string          `json:"admin_id"`
		Permissions json.RawMessage `json:"permissions"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, ErrStorageCorruption
	}
	if wire.ID == "" || wire.Role == "" {
		return nil, ErrStorageCorruption
	}

	return &User{
		ID:          wire.ID,
		Username:    wire.Username,
		Email:       wire.Email,
		Role:        wire.Role,
		AdminID:     wire.AdminID,
		Permissions: ParsePermissions(wire.Permissions),
	}, nil
}

// AuthEvent records a single auth-relevant action for the audit trail.
type AuthEvent struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id,omitempty"`
	Action    string    `json:"action"`
	Cause     string    `json:"cause,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Audit trail actions.
const (
	AuditLogin        = "login"
	AuditLogout       = "logout"
	AuditForcedLogout = "forced_logout"
)
