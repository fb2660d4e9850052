package domain

// Segment is the portion of a dashboard path naming the intended audience
// (e.g. /dashboard/admin/...). It is distinct from the user's actual role:
// several roles may share one segment.
type Segment string

const (
	SegmentSuperAdmin Segment = "superadmin"
	SegmentAdmin      Segment = "admin"
	SegmentUser       Segment = "user"
)

// LoginRoute is where every denied-for-lack-of-session request lands.
const LoginRoute = "/login"

// routePolicy maps each role segment to the set of roles allowed inside it.
// Every known segment maps to a non-empty set; anything else is invalid and
// redirects before rendering.
var routePolicy = map[Segment][]Role{
	SegmentSuperAdmin: {RoleSuperAdmin},
	SegmentAdmin:      {RoleAdmin},
	SegmentUser:       {RoleUser, RoleReceptionist, RoleTicketInfo},
}

// defaultRoutes maps every known role to its landing page. The mapping must
// stay total over knownRoles.
var defaultRoutes = map[Role]string{
	RoleSuperAdmin:   "/dashboard/superadmin",
	RoleAdmin:        "/dashboard/admin",
	RoleUser:         "/dashboard/user",
	RoleReceptionist: "/dashboard/user/reception",
	RoleTicketInfo:   "/dashboard/user/tickets",
}

// AllowedRoles returns the roles admitted to a segment, or ErrUnknownSegment
// for anything outside the policy.
func AllowedRoles(seg Segment) ([]Role, error) {
	roles, ok := routePolicy[seg]
	if !ok {
		return nil, ErrUnknownSegment
	}
	return roles, nil
}

// SegmentAdmits reports whether the role may enter the segment. Unknown
// segments admit nobody.
func SegmentAdmits(seg Segment, role Role) bool {
	roles, err := AllowedRoles(seg)
	if err != nil {
		return false
	}
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// DefaultRoute returns the landing route for a role. Unknown roles fall back
// to the login route so a denial view always has somewhere to send the user.
func DefaultRoute(role Role) string {
	if route, ok := defaultRoutes[role]; ok {
		return route
	}
	return LoginRoute
}

// KnownSegments lists the segments in the routing policy.
func KnownSegments() []Segment {
	return []Segment{SegmentSuperAdmin, SegmentAdmin, SegmentUser}
}

// KnownRoles lists every role the authority may assign.
func KnownRoles() []Role {
	return []Role{RoleSuperAdmin, RoleAdmin, RoleUser, RoleReceptionist, RoleTicketInfo}
}
