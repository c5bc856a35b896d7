package models

// Roles offered at registration. Any non-empty role except RoleAdmin is
// accepted; RoleCRA is the default.
const (
	RoleCRA       = "CRA"
	RoleDQT       = "DQT"
	RoleSiteStaff = "Site Staff"
	RoleManager   = "Manager"
	// RoleAdmin is granted out of band and gates operator endpoints.
	RoleAdmin = "Admin"
)

// SelfAssignable reports whether a user may pick role when registering.
func SelfAssignable(role string) bool {
	return role != RoleAdmin
}

// Alert statuses.
const (
	AlertOpen     = "open"
	AlertResolved = "resolved"
)
