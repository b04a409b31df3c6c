package domain

import "time"

// UserStatus represents lifecycle states for an account.
type UserStatus string

const (
	UserStatusActive    UserStatus = "ACTIVE"
	UserStatusSuspended UserStatus = "SUSPENDED"
)

// Role enumerates service-desk roles carried by a user.
type Role string

const (
	RoleRequester Role = "REQUESTER"
	RoleAgent     Role = "AGENT"
	RoleTeamLead  Role = "TEAM_LEAD"
	RoleAdmin     Role = "ADMIN"
)

// StaffRoles are the roles allowed to work tickets.
var StaffRoles = []Role{RoleAgent, RoleTeamLead, RoleAdmin}

// User is an account of the service desk, requester or staff.
type User struct {
	ID        string
	Name      string
	Email     string
	Status    UserStatus
	Roles     []Role
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsActive reports whether the account may sign in.
func (u *User) IsActive() bool {
	return u != nil && u.Status == UserStatusActive
}

// HasRole reports whether the user carries any of the given roles.
func (u *User) HasRole(roles ...Role) bool {
	if u == nil {
		return false
	}
	for _, have := range u.Roles {
		for _, want := range roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// IsStaff reports whether the user may work tickets.
func (u *User) IsStaff() bool {
	return u.HasRole(StaffRoles...)
}
