package domain

import "time"

// TeamMember links a user to a team with a role.
type TeamMember struct {
	UserID   string    `json:"user_id"`
	Role     Role      `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

// Team represents a collaborative group. The member list is owned
// exclusively by the team and must always contain at least one admin;
// the creator's entry can never be removed or demoted.
type Team struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	CreatedBy   string       `json:"created_by"`
	Members     []TeamMember `json:"members"`
	// Version guards concurrent member-list mutations. Writes compare
	// against the version they read and fail on a mismatch.
	Version   int64     `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsMember reports whether the user appears in the member list.
func (t *Team) IsMember(userID string) bool {
	for _, m := range t.Members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the user holds the admin role on this team.
func (t *Team) IsAdmin(userID string) bool {
	for _, m := range t.Members {
		if m.UserID == userID && m.Role == RoleAdmin {
			return true
		}
	}
	return false
}

// RoleOf returns the user's team role, or false when not a member.
func (t *Team) RoleOf(userID string) (Role, bool) {
	for _, m := range t.Members {
		if m.UserID == userID {
			return m.Role, true
		}
	}
	return "", false
}

// AdminCount returns the number of members holding the admin role.
func (t *Team) AdminCount() int {
	count := 0
	for _, m := range t.Members {
		if m.Role == RoleAdmin {
			count++
		}
	}
	return count
}

// MemberCount is derived at read time and never persisted.
func (t *Team) MemberCount() int {
	return len(t.Members)
}
