package models

// Role values carried in session tokens.
const (
	RoleAttendee  = "ATTENDEE"
	RoleOrganizer = "ORGANIZER"
)

// Principal is the already-authenticated caller handed to the core.
type Principal struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

func (p Principal) IsOrganizer() bool {
	return p.Role == RoleOrganizer
}

// UserRegisteredEvent is consumed from the user service when an account is created.
type UserRegisteredEvent struct {
	UserID     string `json:"user_id"`
	ReferrerID string `json:"referrer_id,omitempty"`
}
