package models

import (
	"github.com/google/uuid"
)

const (
	RoleAdmin     = "admin"
	RoleApplicant = "applicant"
)

// Actor is the already-authenticated identity behind a request. Sessions are
// issued by the auth subsystem; we only verify and trust.
type Actor struct {
	ID   uuid.UUID
	Role string
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}
