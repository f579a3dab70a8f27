package domain

import "slices"

type Role string

const (
	RoleParticipant Role = "participant"
	RoleAdmin       Role = "admin"
	RoleService     Role = "service"
)

func (r Role) Valid() bool {
	return r == RoleParticipant || r == RoleAdmin || r == RoleService
}

// Identity is the verified caller behind a token.
type Identity struct {
	ParticipantID string
	Role          Role
	// Contests restricts which rooms the identity may join. Empty means any.
	Contests []string
}

func (i Identity) CanAccess(contestID string) bool {
	if i.Role == RoleAdmin || i.Role == RoleService || len(i.Contests) == 0 {
		return true
	}
	return slices.Contains(i.Contests, contestID)
}

type TokenVerifier interface {
	Verify(token string) (Identity, error)
}
