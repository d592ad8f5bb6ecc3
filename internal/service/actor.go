package service

import "eduhub/internal/domain"

const roleSystem = "SYSTEM"

// Actor is the caller of a mutating operation. Handlers build it from JWT claims.
type Actor struct {
	UserID uint
	Role   string
}

// SystemActor is used by background jobs.
var SystemActor = Actor{Role: roleSystem}

func (a Actor) IsAdmin() bool  { return a.Role == domain.RoleAdmin }
func (a Actor) IsSystem() bool { return a.Role == roleSystem }

// CanAccess reports whether the actor may read or act on a resource owned by ownerID.
func (a Actor) CanAccess(ownerID uint) bool {
	if a.IsAdmin() || a.IsSystem() {
		return true
	}
	return a.UserID != 0 && a.UserID == ownerID
}
