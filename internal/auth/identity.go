package auth

import (
	"context"
)

type Role string

const (
	RoleStudent     Role = "STUDENT"
	RoleSchoolAdmin Role = "SCHOOL_ADMIN"
	RoleAdmin       Role = "ADMIN"
)

func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleSchoolAdmin, RoleAdmin:
		return true
	}
	return false
}

// Identity is the caller as established by the auth middleware. SchoolID is
// only set for school admins that own a school.
type Identity struct {
	UserID   uint
	Role     Role
	SchoolID uint
}

// System is the identity used by scheduled jobs.
var System = Identity{Role: RoleAdmin}

func (i Identity) IsStaff() bool {
	return i.Role == RoleAdmin || i.Role == RoleSchoolAdmin
}

// ManagesSchool reports whether i may act as staff for schoolID.
func (i Identity) ManagesSchool(schoolID uint) bool {
	switch i.Role {
	case RoleAdmin:
		return true
	case RoleSchoolAdmin:
		return i.SchoolID != 0 && i.SchoolID == schoolID
	}
	return false
}

type contextKey string

const identityKey contextKey = "identity"

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}
