package domain

import "time"

// SubjectType differentiates who performed an action.
type SubjectType string

const (
	SubjectTypeStaff  SubjectType = "STAFF"
	SubjectTypeSystem SubjectType = "SYSTEM"
	SubjectTypeUser   SubjectType = "USER"
)

// OperatorRole enumerates admin API permissions.
type OperatorRole string

const (
	OperatorRoleViewer    OperatorRole = "VIEWER"
	OperatorRoleModerator OperatorRole = "MODERATOR"
	OperatorRoleAdmin     OperatorRole = "ADMIN"
)

// Valid reports whether r is a known role.
func (r OperatorRole) Valid() bool {
	return r.level() > 0
}

// AtLeast reports whether r grants everything minimum grants.
func (r OperatorRole) AtLeast(minimum OperatorRole) bool {
	return r.level() >= minimum.level() && r.Valid()
}

func (r OperatorRole) level() int {
	switch r {
	case OperatorRoleViewer:
		return 1
	case OperatorRoleModerator:
		return 2
	case OperatorRoleAdmin:
		return 3
	}
	return 0
}

// Token represents issued operator token metadata.
type Token struct {
	SubjectID int64
	Role      OperatorRole
	ExpiresAt time.Time
	IssuedAt  time.Time
}
