// Package collab declares the outbound platform operations the schedulers
// depend on.
package collab

//go:generate mockgen -source=collab.go -destination=mock_collab.go -package=collab

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when the target thread, member or guild no longer
// exists. Callers treat it as the operation having already happened.
var ErrNotFound = errors.New("target not found")

// Narrower not-found errors. Both satisfy errors.Is(err, ErrNotFound).
var (
	ErrGuildNotFound  = fmt.Errorf("guild not accessible: %w", ErrNotFound)
	ErrMemberNotFound = fmt.Errorf("member not in guild: %w", ErrNotFound)
)

// RoleState reports how a member relates to the muted role.
type RoleState int

const (
	// RoleHeld means the member still carries the muted role.
	RoleHeld RoleState = iota
	// RoleRemoved means the member is present but the role was taken off.
	RoleRemoved
	// RoleMissing means the guild no longer has the muted role at all.
	RoleMissing
)

func (s RoleState) String() string {
	switch s {
	case RoleHeld:
		return "held"
	case RoleRemoved:
		return "removed"
	case RoleMissing:
		return "missing"
	default:
		return fmt.Sprintf("RoleState(%d)", int(s))
	}
}

// Messaging posts to and manages conversation threads.
type Messaging interface {
	Notify(ctx context.Context, threadID int64, text string) error
	ArchiveThread(ctx context.Context, threadID int64) error
	DeleteThread(ctx context.Context, threadID int64) error
}

// Moderation confines members with the muted role and lifts it again.
type Moderation interface {
	ConfineUser(ctx context.Context, guildID, userID int64) error
	ReleaseUser(ctx context.Context, guildID, userID int64) error
	// MutedRoleState returns ErrGuildNotFound or ErrMemberNotFound when the
	// guild or member cannot be reached.
	MutedRoleState(ctx context.Context, guildID, userID int64) (RoleState, error)
}
