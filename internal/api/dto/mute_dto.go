package dto

import "time"

// CreateMuteRequest payload. Omitting duration_minutes mutes until released.
type CreateMuteRequest struct {
	UserID          int64  `json:"user_id,string" validate:"required,gt=0"`
	DurationMinutes *int   `json:"duration_minutes" validate:"omitempty,min=1,max=525600"`
	Reason          string `json:"reason" validate:"max=500"`
}

// ReleaseMuteRequest payload.
type ReleaseMuteRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// MuteResponse is the wire form of a mute record.
type MuteResponse struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	GuildID         string     `json:"guild_id"`
	MutedAt         time.Time  `json:"muted_at"`
	DurationMinutes *int       `json:"duration_minutes"`
	ExpiresAt       *time.Time `json:"expires_at"`
	Reason          string     `json:"reason"`
	MuterID         string     `json:"muter_id"`
	Active          bool       `json:"active"`
	ReleasedAt      *time.Time `json:"released_at"`
	ReleasedBy      *string    `json:"released_by"`
	ReleaseReason   *string    `json:"release_reason"`
}
