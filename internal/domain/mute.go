package domain

import "time"

// MuteRecord tracks a confinement period for a held user.
type MuteRecord struct {
	ID              int64
	UserID          int64
	GuildID         int64
	MutedAt         time.Time
	DurationMinutes *int
	Reason          string
	MuterID         int64
	Active          bool
	ReleasedAt      *time.Time
	ReleasedBy      *int64
	ReleaseReason   *string
}

// NewMute carries the fields required to record a mute.
type NewMute struct {
	UserID          int64
	GuildID         int64
	DurationMinutes *int
	Reason          string
	MuterID         int64
}

// ExpiresAt returns when the mute lapses. Indefinite mutes report ok=false.
// Negative durations are clamped to zero so expiry never precedes MutedAt.
func (m *MuteRecord) ExpiresAt() (time.Time, bool) {
	if m.DurationMinutes == nil {
		return time.Time{}, false
	}
	minutes := *m.DurationMinutes
	if minutes < 0 {
		minutes = 0
	}
	return m.MutedAt.Add(time.Duration(minutes) * time.Minute), true
}

// Remaining is the time left before expiry, never negative. Indefinite mutes
// report ok=false.
func (m *MuteRecord) Remaining(now time.Time) (time.Duration, bool) {
	expiry, ok := m.ExpiresAt()
	if !ok {
		return 0, false
	}
	left := expiry.Sub(now)
	if left < 0 {
		left = 0
	}
	return left, true
}

// IsDue reports whether an active, finite mute has lapsed as of now.
func (m *MuteRecord) IsDue(now time.Time) bool {
	if !m.Active {
		return false
	}
	expiry, ok := m.ExpiresAt()
	if !ok {
		return false
	}
	return !now.Before(expiry)
}

// Clone returns a deep copy.
func (m *MuteRecord) Clone() *MuteRecord {
	if m == nil {
		return nil
	}
	c := *m
	if m.DurationMinutes != nil {
		d := *m.DurationMinutes
		c.DurationMinutes = &d
	}
	c.ReleasedAt = cloneTime(m.ReleasedAt)
	c.ReleasedBy = cloneInt64(m.ReleasedBy)
	if m.ReleaseReason != nil {
		r := *m.ReleaseReason
		c.ReleaseReason = &r
	}
	return &c
}
