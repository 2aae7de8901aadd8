// Package gamesession implements the timed entitlement window gating the
// games feature: a 15 minute active window followed by a mandatory 60 minute
// cooldown. State is derived from stored timestamps at read time; there is no
// background timer.
package gamesession

import "time"

const (
	SessionDuration  = 15 * time.Minute
	CooldownDuration = 60 * time.Minute
)

type Status string

const (
	StatusInactive Status = "inactive"
	StatusActive   Status = "active"
	StatusCooldown Status = "cooldown"
)

// State mirrors the persisted game-session fields of a user. Active is a
// cached flag that can lag wall-clock truth; Derive ignores it.
type State struct {
	Active        bool
	StartedAt     *time.Time
	ExpiresAt     *time.Time
	CooldownUntil *time.Time
}

// Derive computes the status at instant now. It is total: every field
// combination maps to exactly one status. Cooldown is inferred from ExpiresAt
// even before CooldownUntil has been persisted, so a stale record still reads
// correctly.
func Derive(s State, now time.Time) Status {
	if s.ExpiresAt != nil {
		if now.Before(*s.ExpiresAt) {
			return StatusActive
		}
		until := s.ExpiresAt.Add(CooldownDuration)
		if s.CooldownUntil != nil {
			until = *s.CooldownUntil
		}
		if now.Before(until) {
			return StatusCooldown
		}
		return StatusInactive
	}
	if s.CooldownUntil != nil && now.Before(*s.CooldownUntil) {
		return StatusCooldown
	}
	return StatusInactive
}

// Snapshot is the client-facing view of a user's game access.
type Snapshot struct {
	Status   Status `json:"status"`
	TimeLeft int    `json:"timeLeft"` // seconds until the active window ends
	Cooldown int    `json:"cooldown"` // seconds until cooldown lifts
}

func snapshot(s State, now time.Time) Snapshot {
	snap := Snapshot{Status: Derive(s, now)}
	switch snap.Status {
	case StatusActive:
		snap.TimeLeft = int(s.ExpiresAt.Sub(now) / time.Second)
	case StatusCooldown:
		until := s.CooldownUntil
		if until == nil {
			t := s.ExpiresAt.Add(CooldownDuration)
			until = &t
		}
		snap.Cooldown = int(until.Sub(now) / time.Second)
	}
	return snap
}
