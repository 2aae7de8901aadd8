package gamesession

import (
	"context"
	"errors"
	"time"
)

var (
	ErrAlreadyActive   = errors.New("game session already active")
	ErrInCooldown      = errors.New("game session in cooldown")
	ErrNoActiveSession = errors.New("no active game session")
)

// Repository persists per-user game-session fields.
type Repository interface {
	GameState(ctx context.Context, userID string) (State, error)
	SaveGameState(ctx context.Context, userID string, state State) error
}

// Tracker owns the inactive → active → cooldown transitions.
type Tracker struct {
	repo Repository
	now  func() time.Time
}

func NewTracker(repo Repository) *Tracker {
	return &Tracker{repo: repo, now: time.Now}
}

// Start opens a new active window. It fails while a window is open or a
// cooldown is running.
func (t *Tracker) Start(ctx context.Context, userID string) (Snapshot, error) {
	state, err := t.repo.GameState(ctx, userID)
	if err != nil {
		return Snapshot{}, err
	}

	now := t.now()
	switch Derive(state, now) {
	case StatusActive:
		return snapshot(state, now), ErrAlreadyActive
	case StatusCooldown:
		if state, err = t.reconcile(ctx, userID, state, now); err != nil {
			return Snapshot{}, err
		}
		return snapshot(state, now), ErrInCooldown
	}

	expires := now.Add(SessionDuration)
	next := State{
		Active:    true,
		StartedAt: &now,
		ExpiresAt: &expires,
	}
	if err := t.repo.SaveGameState(ctx, userID, next); err != nil {
		return Snapshot{}, err
	}
	return snapshot(next, now), nil
}

// End terminates the active window early. The termination instant becomes the
// effective expiry and the cooldown still runs its full length from there;
// stopping early forgives none of it.
func (t *Tracker) End(ctx context.Context, userID string) (Snapshot, error) {
	state, err := t.repo.GameState(ctx, userID)
	if err != nil {
		return Snapshot{}, err
	}

	now := t.now()
	if Derive(state, now) != StatusActive {
		if state, err = t.reconcile(ctx, userID, state, now); err != nil {
			return Snapshot{}, err
		}
		return snapshot(state, now), ErrNoActiveSession
	}

	cooldownUntil := now.Add(CooldownDuration)
	next := State{
		StartedAt:     state.StartedAt,
		ExpiresAt:     &now,
		CooldownUntil: &cooldownUntil,
	}
	if err := t.repo.SaveGameState(ctx, userID, next); err != nil {
		return Snapshot{}, err
	}
	return snapshot(next, now), nil
}

// Status reports the current snapshot. Reads are idempotent: the only write
// they may issue corrects a stored record that fell behind the clock.
func (t *Tracker) Status(ctx context.Context, userID string) (Snapshot, error) {
	state, err := t.repo.GameState(ctx, userID)
	if err != nil {
		return Snapshot{}, err
	}

	now := t.now()
	if state, err = t.reconcile(ctx, userID, state, now); err != nil {
		return Snapshot{}, err
	}
	return snapshot(state, now), nil
}

// reconcile persists the correction for an observed transition: an expired
// active flag gains its cooldown deadline, and an elapsed cooldown clears the
// window fields. It never advances a deadline that is already stored.
func (t *Tracker) reconcile(ctx context.Context, userID string, state State, now time.Time) (State, error) {
	switch Derive(state, now) {
	case StatusCooldown:
		if !state.Active && state.CooldownUntil != nil {
			return state, nil
		}
		next := State{
			StartedAt:     state.StartedAt,
			ExpiresAt:     state.ExpiresAt,
			CooldownUntil: state.CooldownUntil,
		}
		if next.CooldownUntil == nil {
			until := state.ExpiresAt.Add(CooldownDuration)
			next.CooldownUntil = &until
		}
		if err := t.repo.SaveGameState(ctx, userID, next); err != nil {
			return State{}, err
		}
		return next, nil
	case StatusInactive:
		if !state.Active && state.ExpiresAt == nil && state.CooldownUntil == nil {
			return state, nil
		}
		next := State{}
		if err := t.repo.SaveGameState(ctx, userID, next); err != nil {
			return State{}, err
		}
		return next, nil
	}
	return state, nil
}
