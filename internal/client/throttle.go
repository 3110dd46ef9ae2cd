package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/welldanyogia/lyricsgate/internal/client/session"
)

// Local throttle defaults, mirroring the server-side login throttle
const (
	DefaultMaxAttempts = 5
	DefaultLockout     = 15 * time.Minute
)

const throttleKey = "login_attempts"

// ThrottledError is returned when the local throttle blocks a login attempt
type ThrottledError struct {
	Remaining time.Duration
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("too many failed login attempts, try again in %s", e.Remaining.Round(time.Second))
}

type throttleState struct {
	Count         int       `json:"count"`
	LastAttemptAt time.Time `json:"lastAttemptAt"`
}

// LoginThrottle counts consecutive failed logins in the session store. It is
// advisory; the server enforces its own limit.
type LoginThrottle struct {
	store       session.Store
	maxAttempts int
	lockout     time.Duration
	now         func() time.Time
}

// NewLoginThrottle creates a LoginThrottle with the default limits
func NewLoginThrottle(store session.Store) *LoginThrottle {
	return &LoginThrottle{
		store:       store,
		maxAttempts: DefaultMaxAttempts,
		lockout:     DefaultLockout,
		now:         time.Now,
	}
}

// Check returns a *ThrottledError while the lockout is active. An expired
// window resets the counter.
func (t *LoginThrottle) Check(ctx context.Context) error {
	state, err := t.load(ctx)
	if err != nil {
		return err
	}
	if state.Count == 0 {
		return nil
	}

	elapsed := t.now().Sub(state.LastAttemptAt)
	if elapsed >= t.lockout {
		return t.store.Clear(ctx, throttleKey)
	}
	if state.Count >= t.maxAttempts {
		return &ThrottledError{Remaining: t.lockout - elapsed}
	}
	return nil
}

// RecordFailure adds one failed attempt
func (t *LoginThrottle) RecordFailure(ctx context.Context) error {
	state, err := t.load(ctx)
	if err != nil {
		return err
	}
	if state.Count > 0 && t.now().Sub(state.LastAttemptAt) >= t.lockout {
		state.Count = 0
	}
	state.Count++
	state.LastAttemptAt = t.now()
	return t.save(ctx, state)
}

// RecordSuccess resets the counter
func (t *LoginThrottle) RecordSuccess(ctx context.Context) error {
	return t.store.Clear(ctx, throttleKey)
}

// Attempts returns the current failure count
func (t *LoginThrottle) Attempts(ctx context.Context) (int, error) {
	state, err := t.load(ctx)
	return state.Count, err
}

func (t *LoginThrottle) load(ctx context.Context) (throttleState, error) {
	var state throttleState
	raw, ok, err := t.store.Get(ctx, throttleKey)
	if err != nil || !ok {
		return state, err
	}
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		// A corrupt entry is treated as no history
		return throttleState{}, nil
	}
	return state, nil
}

func (t *LoginThrottle) save(ctx context.Context, state throttleState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return t.store.Set(ctx, throttleKey, string(raw))
}
