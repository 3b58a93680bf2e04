// Package preference gates credential issuance behind a one-time locale choice.
//
// The gate is a two-state machine per (principal, session): AwaitingPreference
// while a prompt is outstanding, PreferenceSet once a choice was persisted. A
// successful selection leaves a one-shot proceed flag so the next begin goes
// straight to issuance. Session state lives in process memory only.
package preference

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"trial-access-bot/internal/principal/domain"
)

var (
	// ErrUnsupportedLocale is returned by Select for a locale the prompt does not offer.
	ErrUnsupportedLocale = errors.New("unsupported locale")
)

const defaultSessionTTL = 30 * time.Minute

// State is the gate state of one session.
type State int

const (
	// StateAwaitingPreference means a prompt was sent and no choice was consumed yet.
	StateAwaitingPreference State = iota + 1
	// StatePreferenceSet means a choice was persisted for this session.
	StatePreferenceSet
)

func (s State) String() string {
	switch s {
	case StateAwaitingPreference:
		return "awaiting_preference"
	case StatePreferenceSet:
		return "preference_set"
	default:
		return "unknown"
	}
}

// Decision tells the caller what to do after Begin.
type Decision int

const (
	// DecisionPrompt means the caller must show the locale selection prompt.
	DecisionPrompt Decision = iota + 1
	// DecisionProceed means the caller may go straight to issuance.
	DecisionProceed
)

// Key scopes a session to one principal in one chat.
type Key struct {
	PrincipalID int64
	SessionID   int64
}

// Store is the part of the principal repository the gate needs.
type Store interface {
	Get(ctx context.Context, principalID int64) (*domain.Record, error)
	UpsertLocale(ctx context.Context, principalID int64, locale string, now time.Time) error
}

// Locales reports which locale codes the selection prompt offers.
type Locales interface {
	IsSelectable(code string) bool
}

type session struct {
	state   State
	proceed bool
	touched time.Time
}

// Gate holds the per-session state machines.
type Gate struct {
	store   Store
	locales Locales
	ttl     time.Duration
	now     func() time.Time

	mu       sync.Mutex
	sessions map[Key]*session
}

// NewGate returns a gate persisting choices to store. Idle sessions are dropped after ttl
// (30 minutes when ttl <= 0).
func NewGate(store Store, locales Locales, ttl time.Duration) *Gate {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &Gate{
		store:    store,
		locales:  locales,
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[Key]*session),
	}
}

// Begin handles a triggering action. requestChange is true for an explicit
// "change preference" action, which always prompts. A session still awaiting
// a choice keeps prompting even when a preference is on record.
func (g *Gate) Begin(ctx context.Context, key Key, requestChange bool) (Decision, error) {
	if requestChange {
		g.await(key)
		return DecisionPrompt, nil
	}
	switch g.resume(key) {
	case DecisionProceed:
		return DecisionProceed, nil
	case DecisionPrompt:
		return DecisionPrompt, nil
	}

	rec, err := g.store.Get(ctx, key.PrincipalID)
	if err != nil {
		return 0, fmt.Errorf("preference: load principal %d: %w", key.PrincipalID, err)
	}
	if rec != nil && rec.Locale != "" {
		return DecisionProceed, nil
	}
	g.await(key)
	return DecisionPrompt, nil
}

// Select consumes a choice: it persists locale, arms the proceed flag and moves
// the session to PreferenceSet.
func (g *Gate) Select(ctx context.Context, key Key, locale string) error {
	if !g.locales.IsSelectable(locale) {
		return fmt.Errorf("%w: %q", ErrUnsupportedLocale, locale)
	}
	now := g.now()
	if err := g.store.UpsertLocale(ctx, key.PrincipalID, locale, now); err != nil {
		return fmt.Errorf("preference: save locale for %d: %w", key.PrincipalID, err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.pruneLocked(now)
	g.sessions[key] = &session{state: StatePreferenceSet, proceed: true, touched: now}
	return nil
}

// State returns the state of a session and whether one exists.
func (g *Gate) State(key Key) (State, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pruneLocked(g.now())
	s, ok := g.sessions[key]
	if !ok {
		return 0, false
	}
	return s.state, true
}

func (g *Gate) await(key Key) {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	g.pruneLocked(now)
	g.sessions[key] = &session{state: StateAwaitingPreference, touched: now}
}

// resume decides from session state alone: proceed consumes the one-shot flag,
// prompt means a change request is still pending. Zero means the store decides.
func (g *Gate) resume(key Key) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	g.pruneLocked(now)
	s, ok := g.sessions[key]
	if !ok {
		return 0
	}
	switch {
	case s.proceed:
		s.proceed = false
		s.touched = now
		return DecisionProceed
	case s.state == StateAwaitingPreference:
		s.touched = now
		return DecisionPrompt
	}
	return 0
}

func (g *Gate) pruneLocked(now time.Time) {
	for k, s := range g.sessions {
		if now.Sub(s.touched) > g.ttl {
			delete(g.sessions, k)
		}
	}
}
