package memory

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultMaxTurns is the default size of the rolling turn window.
	DefaultMaxTurns = 20

	// DefaultMaxClarifications caps the clarification history per user.
	DefaultMaxClarifications = 50
)

// Store is an in-memory keyed store of per-user contexts.
//
// Thread Safety: all public methods are safe for concurrent use. The
// single-writer-per-key contract still applies to logical read-modify-write
// sequences spanning multiple calls.
type Store struct {
	mu       sync.RWMutex
	contexts map[string]*UserContext

	maxTurns          int
	maxClarifications int
	logger            *zap.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithMaxTurns overrides the rolling turn window size.
func WithMaxTurns(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.maxTurns = n
		}
	}
}

// WithMaxClarifications overrides the clarification history cap.
func WithMaxClarifications(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.maxClarifications = n
		}
	}
}

// NewStore creates an empty context store.
func NewStore(logger *zap.Logger, opts ...StoreOption) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		contexts:          make(map[string]*UserContext),
		maxTurns:          DefaultMaxTurns,
		maxClarifications: DefaultMaxClarifications,
		logger:            logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns a deep copy of the user's context, creating an empty
// context on first access.
func (s *Store) Snapshot(userID string) (*UserContext, error) {
	if userID == "" {
		return nil, ErrEmptyUserID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := s.getOrCreateLocked(userID)
	return cloneContext(ctx), nil
}

// AppendTurn records one exchange in the rolling window, trimming the oldest
// turn once the window is full.
func (s *Store) AppendTurn(userID, role, content string) error {
	if userID == "" {
		return ErrEmptyUserID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := s.getOrCreateLocked(userID)
	ctx.RecentTurns = append(ctx.RecentTurns, Turn{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	})
	if len(ctx.RecentTurns) > s.maxTurns {
		ctx.RecentTurns = ctx.RecentTurns[len(ctx.RecentTurns)-s.maxTurns:]
	}
	ctx.UpdatedAt = time.Now()
	return nil
}

// RecordEntities merges extracted entities into the context, keeping the
// higher-confidence extraction when an entity is seen again.
func (s *Store) RecordEntities(userID string, entities []Entity) error {
	if userID == "" {
		return ErrEmptyUserID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := s.getOrCreateLocked(userID)
	now := time.Now()
	for _, e := range entities {
		e.LastSeen = now
		if existing, ok := ctx.Entities[e.Name]; !ok || e.Confidence >= existing.Confidence {
			ctx.Entities[e.Name] = e
		} else {
			existing.LastSeen = now
			ctx.Entities[e.Name] = existing
		}
	}
	ctx.UpdatedAt = now
	return nil
}

// SetPreferences replaces the user's preferences.
func (s *Store) SetPreferences(userID string, prefs Preferences) error {
	if userID == "" {
		return ErrEmptyUserID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := s.getOrCreateLocked(userID)
	ctx.Preferences = prefs
	ctx.UpdatedAt = time.Now()
	return nil
}

// ReinforceExpertise nudges the user's expertise score for a domain toward
// 1.0 by the given step, clamped to [0,1].
func (s *Store) ReinforceExpertise(userID, domain string, step float64) error {
	if userID == "" {
		return ErrEmptyUserID
	}
	if domain == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := s.getOrCreateLocked(userID)
	score := ctx.Expertise[domain] + step
	if score > 1.0 {
		score = 1.0
	}
	if score < 0.0 {
		score = 0.0
	}
	ctx.Expertise[domain] = score
	ctx.UpdatedAt = time.Now()
	return nil
}

// RecordClarification appends a resolved clarification exchange, trimming
// the oldest entries past the cap.
func (s *Store) RecordClarification(userID string, ex ClarificationExchange) error {
	if userID == "" {
		return ErrEmptyUserID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := s.getOrCreateLocked(userID)
	ex.AnsweredAt = time.Now()
	ctx.Clarifications = append(ctx.Clarifications, ex)
	if len(ctx.Clarifications) > s.maxClarifications {
		ctx.Clarifications = ctx.Clarifications[len(ctx.Clarifications)-s.maxClarifications:]
	}
	ctx.UpdatedAt = time.Now()

	s.logger.Debug("clarification recorded",
		zap.String("user_id", userID),
		zap.String("ambiguity_id", ex.AmbiguityID))
	return nil
}

// Users returns the ids of all users with stored context.
func (s *Store) Users() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.contexts))
	for id := range s.contexts {
		ids = append(ids, id)
	}
	return ids
}

// getOrCreateLocked returns the live context for a user. Caller holds mu.
func (s *Store) getOrCreateLocked(userID string) *UserContext {
	ctx, ok := s.contexts[userID]
	if !ok {
		ctx = &UserContext{
			UserID:    userID,
			Entities:  make(map[string]Entity),
			Expertise: make(map[string]float64),
			Preferences: Preferences{
				RiskTolerance: RiskToleranceMedium,
			},
			UpdatedAt: time.Now(),
		}
		s.contexts[userID] = ctx
	}
	return ctx
}

// cloneContext returns a deep copy of a user context.
func cloneContext(ctx *UserContext) *UserContext {
	out := &UserContext{
		UserID:    ctx.UserID,
		UpdatedAt: ctx.UpdatedAt,
		Preferences: Preferences{
			RiskTolerance:    ctx.Preferences.RiskTolerance,
			PreferredDomains: append([]string(nil), ctx.Preferences.PreferredDomains...),
		},
		RecentTurns:    append([]Turn(nil), ctx.RecentTurns...),
		Clarifications: append([]ClarificationExchange(nil), ctx.Clarifications...),
		Entities:       make(map[string]Entity, len(ctx.Entities)),
		Expertise:      make(map[string]float64, len(ctx.Expertise)),
	}
	for k, v := range ctx.Entities {
		out.Entities[k] = v
	}
	for k, v := range ctx.Expertise {
		out.Expertise[k] = v
	}
	return out
}
