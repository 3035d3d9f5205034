package memory

import (
	"errors"
	"time"
)

// Common errors for memory store operations.
var (
	ErrEmptyUserID = errors.New("user ID cannot be empty")
	ErrUserNotFound = errors.New("user context not found")
)

// RiskTolerance expresses how much execution risk a user accepts.
type RiskTolerance string

const (
	// RiskToleranceLow means the user prefers safe, conservative plans.
	RiskToleranceLow RiskTolerance = "low"

	// RiskToleranceMedium is the default tolerance.
	RiskToleranceMedium RiskTolerance = "medium"

	// RiskToleranceHigh means the user accepts aggressive plans.
	RiskToleranceHigh RiskTolerance = "high"
)

// Turn is a single conversational exchange.
type Turn struct {
	// Role is "user" or "assistant".
	Role string `json:"role"`

	// Content is the message text.
	Content string `json:"content"`

	// Timestamp is when the turn was recorded.
	Timestamp time.Time `json:"timestamp"`
}

// Entity is a noteworthy item extracted from user messages.
type Entity struct {
	// Name is the canonical entity name.
	Name string `json:"name"`

	// Kind classifies the entity (e.g. "topic", "person", "system").
	Kind string `json:"kind"`

	// Confidence is the extraction confidence in [0,1].
	Confidence float64 `json:"confidence"`

	// LastSeen is when the entity was last mentioned.
	LastSeen time.Time `json:"last_seen"`
}

// Preferences holds durable per-user settings that shape understanding
// and planning.
type Preferences struct {
	// RiskTolerance feeds constraint extraction in the understanding engine.
	RiskTolerance RiskTolerance `json:"risk_tolerance"`

	// PreferredDomains biases domain inference when keyword matching is
	// inconclusive.
	PreferredDomains []string `json:"preferred_domains,omitempty"`
}

// ClarificationExchange records one asked-and-answered clarification question
// so the same ambiguity is not raised again.
type ClarificationExchange struct {
	// AmbiguityID is the ambiguity the question was derived from.
	AmbiguityID string `json:"ambiguity_id"`

	// Question is the text surfaced to the user.
	Question string `json:"question"`

	// Answer is the user's reply.
	Answer string `json:"answer"`

	// AnsweredAt is when the answer arrived.
	AnsweredAt time.Time `json:"answered_at"`
}

// UserContext is the rolling context for one user.
//
// All fields are owned by the store; callers receive copies via Snapshot.
type UserContext struct {
	// UserID identifies the user.
	UserID string `json:"user_id"`

	// RecentTurns is the bounded window of recent exchanges, oldest first.
	RecentTurns []Turn `json:"recent_turns"`

	// Entities maps entity name to its latest extraction.
	Entities map[string]Entity `json:"entities"`

	// Preferences are the user's durable settings.
	Preferences Preferences `json:"preferences"`

	// Expertise maps domain name to an estimated proficiency in [0,1].
	Expertise map[string]float64 `json:"expertise"`

	// Clarifications is the history of resolved clarification questions.
	Clarifications []ClarificationExchange `json:"clarifications"`

	// UpdatedAt is when the context last changed.
	UpdatedAt time.Time `json:"updated_at"`
}

// DominantDomain returns the expertise domain with the highest score, or ""
// when no expertise has been recorded.
func (c *UserContext) DominantDomain() string {
	best := ""
	bestScore := 0.0
	for domain, score := range c.Expertise {
		if score > bestScore || (score == bestScore && (best == "" || domain < best)) {
			best = domain
			bestScore = score
		}
	}
	return best
}

// HasClarified reports whether an ambiguity id already has a recorded answer.
func (c *UserContext) HasClarified(ambiguityID string) bool {
	for _, ex := range c.Clarifications {
		if ex.AmbiguityID == ambiguityID {
			return true
		}
	}
	return false
}
