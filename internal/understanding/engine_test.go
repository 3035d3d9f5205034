package understanding

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/cortexd/internal/agent"
	"github.com/fyrsmithlabs/cortexd/internal/memory"
)

// stubRuntime returns a fixed intent for every message.
type stubRuntime struct {
	intent agent.Intent
	err    error
}

func (s *stubRuntime) Initialize(ctx context.Context, config map[string]any) error { return nil }
func (s *stubRuntime) Shutdown(ctx context.Context) error                          { return nil }

func (s *stubRuntime) ParseIntent(ctx context.Context, userID, message string, _ map[string]any) (*agent.Intent, error) {
	if s.err != nil {
		return nil, s.err
	}
	intent := s.intent
	return &intent, nil
}

func (s *stubRuntime) CreatePlan(ctx context.Context, intent *agent.Intent) (*agent.PlanSketch, error) {
	return &agent.PlanSketch{Confidence: 0.5}, nil
}

func (s *stubRuntime) GenerateResponse(ctx context.Context, intent *agent.Intent) (string, error) {
	return "ok", nil
}

func (s *stubRuntime) Healthy(ctx context.Context) bool { return true }

func (s *stubRuntime) Status(ctx context.Context) (*agent.RuntimeStatus, error) {
	return &agent.RuntimeStatus{Provider: "stub", Status: "ok", LastCheck: time.Now()}, nil
}

func newTestEngine(t *testing.T, intent agent.Intent) (*Engine, *memory.Store) {
	t.Helper()
	store := memory.NewStore(nil)
	eng, err := NewEngine(&stubRuntime{intent: intent}, store, DefaultConfig(), nil)
	require.NoError(t, err)
	return eng, store
}

func TestUnderstand_LowIntentConfidenceRequiresClarification(t *testing.T) {
	// Scenario: an under-specified scheduling request parsed with low
	// surface confidence must surface a high-criticality ambiguity and
	// between one and three clarification questions.
	eng, _ := newTestEngine(t, agent.Intent{Type: "schedule", Confidence: 0.3})

	u, err := eng.Understand(context.Background(), "user-1", "schedule acne research every day at 9am")
	require.NoError(t, err)

	assert.True(t, u.RequiresClarification)
	assert.GreaterOrEqual(t, u.HighCriticalityAmbiguities(), 1)

	questions := eng.GenerateClarifications(u)
	assert.GreaterOrEqual(t, len(questions), 1)
	assert.LessOrEqual(t, len(questions), 3)
	assert.Equal(t, CriticalityHigh, questions[0].Criticality)
	assert.NotEmpty(t, questions[0].AmbiguityID)
}

func TestUnderstand_ConfidentIntentNeedsNoClarification(t *testing.T) {
	eng, _ := newTestEngine(t, agent.Intent{Type: "research", Confidence: 0.95})

	u, err := eng.Understand(context.Background(), "user-1", "I want to research treatment options.")
	require.NoError(t, err)

	assert.False(t, u.RequiresClarification)
	assert.Zero(t, u.HighCriticalityAmbiguities())
	require.NotEmpty(t, u.Semantic.Goals)
	assert.Contains(t, u.Semantic.Goals[0].Description, "research treatment options")
}

func TestUnderstand_EmptyInputs(t *testing.T) {
	eng, _ := newTestEngine(t, agent.Intent{Confidence: 0.9})

	_, err := eng.Understand(context.Background(), "", "hello")
	assert.ErrorIs(t, err, ErrEmptyUserID)

	_, err = eng.Understand(context.Background(), "user-1", "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestUnderstand_UrgencyEscalatesGoalPriority(t *testing.T) {
	eng, _ := newTestEngine(t, agent.Intent{Type: "task", Confidence: 0.9})

	u, err := eng.Understand(context.Background(), "user-1", "I want to fix the deploy pipeline immediately!")
	require.NoError(t, err)

	require.NotEmpty(t, u.Semantic.Goals)
	assert.Equal(t, PriorityCritical, u.Semantic.Goals[0].Priority)
	assert.Equal(t, 1.0, u.Semantic.Context.Urgency)
}

func TestUnderstand_ConstraintExtraction(t *testing.T) {
	eng, store := newTestEngine(t, agent.Intent{Type: "task", Confidence: 0.9})
	require.NoError(t, store.SetPreferences("user-1", memory.Preferences{RiskTolerance: memory.RiskToleranceLow}))

	u, err := eng.Understand(context.Background(), "user-1", "Help me publish the report by friday, keep it cheap and thorough.")
	require.NoError(t, err)

	kinds := make(map[ConstraintKind]int)
	for _, c := range u.Semantic.Constraints {
		kinds[c.Kind]++
	}
	assert.GreaterOrEqual(t, kinds[ConstraintTime], 1)
	assert.GreaterOrEqual(t, kinds[ConstraintResource], 1)
	// Quality constraint appears twice: once extracted, once from the
	// user's low risk tolerance.
	assert.GreaterOrEqual(t, kinds[ConstraintQuality], 2)
}

func TestUnderstand_DomainInference(t *testing.T) {
	tests := []struct {
		name    string
		message string
		domain  string
	}{
		{"health keywords", "I want to research acne and skin treatment options.", "health"},
		{"software keywords", "Help me fix the api server bug in the database layer.", "software"},
		{"no keywords", "I want to organize the garage.", "general"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng, _ := newTestEngine(t, agent.Intent{Type: "task", Confidence: 0.9})
			u, err := eng.Understand(context.Background(), "user-1", tt.message)
			require.NoError(t, err)
			assert.Equal(t, tt.domain, u.Semantic.Context.Domain)
		})
	}
}

func TestUnderstand_StoredExpertiseWinsDomain(t *testing.T) {
	eng, store := newTestEngine(t, agent.Intent{Type: "task", Confidence: 0.9})
	require.NoError(t, store.ReinforceExpertise("user-1", "finance", 0.8))

	u, err := eng.Understand(context.Background(), "user-1", "I want to research acne treatments.")
	require.NoError(t, err)
	assert.Equal(t, "finance", u.Semantic.Context.Domain)
}

func TestUnderstand_AmbiguityDetectors(t *testing.T) {
	eng, _ := newTestEngine(t, agent.Intent{Type: "task", Confidence: 0.9})

	u, err := eng.Understand(context.Background(), "user-1",
		"Maybe take it and them and move this over there, it could possibly work on some of those things.")
	require.NoError(t, err)

	kinds := make(map[AmbiguityKind]int)
	for _, a := range u.Semantic.Ambiguities {
		kinds[a.Kind]++
	}
	// Pronoun overload and vague quantifiers are semantic; stacked modal
	// verbs are pragmatic.
	assert.GreaterOrEqual(t, kinds[AmbiguitySemantic], 2)
	assert.GreaterOrEqual(t, kinds[AmbiguityPragmatic], 1)
}

func TestIncorporateFeedback_RemovesExactlyOneAmbiguity(t *testing.T) {
	eng, _ := newTestEngine(t, agent.Intent{Type: "task", Confidence: 0.3})

	u, err := eng.Understand(context.Background(), "user-1",
		"Maybe schedule some of it, could be daily, might be weekly.")
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(u.Semantic.Ambiguities), 2)

	target := u.Semantic.Ambiguities[0].ID
	before := len(u.Semantic.Ambiguities)

	refined, err := eng.IncorporateFeedback(u, target, "daily, please")
	require.NoError(t, err)

	assert.Len(t, refined.Semantic.Ambiguities, before-1)
	for _, a := range refined.Semantic.Ambiguities {
		assert.NotEqual(t, target, a.ID)
	}
	// Original is untouched.
	assert.Len(t, u.Semantic.Ambiguities, before)
}

func TestIncorporateFeedback_ConfidenceStaysInRange(t *testing.T) {
	eng, _ := newTestEngine(t, agent.Intent{Type: "task", Confidence: 0.3})

	u, err := eng.Understand(context.Background(), "user-1",
		"Maybe schedule some of it, could be daily, might be weekly, move them and those there with it and that.")
	require.NoError(t, err)

	cur := u
	for len(cur.Semantic.Ambiguities) > 0 {
		next, err := eng.IncorporateFeedback(cur, cur.Semantic.Ambiguities[0].ID, "answered")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, next.Confidence, 0.0)
		assert.LessOrEqual(t, next.Confidence, 1.0)
		assert.GreaterOrEqual(t, next.Confidence, cur.Confidence)
		cur = next
	}
	assert.False(t, cur.RequiresClarification)
}

func TestIncorporateFeedback_UnknownAmbiguity(t *testing.T) {
	eng, _ := newTestEngine(t, agent.Intent{Type: "task", Confidence: 0.9})

	u, err := eng.Understand(context.Background(), "user-1", "I want to write a summary.")
	require.NoError(t, err)

	_, err = eng.IncorporateFeedback(u, "no-such-id", "answer")
	assert.ErrorIs(t, err, ErrAmbiguityUnknown)
}

func TestClone_IsDeep(t *testing.T) {
	eng, _ := newTestEngine(t, agent.Intent{Type: "task", Confidence: 0.3, Parameters: map[string]any{"k": "v"}})

	u, err := eng.Understand(context.Background(), "user-1", "schedule some research maybe, could help")
	require.NoError(t, err)

	clone := u.Clone()
	require.Equal(t, u.ID, clone.ID)

	if len(clone.Semantic.Goals) > 0 {
		clone.Semantic.Goals[0].Description = "mutated"
		assert.NotEqual(t, "mutated", u.Semantic.Goals[0].Description)
	}
	if len(clone.Semantic.Ambiguities) > 0 {
		clone.Semantic.Ambiguities[0].Description = "mutated"
		assert.NotEqual(t, "mutated", u.Semantic.Ambiguities[0].Description)
	}
	clone.Surface.Parameters["k"] = "mutated"
	assert.Equal(t, "v", u.Surface.Parameters["k"])
}

func TestGenerateClarifications_OrderedByCriticality(t *testing.T) {
	eng, _ := newTestEngine(t, agent.Intent{Type: "task", Confidence: 0.2})

	u, err := eng.Understand(context.Background(), "user-1",
		"Maybe handle some of them and those and it, could be that or this, possibly there.")
	require.NoError(t, err)

	questions := eng.GenerateClarifications(u)
	require.NotEmpty(t, questions)
	for i := 1; i < len(questions); i++ {
		assert.GreaterOrEqual(t,
			questions[i-1].Criticality.Rank(),
			questions[i].Criticality.Rank())
	}
}
