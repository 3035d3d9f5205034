package understanding

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/cortexd/internal/agent"
	"github.com/fyrsmithlabs/cortexd/internal/memory"
)

// Config holds the understanding engine's tunables. The defaults mirror the
// platform's original heuristics; they are uncalibrated and exposed here so
// deployments can adjust them without rebuilding.
type Config struct {
	// LowIntentConfidence is the surface-confidence floor below which a
	// high-criticality semantic ambiguity is raised.
	LowIntentConfidence float64 `koanf:"low_intent_confidence"`

	// ClarificationStep is the confidence increase applied when one
	// ambiguity is resolved via feedback.
	ClarificationStep float64 `koanf:"clarification_step"`

	// MaxClarifications caps questions surfaced per turn.
	MaxClarifications int `koanf:"max_clarifications"`

	// SurfaceWeight scales surface confidence in the aggregate formula.
	SurfaceWeight float64 `koanf:"surface_weight"`

	// HighAmbiguityPenalty is subtracted per high-criticality ambiguity.
	HighAmbiguityPenalty float64 `koanf:"high_ambiguity_penalty"`

	// GoalBonus is added when at least one goal was extracted.
	GoalBonus float64 `koanf:"goal_bonus"`

	// ObjectiveBonus is added when at least one objective was inferred.
	ObjectiveBonus float64 `koanf:"objective_bonus"`
}

// DefaultConfig returns the stock heuristics.
func DefaultConfig() Config {
	return Config{
		LowIntentConfidence:  0.5,
		ClarificationStep:    0.1,
		MaxClarifications:    3,
		SurfaceWeight:        0.4,
		HighAmbiguityPenalty: 0.2,
		GoalBonus:            0.1,
		ObjectiveBonus:       0.1,
	}
}

// Engine builds understandings from user messages.
type Engine struct {
	runtime agent.Runtime
	store   *memory.Store
	cfg     Config
	logger  *zap.Logger

	goalRules       []*goalRule
	constraintRules []*constraintRule
}

// NewEngine creates an understanding engine.
func NewEngine(runtime agent.Runtime, store *memory.Store, cfg Config, logger *zap.Logger) (*Engine, error) {
	if runtime == nil {
		return nil, fmt.Errorf("runtime cannot be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("memory store cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		runtime:         runtime,
		store:           store,
		cfg:             cfg,
		logger:          logger,
		goalRules:       buildGoalRules(),
		constraintRules: buildConstraintRules(),
	}, nil
}

// Understand runs the full pipeline: context fetch, surface intent parse,
// semantic analysis, strategic analysis, confidence aggregation.
func (e *Engine) Understand(ctx context.Context, userID, message string) (*Understanding, error) {
	if userID == "" {
		return nil, ErrEmptyUserID
	}
	if strings.TrimSpace(message) == "" {
		return nil, ErrEmptyMessage
	}

	userCtx, err := e.store.Snapshot(userID)
	if err != nil {
		return nil, fmt.Errorf("fetching user context: %w", err)
	}

	intent, err := e.runtime.ParseIntent(ctx, userID, message, map[string]any{
		"recent_turns": len(userCtx.RecentTurns),
		"domain":       userCtx.DominantDomain(),
	})
	if err != nil {
		return nil, fmt.Errorf("parsing intent: %w", err)
	}

	text := truncateForAnalysis(message)
	lower := strings.ToLower(text)

	semantic := e.analyzeSemantic(text, lower, intent, userCtx)
	strategic := e.analyzeStrategic(semantic)

	u := &Understanding{
		ID:        uuid.New().String(),
		UserID:    userID,
		Message:   message,
		Surface:   *intent,
		Semantic:  semantic,
		Strategic: strategic,
		CreatedAt: time.Now(),
	}
	u.Confidence = e.aggregateConfidence(u)
	u.RequiresClarification = u.HighCriticalityAmbiguities() > 0

	if err := e.store.AppendTurn(userID, "user", message); err != nil {
		e.logger.Warn("failed to append turn", zap.String("user_id", userID), zap.Error(err))
	}
	if semantic.Context.Domain != "" {
		if err := e.store.ReinforceExpertise(userID, semantic.Context.Domain, 0.05); err != nil {
			e.logger.Warn("failed to reinforce expertise", zap.Error(err))
		}
	}

	e.logger.Debug("understanding produced",
		zap.String("user_id", userID),
		zap.String("understanding_id", u.ID),
		zap.Float64("confidence", u.Confidence),
		zap.Int("goals", len(semantic.Goals)),
		zap.Int("ambiguities", len(semantic.Ambiguities)),
		zap.Bool("requires_clarification", u.RequiresClarification))

	return u, nil
}

// analyzeSemantic extracts goals, constraints, contextual info, and
// ambiguities from the message.
func (e *Engine) analyzeSemantic(text, lower string, intent *agent.Intent, userCtx *memory.UserContext) SemanticLayer {
	layer := SemanticLayer{
		Goals:       e.extractGoals(text, lower),
		Constraints: e.extractConstraints(text, userCtx),
		Context:     e.buildContextualInfo(lower, userCtx),
	}
	layer.Ambiguities = e.detectAmbiguities(text, intent, userCtx)
	return layer
}

// extractGoals applies the phrase rule table and escalates priority from
// urgency keywords.
func (e *Engine) extractGoals(text, lower string) []Goal {
	var goals []Goal
	seen := make(map[string]bool)

	for _, rule := range e.goalRules {
		for _, match := range rule.regex.FindAllStringSubmatch(text, -1) {
			desc := strings.TrimSpace(match[1])
			key := strings.ToLower(desc)
			if desc == "" || seen[key] {
				continue
			}
			seen[key] = true

			priority := rule.priority
			switch {
			case containsAny(lower, criticalUrgencyWords):
				priority = PriorityCritical
			case containsAny(lower, highUrgencyWords) && priority.Rank() < PriorityHigh.Rank():
				priority = PriorityHigh
			case containsAny(lower, lowUrgencyWords):
				priority = PriorityLow
			}

			goals = append(goals, Goal{
				ID:          uuid.New().String(),
				Description: desc,
				Priority:    priority,
				Measurable:  measurablePattern.MatchString(desc),
			})
		}
	}
	return goals
}

// extractConstraints applies the constraint rule table and folds in the
// user's stored risk tolerance.
func (e *Engine) extractConstraints(text string, userCtx *memory.UserContext) []Constraint {
	var constraints []Constraint
	seenKinds := make(map[ConstraintKind]bool)

	for _, rule := range e.constraintRules {
		loc := rule.regex.FindString(text)
		if loc == "" || seenKinds[rule.kind] {
			continue
		}
		seenKinds[rule.kind] = true
		constraints = append(constraints, Constraint{
			ID:          uuid.New().String(),
			Kind:        rule.kind,
			Description: fmt.Sprintf("%s constraint: %q", rule.kind, strings.TrimSpace(loc)),
		})
	}

	if userCtx.Preferences.RiskTolerance == memory.RiskToleranceLow {
		constraints = append(constraints, Constraint{
			ID:          uuid.New().String(),
			Kind:        ConstraintQuality,
			Description: "user prefers low-risk, conservative execution",
		})
	}
	return constraints
}

// buildContextualInfo infers domain, complexity, and urgency.
func (e *Engine) buildContextualInfo(lower string, userCtx *memory.UserContext) ContextualInfo {
	info := ContextualInfo{}

	// Domain: stored expertise wins, keyword match is the fallback.
	if d := userCtx.DominantDomain(); d != "" {
		info.Domain = d
	} else {
		bestHits := 0
		for domain, words := range domainKeywords {
			hits := 0
			for _, w := range words {
				if strings.Contains(lower, w) {
					hits++
				}
			}
			if hits > bestHits || (hits == bestHits && hits > 0 && domain < info.Domain) {
				info.Domain = domain
				bestHits = hits
			}
		}
		if bestHits == 0 {
			info.Domain = "general"
		}
	}

	// Complexity: message length plus technical-term density, each capped.
	lengthScore := float64(len(lower)) / 500.0
	if lengthScore > 0.5 {
		lengthScore = 0.5
	}
	termScore := float64(countMatches(technicalTermPattern, lower)) * 0.1
	if termScore > 0.5 {
		termScore = 0.5
	}
	info.Complexity = lengthScore + termScore

	// Urgency from keyword sets.
	switch {
	case containsAny(lower, criticalUrgencyWords):
		info.Urgency = 1.0
	case containsAny(lower, highUrgencyWords):
		info.Urgency = 0.7
	case containsAny(lower, lowUrgencyWords):
		info.Urgency = 0.2
	default:
		info.Urgency = 0.4
	}
	return info
}

// detectAmbiguities applies the four detectors from the analysis rules.
// Ambiguities the user already clarified in past turns are suppressed.
func (e *Engine) detectAmbiguities(text string, intent *agent.Intent, userCtx *memory.UserContext) []Ambiguity {
	var out []Ambiguity

	if countMatches(pronounPattern, text) >= 3 {
		out = append(out, Ambiguity{
			ID:          uuid.New().String(),
			Kind:        AmbiguitySemantic,
			Description: "multiple referential pronouns with unclear antecedents",
			Interpretations: []string{
				"pronouns refer to the most recently mentioned item",
				"pronouns refer to the overall task",
			},
			Confidence:  0.7,
			Criticality: CriticalityMedium,
		})
	}

	if vagueQuantifierPattern.MatchString(text) {
		out = append(out, Ambiguity{
			ID:          uuid.New().String(),
			Kind:        AmbiguitySemantic,
			Description: "vague quantifier leaves scope undefined",
			Interpretations: []string{
				"a small, representative subset is sufficient",
				"exhaustive coverage is expected",
			},
			Confidence:  0.6,
			Criticality: CriticalityMedium,
		})
	}

	if countMatches(modalPattern, text) >= 2 {
		out = append(out, Ambiguity{
			ID:          uuid.New().String(),
			Kind:        AmbiguityPragmatic,
			Description: "hedging modal verbs make the commitment level unclear",
			Interpretations: []string{
				"the request is a firm instruction",
				"the request is exploratory",
			},
			Confidence:  0.6,
			Criticality: CriticalityLow,
		})
	}

	if intent.Confidence < e.cfg.LowIntentConfidence {
		out = append(out, Ambiguity{
			ID:          uuid.New().String(),
			Kind:        AmbiguitySemantic,
			Description: fmt.Sprintf("surface intent confidence %.2f is below the %.2f floor", intent.Confidence, e.cfg.LowIntentConfidence),
			Interpretations: []string{
				fmt.Sprintf("intent is %q as parsed", intent.Type),
				"intent was misread and needs restating",
			},
			Confidence:  1 - intent.Confidence,
			Criticality: CriticalityHigh,
		})
	}

	// Drop ambiguities equivalent to ones the user already answered.
	filtered := out[:0]
	for _, a := range out {
		if !alreadyClarified(userCtx, a) {
			filtered = append(filtered, a)
		}
	}
	return filtered
}

// alreadyClarified matches an ambiguity against the clarification history by
// description, since fresh detections carry fresh ids.
func alreadyClarified(userCtx *memory.UserContext, a Ambiguity) bool {
	for _, ex := range userCtx.Clarifications {
		if strings.Contains(ex.Question, a.Description) {
			return true
		}
	}
	return false
}

// analyzeStrategic derives objectives, success criteria, and risk factors
// from the semantic layer.
func (e *Engine) analyzeStrategic(semantic SemanticLayer) StrategicLayer {
	layer := StrategicLayer{}

	seen := make(map[string]bool)
	for _, g := range semantic.Goals {
		lower := strings.ToLower(g.Description)
		for keyword, objective := range objectiveKeywords {
			if strings.Contains(lower, keyword) && !seen[objective] {
				seen[objective] = true
				layer.BusinessObjectives = append(layer.BusinessObjectives, objective)
			}
		}
		layer.SuccessCriteria = append(layer.SuccessCriteria, SuccessCriterion{
			GoalID:      g.ID,
			Description: fmt.Sprintf("goal %q is satisfied", g.Description),
		})
	}

	if semantic.Context.Complexity > 0.6 {
		layer.RiskFactors = append(layer.RiskFactors, RiskFactor{
			Description: "high task complexity increases execution risk",
			Severity:    CriticalityMedium,
		})
	}
	if n := len(semantic.Ambiguities); n >= 2 {
		sev := CriticalityMedium
		if n >= 4 {
			sev = CriticalityHigh
		}
		layer.RiskFactors = append(layer.RiskFactors, RiskFactor{
			Description: fmt.Sprintf("%d unresolved ambiguities may misdirect planning", n),
			Severity:    sev,
		})
	}
	return layer
}

// aggregateConfidence applies the weighted confidence formula, clamped to
// [0,1].
func (e *Engine) aggregateConfidence(u *Understanding) float64 {
	c := e.cfg.SurfaceWeight * u.Surface.Confidence
	c -= e.cfg.HighAmbiguityPenalty * float64(u.HighCriticalityAmbiguities())
	if len(u.Semantic.Goals) > 0 {
		c += e.cfg.GoalBonus
	}
	if len(u.Strategic.BusinessObjectives) > 0 {
		c += e.cfg.ObjectiveBonus
	}
	return clamp01(c)
}

// clamp01 clamps v to [0,1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
