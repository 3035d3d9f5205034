package learning

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/cortexd/internal/feedback"
)

// Config holds the learning engine's tunables. Cut-points and blend factors
// are uncalibrated heuristics inherited from the original platform.
type Config struct {
	// SuccessThreshold and PartialThreshold are the classification
	// cut-points on execution success rate.
	SuccessThreshold float64 `koanf:"success_threshold"`
	PartialThreshold float64 `koanf:"partial_threshold"`

	// MinExamplesForPattern is the minimum number of similar prior
	// examples before a pattern can be minted.
	MinExamplesForPattern int `koanf:"min_examples_for_pattern"`

	// PatternConfidenceBand bounds how far a prior example's confidence
	// may sit from the new example's.
	PatternConfidenceBand float64 `koanf:"pattern_confidence_band"`

	// FactorShareThreshold is the fraction of similar examples that must
	// share a factor for it to become a pattern.
	FactorShareThreshold float64 `koanf:"factor_share_threshold"`

	// MitigationConfidenceStep is the fixed increment per corroborating
	// failure example.
	MitigationConfidenceStep float64 `koanf:"mitigation_confidence_step"`

	// StrategyBlend is the rolling-average weight of a new outcome.
	StrategyBlend float64 `koanf:"strategy_blend"`

	// ExampleHistoryCap bounds the example history; oldest are trimmed.
	ExampleHistoryCap int `koanf:"example_history_cap"`

	// PersistPath, when set, stores the knowledge base on disk.
	PersistPath string `koanf:"persist_path"`

	// EmbeddingDim is the local hashing embedder's dimension.
	EmbeddingDim int `koanf:"embedding_dim"`
}

// DefaultConfig returns the stock learning heuristics.
func DefaultConfig() Config {
	return Config{
		SuccessThreshold:         0.8,
		PartialThreshold:         0.5,
		MinExamplesForPattern:    3,
		PatternConfidenceBand:    0.2,
		FactorShareThreshold:     0.6,
		MitigationConfidenceStep: 0.05,
		StrategyBlend:            0.1,
		ExampleHistoryCap:        500,
		EmbeddingDim:             128,
	}
}

// Engine learns from completed feedback cycles. The knowledge base is shared
// across sessions, so all mutation goes through the engine's mutex.
type Engine struct {
	cfg    Config
	logger *zap.Logger
	rules  []*failureRule

	db        *chromem.DB
	knowledge *chromem.Collection

	mu          sync.Mutex
	examples    []*Example
	patterns    []*Pattern
	strategies  map[string]*SuccessStrategy
	mitigations map[FailureType]*FailureMitigation
}

// Option configures an Engine.
type Option func(*engineOptions)

type engineOptions struct {
	embed chromem.EmbeddingFunc
}

// WithEmbedding replaces the local hashing embedder with a real embedding
// backend.
func WithEmbedding(fn chromem.EmbeddingFunc) Option {
	return func(o *engineOptions) {
		o.embed = fn
	}
}

// NewEngine creates a learning engine with an embedded knowledge store.
func NewEngine(cfg Config, logger *zap.Logger, opts ...Option) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	options := engineOptions{embed: HashingEmbedder(cfg.EmbeddingDim)}
	for _, opt := range opts {
		opt(&options)
	}

	var db *chromem.DB
	var err error
	if cfg.PersistPath != "" {
		db, err = chromem.NewPersistentDB(cfg.PersistPath, false)
		if err != nil {
			return nil, fmt.Errorf("creating knowledge store at %s: %w", cfg.PersistPath, err)
		}
	} else {
		db = chromem.NewDB()
	}

	collection, err := db.GetOrCreateCollection("knowledge", nil, options.embed)
	if err != nil {
		return nil, fmt.Errorf("creating knowledge collection: %w", err)
	}

	return &Engine{
		cfg:         cfg,
		logger:      logger,
		rules:       buildFailureRules(),
		db:          db,
		knowledge:   collection,
		strategies:  make(map[string]*SuccessStrategy),
		mitigations: make(map[FailureType]*FailureMitigation),
	}, nil
}

// LearnFromCycle converts one completed cycle into a classified example,
// updates patterns, strategies, and mitigations, and indexes the derived
// knowledge for retrieval.
func (e *Engine) LearnFromCycle(ctx context.Context, cycle *feedback.Cycle) (*Example, error) {
	if cycle == nil {
		return nil, ErrNilCycle
	}
	if cycle.Execution == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoExecution, cycle.ID)
	}

	metrics := OutcomeMetrics{
		SuccessRate: cycle.Execution.Performance.SuccessRate,
		ErrorRate:   cycle.Execution.Performance.ErrorRate,
		Confidence:  cycle.Understanding.Confidence,
		Iterations:  cycle.Iteration,
	}
	if cycle.CompletedAt != nil {
		metrics.Duration = cycle.CompletedAt.Sub(cycle.StartedAt)
	} else {
		metrics.Duration = time.Since(cycle.StartedAt)
	}
	if cycle.Improvement != nil {
		metrics.ConfidenceDelta = cycle.Improvement.ConfidenceDelta
	}

	example := &Example{
		ID:             uuid.New().String(),
		CycleID:        cycle.ID,
		Classification: e.classify(metrics.SuccessRate),
		Domain:         exampleDomain(cycle),
		Complexity:     complexityOf(len(cycle.Plan.Nodes)),
		Metrics:        metrics,
		CreatedAt:      time.Now(),
	}
	example.SuccessFactors, example.FailureFactors = e.extractFactors(cycle, metrics)
	example.Lessons = deriveLessons(example)

	e.mu.Lock()
	e.examples = append(e.examples, example)
	if limit := e.cfg.ExampleHistoryCap; limit > 0 && len(e.examples) > limit {
		e.examples = e.examples[len(e.examples)-limit:]
	}

	e.minePatternsLocked(example)
	switch example.Classification {
	case ClassSuccess:
		e.updateStrategyLocked(example, true)
	case ClassFailure:
		e.updateStrategyLocked(example, false)
		e.updateMitigationLocked(cycle, example)
	default:
		e.updateStrategyLocked(example, false)
	}
	e.mu.Unlock()

	if err := e.indexExample(ctx, example); err != nil {
		// Retrieval degrades but learning state is already updated.
		e.logger.Warn("knowledge indexing failed",
			zap.String("example_id", example.ID),
			zap.Error(err))
	}

	e.logger.Debug("example learned",
		zap.String("example_id", example.ID),
		zap.String("classification", string(example.Classification)),
		zap.String("domain", example.Domain),
		zap.Float64("success_rate", metrics.SuccessRate))
	return example, nil
}

// classify buckets a success rate by the configured cut-points.
func (e *Engine) classify(successRate float64) Classification {
	switch {
	case successRate >= e.cfg.SuccessThreshold:
		return ClassSuccess
	case successRate >= e.cfg.PartialThreshold:
		return ClassPartialSuccess
	default:
		return ClassFailure
	}
}

// extractFactors tags the example with rule-checked success and failure
// factors.
func (e *Engine) extractFactors(cycle *feedback.Cycle, metrics OutcomeMetrics) (success, failure []string) {
	if cycle.InitialConfidence >= 0.7 {
		success = append(success, "high_initial_confidence")
	}
	if metrics.ErrorRate <= 0.1 {
		success = append(success, "low_error_rate")
	}
	if metrics.Iterations <= 1 {
		success = append(success, "minimal_refinement")
	}
	if cycle.Plan.RiskLevel == "low" {
		success = append(success, "low_risk_plan")
	}

	if cycle.Execution.Resources.CPU > 0.9 || cycle.Execution.Resources.Memory > 0.9 {
		failure = append(failure, "resource_exhaustion")
	}
	if metrics.Confidence < 0.5 {
		failure = append(failure, "low_confidence")
	}
	if metrics.Iterations >= 3 {
		failure = append(failure, "excessive_refinement")
	}
	if cycle.Plan.RiskLevel == "high" || cycle.Plan.RiskLevel == "critical" {
		failure = append(failure, "high_risk_plan")
	}
	if metrics.ErrorRate > 0.3 {
		failure = append(failure, "high_error_rate")
	}
	return success, failure
}

// deriveLessons turns the factor tags into free-text takeaways.
func deriveLessons(example *Example) []string {
	var lessons []string
	switch example.Classification {
	case ClassSuccess:
		lessons = append(lessons, fmt.Sprintf(
			"%s tasks of %s complexity complete reliably when %s",
			example.Domain, example.Complexity, strings.Join(example.SuccessFactors, ", ")))
	case ClassFailure:
		if len(example.FailureFactors) > 0 {
			lessons = append(lessons, fmt.Sprintf(
				"%s tasks of %s complexity fail under %s",
				example.Domain, example.Complexity, strings.Join(example.FailureFactors, ", ")))
		}
		if example.Metrics.Iterations >= 3 {
			lessons = append(lessons, "repeated refinement without improvement suggests replanning from a fresh understanding")
		}
	default:
		lessons = append(lessons, fmt.Sprintf(
			"%s tasks partially succeed at success rate %.2f; earlier refinement may close the gap",
			example.Domain, example.Metrics.SuccessRate))
	}
	return lessons
}

// minePatternsLocked mints or updates a pattern when enough similar prior
// examples share a factor with the new one. Caller holds e.mu.
func (e *Engine) minePatternsLocked(example *Example) {
	var similar []*Example
	for _, prior := range e.examples {
		if prior.ID == example.ID {
			continue
		}
		if prior.Domain != example.Domain ||
			prior.Complexity != example.Complexity ||
			prior.Classification != example.Classification {
			continue
		}
		diff := prior.Metrics.Confidence - example.Metrics.Confidence
		if diff < 0 {
			diff = -diff
		}
		if diff > e.cfg.PatternConfidenceBand {
			continue
		}
		similar = append(similar, prior)
	}
	if len(similar) < e.cfg.MinExamplesForPattern {
		return
	}

	factors := example.SuccessFactors
	if example.Classification == ClassFailure {
		factors = example.FailureFactors
	}
	for _, factor := range factors {
		sharing := 0
		for _, prior := range similar {
			if hasFactor(prior, factor) {
				sharing++
			}
		}
		if float64(sharing)/float64(len(similar)) < e.cfg.FactorShareThreshold {
			continue
		}

		if existing := e.findPatternLocked(example, factor); existing != nil {
			existing.Frequency++
			existing.Confidence = clampUnit(existing.Confidence + 0.05)
			continue
		}
		e.patterns = append(e.patterns, &Pattern{
			ID:             uuid.New().String(),
			Domain:         example.Domain,
			Complexity:     example.Complexity,
			Classification: example.Classification,
			Factor:         factor,
			Frequency:      sharing + 1,
			Confidence:     0.6,
		})
	}
}

func (e *Engine) findPatternLocked(example *Example, factor string) *Pattern {
	for _, p := range e.patterns {
		if p.Domain == example.Domain &&
			p.Complexity == example.Complexity &&
			p.Classification == example.Classification &&
			p.Factor == factor {
			return p
		}
	}
	return nil
}

func hasFactor(example *Example, factor string) bool {
	for _, f := range example.SuccessFactors {
		if f == factor {
			return true
		}
	}
	for _, f := range example.FailureFactors {
		if f == factor {
			return true
		}
	}
	return false
}

// updateStrategyLocked nudges the per-domain strategy's rolling scores.
// Caller holds e.mu.
func (e *Engine) updateStrategyLocked(example *Example, succeeded bool) {
	strategy, ok := e.strategies[example.Domain]
	if !ok {
		strategy = &SuccessStrategy{
			Domain:      example.Domain,
			Description: fmt.Sprintf("standard pipeline for %s requests", example.Domain),
			SuccessRate: example.Metrics.SuccessRate,
			Confidence:  0.5,
		}
		e.strategies[example.Domain] = strategy
	}

	outcome := 0.0
	step := -e.cfg.MitigationConfidenceStep
	if succeeded {
		outcome = 1.0
		step = e.cfg.MitigationConfidenceStep
	}
	blend := e.cfg.StrategyBlend
	strategy.SuccessRate = (1-blend)*strategy.SuccessRate + blend*outcome
	strategy.Confidence = clampUnit(strategy.Confidence + step)
	strategy.Uses++
}

// updateMitigationLocked classifies the failure and upserts its mitigation.
// Caller holds e.mu.
func (e *Engine) updateMitigationLocked(cycle *feedback.Cycle, example *Example) {
	var text strings.Builder
	for _, issue := range cycle.Issues {
		text.WriteString(issue.RootCause)
		text.WriteString(" ")
	}
	for _, factor := range example.FailureFactors {
		text.WriteString(strings.ReplaceAll(factor, "_", " "))
		text.WriteString(" ")
	}

	failureType := classifyFailure(e.rules, text.String())
	mitigation, ok := e.mitigations[failureType]
	if !ok {
		tmpl := mitigationTemplates[failureType]
		mitigation = &FailureMitigation{
			Type:           failureType,
			WarningSignals: tmpl.warnings,
			Prevention:     tmpl.prevention,
			Recovery:       tmpl.recovery,
			Confidence:     0.3,
		}
		e.mitigations[failureType] = mitigation
	}
	mitigation.Confidence = clampUnit(mitigation.Confidence + e.cfg.MitigationConfidenceStep)
	mitigation.Occurrences++
}

// exampleDomain pulls the understanding's domain, defaulting to general.
func exampleDomain(cycle *feedback.Cycle) string {
	if d := cycle.Understanding.Semantic.Context.Domain; d != "" {
		return d
	}
	return "general"
}

// complexityOf buckets a plan by node count.
func complexityOf(nodes int) Complexity {
	switch {
	case nodes <= 2:
		return ComplexityLow
	case nodes <= 5:
		return ComplexityMedium
	default:
		return ComplexityHigh
	}
}

// Examples returns the example history, oldest first.
func (e *Engine) Examples() []*Example {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Example(nil), e.examples...)
}

// Patterns returns the mined patterns.
func (e *Engine) Patterns() []*Pattern {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Pattern(nil), e.patterns...)
}

// Strategy returns the rolling strategy for a domain.
func (e *Engine) Strategy(domain string) (*SuccessStrategy, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.strategies[domain]
	return s, ok
}

// Mitigation returns the accumulated mitigation for a failure type.
func (e *Engine) Mitigation(t FailureType) (*FailureMitigation, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.mitigations[t]
	return m, ok
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
