package metacog

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Config holds the meta-cognitive engine's tunables. Cut-points and blend
// weights are uncalibrated heuristics inherited from the original platform.
type Config struct {
	// ExcellentCutoff through WeakCutoff grade overall scores; below
	// WeakCutoff the verdict is poor.
	ExcellentCutoff float64 `koanf:"excellent_cutoff"`
	GoodCutoff      float64 `koanf:"good_cutoff"`
	AdequateCutoff  float64 `koanf:"adequate_cutoff"`
	WeakCutoff      float64 `koanf:"weak_cutoff"`

	// BottleneckLoad is the per-component load marking a bottleneck.
	BottleneckLoad float64 `koanf:"bottleneck_load"`

	// TotalLoadLimit and BalanceFloor trigger rebalancing when crossed.
	TotalLoadLimit float64 `koanf:"total_load_limit"`
	BalanceFloor   float64 `koanf:"balance_floor"`

	// CapabilityBlend is the weight of a new assessment in the profile.
	CapabilityBlend float64 `koanf:"capability_blend"`

	// StrengthCutoff and GrowthCutoff group capability scores; scores
	// below PriorityCutoff become development priorities.
	StrengthCutoff float64 `koanf:"strength_cutoff"`
	GrowthCutoff   float64 `koanf:"growth_cutoff"`
	PriorityCutoff float64 `koanf:"priority_cutoff"`

	// ScoreHistoryCap bounds the per-process performance history used for
	// the reliability term.
	ScoreHistoryCap int `koanf:"score_history_cap"`

	// MaxRecommendations caps generated recommendations.
	MaxRecommendations int `koanf:"max_recommendations"`
}

// DefaultConfig returns the stock meta-cognitive heuristics.
func DefaultConfig() Config {
	return Config{
		ExcellentCutoff:    0.9,
		GoodCutoff:         0.75,
		AdequateCutoff:     0.6,
		WeakCutoff:         0.4,
		BottleneckLoad:     0.8,
		TotalLoadLimit:     0.8,
		BalanceFloor:       0.6,
		CapabilityBlend:    0.2,
		StrengthCutoff:     0.8,
		GrowthCutoff:       0.65,
		PriorityCutoff:     0.5,
		ScoreHistoryCap:    50,
		MaxRecommendations: 10,
	}
}

// expectedDurations is the per-process duration table efficiency is scored
// against.
var expectedDurations = map[Process]time.Duration{
	ProcessUnderstanding: 500 * time.Millisecond,
	ProcessPlanning:      time.Second,
	ProcessExecution:     30 * time.Second,
	ProcessEvaluation:    time.Second,
	ProcessFeedback:      time.Second,
	ProcessLearning:      2 * time.Second,
	ProcessMetaCognition: 200 * time.Millisecond,
}

// Engine is the meta-cognitive engine. It observes the other components and
// depends on none of them.
type Engine struct {
	cfg    Config
	logger *zap.Logger

	mu           sync.Mutex
	scoreHistory map[Process][]float64
	loads        map[Process]float64
	capabilities map[Process]*Capability
	insights     []*Insight
}

// NewEngine creates a meta-cognitive engine.
func NewEngine(cfg Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	loads := make(map[Process]float64, len(AllProcesses))
	for _, p := range AllProcesses {
		loads[p] = 0
	}
	return &Engine{
		cfg:          cfg,
		logger:       logger,
		scoreHistory: make(map[Process][]float64),
		loads:        loads,
		capabilities: make(map[Process]*Capability),
	}
}

// AssessProcess scores one invocation from its declared context and the
// process's score history, then folds the result into the capability
// profile.
func (e *Engine) AssessProcess(pctx ProcessContext) *Assessment {
	e.mu.Lock()
	defer e.mu.Unlock()

	performance := clampUnit(pctx.Confidence)

	expected := expectedDurations[pctx.Process]
	efficiency := 1.0
	if expected > 0 && pctx.Duration > expected {
		efficiency = float64(expected) / float64(pctx.Duration)
	}
	// Heavy resource usage discounts efficiency.
	efficiency = clampUnit(efficiency * (1 - 0.3*clampUnit(pctx.ResourceUsage)))

	accuracy := clampUnit(pctx.Confidence + 0.1)
	if pctx.HadError {
		accuracy = clampUnit(pctx.Confidence - 0.3)
	}

	reliability := 1 - historicalVariance(e.scoreHistory[pctx.Process])

	overall := (performance + efficiency + accuracy + reliability) / 4
	assessment := &Assessment{
		ID:          uuid.New().String(),
		Process:     pctx.Process,
		Performance: performance,
		Efficiency:  efficiency,
		Accuracy:    accuracy,
		Reliability: clampUnit(reliability),
		Overall:     overall,
		Verdict:     e.verdict(overall),
		CreatedAt:   time.Now(),
	}

	history := append(e.scoreHistory[pctx.Process], performance)
	if limit := e.cfg.ScoreHistoryCap; limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	e.scoreHistory[pctx.Process] = history

	e.blendCapabilityLocked(pctx.Process, overall)

	e.logger.Debug("process assessed",
		zap.String("process", string(pctx.Process)),
		zap.Float64("overall", overall),
		zap.String("verdict", string(assessment.Verdict)))
	return assessment
}

// verdict grades an overall score against the configured cut-points.
func (e *Engine) verdict(overall float64) Verdict {
	switch {
	case overall >= e.cfg.ExcellentCutoff:
		return VerdictExcellent
	case overall >= e.cfg.GoodCutoff:
		return VerdictGood
	case overall >= e.cfg.AdequateCutoff:
		return VerdictAdequate
	case overall >= e.cfg.WeakCutoff:
		return VerdictWeak
	default:
		return VerdictPoor
	}
}

// blendCapabilityLocked nudges the profile entry toward a new overall
// score. Caller holds e.mu.
func (e *Engine) blendCapabilityLocked(p Process, overall float64) {
	capability, ok := e.capabilities[p]
	if !ok {
		capability = &Capability{Process: p, Score: overall}
		e.capabilities[p] = capability
	} else {
		blend := e.cfg.CapabilityBlend
		capability.Score = (1-blend)*capability.Score + blend*overall
	}
	capability.Assessments++
}

// UpdateLoad records one component's current load in [0,1].
func (e *Engine) UpdateLoad(p Process, load float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loads[p] = clampUnit(load)
}

// Load returns the current load snapshot.
func (e *Engine) Load() LoadSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loadSnapshotLocked()
}

// loadSnapshotLocked derives the snapshot. Caller holds e.mu.
func (e *Engine) loadSnapshotLocked() LoadSnapshot {
	snap := LoadSnapshot{Components: make(map[Process]float64, len(AllProcesses))}

	var total, variance float64
	for _, p := range AllProcesses {
		snap.Components[p] = e.loads[p]
		total += e.loads[p]
	}
	mean := total / float64(len(AllProcesses))
	for _, p := range AllProcesses {
		d := e.loads[p] - mean
		variance += d * d
	}
	variance /= float64(len(AllProcesses))

	snap.Total = mean
	snap.Balance = 1 - math.Min(1, variance/0.25)
	for _, p := range AllProcesses {
		if e.loads[p] > e.cfg.BottleneckLoad {
			snap.Bottlenecks = append(snap.Bottlenecks, p)
		}
	}
	snap.RebalanceNeeded = snap.Total > e.cfg.TotalLoadLimit ||
		snap.Balance < e.cfg.BalanceFloor ||
		len(snap.Bottlenecks) > 0
	return snap
}

// Profile returns the capability profile with derived groupings.
func (e *Engine) Profile() CapabilityProfile {
	e.mu.Lock()
	defer e.mu.Unlock()

	profile := CapabilityProfile{Capabilities: make(map[Process]*Capability, len(e.capabilities))}
	for _, p := range AllProcesses {
		capability, ok := e.capabilities[p]
		if !ok {
			continue
		}
		clone := *capability
		profile.Capabilities[p] = &clone

		switch {
		case capability.Score >= e.cfg.StrengthCutoff:
			profile.Strengths = append(profile.Strengths, p)
		case capability.Score < e.cfg.PriorityCutoff:
			profile.DevelopmentPriorities = append(profile.DevelopmentPriorities, p)
			profile.GrowthAreas = append(profile.GrowthAreas, p)
		case capability.Score < e.cfg.GrowthCutoff:
			profile.GrowthAreas = append(profile.GrowthAreas, p)
		}
	}
	return profile
}

// AddInsight records a meta-learning observation.
func (e *Engine) AddInsight(description string) *Insight {
	e.mu.Lock()
	defer e.mu.Unlock()

	insight := &Insight{
		ID:          uuid.New().String(),
		Description: description,
		CreatedAt:   time.Now(),
	}
	e.insights = append(e.insights, insight)
	return insight
}

// ResolveInsight marks an insight as acted on.
func (e *Engine) ResolveInsight(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, insight := range e.insights {
		if insight.ID == id {
			insight.Resolved = true
			return true
		}
	}
	return false
}

// Insights returns all recorded insights.
func (e *Engine) Insights() []*Insight {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Insight(nil), e.insights...)
}

// Recommendations merges performance gaps, load-balance gaps, weak
// capabilities, and unresolved insights into a ranked list capped at the
// configured maximum.
func (e *Engine) Recommendations() []ImprovementRecommendation {
	e.mu.Lock()
	defer e.mu.Unlock()

	var recs []ImprovementRecommendation

	for _, p := range AllProcesses {
		history := e.scoreHistory[p]
		if len(history) == 0 {
			continue
		}
		var sum float64
		for _, s := range history {
			sum += s
		}
		avg := sum / float64(len(history))
		if avg < 0.7 {
			recs = append(recs, ImprovementRecommendation{
				Area:        string(p),
				Description: fmt.Sprintf("average %s performance is %.2f; review its inputs and heuristics", p, avg),
				Priority:    clampUnit(0.7 - avg + 0.3),
			})
		}
	}

	snap := e.loadSnapshotLocked()
	if snap.Balance < e.cfg.BalanceFloor {
		recs = append(recs, ImprovementRecommendation{
			Area:        "load_balance",
			Description: fmt.Sprintf("cognitive load balance is %.2f; shift work away from loaded components", snap.Balance),
			Priority:    0.8,
		})
	}
	for _, p := range snap.Bottlenecks {
		recs = append(recs, ImprovementRecommendation{
			Area:        string(p),
			Description: fmt.Sprintf("component %s is a bottleneck at load %.2f", p, snap.Components[p]),
			Priority:    0.9,
		})
	}

	for _, p := range AllProcesses {
		if capability, ok := e.capabilities[p]; ok && capability.Score < e.cfg.PriorityCutoff {
			recs = append(recs, ImprovementRecommendation{
				Area:        string(p),
				Description: fmt.Sprintf("capability %s scores %.2f; prioritize its development", p, capability.Score),
				Priority:    clampUnit(1 - capability.Score),
			})
		}
	}

	for _, insight := range e.insights {
		if insight.Resolved {
			continue
		}
		recs = append(recs, ImprovementRecommendation{
			Area:        "meta-learning",
			Description: insight.Description,
			Priority:    0.5,
		})
	}

	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Priority > recs[j].Priority })
	if max := e.cfg.MaxRecommendations; max > 0 && len(recs) > max {
		recs = recs[:max]
	}
	return recs
}

// historicalVariance is the variance of a score history; an empty history
// contributes zero (fully reliable until proven otherwise).
func historicalVariance(scores []float64) float64 {
	if len(scores) < 2 {
		return 0
	}
	var mean float64
	for _, s := range scores {
		mean += s
	}
	mean /= float64(len(scores))

	var variance float64
	for _, s := range scores {
		d := s - mean
		variance += d * d
	}
	return variance / float64(len(scores))
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
