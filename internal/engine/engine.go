package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/cortexd/internal/agent"
	"github.com/fyrsmithlabs/cortexd/internal/dispatch"
	"github.com/fyrsmithlabs/cortexd/internal/feedback"
	"github.com/fyrsmithlabs/cortexd/internal/learning"
	"github.com/fyrsmithlabs/cortexd/internal/memory"
	"github.com/fyrsmithlabs/cortexd/internal/metacog"
	"github.com/fyrsmithlabs/cortexd/internal/monitor"
	"github.com/fyrsmithlabs/cortexd/internal/planning"
	"github.com/fyrsmithlabs/cortexd/internal/understanding"
)

// Config holds the orchestrator's tunables.
type Config struct {
	// KnowledgeLimit caps retrieved knowledge recommendations per request.
	KnowledgeLimit int `koanf:"knowledge_limit"`

	// MaxRefinementRounds bounds feedback refinement within one request.
	MaxRefinementRounds int `koanf:"max_refinement_rounds"`

	// LowRatingBound marks user feedback ratings that become insights.
	LowRatingBound int `koanf:"low_rating_bound"`
}

// DefaultConfig returns the stock orchestrator settings.
func DefaultConfig() Config {
	return Config{
		KnowledgeLimit:      5,
		MaxRefinementRounds: 3,
		LowRatingBound:      2,
	}
}

// Dependencies are the wired cognitive components. Runtime may be nil when
// no language backend is attached; everything else is required.
type Dependencies struct {
	Runtime       agent.Runtime
	Registry      agent.Registry
	Memory        *memory.Store
	Understanding *understanding.Engine
	Planning      *planning.Engine
	Monitor       *monitor.Monitor
	Dispatcher    *dispatch.Dispatcher
	Feedback      *feedback.Engine
	Learning      *learning.Engine
	MetaCog       *metacog.Engine
}

func (d Dependencies) validate() error {
	switch {
	case d.Registry == nil:
		return errors.New("engine: registry is required")
	case d.Memory == nil:
		return errors.New("engine: memory store is required")
	case d.Understanding == nil:
		return errors.New("engine: understanding engine is required")
	case d.Planning == nil:
		return errors.New("engine: planning engine is required")
	case d.Monitor == nil:
		return errors.New("engine: execution monitor is required")
	case d.Dispatcher == nil:
		return errors.New("engine: dispatcher is required")
	case d.Feedback == nil:
		return errors.New("engine: feedback engine is required")
	case d.Learning == nil:
		return errors.New("engine: learning engine is required")
	case d.MetaCog == nil:
		return errors.New("engine: meta-cognitive engine is required")
	}
	return nil
}

// Engine is the cognitive orchestrator.
type Engine struct {
	cfg    Config
	logger *zap.Logger
	deps   Dependencies

	mu        sync.RWMutex
	sessions  map[string]*session
	listeners map[string][]Listener

	totalSessions      int
	requests           int
	cycles             int
	clarificationStops int
	confidenceSum      float64
}

// NewEngine wires the orchestrator over its components.
func NewEngine(deps Dependencies, cfg Config, logger *zap.Logger) (*Engine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if cfg.KnowledgeLimit <= 0 {
		cfg.KnowledgeLimit = DefaultConfig().KnowledgeLimit
	}
	if cfg.MaxRefinementRounds <= 0 {
		cfg.MaxRefinementRounds = DefaultConfig().MaxRefinementRounds
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cfg:       cfg,
		logger:    logger,
		deps:      deps,
		sessions:  make(map[string]*session),
		listeners: make(map[string][]Listener),
	}, nil
}

// StartSession opens a session for the user. An unhealthy runtime backend
// fails session start; it is not retried here.
func (e *Engine) StartSession(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", ErrEmptyUserID
	}
	if e.deps.Runtime != nil && !e.deps.Runtime.Healthy(ctx) {
		return "", fmt.Errorf("session start for %s: %w", userID, agent.ErrRuntimeUnavailable)
	}

	sess := &session{
		id:        uuid.New().String(),
		userID:    userID,
		status:    SessionActive,
		startedAt: time.Now(),
	}

	e.mu.Lock()
	e.sessions[sess.id] = sess
	e.totalSessions++
	e.mu.Unlock()

	e.logger.Info("session started",
		zap.String("session_id", sess.id),
		zap.String("user_id", userID))
	return sess.id, nil
}

// Subscribe registers a listener for one session's events.
func (e *Engine) Subscribe(sessionID string, fn Listener) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.sessions[sessionID]; !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	e.listeners[sessionID] = append(e.listeners[sessionID], fn)
	return nil
}

// Process runs the full cognitive pipeline for one input. The session's
// mutex serializes requests so a session never observes its own in-progress
// state.
func (e *Engine) Process(ctx context.Context, sessionID, input string) (*ProcessResult, error) {
	sess, err := e.activeSession(sessionID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.status != SessionActive {
		return nil, fmt.Errorf("%w: %s", ErrSessionEnded, sessionID)
	}

	start := time.Now()
	e.emit(Event{Kind: EventProcessingStarted, SessionID: sessionID, UserID: sess.userID, At: start})

	result := &ProcessResult{SessionID: sessionID}

	u, err := e.stageUnderstand(ctx, sess, input, result)
	if err != nil {
		return nil, err
	}
	result.Understanding = u

	if u.RequiresClarification {
		result.Clarifications = e.deps.Understanding.GenerateClarifications(u)
		result.Confidence = u.Confidence
		result.NextActions = append(result.NextActions, "answer the clarification questions")
		e.finalize(sess, result, start)
		e.mu.Lock()
		e.clarificationStops++
		e.mu.Unlock()
		return result, nil
	}

	e.stageKnowledge(ctx, u, result)

	plan, err := e.stagePlan(ctx, u, result)
	if err != nil {
		return nil, err
	}
	result.Plan = plan

	e.stageExecute(ctx, sess, plan, result)
	e.stageFeedback(ctx, sess, u, plan, result)
	e.stageLearn(ctx, sess, result)

	result.Confidence = aggregateConfidence(result)
	result.NextActions = append(result.NextActions, nextActions(result)...)
	e.finalize(sess, result, start)

	e.logger.Info("request processed",
		zap.String("session_id", sessionID),
		zap.Float64("confidence", result.Confidence),
		zap.Bool("success", result.Success),
		zap.Duration("elapsed", result.ProcessingTime))
	return result, nil
}

// stageUnderstand runs the understanding stage and assesses it.
func (e *Engine) stageUnderstand(ctx context.Context, sess *session, input string, result *ProcessResult) (*understanding.Understanding, error) {
	begin := time.Now()
	u, err := e.deps.Understanding.Understand(ctx, sess.userID, input)
	e.assess(metacog.ProcessUnderstanding, begin, confidenceOf(u), err, result)
	if err != nil {
		return nil, fmt.Errorf("understanding failed: %w", err)
	}
	return u, nil
}

// stageKnowledge retrieves prior knowledge; failures degrade to warnings.
func (e *Engine) stageKnowledge(ctx context.Context, u *understanding.Understanding, result *ProcessResult) {
	begin := time.Now()
	recs, err := e.deps.Learning.GetRelevantKnowledge(ctx, u, e.cfg.KnowledgeLimit)
	e.assess(metacog.ProcessEvaluation, begin, u.Confidence, err, result)
	if err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("knowledge retrieval: %v", err))
		return
	}
	result.Knowledge = recs
}

// stagePlan builds and assesses the execution plan.
func (e *Engine) stagePlan(ctx context.Context, u *understanding.Understanding, result *ProcessResult) (*planning.Plan, error) {
	begin := time.Now()
	plan, err := e.deps.Planning.CreatePlan(ctx, u)
	conf := 0.0
	if plan != nil {
		conf = plan.Confidence
	}
	e.assess(metacog.ProcessPlanning, begin, conf, err, result)
	if err != nil {
		return nil, fmt.Errorf("planning failed: %w", err)
	}
	if plan.Validation != nil && !plan.Validation.Valid {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("plan %s failed validation with %d issues", plan.ID, len(plan.Validation.Issues)))
	}
	return plan, nil
}

// stageExecute dispatches the plan under monitoring. Dispatch failures are
// carried in the result, not returned.
func (e *Engine) stageExecute(ctx context.Context, sess *session, plan *planning.Plan, result *ProcessResult) {
	begin := time.Now()

	if err := e.deps.Monitor.StartMonitoring(plan); err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("monitoring: %v", err))
	}

	dres, err := e.deps.Dispatcher.ExecutePlan(ctx, plan, sess.userID)
	status := monitor.StatusCompleted
	if err != nil || (dres != nil && !dres.Success()) {
		status = monitor.StatusFailed
	}
	if stopErr := e.deps.Monitor.StopMonitoring(plan.ID, status); stopErr != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("monitoring stop: %v", stopErr))
	}

	result.Dispatch = dres
	if err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("dispatch: %v", err))
	}

	state, stateErr := e.deps.Monitor.State(plan.ID)
	if stateErr == nil {
		result.Execution = &state
	}

	successRate := 0.0
	if dres != nil {
		result.Success = dres.Success()
		for id, task := range dres.Tasks {
			score := 0.0
			if task.Success {
				score = 1.0
			}
			result.Evaluations = append(result.Evaluations, feedback.EvaluationResult{TaskID: id, Score: score})
		}
		if total := len(dres.Completed) + len(dres.Failed); total > 0 {
			successRate = float64(len(dres.Completed)) / float64(total)
		}
	}
	e.assess(metacog.ProcessExecution, begin, successRate, err, result)
}

// stageFeedback wraps the attempt in a feedback cycle and applies bounded
// refinement rounds.
func (e *Engine) stageFeedback(ctx context.Context, sess *session, u *understanding.Understanding, plan *planning.Plan, result *ProcessResult) {
	begin := time.Now()

	cycle := e.deps.Feedback.StartCycle(sess.id, u, plan)
	result.FeedbackCycleID = cycle.ID
	sess.lastCycleID = cycle.ID

	var exec monitor.ExecutionState
	if result.Execution != nil {
		exec = *result.Execution
	}
	if err := e.deps.Feedback.ProcessCycleResults(cycle.ID, exec, result.Evaluations); err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("feedback analysis: %v", err))
		e.assess(metacog.ProcessFeedback, begin, 0, err, result)
		return
	}

	rounds := 0
	for rounds < e.cfg.MaxRefinementRounds && e.deps.Feedback.ShouldTriggerRefinement(cycle) {
		if ctx.Err() != nil {
			break
		}
		applied, err := e.deps.Feedback.ApplyRefinements(cycle.ID)
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("refinement: %v", err))
			break
		}
		rounds++
		for _, a := range applied {
			if !a.Succeeded {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("refinement %s failed: %s", a.Kind, a.Error))
			}
		}
	}

	completed, err := e.deps.Feedback.CompleteCycle(cycle.ID)
	if err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("cycle completion: %v", err))
	} else {
		e.mu.Lock()
		e.cycles++
		e.mu.Unlock()
		sess.lastCycleID = completed.ID
	}
	e.assess(metacog.ProcessFeedback, begin, lastConfidence(cycle.ConfidenceHistory), err, result)
}

// stageLearn distills the completed cycle into knowledge.
func (e *Engine) stageLearn(ctx context.Context, sess *session, result *ProcessResult) {
	if sess.lastCycleID == "" {
		return
	}
	begin := time.Now()

	var example *learning.Example
	cycle, err := e.completedCycle(sess.lastCycleID)
	if err == nil {
		example, err = e.deps.Learning.LearnFromCycle(ctx, cycle)
	}
	conf := 0.0
	if example != nil {
		result.LearningInsights = append(result.LearningInsights, example.Lessons...)
		sess.lastLessons = append([]string(nil), example.Lessons...)
		conf = example.Metrics.SuccessRate
	}
	e.assess(metacog.ProcessLearning, begin, conf, err, result)
	if err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("learning: %v", err))
	}
}

// completedCycle finds the archived cycle by id.
func (e *Engine) completedCycle(cycleID string) (*feedback.Cycle, error) {
	for _, c := range e.deps.Feedback.History() {
		if c.ID == cycleID {
			return c, nil
		}
	}
	return nil, fmt.Errorf("completed cycle %s not found", cycleID)
}

// assess feeds one stage's timing into the meta-cognitive engine and
// records the assessment. Load is modeled as the stage's inefficiency.
func (e *Engine) assess(p metacog.Process, begin time.Time, confidence float64, stageErr error, result *ProcessResult) {
	a := e.deps.MetaCog.AssessProcess(metacog.ProcessContext{
		Process:    p,
		Confidence: confidence,
		Duration:   time.Since(begin),
		HadError:   stageErr != nil,
	})
	e.deps.MetaCog.UpdateLoad(p, 1-a.Efficiency)
	result.Assessments = append(result.Assessments, a)
}

// finalize stamps the result, updates counters, and emits the completion
// event.
func (e *Engine) finalize(sess *session, result *ProcessResult, start time.Time) {
	result.CognitiveLoad = e.deps.MetaCog.Load()
	result.ProcessingTime = time.Since(start)

	sess.requests++
	sess.lastConfidence = result.Confidence

	e.mu.Lock()
	e.requests++
	e.confidenceSum += result.Confidence
	e.mu.Unlock()

	e.emit(Event{
		Kind:       EventProcessingCompleted,
		SessionID:  sess.id,
		UserID:     sess.userID,
		Confidence: result.Confidence,
		Success:    result.Success,
		At:         time.Now(),
	})
}

// GetInsights reports session-level and engine-level introspection.
func (e *Engine) GetInsights(sessionID string) (*Insights, error) {
	sess, err := e.session(sessionID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	summary := fmt.Sprintf("session %s: %d requests, last confidence %.2f",
		sess.id, sess.requests, sess.lastConfidence)
	lessons := append([]string(nil), sess.lastLessons...)
	sess.mu.Unlock()

	load := e.deps.MetaCog.Load()
	health := "healthy"
	if load.RebalanceNeeded {
		health = "strained"
	}

	return &Insights{
		SessionSummary:   summary,
		LearningInsights: lessons,
		MetaInsights:     e.deps.MetaCog.Insights(),
		Recommendations:  e.deps.MetaCog.Recommendations(),
		CognitiveHealth:  health,
	}, nil
}

// ApplyImprovements applies caller-selected improvements. Meta-learning
// improvements resolve the matching insight; process-area improvements are
// acknowledged; unknown areas fail individually.
func (e *Engine) ApplyImprovements(sessionID string, improvements []Improvement) (*ApplyResult, error) {
	if _, err := e.session(sessionID); err != nil {
		return nil, err
	}

	known := make(map[string]bool, len(metacog.AllProcesses))
	for _, p := range metacog.AllProcesses {
		known[string(p)] = true
	}

	out := &ApplyResult{}
	for _, imp := range improvements {
		switch {
		case imp.Area == "meta-learning":
			if e.resolveInsightByDescription(imp.Description) {
				out.Applied++
				out.Results = append(out.Results, fmt.Sprintf("resolved insight: %s", imp.Description))
			} else {
				out.Failed++
				out.Results = append(out.Results, fmt.Sprintf("no unresolved insight matches: %s", imp.Description))
			}
		case imp.Area == "load_balance" || known[imp.Area]:
			out.Applied++
			out.Results = append(out.Results, fmt.Sprintf("acknowledged %s improvement", imp.Area))
		default:
			out.Failed++
			out.Results = append(out.Results, fmt.Sprintf("unknown improvement area %q", imp.Area))
		}
	}
	return out, nil
}

func (e *Engine) resolveInsightByDescription(description string) bool {
	for _, insight := range e.deps.MetaCog.Insights() {
		if !insight.Resolved && strings.EqualFold(insight.Description, description) {
			return e.deps.MetaCog.ResolveInsight(insight.ID)
		}
	}
	return false
}

// GetStats returns the engine-wide counter snapshot. Calling it twice with
// no intervening activity yields identical values.
func (e *Engine) GetStats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	active := 0
	for _, sess := range e.sessions {
		if sess.status == SessionActive {
			active++
		}
	}

	avg := 0.0
	if e.requests > 0 {
		avg = e.confidenceSum / float64(e.requests)
	}

	return Stats{
		ActiveSessions:     active,
		TotalSessions:      e.totalSessions,
		RequestsProcessed:  e.requests,
		CyclesCompleted:    e.cycles,
		ClarificationStops: e.clarificationStops,
		AverageConfidence:  avg,
		CognitiveLoad:      e.deps.MetaCog.Load(),
	}
}

// CollectFeedback records a user's rating for a session. Low ratings
// become meta-learning insights.
func (e *Engine) CollectFeedback(userID, sessionID string, rating int, comment string) error {
	sess, err := e.session(sessionID)
	if err != nil {
		return err
	}
	if sess.userID != userID {
		return fmt.Errorf("%w: %s", ErrWrongUser, sessionID)
	}

	if err := e.deps.Memory.AppendTurn(userID, "feedback", fmt.Sprintf("rating=%d %s", rating, comment)); err != nil {
		return fmt.Errorf("recording feedback: %w", err)
	}
	if rating <= e.cfg.LowRatingBound {
		e.deps.MetaCog.AddInsight(fmt.Sprintf("user %s rated session %s %d/5: %s", userID, sessionID, rating, comment))
	}

	e.emit(Event{Kind: EventFeedbackCollected, SessionID: sessionID, UserID: userID, At: time.Now()})
	return nil
}

// EndSession closes a session. The session record is retained for stats;
// its listeners are dropped after the final event.
func (e *Engine) EndSession(sessionID string) error {
	sess, err := e.session(sessionID)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	if sess.status == SessionEnded {
		sess.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSessionEnded, sessionID)
	}
	now := time.Now()
	sess.status = SessionEnded
	sess.endedAt = &now
	sess.mu.Unlock()

	e.emit(Event{Kind: EventSessionEnded, SessionID: sessionID, UserID: sess.userID, At: now})

	e.mu.Lock()
	delete(e.listeners, sessionID)
	e.mu.Unlock()

	e.logger.Info("session ended", zap.String("session_id", sessionID))
	return nil
}

// session looks up a session by id.
func (e *Engine) session(sessionID string) (*session, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	sess, ok := e.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return sess, nil
}

// activeSession looks up a session and rejects ended ones.
func (e *Engine) activeSession(sessionID string) (*session, error) {
	sess, err := e.session(sessionID)
	if err != nil {
		return nil, err
	}
	if sess.status != SessionActive {
		return nil, fmt.Errorf("%w: %s", ErrSessionEnded, sessionID)
	}
	return sess, nil
}

// emit delivers an event to the session's listeners.
func (e *Engine) emit(event Event) {
	e.mu.RLock()
	listeners := append([]Listener(nil), e.listeners[event.SessionID]...)
	e.mu.RUnlock()
	for _, fn := range listeners {
		fn(event)
	}
}

func confidenceOf(u *understanding.Understanding) float64 {
	if u == nil {
		return 0
	}
	return u.Confidence
}

func lastConfidence(history []float64) float64 {
	if len(history) == 0 {
		return 0
	}
	return history[len(history)-1]
}

// aggregateConfidence blends understanding, plan, and execution outcomes.
func aggregateConfidence(result *ProcessResult) float64 {
	conf := 0.4 * result.Understanding.Confidence
	if result.Plan != nil {
		conf += 0.3 * result.Plan.Confidence
	}
	if result.Execution != nil {
		conf += 0.3 * result.Execution.Performance.SuccessRate
	}
	if conf > 1 {
		conf = 1
	}
	if conf < 0 {
		conf = 0
	}
	return conf
}

// nextActions derives follow-ups from the request outcome.
func nextActions(result *ProcessResult) []string {
	var actions []string
	if result.Dispatch != nil && len(result.Dispatch.Failed) > 0 {
		actions = append(actions, fmt.Sprintf("review %d failed tasks", len(result.Dispatch.Failed)))
	}
	if result.Plan != nil && (result.Plan.RiskLevel == planning.RiskHigh || result.Plan.RiskLevel == planning.RiskCritical) {
		actions = append(actions, "review plan risk factors before rerunning")
	}
	if result.Success {
		actions = append(actions, "no follow-up required")
	}
	return actions
}
