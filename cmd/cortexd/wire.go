package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/cortexd/internal/agent"
	"github.com/fyrsmithlabs/cortexd/internal/config"
	"github.com/fyrsmithlabs/cortexd/internal/dispatch"
	"github.com/fyrsmithlabs/cortexd/internal/engine"
	"github.com/fyrsmithlabs/cortexd/internal/feedback"
	"github.com/fyrsmithlabs/cortexd/internal/learning"
	"github.com/fyrsmithlabs/cortexd/internal/logging"
	"github.com/fyrsmithlabs/cortexd/internal/memory"
	"github.com/fyrsmithlabs/cortexd/internal/metacog"
	"github.com/fyrsmithlabs/cortexd/internal/monitor"
	"github.com/fyrsmithlabs/cortexd/internal/planning"
	"github.com/fyrsmithlabs/cortexd/internal/telemetry"
	"github.com/fyrsmithlabs/cortexd/internal/understanding"
)

// App is the fully wired engine plus its supporting providers.
type App struct {
	Engine    *engine.Engine
	Logger    *zap.Logger
	Telemetry *telemetry.Provider
}

// buildApp loads configuration and wires every cognitive component over
// the local runtime and worker.
func buildApp(configPath string) (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, err
	}

	tel, err := telemetry.NewProvider(cfg.Telemetry.ServiceName, nil)
	if err != nil {
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}

	store := memory.NewStore(logger,
		memory.WithMaxTurns(cfg.Memory.MaxTurns),
		memory.WithMaxClarifications(cfg.Memory.MaxClarifications))

	runtime := &localRuntime{}
	ue, err := understanding.NewEngine(runtime, store, cfg.Understanding, logger)
	if err != nil {
		return nil, err
	}

	registry := agent.NewInMemoryRegistry(logger)
	registry.Register("local-worker", &localWorker{},
		[]string{"general", "research", "scheduling", "summarization", "code"},
		nil)

	pe, err := planning.NewEngine(registry, cfg.Planning, logger)
	if err != nil {
		return nil, err
	}

	mon := monitor.NewMonitor(cfg.Monitor, logger)

	dispatcher, err := dispatch.NewDispatcher(registry, cfg.Dispatch, logger,
		dispatch.WithEventSink(func(planID string, ev monitor.TaskEvent) {
			if err := mon.RecordTaskEvent(planID, ev); err != nil {
				logger.Debug("dropping task event", zap.String("plan_id", planID), zap.Error(err))
			}
		}))
	if err != nil {
		return nil, err
	}

	le, err := learning.NewEngine(cfg.Learning, logger)
	if err != nil {
		return nil, err
	}

	eng, err := engine.NewEngine(engine.Dependencies{
		Runtime:       runtime,
		Registry:      registry,
		Memory:        store,
		Understanding: ue,
		Planning:      pe,
		Monitor:       mon,
		Dispatcher:    dispatcher,
		Feedback:      feedback.NewEngine(cfg.Feedback, logger),
		Learning:      le,
		MetaCog:       metacog.NewEngine(cfg.MetaCog, logger),
	}, cfg.Engine, logger)
	if err != nil {
		return nil, err
	}

	return &App{Engine: eng, Logger: logger, Telemetry: tel}, nil
}

// ProcessOnce runs one message through a fresh session.
func (a *App) ProcessOnce(ctx context.Context, user, message string) (*engine.ProcessResult, error) {
	ctx, span := a.Telemetry.Tracer().Start(ctx, "process")
	defer span.End()

	sessionID, err := a.Engine.StartSession(ctx, user)
	if err != nil {
		return nil, err
	}
	a.Telemetry.SessionsStarted.Add(ctx, 1)

	result, err := a.Engine.Process(ctx, sessionID, message)
	if err != nil {
		return nil, err
	}
	a.Telemetry.RequestsProcessed.Add(ctx, 1)
	if result.FeedbackCycleID != "" {
		a.Telemetry.CyclesCompleted.Add(ctx, 1)
	}

	if err := a.Engine.EndSession(sessionID); err != nil {
		a.Logger.Warn("ending session", zap.Error(err))
	}
	return result, nil
}

// Close flushes providers.
func (a *App) Close(ctx context.Context) {
	if err := a.Telemetry.Shutdown(ctx); err != nil {
		a.Logger.Warn("telemetry shutdown", zap.Error(err))
	}
	_ = a.Logger.Sync()
}

// localRuntime is a rule-based intent parser used when no language backend
// is attached.
type localRuntime struct{}

func (localRuntime) Initialize(ctx context.Context, config map[string]any) error { return nil }
func (localRuntime) Shutdown(ctx context.Context) error                          { return nil }

func (localRuntime) ParseIntent(ctx context.Context, userID, message string, _ map[string]any) (*agent.Intent, error) {
	lower := strings.ToLower(message)
	for _, probe := range []struct {
		intentType string
		keyword    string
		confidence float64
	}{
		{"schedule", "schedule", 0.85},
		{"schedule", "every day", 0.8},
		{"research", "research", 0.9},
		{"research", "find out", 0.75},
		{"summarize", "summar", 0.85},
		{"question", "?", 0.7},
	} {
		if strings.Contains(lower, probe.keyword) {
			return &agent.Intent{Type: probe.intentType, Confidence: probe.confidence}, nil
		}
	}
	return &agent.Intent{Type: "general", Confidence: 0.6}, nil
}

func (localRuntime) CreatePlan(ctx context.Context, intent *agent.Intent) (*agent.PlanSketch, error) {
	return &agent.PlanSketch{
		Steps:                  []string{"analyze request", "execute", "report"},
		TotalEstimatedDuration: 30 * time.Minute,
		Confidence:             0.6,
	}, nil
}

func (localRuntime) GenerateResponse(ctx context.Context, intent *agent.Intent) (string, error) {
	return fmt.Sprintf("acknowledged %s request", intent.Type), nil
}

func (localRuntime) Healthy(ctx context.Context) bool { return true }

func (localRuntime) Status(ctx context.Context) (*agent.RuntimeStatus, error) {
	return &agent.RuntimeStatus{Provider: "local", Version: version, Status: "ok", LastCheck: time.Now()}, nil
}

// localWorker acknowledges every delegated task.
type localWorker struct{}

func (localWorker) DelegateTask(ctx context.Context, req agent.TaskRequest) (*agent.TaskResult, error) {
	return &agent.TaskResult{
		TaskID:  req.TaskID,
		AgentID: req.AgentID,
		Success: true,
		Output:  map[string]any{"status": "acknowledged", "capability": req.Capability},
	}, nil
}

func (localWorker) CancelTask(ctx context.Context, taskID string) error { return nil }
