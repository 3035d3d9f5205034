package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/cortexd/internal/agent"
	"github.com/fyrsmithlabs/cortexd/internal/monitor"
	"github.com/fyrsmithlabs/cortexd/internal/planning"
)

var (
	// ErrNilPlan is returned when no plan is supplied.
	ErrNilPlan = errors.New("dispatch: nil plan")

	// ErrEmptyPlan is returned for plans with no nodes.
	ErrEmptyPlan = errors.New("dispatch: plan has no nodes")

	// ErrDependencyDeadlock is returned when no pending node can become
	// ready and nothing is in flight.
	ErrDependencyDeadlock = errors.New("dispatch: dependency deadlock")
)

// Config holds the dispatcher's tunables.
type Config struct {
	// MaxConcurrentTasks bounds how many delegations run at once.
	MaxConcurrentTasks int `koanf:"max_concurrent_tasks"`

	// TaskTimeout bounds each delegation call.
	TaskTimeout time.Duration `koanf:"task_timeout"`

	// RatePerSecond throttles delegation starts; zero disables the
	// limiter.
	RatePerSecond float64 `koanf:"rate_per_second"`

	// RateBurst is the limiter's burst size.
	RateBurst int `koanf:"rate_burst"`
}

// DefaultConfig returns the stock dispatcher settings.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentTasks: 8,
		TaskTimeout:        30 * time.Second,
		RateBurst:          1,
	}
}

// EventSink receives task-status events as execution progresses. The
// Cognitive Engine wires this to the Execution Monitor.
type EventSink func(planID string, event monitor.TaskEvent)

// Result is the outcome of one plan execution.
type Result struct {
	// PlanID is the executed plan.
	PlanID string `json:"plan_id"`

	// Tasks maps every node id to its delegation outcome. Nodes skipped
	// because a prerequisite failed carry a synthetic failed result.
	Tasks map[string]*agent.TaskResult `json:"tasks"`

	// Completed and Failed list node ids by outcome, sorted.
	Completed []string `json:"completed"`
	Failed    []string `json:"failed"`

	// Waves counts dispatch rounds.
	Waves int `json:"waves"`

	// Duration is total wall-clock execution time.
	Duration time.Duration `json:"duration"`
}

// Success reports whether every node completed.
func (r *Result) Success() bool {
	return len(r.Failed) == 0 && len(r.Completed) > 0
}

// Dispatcher resolves plan nodes to worker agents and executes them in
// dependency order.
type Dispatcher struct {
	registry agent.Registry
	cfg      Config
	logger   *zap.Logger
	limiter  *rate.Limiter
	sink     EventSink
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithEventSink registers a task-status event sink.
func WithEventSink(sink EventSink) Option {
	return func(d *Dispatcher) { d.sink = sink }
}

// NewDispatcher creates a dispatcher over the given registry.
func NewDispatcher(registry agent.Registry, cfg Config, logger *zap.Logger, opts ...Option) (*Dispatcher, error) {
	if registry == nil {
		return nil, errors.New("dispatch: registry is required")
	}
	if cfg.MaxConcurrentTasks <= 0 {
		cfg.MaxConcurrentTasks = DefaultConfig().MaxConcurrentTasks
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = DefaultConfig().TaskTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		registry: registry,
		cfg:      cfg,
		logger:   logger,
	}
	if cfg.RatePerSecond > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		d.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// ExecutePlan runs the plan's nodes in dependency order. The returned
// Result covers every node, including failures; the error is non-nil only
// for whole-plan faults (deadlock, cancellation, bad input).
func (d *Dispatcher) ExecutePlan(ctx context.Context, plan *planning.Plan, userID string) (*Result, error) {
	if plan == nil {
		return nil, ErrNilPlan
	}
	if len(plan.Nodes) == 0 {
		return nil, ErrEmptyPlan
	}

	start := time.Now()
	deps := plan.Dependencies()

	pending := make(map[string]bool, len(plan.Nodes))
	for _, n := range plan.Nodes {
		pending[n.ID] = true
	}
	done := make(map[string]bool, len(plan.Nodes))
	failed := make(map[string]bool)

	result := &Result{
		PlanID: plan.ID,
		Tasks:  make(map[string]*agent.TaskResult, len(plan.Nodes)),
	}

	for len(pending) > 0 {
		d.cascadeFailures(pending, failed, deps, result)
		if len(pending) == 0 {
			break
		}

		ready := readyNodes(plan, pending, done, deps)
		if len(ready) == 0 {
			d.finish(result, done, failed, start)
			return result, fmt.Errorf("plan %s: %w", plan.ID, ErrDependencyDeadlock)
		}

		result.Waves++
		outcomes, err := d.dispatchWave(ctx, plan, ready, userID)
		if err == nil {
			err = ctx.Err()
		}
		for id, res := range outcomes {
			result.Tasks[id] = res
			delete(pending, id)
			if res.Success {
				done[id] = true
			} else {
				failed[id] = true
			}
		}
		if err != nil {
			d.finish(result, done, failed, start)
			return result, fmt.Errorf("plan %s: %w", plan.ID, err)
		}
	}

	d.finish(result, done, failed, start)
	d.logger.Info("plan executed",
		zap.String("plan_id", plan.ID),
		zap.Int("waves", result.Waves),
		zap.Int("completed", len(result.Completed)),
		zap.Int("failed", len(result.Failed)),
		zap.Duration("duration", result.Duration))
	return result, nil
}

// cascadeFailures removes pending nodes whose prerequisites failed,
// recording a synthetic failed result for each. Repeats until no further
// node is affected.
func (d *Dispatcher) cascadeFailures(pending, failed map[string]bool, deps map[string][]string, result *Result) {
	for {
		changed := false
		for id := range pending {
			for _, dep := range deps[id] {
				if !failed[id] && failed[dep] {
					result.Tasks[id] = &agent.TaskResult{
						TaskID:  id,
						Success: false,
						Error:   fmt.Sprintf("prerequisite %s failed", dep),
					}
					failed[id] = true
					delete(pending, id)
					d.emit(result.PlanID, monitor.TaskEvent{TaskID: id, Kind: monitor.TaskFailed})
					changed = true
					break
				}
			}
		}
		if !changed {
			return
		}
	}
}

// readyNodes returns pending nodes whose every prerequisite has completed,
// ordered by priority descending then id.
func readyNodes(plan *planning.Plan, pending, done map[string]bool, deps map[string][]string) []*planning.Node {
	var ready []*planning.Node
	for i := range plan.Nodes {
		n := &plan.Nodes[i]
		if !pending[n.ID] {
			continue
		}
		ok := true
		for _, dep := range deps[n.ID] {
			if !done[dep] {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, n)
		}
	}
	sort.Slice(ready, func(i, j int) bool {
		ri, rj := ready[i].Priority.Rank(), ready[j].Priority.Rank()
		if ri != rj {
			return ri > rj
		}
		return ready[i].ID < ready[j].ID
	})
	return ready
}

// dispatchWave delegates one ready set concurrently under the semaphore.
// Individual delegation failures land in the outcome map; only context
// cancellation aborts the wave.
func (d *Dispatcher) dispatchWave(ctx context.Context, plan *planning.Plan, ready []*planning.Node, userID string) (map[string]*agent.TaskResult, error) {
	sem := semaphore.NewWeighted(int64(d.cfg.MaxConcurrentTasks))
	outcomes := make(map[string]*agent.TaskResult, len(ready))
	var mu sync.Mutex

	var g errgroup.Group
	for _, node := range ready {
		node := node
		g.Go(func() error {
			if err := sem.Acquire(ctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)
			if d.limiter != nil {
				if err := d.limiter.Wait(ctx); err != nil {
					return err
				}
			}

			res := d.dispatchNode(ctx, plan, node, userID)
			mu.Lock()
			outcomes[node.ID] = res
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()

	// Nodes the aborted wave never reached stay unrecorded; the caller
	// sees them as pending alongside the wave error.
	return outcomes, err
}

// dispatchNode resolves one node to a worker agent and delegates it with
// the configured timeout. All failure modes produce a failed TaskResult.
func (d *Dispatcher) dispatchNode(ctx context.Context, plan *planning.Plan, node *planning.Node, userID string) *agent.TaskResult {
	d.emit(plan.ID, monitor.TaskEvent{TaskID: node.ID, Kind: monitor.TaskStarted})

	worker, agentID, err := d.resolveWorker(ctx, node)
	if err != nil {
		d.logger.Warn("agent resolution failed",
			zap.String("plan_id", plan.ID),
			zap.String("task_id", node.ID),
			zap.Error(err))
		res := &agent.TaskResult{TaskID: node.ID, Success: false, Error: err.Error()}
		d.emit(plan.ID, monitor.TaskEvent{TaskID: node.ID, Kind: monitor.TaskFailed})
		return res
	}

	capability := "general"
	if len(node.RequiredCapabilities) > 0 {
		capability = node.RequiredCapabilities[0]
	}
	req := agent.TaskRequest{
		TaskID:     node.ID,
		UserID:     userID,
		AgentID:    agentID,
		Capability: capability,
		Priority:   node.Priority.Rank(),
		Timeout:    d.cfg.TaskTimeout,
		Input: map[string]any{
			"label":   node.Label,
			"goal_id": node.GoalID,
			"domain":  node.Domain,
		},
	}

	tctx, cancel := context.WithTimeout(ctx, d.cfg.TaskTimeout)
	defer cancel()

	begin := time.Now()
	res, err := worker.DelegateTask(tctx, req)
	elapsed := time.Since(begin)

	if err != nil {
		res = &agent.TaskResult{
			TaskID:   node.ID,
			AgentID:  agentID,
			Success:  false,
			Error:    fmt.Sprintf("delegation failed: %v", err),
			Duration: elapsed,
		}
	} else if res == nil {
		res = &agent.TaskResult{
			TaskID:   node.ID,
			AgentID:  agentID,
			Success:  false,
			Error:    "worker returned no result",
			Duration: elapsed,
		}
	}
	if res.TaskID == "" {
		res.TaskID = node.ID
	}
	if res.Duration == 0 {
		res.Duration = elapsed
	}

	kind := monitor.TaskCompleted
	if !res.Success {
		kind = monitor.TaskFailed
	}
	d.emit(plan.ID, monitor.TaskEvent{
		TaskID:   node.ID,
		Kind:     kind,
		Duration: res.Duration,
		Cost:     node.EstimatedCost,
	})
	return res
}

// resolveWorker picks the highest-ranked candidate whose delegation handle
// is still reachable.
func (d *Dispatcher) resolveWorker(ctx context.Context, node *planning.Node) (agent.Worker, string, error) {
	candidates, err := d.registry.FindAgentsForTask(ctx, agent.Criteria{
		Capabilities: node.RequiredCapabilities,
		Domain:       node.Domain,
	})
	if err != nil {
		return nil, "", fmt.Errorf("no agent for task %s: %w", node.ID, err)
	}
	for _, c := range candidates {
		if worker, ok := d.registry.AgentInstance(c.AgentID); ok {
			return worker, c.AgentID, nil
		}
	}
	return nil, "", fmt.Errorf("no reachable agent for task %s", node.ID)
}

func (d *Dispatcher) emit(planID string, event monitor.TaskEvent) {
	if d.sink != nil {
		d.sink(planID, event)
	}
}

func (d *Dispatcher) finish(result *Result, done, failed map[string]bool, start time.Time) {
	result.Completed = sortedKeys(done)
	result.Failed = sortedKeys(failed)
	result.Duration = time.Since(start)
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// MaxDependencyDepth is the length of the longest prerequisite chain in the
// plan. The walk keeps a per-branch visited set so a cyclic graph returns a
// finite depth instead of recursing forever.
func MaxDependencyDepth(plan *planning.Plan) int {
	if plan == nil {
		return 0
	}
	deps := plan.Dependencies()

	var walk func(id string, visited map[string]bool) int
	walk = func(id string, visited map[string]bool) int {
		if visited[id] {
			return 0
		}
		visited[id] = true
		defer delete(visited, id)

		deepest := 0
		for _, dep := range deps[id] {
			if depth := walk(dep, visited); depth > deepest {
				deepest = depth
			}
		}
		return deepest + 1
	}

	deepest := 0
	for _, n := range plan.Nodes {
		if depth := walk(n.ID, make(map[string]bool)); depth > deepest {
			deepest = depth
		}
	}
	return deepest
}
