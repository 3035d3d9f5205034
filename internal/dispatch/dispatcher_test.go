package dispatch

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/cortexd/internal/agent"
	"github.com/fyrsmithlabs/cortexd/internal/monitor"
	"github.com/fyrsmithlabs/cortexd/internal/planning"
	"github.com/fyrsmithlabs/cortexd/internal/understanding"
)

// scriptedWorker records delegation order and can fail or delay named
// tasks.
type scriptedWorker struct {
	mu          sync.Mutex
	delay       time.Duration
	failTasks   map[string]bool
	order       []string
	inFlight    int
	maxInFlight int
}

func (w *scriptedWorker) DelegateTask(ctx context.Context, req agent.TaskRequest) (*agent.TaskResult, error) {
	w.mu.Lock()
	w.inFlight++
	if w.inFlight > w.maxInFlight {
		w.maxInFlight = w.inFlight
	}
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.inFlight--
		w.mu.Unlock()
	}()

	if w.delay > 0 {
		select {
		case <-time.After(w.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	w.mu.Lock()
	w.order = append(w.order, req.TaskID)
	fail := w.failTasks[req.TaskID]
	w.mu.Unlock()

	if fail {
		return nil, fmt.Errorf("task %s exploded", req.TaskID)
	}
	return &agent.TaskResult{TaskID: req.TaskID, AgentID: req.AgentID, Success: true}, nil
}

func (w *scriptedWorker) CancelTask(ctx context.Context, taskID string) error { return nil }

func (w *scriptedWorker) delegated() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.order...)
}

func testRegistry(worker agent.Worker) *agent.InMemoryRegistry {
	reg := agent.NewInMemoryRegistry(nil)
	reg.Register("agent-1", worker, []string{"general", "research"}, []string{"health"})
	return reg
}

func testPlan(edges []planning.Edge, nodeIDs ...string) *planning.Plan {
	plan := &planning.Plan{ID: "plan-1", OwnerID: "user-1"}
	for _, id := range nodeIDs {
		plan.Nodes = append(plan.Nodes, planning.Node{
			ID:                   id,
			Kind:                 planning.NodeTask,
			Label:                "task " + id,
			Priority:             understanding.PriorityMedium,
			EstimatedDuration:    time.Minute,
			EstimatedCost:        1,
			RequiredCapabilities: []string{"general"},
		})
	}
	plan.Edges = edges
	return plan
}

func newTestDispatcher(t *testing.T, reg agent.Registry, opts ...Option) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(reg, DefaultConfig(), nil, opts...)
	require.NoError(t, err)
	return d
}

func TestNewDispatcherRequiresRegistry(t *testing.T) {
	_, err := NewDispatcher(nil, DefaultConfig(), nil)
	assert.Error(t, err)
}

func TestExecutePlanInputErrors(t *testing.T) {
	d := newTestDispatcher(t, testRegistry(&scriptedWorker{}))

	_, err := d.ExecutePlan(context.Background(), nil, "user-1")
	assert.ErrorIs(t, err, ErrNilPlan)

	_, err = d.ExecutePlan(context.Background(), &planning.Plan{ID: "p"}, "user-1")
	assert.ErrorIs(t, err, ErrEmptyPlan)
}

func TestExecutePlanSequentialChain(t *testing.T) {
	worker := &scriptedWorker{}
	d := newTestDispatcher(t, testRegistry(worker))

	plan := testPlan([]planning.Edge{
		{From: "a", To: "b", Kind: planning.EdgeSequential},
		{From: "b", To: "c", Kind: planning.EdgeSequential},
	}, "a", "b", "c")

	result, err := d.ExecutePlan(context.Background(), plan, "user-1")
	require.NoError(t, err)

	assert.True(t, result.Success())
	assert.Equal(t, []string{"a", "b", "c"}, result.Completed)
	assert.Equal(t, []string{"a", "b", "c"}, worker.delegated())
	assert.Equal(t, 3, result.Waves)
}

func TestExecutePlanParallelSingleWave(t *testing.T) {
	worker := &scriptedWorker{}
	d := newTestDispatcher(t, testRegistry(worker))

	result, err := d.ExecutePlan(context.Background(), testPlan(nil, "a", "b", "c"), "user-1")
	require.NoError(t, err)

	assert.Equal(t, 1, result.Waves)
	assert.Len(t, result.Completed, 3)
	assert.Empty(t, result.Failed)
}

func TestExecutePlanFailurePropagates(t *testing.T) {
	worker := &scriptedWorker{failTasks: map[string]bool{"a": true}}
	d := newTestDispatcher(t, testRegistry(worker))

	plan := testPlan([]planning.Edge{
		{From: "a", To: "b", Kind: planning.EdgeSequential},
	}, "a", "b", "c")

	result, err := d.ExecutePlan(context.Background(), plan, "user-1")
	require.NoError(t, err)

	assert.False(t, result.Success())
	assert.Equal(t, []string{"c"}, result.Completed)
	assert.Equal(t, []string{"a", "b"}, result.Failed)

	require.NotNil(t, result.Tasks["a"])
	assert.Contains(t, result.Tasks["a"].Error, "exploded")

	// b was never delegated; it carries a synthetic prerequisite failure.
	require.NotNil(t, result.Tasks["b"])
	assert.Contains(t, result.Tasks["b"].Error, "prerequisite a failed")
	assert.NotContains(t, worker.delegated(), "b")
}

func TestExecutePlanFailureCascadesTransitively(t *testing.T) {
	worker := &scriptedWorker{failTasks: map[string]bool{"a": true}}
	d := newTestDispatcher(t, testRegistry(worker))

	plan := testPlan([]planning.Edge{
		{From: "a", To: "b", Kind: planning.EdgeSequential},
		{From: "b", To: "c", Kind: planning.EdgeSequential},
	}, "a", "b", "c")

	result, err := d.ExecutePlan(context.Background(), plan, "user-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, result.Failed)
	assert.Equal(t, []string{"a"}, worker.delegated())
}

func TestExecutePlanDependencyDeadlock(t *testing.T) {
	d := newTestDispatcher(t, testRegistry(&scriptedWorker{}))

	plan := testPlan([]planning.Edge{
		{From: "a", To: "b", Kind: planning.EdgeSequential},
		{From: "b", To: "a", Kind: planning.EdgeSequential},
	}, "a", "b")

	result, err := d.ExecutePlan(context.Background(), plan, "user-1")
	assert.ErrorIs(t, err, ErrDependencyDeadlock)
	require.NotNil(t, result)
	assert.Empty(t, result.Completed)
}

func TestExecutePlanTaskTimeout(t *testing.T) {
	worker := &scriptedWorker{delay: 200 * time.Millisecond}
	cfg := DefaultConfig()
	cfg.TaskTimeout = 20 * time.Millisecond
	d, err := NewDispatcher(testRegistry(worker), cfg, nil)
	require.NoError(t, err)

	result, err := d.ExecutePlan(context.Background(), testPlan(nil, "a"), "user-1")
	require.NoError(t, err)

	assert.False(t, result.Success())
	require.NotNil(t, result.Tasks["a"])
	assert.Contains(t, result.Tasks["a"].Error, "delegation failed")
}

func TestExecutePlanConcurrencyBound(t *testing.T) {
	worker := &scriptedWorker{delay: 20 * time.Millisecond}
	cfg := DefaultConfig()
	cfg.MaxConcurrentTasks = 2
	d, err := NewDispatcher(testRegistry(worker), cfg, nil)
	require.NoError(t, err)

	result, err := d.ExecutePlan(context.Background(), testPlan(nil, "a", "b", "c", "d", "e"), "user-1")
	require.NoError(t, err)

	assert.Len(t, result.Completed, 5)
	assert.LessOrEqual(t, worker.maxInFlight, 2)
}

func TestExecutePlanNoAgentForCapability(t *testing.T) {
	d := newTestDispatcher(t, testRegistry(&scriptedWorker{}))

	plan := testPlan(nil, "a")
	plan.Nodes[0].RequiredCapabilities = []string{"quantum_annealing"}

	result, err := d.ExecutePlan(context.Background(), plan, "user-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, result.Failed)
	assert.Contains(t, result.Tasks["a"].Error, "no agent for task")
}

func TestExecutePlanContextCancellation(t *testing.T) {
	worker := &scriptedWorker{delay: time.Second}
	d := newTestDispatcher(t, testRegistry(worker))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := d.ExecutePlan(ctx, testPlan([]planning.Edge{
		{From: "a", To: "b", Kind: planning.EdgeSequential},
	}, "a", "b"), "user-1")
	assert.Error(t, err)
}

func TestExecutePlanEmitsEvents(t *testing.T) {
	var mu sync.Mutex
	events := make(map[monitor.TaskEventKind]int)
	sink := func(planID string, ev monitor.TaskEvent) {
		mu.Lock()
		events[ev.Kind]++
		mu.Unlock()
	}

	worker := &scriptedWorker{failTasks: map[string]bool{"b": true}}
	d := newTestDispatcher(t, testRegistry(worker), WithEventSink(sink))

	_, err := d.ExecutePlan(context.Background(), testPlan(nil, "a", "b"), "user-1")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, events[monitor.TaskStarted])
	assert.Equal(t, 1, events[monitor.TaskCompleted])
	assert.Equal(t, 1, events[monitor.TaskFailed])
}

func TestReadyNodesPriorityOrder(t *testing.T) {
	plan := testPlan(nil, "low", "crit", "med")
	plan.Nodes[0].Priority = understanding.PriorityLow
	plan.Nodes[1].Priority = understanding.PriorityCritical
	plan.Nodes[2].Priority = understanding.PriorityMedium

	pending := map[string]bool{"low": true, "crit": true, "med": true}
	ready := readyNodes(plan, pending, map[string]bool{}, plan.Dependencies())

	require.Len(t, ready, 3)
	assert.Equal(t, "crit", ready[0].ID)
	assert.Equal(t, "med", ready[1].ID)
	assert.Equal(t, "low", ready[2].ID)
}

func TestMaxDependencyDepth(t *testing.T) {
	chain := testPlan([]planning.Edge{
		{From: "a", To: "b", Kind: planning.EdgeSequential},
		{From: "b", To: "c", Kind: planning.EdgeSequential},
	}, "a", "b", "c")
	assert.Equal(t, 3, MaxDependencyDepth(chain))

	flat := testPlan(nil, "a", "b", "c")
	assert.Equal(t, 1, MaxDependencyDepth(flat))

	// A cycle still yields a finite depth.
	cyclic := testPlan([]planning.Edge{
		{From: "a", To: "b", Kind: planning.EdgeSequential},
		{From: "b", To: "a", Kind: planning.EdgeSequential},
	}, "a", "b")
	assert.Equal(t, 2, MaxDependencyDepth(cyclic))

	assert.Equal(t, 0, MaxDependencyDepth(nil))
}
