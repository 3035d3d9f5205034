package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubWorker is a minimal Worker for registry tests.
type stubWorker struct{}

func (s *stubWorker) DelegateTask(ctx context.Context, req TaskRequest) (*TaskResult, error) {
	return &TaskResult{TaskID: req.TaskID, AgentID: req.AgentID, Success: true, Duration: time.Millisecond}, nil
}

func (s *stubWorker) CancelTask(ctx context.Context, taskID string) error {
	return nil
}

func TestFindAgentsForTask_RanksDomainMatchesFirst(t *testing.T) {
	reg := NewInMemoryRegistry(nil)
	reg.Register("generalist", &stubWorker{}, []string{"research"}, nil)
	reg.Register("specialist", &stubWorker{}, []string{"research"}, []string{"health"})

	candidates, err := reg.FindAgentsForTask(context.Background(), Criteria{
		Capabilities: []string{"research"},
		Domain:       "health",
	})
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, "specialist", candidates[0].AgentID)
	assert.Greater(t, candidates[0].Score, candidates[1].Score)
}

func TestFindAgentsForTask_RequiresAllCapabilities(t *testing.T) {
	reg := NewInMemoryRegistry(nil)
	reg.Register("partial", &stubWorker{}, []string{"research"}, nil)

	_, err := reg.FindAgentsForTask(context.Background(), Criteria{
		Capabilities: []string{"research", "summarize"},
	})
	assert.ErrorIs(t, err, ErrNoCandidates)
}

func TestAgentInstance_OfflineAgentsAreInvisible(t *testing.T) {
	reg := NewInMemoryRegistry(nil)
	reg.Register("a1", &stubWorker{}, []string{"research"}, nil)

	_, ok := reg.AgentInstance("a1")
	require.True(t, ok)

	reg.MarkOffline("a1")

	_, ok = reg.AgentInstance("a1")
	assert.False(t, ok)
	assert.False(t, reg.HasCapability("research"))
}

func TestSubscribe_LifecycleEvents(t *testing.T) {
	reg := NewInMemoryRegistry(nil)

	var events []LifecycleEvent
	var ids []string
	reg.Subscribe(func(event LifecycleEvent, agentID string) {
		events = append(events, event)
		ids = append(ids, agentID)
	})

	reg.Register("a1", &stubWorker{}, []string{"x"}, nil)
	reg.MarkOffline("a1")
	reg.Unregister("a1")

	assert.Equal(t, []LifecycleEvent{EventRegistered, EventOffline, EventUnregistered}, events)
	assert.Equal(t, []string{"a1", "a1", "a1"}, ids)
}

func TestHasCapability(t *testing.T) {
	reg := NewInMemoryRegistry(nil)
	assert.False(t, reg.HasCapability("research"))

	reg.Register("a1", &stubWorker{}, []string{"research"}, nil)
	assert.True(t, reg.HasCapability("research"))
	assert.False(t, reg.HasCapability("deploy"))
}
