package triggers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conveyor/internal/common/errors"
	"conveyor/internal/pipeline"
	"conveyor/internal/strategy"
)

func TestHTTPTrigger_Success(t *testing.T) {
	var gotPath string
	var gotBody triggerRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(pipeline.TriggerResult{RunID: "run-42", Status: "SUCCESS"})
	}))
	defer srv.Close()

	trigger, err := NewHTTPTrigger(srv.URL)
	require.NoError(t, err)

	result, err := trigger.Trigger(context.Background(), "deploy-cart-prod", map[string]string{"VERSION": "1.0.0"}, true)
	require.NoError(t, err)

	assert.Equal(t, "/jobs/deploy-cart-prod/build", gotPath)
	assert.Equal(t, "1.0.0", gotBody.Parameters["VERSION"])
	assert.True(t, gotBody.Wait)
	assert.Equal(t, "run-42", result.RunID)
	assert.Equal(t, "SUCCESS", result.Status)
}

func TestHTTPTrigger_DownstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	trigger, err := NewHTTPTrigger(srv.URL)
	require.NoError(t, err)

	_, err = trigger.Trigger(context.Background(), "deploy-cart-prod", nil, false)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeTrigger))
	assert.Contains(t, err.Error(), "deploy-cart-prod")
}

func TestHTTPTrigger_RequiresJobRef(t *testing.T) {
	trigger, err := NewHTTPTrigger("http://orchestrator.internal")
	require.NoError(t, err)

	_, err = trigger.Trigger(context.Background(), "", nil, false)
	assert.Error(t, err)
}

type fakeExecutor struct {
	runs int32
}

func (f *fakeExecutor) Execute(ctx context.Context, graph *pipeline.Graph, parameters map[string]string) (*pipeline.Run, error) {
	atomic.AddInt32(&f.runs, 1)
	run := pipeline.NewRun("run-local", graph, pipeline.NewEnvironment(nil), parameters)
	run.SetStatus(pipeline.RunSuccess)
	return run, nil
}

func testGraph() *pipeline.Graph {
	return &pipeline.Graph{
		Name: "local",
		Root: &pipeline.Stage{Name: "Main", Kind: pipeline.Leaf, Steps: []pipeline.Step{{Command: "true"}}},
	}
}

func TestLocal_WaitedTrigger(t *testing.T) {
	executor := &fakeExecutor{}
	local := NewLocal(func(jobRef string) (*pipeline.Graph, error) { return testGraph(), nil })
	local.SetExecutor(executor)

	result, err := local.Trigger(context.Background(), "local-job", nil, true)
	require.NoError(t, err)
	assert.Equal(t, "run-local", result.RunID)
	assert.Equal(t, "SUCCESS", result.Status)
	assert.Equal(t, int32(1), atomic.LoadInt32(&executor.runs))
}

func TestLocal_FireAndForget(t *testing.T) {
	executor := &fakeExecutor{}
	local := NewLocal(func(jobRef string) (*pipeline.Graph, error) { return testGraph(), nil })
	local.SetExecutor(executor)

	result, err := local.Trigger(context.Background(), "local-job", nil, false)
	require.NoError(t, err)
	assert.Equal(t, "QUEUED", result.Status)

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&executor.runs) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

type deadlineExecutor struct {
	deadlines chan time.Time
}

func (f *deadlineExecutor) Execute(ctx context.Context, graph *pipeline.Graph, parameters map[string]string) (*pipeline.Run, error) {
	if d, ok := ctx.Deadline(); ok {
		f.deadlines <- d
	}
	run := pipeline.NewRun("run-local", graph, pipeline.NewEnvironment(nil), parameters)
	run.SetStatus(pipeline.RunSuccess)
	return run, nil
}

func TestLocal_FireAndForgetBoundedByMaxRunDuration(t *testing.T) {
	executor := &deadlineExecutor{deadlines: make(chan time.Time, 1)}
	local := NewLocal(func(jobRef string) (*pipeline.Graph, error) { return testGraph(), nil },
		WithMaxRunDuration(time.Minute))
	local.SetExecutor(executor)

	_, err := local.Trigger(context.Background(), "local-job", nil, false)
	require.NoError(t, err)

	select {
	case deadline := <-executor.deadlines:
		assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)
	case <-time.After(2 * time.Second):
		t.Fatal("background run never started")
	}
}

func TestLocal_NoExecutor(t *testing.T) {
	local := NewLocal(func(jobRef string) (*pipeline.Graph, error) { return testGraph(), nil })

	_, err := local.Trigger(context.Background(), "local-job", nil, true)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeTrigger))
}

func TestScheduler_FiresRequest(t *testing.T) {
	fired := make(chan strategy.RunRequest, 1)
	s := NewScheduler(func(ctx context.Context, req strategy.RunRequest) {
		select {
		case fired <- req:
		default:
		}
	}, nil)

	// A spec firing every second keeps the test fast without a fake clock.
	require.NoError(t, s.Add("@every 1s", strategy.RunRequest{Application: "nodejs-vm", Component: "cart"}))
	t.Cleanup(s.Stop)
	s.Start()

	select {
	case req := <-fired:
		assert.Equal(t, "cart", req.Component)
	case <-time.After(3 * time.Second):
		t.Fatal("schedule never fired")
	}
}

func TestScheduler_RejectsBadSpec(t *testing.T) {
	s := NewScheduler(func(ctx context.Context, req strategy.RunRequest) {}, nil)
	assert.Error(t, s.Add("not a cron spec", strategy.RunRequest{}))
}
