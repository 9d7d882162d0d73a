package flowmesh

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethanlchristensen/flowmesh/graph"
	"github.com/ethanlchristensen/flowmesh/internal/testutil"
	"github.com/ethanlchristensen/flowmesh/provider"
	"github.com/ethanlchristensen/flowmesh/run"
)

func TestFlowMesh_RunSync(t *testing.T) {
	mock := provider.NewMockProvider("mock")
	mock.AddResponse("Summarize: bees", "Bees matter.")

	mesh := New()
	mesh.RegisterProvider("mock", mock)

	g := testutil.LinearFlow("bees", "mock", "m", "Summarize: {{input}}")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	result, err := mesh.RunSync(ctx, g, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, run.FlowCompleted, result.Status)
	assert.Equal(t, "Bees matter.", result.FinalOutput)
	assert.Len(t, result.NodeResults, 3)
}

func TestFlowMesh_StartAndPoll(t *testing.T) {
	mesh := New()

	g := testutil.NewGraphBuilder("poll").
		Node("in", graph.InputConfig{Value: "hello"}).
		Node("out", graph.OutputConfig{Format: "text"}).
		Edge("in", "out").
		Build()

	executionID, err := mesh.StartExecution(context.Background(), g, nil, nil)
	require.NoError(t, err)
	require.NotEmpty(t, executionID)

	deadline := time.Now().Add(5 * time.Second)
	for {
		result, err := mesh.GetExecutionStatus(executionID)
		require.NoError(t, err)
		if result.Status.Terminal() {
			assert.Equal(t, run.FlowCompleted, result.Status)
			assert.Equal(t, "hello", result.FinalOutput)
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("execution never finished")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestFlowMesh_ValidationError(t *testing.T) {
	mesh := New()
	g := &graph.Graph{ID: "empty"}
	_, err := mesh.RunSync(context.Background(), g, nil, nil)
	var verrs graph.ValidationErrors
	assert.ErrorAs(t, err, &verrs)
}
