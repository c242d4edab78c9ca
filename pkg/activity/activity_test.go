package activity

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cogniflow/agentrt/pkg/graph"
	"github.com/cogniflow/agentrt/pkg/taxonomy"
)

type counterState struct {
	Count int `json:"count"`
}

func buildCounterGraph(t *testing.T) *graph.Graph[counterState] {
	t.Helper()
	g := graph.New[counterState]()
	require.NoError(t, g.AddNode("increment", func(_ context.Context, s counterState) (graph.NodeResult[counterState], error) {
		next := s
		next.Count++
		return graph.NodeResult[counterState]{State: next}, nil
	}))
	require.NoError(t, g.SetEntry("increment"))
	require.NoError(t, g.MarkTerminal("increment"))
	require.NoError(t, g.Validate())
	return g
}

func TestRunnerFor_RoundTripsStateThroughJSON(t *testing.T) {
	runner := RunnerFor(buildCounterGraph(t))

	out, err := runner(context.Background(), []byte(`{"count":5}`))
	require.NoError(t, err)

	var result graph.ExecutionResult[counterState]
	require.NoError(t, json.Unmarshal(out, &result))
	assert.Equal(t, 6, result.State.Count)
	assert.Equal(t, []string{"increment"}, result.StepsCompleted)
}

func TestRunnerFor_EmptyInputUsesZeroState(t *testing.T) {
	runner := RunnerFor(buildCounterGraph(t))

	out, err := runner(context.Background(), nil)
	require.NoError(t, err)

	var result graph.ExecutionResult[counterState]
	require.NoError(t, json.Unmarshal(out, &result))
	assert.Equal(t, 1, result.State.Count)
}

func TestRunnerFor_SchemaViolationOnBadJSON(t *testing.T) {
	runner := RunnerFor(buildCounterGraph(t))

	_, err := runner(context.Background(), []byte(`not json`))
	require.Error(t, err)
	assert.Equal(t, taxonomy.SchemaViolation, taxonomy.ClassifyOf(err))
}

func TestLibrary_GraphRun_DispatchesByName(t *testing.T) {
	lib := &Library{Graphs: map[string]GraphRunner{
		"counter": RunnerFor(buildCounterGraph(t)),
	}}

	out, err := lib.GraphRun(context.Background(), GraphRunInput{GraphName: "counter", State: []byte(`{"count":0}`)})
	require.NoError(t, err)

	var result graph.ExecutionResult[counterState]
	require.NoError(t, json.Unmarshal(out, &result))
	assert.Equal(t, 1, result.State.Count)
}

func TestLibrary_GraphRun_UnknownGraphIsSchemaViolation(t *testing.T) {
	lib := &Library{Graphs: map[string]GraphRunner{}}

	_, err := lib.GraphRun(context.Background(), GraphRunInput{GraphName: "missing"})
	require.Error(t, err)
	assert.Equal(t, taxonomy.SchemaViolation, taxonomy.ClassifyOf(err))
}
