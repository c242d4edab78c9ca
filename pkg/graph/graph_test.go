package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testState struct {
	Count   int
	Tag     string
	Flagged bool
}

func passthrough(id string) Node[testState] {
	return func(_ context.Context, s testState) (NodeResult[testState], error) {
		next := s
		next.Count++
		return NodeResult[testState]{State: next}, nil
	}
}

func TestGraph_RunLinearChain(t *testing.T) {
	g := New[testState]()
	require.NoError(t, g.AddNode("a", passthrough("a")))
	require.NoError(t, g.AddNode("b", passthrough("b")))
	require.NoError(t, g.AddNode("c", passthrough("c")))
	require.NoError(t, g.SetEntry("a"))
	require.NoError(t, g.Connect("a", "b"))
	require.NoError(t, g.Connect("b", "c"))
	require.NoError(t, g.MarkTerminal("c"))
	require.NoError(t, g.Validate())

	result, err := g.Run(context.Background(), testState{})
	require.NoError(t, err)
	assert.Equal(t, 3, result.State.Count)
	assert.Equal(t, []string{"a", "b", "c"}, result.StepsCompleted)
}

func TestGraph_RunRightBiasedMerge(t *testing.T) {
	g := New[testState]()
	require.NoError(t, g.AddNode("set_tag", func(_ context.Context, s testState) (NodeResult[testState], error) {
		next := s
		next.Tag = "set"
		return NodeResult[testState]{State: next}, nil
	}))
	require.NoError(t, g.AddNode("bump_count", func(_ context.Context, s testState) (NodeResult[testState], error) {
		next := s
		next.Count++
		return NodeResult[testState]{State: next}, nil
	}))
	require.NoError(t, g.SetEntry("set_tag"))
	require.NoError(t, g.Connect("set_tag", "bump_count"))
	require.NoError(t, g.MarkTerminal("bump_count"))
	require.NoError(t, g.Validate())

	result, err := g.Run(context.Background(), testState{})
	require.NoError(t, err)
	// bump_count's returned state carries forward the tag "set" from the
	// previous node via the copy-then-modify pattern every real node uses.
	assert.Equal(t, "set", result.State.Tag)
	assert.Equal(t, 1, result.State.Count)
}

func TestGraph_ConditionalRouting(t *testing.T) {
	g := New[testState]()
	require.NoError(t, g.AddNode("decide", func(_ context.Context, s testState) (NodeResult[testState], error) {
		next := s
		next.Flagged = true
		return NodeResult[testState]{State: next}, nil
	}))
	require.NoError(t, g.AddNode("path_a", passthrough("path_a")))
	require.NoError(t, g.AddNode("path_b", passthrough("path_b")))
	require.NoError(t, g.SetEntry("decide"))
	require.NoError(t, g.ConnectRouter("decide", func(s testState) string {
		if s.Flagged {
			return "path_a"
		}
		return "path_b"
	}, []string{"path_a", "path_b"}))
	require.NoError(t, g.MarkTerminal("path_a"))
	require.NoError(t, g.MarkTerminal("path_b"))
	require.NoError(t, g.Validate())

	result, err := g.Run(context.Background(), testState{})
	require.NoError(t, err)
	assert.Equal(t, []string{"decide", "path_a"}, result.StepsCompleted)
}

func TestGraph_NodeFailureAbortsRunWithNodeName(t *testing.T) {
	g := New[testState]()
	boom := errors.New("boom")
	require.NoError(t, g.AddNode("a", passthrough("a")))
	require.NoError(t, g.AddNode("b", func(_ context.Context, s testState) (NodeResult[testState], error) {
		return NodeResult[testState]{}, boom
	}))
	require.NoError(t, g.SetEntry("a"))
	require.NoError(t, g.Connect("a", "b"))
	require.NoError(t, g.MarkTerminal("b"))
	require.NoError(t, g.Validate())

	result, err := g.Run(context.Background(), testState{})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), `"b"`)
	// only "a" completed; "b" failed before being recorded.
	assert.Equal(t, []string{"a"}, result.StepsCompleted)
}

func TestGraph_WarningsAccumulateAcrossNodes(t *testing.T) {
	g := New[testState]()
	require.NoError(t, g.AddNode("a", func(_ context.Context, s testState) (NodeResult[testState], error) {
		return NodeResult[testState]{State: s, Warnings: []string{"warn-a"}}, nil
	}))
	require.NoError(t, g.AddNode("b", func(_ context.Context, s testState) (NodeResult[testState], error) {
		return NodeResult[testState]{State: s, Warnings: []string{"warn-b"}}, nil
	}))
	require.NoError(t, g.SetEntry("a"))
	require.NoError(t, g.Connect("a", "b"))
	require.NoError(t, g.MarkTerminal("b"))
	require.NoError(t, g.Validate())

	result, err := g.Run(context.Background(), testState{})
	require.NoError(t, err)
	assert.Equal(t, []string{"warn-a", "warn-b"}, result.Warnings)
}

func TestGraph_Validate_MissingEntry(t *testing.T) {
	g := New[testState]()
	require.NoError(t, g.AddNode("a", passthrough("a")))
	err := g.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no entry node")
}

func TestGraph_Validate_UnreachableNode(t *testing.T) {
	g := New[testState]()
	require.NoError(t, g.AddNode("a", passthrough("a")))
	require.NoError(t, g.AddNode("orphan", passthrough("orphan")))
	require.NoError(t, g.SetEntry("a"))
	require.NoError(t, g.MarkTerminal("a"))
	err := g.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreachable")
	assert.Contains(t, err.Error(), "orphan")
}

func TestGraph_Validate_NonTerminalWithoutOutgoingEdge(t *testing.T) {
	g := New[testState]()
	require.NoError(t, g.AddNode("a", passthrough("a")))
	require.NoError(t, g.AddNode("b", passthrough("b")))
	require.NoError(t, g.SetEntry("a"))
	require.NoError(t, g.Connect("a", "b"))
	// b is never marked terminal and has no outgoing edge.
	err := g.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"b"`)
	assert.Contains(t, err.Error(), "no outgoing edge")
}

func TestGraph_ConnectRouter_UnknownTargetRejectedAtCompileTime(t *testing.T) {
	g := New[testState]()
	require.NoError(t, g.AddNode("a", passthrough("a")))
	err := g.ConnectRouter("a", func(testState) string { return "ghost" }, []string{"ghost"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
}

func TestGraph_AddNode_DuplicateIDRejected(t *testing.T) {
	g := New[testState]()
	require.NoError(t, g.AddNode("a", passthrough("a")))
	err := g.AddNode("a", passthrough("a2"))
	require.Error(t, err)
}
