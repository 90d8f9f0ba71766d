package consistency

import (
	"context"
	"fmt"

	gaoconfig "github.com/JaimeStill/go-agents-orchestration/pkg/config"
	"github.com/JaimeStill/go-agents-orchestration/pkg/state"
)

const KeyGroupState = "group_state"

// Run discovers the project root and its document groups, then drives
// every group through the pipeline graph: prepare → recognize (loop over
// files) → classify → extract → check → persist, looping until the groups
// are exhausted. A missing root or an empty group list is not an error.
func Run(ctx context.Context, rt *Runtime, documentRoot string) (GroupState, error) {
	root, err := DiscoverRoot(documentRoot)
	if err != nil {
		return GroupState{}, fmt.Errorf("discover root: %w", err)
	}
	if root == nil {
		rt.Logger.InfoContext(ctx, "no document root found", "path", documentRoot)
		return NewGroupState(ProjectRoot{}, nil), nil
	}

	groups, err := DiscoverGroups(root.IOCFolderPath)
	if err != nil {
		return GroupState{}, fmt.Errorf("discover groups: %w", err)
	}

	rt.Logger.InfoContext(
		ctx, "consistency discovery complete",
		"project", root.ProjectName,
		"groups", len(groups),
	)

	gs := NewGroupState(*root, groups)
	if len(groups) == 0 {
		return gs, nil
	}

	graph, err := buildGraph(rt)
	if err != nil {
		return gs, fmt.Errorf("build graph: %w", err)
	}

	initial := state.New(nil)
	initial = initial.Set(KeyGroupState, gs)

	final, err := graph.Execute(ctx, initial)
	if err != nil {
		return gs, fmt.Errorf("execute graph: %w", err)
	}

	return extractGroupState(final)
}

func buildGraph(rt *Runtime) (state.StateGraph, error) {
	cfg := gaoconfig.DefaultGraphConfig("consistency-groups")
	cfg.Observer = "noop"

	graph, err := state.NewGraph(cfg)
	if err != nil {
		return nil, err
	}

	nodes := map[string]groupStepFunc{
		"prepare":   rt.prepareStep,
		"recognize": rt.recognizeStep,
		"classify":  rt.classifyStep,
		"extract":   rt.extractStep,
		"check":     rt.checkStep,
		"persist":   rt.persistStep,
	}
	for name, step := range nodes {
		if err := graph.AddNode(name, groupNode(step)); err != nil {
			return nil, err
		}
	}
	// Execution stops at an exit point before its outgoing edges are
	// evaluated, so persist cannot carry both the loop edge and the exit.
	if err := graph.AddNode("done", passthroughNode()); err != nil {
		return nil, err
	}

	filesRemain := groupCondition(func(gs GroupState) bool {
		return gs.FileIndex < len(gs.Files)
	})
	groupsRemain := groupCondition(func(gs GroupState) bool {
		return !gs.Done()
	})

	if err := graph.AddEdge("prepare", "recognize", nil); err != nil {
		return nil, err
	}
	if err := graph.AddEdge("recognize", "recognize", filesRemain); err != nil {
		return nil, err
	}
	if err := graph.AddEdge("recognize", "classify", state.Not(filesRemain)); err != nil {
		return nil, err
	}
	if err := graph.AddEdge("classify", "extract", nil); err != nil {
		return nil, err
	}
	if err := graph.AddEdge("extract", "check", nil); err != nil {
		return nil, err
	}
	if err := graph.AddEdge("check", "persist", nil); err != nil {
		return nil, err
	}
	// The loop edge precedes the terminal edge; edges evaluate first-match
	// in insertion order.
	if err := graph.AddEdge("persist", "prepare", groupsRemain); err != nil {
		return nil, err
	}
	if err := graph.AddEdge("persist", "done", nil); err != nil {
		return nil, err
	}

	if err := graph.SetEntryPoint("prepare"); err != nil {
		return nil, err
	}
	if err := graph.SetExitPoint("done"); err != nil {
		return nil, err
	}

	return graph, nil
}

func passthroughNode() state.StateNode {
	return state.NewFunctionNode(func(_ context.Context, s state.State) (state.State, error) {
		return s, nil
	})
}

type groupStepFunc func(ctx context.Context, gs *GroupState) error

func groupNode(step groupStepFunc) state.StateNode {
	return state.NewFunctionNode(func(ctx context.Context, s state.State) (state.State, error) {
		gs, err := extractGroupState(s)
		if err != nil {
			return s, err
		}

		if err := step(ctx, &gs); err != nil {
			return s, err
		}

		return s.Set(KeyGroupState, gs), nil
	})
}

func groupCondition(pred func(GroupState) bool) func(state.State) bool {
	return func(s state.State) bool {
		gs, err := extractGroupState(s)
		if err != nil {
			return false
		}
		return pred(gs)
	}
}

func extractGroupState(s state.State) (GroupState, error) {
	val, ok := s.Get(KeyGroupState)
	if !ok {
		return GroupState{}, fmt.Errorf("missing %s in state", KeyGroupState)
	}

	gs, ok := val.(GroupState)
	if !ok {
		return GroupState{}, fmt.Errorf("%s is not GroupState", KeyGroupState)
	}

	return gs, nil
}
