package normative

import (
	"context"
	"fmt"

	gaoconfig "github.com/JaimeStill/go-agents-orchestration/pkg/config"
	"github.com/JaimeStill/go-agents-orchestration/pkg/state"
	"golang.org/x/sync/errgroup"

	"github.com/auditkit/docaudit/internal/report"
	istate "github.com/auditkit/docaudit/internal/state"
)

// Style selects the control-flow shape of a namespace pipeline. Both
// styles run the same step functions and must converge to identical final
// state for identical input; only the interleaving across files differs.
type Style string

const (
	// StyleStreaming chains detect, extract, and verify for one file
	// before looping to the next file.
	StyleStreaming Style = "streaming"
	// StyleBatch completes detect for every file, then extract for every
	// file, then verify for every file.
	StyleBatch Style = "batch"
)

const KeyCheckState = "check_state"

// Results holds the final state of the three check namespaces. Zero
// errors for a namespace means either checked-and-passed or insufficient
// data; callers distinguish the two by inspecting the accumulator maps.
type Results struct {
	Date      CheckState
	Seal      CheckState
	Signature CheckState
}

// Errors returns the union of the three namespaces' error items.
func (r *Results) Errors() []report.Item {
	errs := istate.Append(nil, r.Date.Errors)
	errs = istate.Append(errs, r.Seal.Errors)
	return istate.Append(errs, r.Signature.Errors)
}

// Run executes the three check namespaces in parallel over the same file
// list. The namespaces are write-disjoint by construction: each runs its
// own graph over its own CheckState.
func Run(ctx context.Context, rt *Runtime, files []string, style Style) (*Results, error) {
	results := &Results{}

	targets := []struct {
		ns   Namespace
		dest *CheckState
	}{
		{Date, &results.Date},
		{Seal, &results.Seal},
		{Signature, &results.Signature},
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, t := range targets {
		g.Go(func() error {
			cs, err := runNamespace(gctx, rt, t.ns, files, style)
			if err != nil {
				return fmt.Errorf("%s namespace: %w", t.ns.Name, err)
			}
			*t.dest = cs
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	rt.Logger.InfoContext(
		ctx, "normative checks complete",
		"files", len(files),
		"style", string(style),
		"errors", len(results.Errors()),
	)
	return results, nil
}

func runNamespace(ctx context.Context, rt *Runtime, ns Namespace, files []string, style Style) (CheckState, error) {
	cs := NewCheckState(files)
	if len(files) == 0 {
		return cs, nil
	}

	graph, err := buildGraph(rt, ns, style)
	if err != nil {
		return cs, fmt.Errorf("build graph: %w", err)
	}

	initial := state.New(nil)
	initial = initial.Set(KeyCheckState, cs)

	final, err := graph.Execute(ctx, initial)
	if err != nil {
		return cs, fmt.Errorf("execute graph: %w", err)
	}

	return extractCheckState(final)
}

func buildGraph(rt *Runtime, ns Namespace, style Style) (state.StateGraph, error) {
	cfg := gaoconfig.DefaultGraphConfig(fmt.Sprintf("normative-%s-%s", ns.Name, style))
	cfg.Observer = "noop"

	graph, err := state.NewGraph(cfg)
	if err != nil {
		return nil, err
	}

	if err := graph.AddNode("detect", stepNode(rt, ns, detectStep)); err != nil {
		return nil, err
	}
	if err := graph.AddNode("extract", stepNode(rt, ns, extractStep)); err != nil {
		return nil, err
	}
	if err := graph.AddNode("verify", stepNode(rt, ns, verifyStep)); err != nil {
		return nil, err
	}
	// Execution stops at an exit point before its outgoing edges are
	// evaluated, so the looping node cannot also be the exit. A terminal
	// no-op node carries the exit instead.
	if err := graph.AddNode("done", passthroughNode()); err != nil {
		return nil, err
	}

	switch style {
	case StyleStreaming:
		err = wireStreaming(graph)
	case StyleBatch:
		err = wireBatch(graph)
	default:
		return nil, fmt.Errorf("unknown style: %s", style)
	}
	if err != nil {
		return nil, err
	}

	if err := graph.SetEntryPoint("detect"); err != nil {
		return nil, err
	}
	if err := graph.SetExitPoint("done"); err != nil {
		return nil, err
	}

	return graph, nil
}

// wireStreaming runs one file through all three steps, then loops back to
// detect until every file has been verified. Edges evaluate in insertion
// order: the loop edge must precede the terminal edge.
func wireStreaming(graph state.StateGraph) error {
	if err := graph.AddEdge("detect", "extract", nil); err != nil {
		return err
	}
	if err := graph.AddEdge("extract", "verify", nil); err != nil {
		return err
	}
	if err := graph.AddEdge("verify", "detect", filesRemain(func(cs CheckState) bool {
		return !cs.Done()
	})); err != nil {
		return err
	}
	return graph.AddEdge("verify", "done", nil)
}

// wireBatch self-loops each stage over the whole file list before the
// next stage starts.
func wireBatch(graph state.StateGraph) error {
	detectRemain := filesRemain(func(cs CheckState) bool { return cs.Step1Index < len(cs.Files) })
	extractRemain := filesRemain(func(cs CheckState) bool { return cs.Step2Index < len(cs.Files) })
	verifyRemain := filesRemain(func(cs CheckState) bool { return cs.Step3Index < len(cs.Files) })

	if err := graph.AddEdge("detect", "detect", detectRemain); err != nil {
		return err
	}
	if err := graph.AddEdge("detect", "extract", state.Not(detectRemain)); err != nil {
		return err
	}
	if err := graph.AddEdge("extract", "extract", extractRemain); err != nil {
		return err
	}
	if err := graph.AddEdge("extract", "verify", state.Not(extractRemain)); err != nil {
		return err
	}
	if err := graph.AddEdge("verify", "verify", verifyRemain); err != nil {
		return err
	}
	return graph.AddEdge("verify", "done", nil)
}

func passthroughNode() state.StateNode {
	return state.NewFunctionNode(func(_ context.Context, s state.State) (state.State, error) {
		return s, nil
	})
}

type stepFunc func(ctx context.Context, rt *Runtime, ns Namespace, cs *CheckState) error

func stepNode(rt *Runtime, ns Namespace, step stepFunc) state.StateNode {
	return state.NewFunctionNode(func(ctx context.Context, s state.State) (state.State, error) {
		cs, err := extractCheckState(s)
		if err != nil {
			return s, err
		}

		if err := step(ctx, rt, ns, &cs); err != nil {
			return s, err
		}

		return s.Set(KeyCheckState, cs), nil
	})
}

func filesRemain(pred func(CheckState) bool) func(state.State) bool {
	return func(s state.State) bool {
		cs, err := extractCheckState(s)
		if err != nil {
			return false
		}
		return pred(cs)
	}
}

func extractCheckState(s state.State) (CheckState, error) {
	val, ok := s.Get(KeyCheckState)
	if !ok {
		return CheckState{}, fmt.Errorf("missing %s in state", KeyCheckState)
	}

	cs, ok := val.(CheckState)
	if !ok {
		return CheckState{}, fmt.Errorf("%s is not CheckState", KeyCheckState)
	}

	return cs, nil
}
