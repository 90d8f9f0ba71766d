// Package normative runs the per-file compliance checks: every audited
// file passes through a three-step pipeline (detect candidate regions,
// extract labeled identifiers, verify fill status) once per check
// namespace (date, seal, signature). The three namespaces share nothing
// but the input file list and progress independently.
package normative

import (
	"github.com/auditkit/docaudit/internal/report"
	"github.com/auditkit/docaudit/internal/state"
)

// Identifier is one labeled field instance found on a page: the label text
// and its on-page position description.
type Identifier struct {
	Identifier string `json:"identifier"`
	Position   string `json:"position"`
}

// CheckState is one namespace's shared state record. Each step owns an
// index counter that advances by exactly one per file regardless of
// outcome, a current-file pointer, and an accumulator map. Concurrent
// proposals resolve through Merge.
type CheckState struct {
	Files []string

	Step1Index   int
	Step1Current state.Option[string]
	Regions      map[string][]int

	Step2Index   int
	Step2Current state.Option[string]
	Identifiers  map[string]map[int][]Identifier

	Step3Index   int
	Step3Current state.Option[string]

	// PageImages records the rendered image path per file page so the
	// extract and verify steps reuse what detect already rendered.
	PageImages map[string]map[int]string

	Errors []report.Item
}

// NewCheckState initializes a namespace state over the input file list.
func NewCheckState(files []string) CheckState {
	return CheckState{
		Files:       files,
		Regions:     make(map[string][]int),
		Identifiers: make(map[string]map[int][]Identifier),
		PageImages:  make(map[string]map[int]string),
	}
}

// Merge resolves two concurrent proposals field by field using each
// field's declared combinator. It is a pure reduction: neither input is
// mutated and the application order of a set of proposals does not change
// the result.
func (cs CheckState) Merge(other CheckState) CheckState {
	return CheckState{
		Files:        state.TakeFirstNonEmpty(cs.Files, other.Files),
		Step1Index:   state.Max(cs.Step1Index, other.Step1Index),
		Step1Current: state.LatestNonNull(cs.Step1Current, other.Step1Current),
		Regions:      state.MergeRegions(cs.Regions, other.Regions),
		Step2Index:   state.Max(cs.Step2Index, other.Step2Index),
		Step2Current: state.LatestNonNull(cs.Step2Current, other.Step2Current),
		Identifiers:  state.MergeIdentifiers(cs.Identifiers, other.Identifiers),
		Step3Index:   state.Max(cs.Step3Index, other.Step3Index),
		Step3Current: state.LatestNonNull(cs.Step3Current, other.Step3Current),
		PageImages:   state.MergeIdentifiers(cs.PageImages, other.PageImages),
		Errors:       state.Append(cs.Errors, other.Errors),
	}
}

// Done reports whether every file has passed through all three steps.
func (cs CheckState) Done() bool {
	return cs.Step3Index >= len(cs.Files)
}
