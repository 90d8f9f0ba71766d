// Package report defines the unified error schema shared by every check in
// the audit pipeline. Items are created by verification and consistency
// steps, never mutated afterward, and accumulated by list concatenation.
package report

// Error categories.
const (
	CategoryNormative   = "normative"
	CategoryConsistency = "consistency"
)

// Error types.
const (
	TypeDateMissing          = "date_missing"
	TypeSealMissing          = "seal_missing"
	TypeSignatureMissing     = "signature_missing"
	TypeQuantityMismatch     = "quantity_mismatch"
	TypeDateOrderMismatch    = "date_order_mismatch"
	TypeClassificationFailed = "classification_failed"
	TypePersistenceFailed    = "persistence_failed"
)

// Item is one audit finding. Pages maps each related file to the page
// numbers the finding applies to.
type Item struct {
	Category    string           `json:"error_category"`
	Type        string           `json:"error_type"`
	Project     string           `json:"project,omitempty"`
	Files       []string         `json:"files"`
	Folder      string           `json:"folder,omitempty"`
	Pages       map[string][]int `json:"pages"`
	Description string           `json:"description"`
	Metadata    map[string]any   `json:"metadata"`
}
