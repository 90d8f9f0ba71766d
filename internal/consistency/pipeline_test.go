package consistency

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/auditkit/docaudit/internal/ocr"
	"github.com/auditkit/docaudit/internal/prompts"
	"github.com/auditkit/docaudit/internal/report"
)

type fakeOCR struct {
	pages map[string][]string
}

func (f *fakeOCR) Recognize(_ context.Context, filePath string) (*ocr.Result, error) {
	pages, ok := f.pages[filepath.Base(filePath)]
	if !ok {
		return nil, errors.New("recognition unavailable")
	}
	return &ocr.Result{Engine: "fake", Pages: pages, Merged: strings.Join(pages, "\n\n")}, nil
}

// fakeChat answers extraction prompts by marker embedded in the recognized
// page text, which the prompt carries verbatim.
type fakeChat struct {
	byMarker map[string]string
}

func (f *fakeChat) Chat(_ context.Context, prompt string) (string, error) {
	for marker, response := range f.byMarker {
		if strings.Contains(prompt, marker) {
			return response, nil
		}
	}
	return "", errors.New("no scripted response")
}

func (f *fakeChat) Vision(context.Context, string, string) (string, error) {
	return "", errors.New("vision not scripted")
}

const (
	contractPage = "采购合同\nMARK-CONTRACT\n签订内容"
	deliveryPage = "送货单\nMARK-DELIVERY\n明细"
	receiptPage  = "采购入库单\nMARK-RECEIPT\n明细"

	contractJSON = `{"signing_dates": ["2023年3月1日"], "items": [{"name": "Pipe", "spec": "50mm", "quantity": "100"}]}`
	deliveryJSON = `{"dates": ["2023年4月1日"], "items": [{"name": "Pipe", "spec": "50mm", "quantity": "100"}]}`
	receiptJSON  = `{"单据基本信息": {"单据日期": "2023年5月1日"}, "明细数据": [{"存货名称": "Pipe", "规格型号": "50mm", "数量": "90"}]}`
)

func testPipelineRuntime(t *testing.T) (*Runtime, string) {
	t.Helper()
	groupDir := t.TempDir()
	touch(t, groupDir, "contract.pdf", "delivery.jpg", "receipt.png", "broken.pdf")

	rt := &Runtime{
		Text: &fakeChat{byMarker: map[string]string{
			"MARK-CONTRACT": contractJSON,
			"MARK-DELIVERY": deliveryJSON,
			"MARK-RECEIPT":  receiptJSON,
		}},
		OCR: &fakeOCR{pages: map[string][]string{
			"contract.pdf": {contractPage},
			"delivery.jpg": {deliveryPage},
			"receipt.png":  {receiptPage},
			// broken.pdf deliberately unscripted: recognition fails.
		}},
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		ResultsBase: t.TempDir(),
	}
	return rt, groupDir
}

func runGroup(t *testing.T, rt *Runtime, gs *GroupState) {
	t.Helper()
	ctx := context.Background()

	if err := rt.prepareStep(ctx, gs); err != nil {
		t.Fatal(err)
	}
	for gs.FileIndex < len(gs.Files) {
		if err := rt.recognizeStep(ctx, gs); err != nil {
			t.Fatal(err)
		}
	}
	for _, step := range []groupStepFunc{rt.classifyStep, rt.extractStep, rt.checkStep, rt.persistStep} {
		if err := step(ctx, gs); err != nil {
			t.Fatal(err)
		}
	}
}

func TestGroupPipeline(t *testing.T) {
	rt, groupDir := testPipelineRuntime(t)
	gs := NewGroupState(
		ProjectRoot{ProjectName: "proj", IOCFolderName: "ioc"},
		[]Group{{FolderPath: groupDir}},
	)

	runGroup(t, rt, &gs)

	// One file fails recognition and contributes no metadata; the other
	// three classify into the three document types.
	metadata, ok := gs.MetadataByGroup["group-1"]
	if !ok {
		t.Fatal("group-1 metadata not recorded")
	}
	if len(metadata) != 3 {
		t.Fatalf("metadata: got %d, want 3", len(metadata))
	}

	categories := make(map[string]string)
	for _, doc := range metadata {
		categories[filepath.Base(doc.OriginalPath)] = doc.Category
	}
	if categories["contract.pdf"] != TypeContract ||
		categories["delivery.jpg"] != TypeDelivery ||
		categories["receipt.png"] != TypeReceipt {
		t.Errorf("categories: %v", categories)
	}

	// Quantities 100/100/90 yield exactly one mismatch; the dates are in
	// order so no date items appear.
	if len(gs.Errors) != 1 {
		t.Fatalf("errors: got %d, want 1: %v", len(gs.Errors), gs.Errors)
	}
	if gs.Errors[0].Type != report.TypeQuantityMismatch {
		t.Errorf("error type: %s", gs.Errors[0].Type)
	}

	// Page text lands under page-results before extraction reads it back.
	pagePath := filepath.Join(
		rt.ResultsBase, "proj", "ioc", "group-1", "pdf-1", pageResultsFolder, "page-1.md",
	)
	content, err := os.ReadFile(pagePath)
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != contractPage {
		t.Errorf("page content: %s", content)
	}

	// Persist commits metadata.json with completed extraction records.
	saved := readMetadata(t, filepath.Join(rt.ResultsBase, "proj", "ioc", "group-1", "metadata.json"))
	if len(saved) != 3 {
		t.Fatalf("persisted items: got %d, want 3", len(saved))
	}
	for _, doc := range saved {
		if doc.ExtractionStatus != StatusCompleted {
			t.Errorf("%s: status %s", doc.OriginalPath, doc.ExtractionStatus)
		}
	}

	// The group loop advanced and cleared its scratch state.
	if gs.GroupIndex != 1 || !gs.Done() {
		t.Errorf("group index: %d", gs.GroupIndex)
	}
	if gs.GroupKey != "" || gs.Files != nil || gs.Metadata != nil {
		t.Errorf("scratch state not cleared: %+v", gs)
	}
}

// Run drives the full graph: every discovered group must flow through the
// loop, not just the first.
func TestRunProcessesEveryGroup(t *testing.T) {
	rt, _ := testPipelineRuntime(t)
	docRoot := t.TempDir()
	ioc := filepath.Join(docRoot, "示例项目", "合同、送货单、入库单汇总")
	for _, group := range []string{"第1组", "第2组"} {
		touch(t, filepath.Join(ioc, group), "contract.pdf", "delivery.jpg", "receipt.png")
	}

	gs, err := Run(context.Background(), rt, docRoot)
	if err != nil {
		t.Fatal(err)
	}

	if gs.GroupIndex != 2 || !gs.Done() {
		t.Fatalf("group index: got %d, want 2", gs.GroupIndex)
	}
	for _, key := range []string{"group-1", "group-2"} {
		if len(gs.MetadataByGroup[key]) != 3 {
			t.Errorf("%s metadata: got %d, want 3", key, len(gs.MetadataByGroup[key]))
		}
		metadataPath := filepath.Join(
			rt.ResultsBase, "示例项目", "合同、送货单、入库单汇总", key, "metadata.json",
		)
		if _, err := os.Stat(metadataPath); err != nil {
			t.Errorf("%s not persisted: %v", key, err)
		}
	}

	// Each group carries the same 100/100/90 quantities, so each yields
	// exactly one mismatch.
	if len(gs.Errors) != 2 {
		t.Fatalf("errors: got %d, want 2: %v", len(gs.Errors), gs.Errors)
	}
	for _, item := range gs.Errors {
		if item.Type != report.TypeQuantityMismatch {
			t.Errorf("error type: %s", item.Type)
		}
	}
}

func TestRecognizeAdvancesOnFailure(t *testing.T) {
	rt, groupDir := testPipelineRuntime(t)
	gs := NewGroupState(
		ProjectRoot{ProjectName: "proj", IOCFolderName: "ioc"},
		[]Group{{FolderPath: groupDir}},
	)
	ctx := context.Background()

	if err := rt.prepareStep(ctx, &gs); err != nil {
		t.Fatal(err)
	}
	if len(gs.Files) != 4 {
		t.Fatalf("files: got %d, want 4", len(gs.Files))
	}

	// broken.pdf sorts first; its failed recognition must still advance
	// the index and leave no metadata behind.
	if err := rt.recognizeStep(ctx, &gs); err != nil {
		t.Fatal(err)
	}
	if gs.FileIndex != 1 {
		t.Errorf("file index: got %d, want 1", gs.FileIndex)
	}
	if len(gs.Metadata) != 0 {
		t.Errorf("metadata after failure: %+v", gs.Metadata)
	}
}

func TestClassifyRecordsFaultItem(t *testing.T) {
	rt, _ := testPipelineRuntime(t)
	gs := NewGroupState(ProjectRoot{ProjectName: "proj"}, nil)
	gs.GroupKey = "group-1"
	gs.Metadata = []*FileMetadata{{
		OriginalPath: "/docs/ghost.pdf",
		PageFiles:    []string{filepath.Join(t.TempDir(), "missing.md")},
	}}

	if err := rt.classifyStep(context.Background(), &gs); err != nil {
		t.Fatal(err)
	}

	if len(gs.Errors) != 1 {
		t.Fatalf("errors: got %d, want 1: %v", len(gs.Errors), gs.Errors)
	}
	item := gs.Errors[0]
	if item.Type != report.TypeClassificationFailed {
		t.Errorf("type: %s", item.Type)
	}
	if item.Folder != "group-1" {
		t.Errorf("folder: %s", item.Folder)
	}
	if gs.Metadata[0].Category != "" {
		t.Errorf("failed file must stay uncategorized: %s", gs.Metadata[0].Category)
	}
}

func TestPersistFailureRecordsItemAndAdvances(t *testing.T) {
	rt, _ := testPipelineRuntime(t)
	// A file at the results base makes MkdirAll fail on the metadata path.
	blocked := filepath.Join(t.TempDir(), "blocked")
	if err := os.WriteFile(blocked, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	rt.ResultsBase = blocked

	gs := NewGroupState(ProjectRoot{ProjectName: "proj", IOCFolderName: "ioc"}, []Group{{}})
	gs.GroupKey = "group-1"
	gs.Metadata = []*FileMetadata{{OriginalPath: "/docs/a.pdf"}}

	if err := rt.persistStep(context.Background(), &gs); err != nil {
		t.Fatal(err)
	}

	if len(gs.Errors) != 1 || gs.Errors[0].Type != report.TypePersistenceFailed {
		t.Fatalf("errors: %v", gs.Errors)
	}
	if gs.GroupIndex != 1 {
		t.Errorf("group index: got %d, want 1", gs.GroupIndex)
	}
	if len(gs.MetadataByGroup["group-1"]) != 1 {
		t.Errorf("metadata still recorded in memory: %v", gs.MetadataByGroup)
	}
}

func TestPersistEmptyGroupWritesMetadata(t *testing.T) {
	rt, _ := testPipelineRuntime(t)
	gs := NewGroupState(ProjectRoot{ProjectName: "proj", IOCFolderName: "ioc"}, []Group{{}})
	gs.GroupKey = "group-1"

	if err := rt.persistStep(context.Background(), &gs); err != nil {
		t.Fatal(err)
	}

	// No file survived recognition, but the commit still lands so re-runs
	// can tell the group was processed.
	saved := readMetadata(t, filepath.Join(rt.ResultsBase, "proj", "ioc", "group-1", "metadata.json"))
	if len(saved) != 0 {
		t.Errorf("persisted items: %v", saved)
	}
	if gs.GroupIndex != 1 {
		t.Errorf("group index: got %d, want 1", gs.GroupIndex)
	}
}

func TestExtractBranchReusesPersistedResults(t *testing.T) {
	rt, _ := testPipelineRuntime(t)
	rt.Text = &fakeChat{} // any model call would error

	gs := NewGroupState(ProjectRoot{}, nil)
	gs.Metadata = []*FileMetadata{{
		OriginalPath: "/docs/contract.pdf",
		Category:     TypeContract,
		PageFiles:    []string{"unused.md"},
		ExtractionResults: map[string]any{
			prompts.ExtractContractDate:  "persisted dates",
			prompts.ExtractContractItems: "persisted items",
		},
	}}

	if err := rt.extractStep(context.Background(), &gs); err != nil {
		t.Fatal(err)
	}

	results := gs.Extractions["/docs/contract.pdf"]
	if results == nil {
		t.Fatal("no reused extraction results")
	}
	if results[prompts.ExtractContractDate] != "persisted dates" || results[prompts.ExtractContractItems] != "persisted items" {
		t.Errorf("results: %v", results)
	}
	if results[extractionTypeKey] != TypeContract {
		t.Errorf("type tag: %v", results[extractionTypeKey])
	}
}

func TestGroupStateMerge(t *testing.T) {
	a := NewGroupState(ProjectRoot{ProjectName: "proj"}, []Group{{FolderPath: "/g"}})
	a.GroupIndex = 1
	a.Errors = []report.Item{{Type: report.TypeQuantityMismatch}}
	a.Extractions = map[string]map[string]any{"a.pdf": {extractionTypeKey: TypeContract}}
	a.MetadataByGroup = map[string][]*FileMetadata{"group-1": {{OriginalPath: "/docs/a.pdf"}}}

	b := NewGroupState(ProjectRoot{ProjectName: "proj"}, nil)
	b.GroupIndex = 2
	b.GroupKey = "group-3"
	b.Errors = []report.Item{{Type: report.TypeDateOrderMismatch}}
	b.Extractions = map[string]map[string]any{"b.pdf": {extractionTypeKey: TypeDelivery}}
	b.MetadataByGroup = map[string][]*FileMetadata{"group-2": {{OriginalPath: "/docs/b.pdf"}}}

	merged := a.Merge(b)

	if len(merged.Groups) != 1 {
		t.Errorf("groups: %v", merged.Groups)
	}
	if merged.GroupIndex != 2 {
		t.Errorf("group index: got %d, want 2", merged.GroupIndex)
	}
	if merged.GroupKey != "group-3" {
		t.Errorf("group key: %s", merged.GroupKey)
	}
	if len(merged.Errors) != 2 {
		t.Errorf("errors: %v", merged.Errors)
	}
	if merged.Extractions["a.pdf"] == nil || merged.Extractions["b.pdf"] == nil {
		t.Errorf("extractions: %v", merged.Extractions)
	}

	// Both sides' persisted groups survive, in either merge order.
	for name, m := range map[string]GroupState{"a,b": merged, "b,a": b.Merge(a)} {
		if len(m.MetadataByGroup["group-1"]) != 1 || len(m.MetadataByGroup["group-2"]) != 1 {
			t.Errorf("%s metadata by group: %v", name, m.MetadataByGroup)
		}
	}
}
