package consistency

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/auditkit/docaudit/internal/inference"
	"github.com/auditkit/docaudit/internal/ocr"
	"github.com/auditkit/docaudit/internal/pages"
	"github.com/auditkit/docaudit/internal/report"
	"github.com/auditkit/docaudit/internal/state"
)

const pageResultsFolder = "page-results"

// Runtime bundles the dependencies the group pipeline requires.
type Runtime struct {
	Text        inference.Client
	OCR         ocr.Recognizer
	Logger      *slog.Logger
	ResultsBase string
}

// GroupState is the consistency pipeline's shared state record. The group
// and file loops advance index counters with the same
// monotonic-advance-on-any-outcome discipline as the verification
// pipelines; per-group fields are cleared when a group persists.
type GroupState struct {
	Root   ProjectRoot
	Groups []Group

	GroupIndex int
	GroupKey   string
	Files      []string
	FileIndex  int
	Metadata   []*FileMetadata

	Extractions     map[string]map[string]any
	OCRResults      map[string]map[string]string
	MetadataByGroup map[string][]*FileMetadata

	Errors []report.Item
}

// NewGroupState initializes pipeline state over the discovered groups.
func NewGroupState(root ProjectRoot, groups []Group) GroupState {
	return GroupState{
		Root:            root,
		Groups:          groups,
		Extractions:     make(map[string]map[string]any),
		OCRResults:      make(map[string]map[string]string),
		MetadataByGroup: make(map[string][]*FileMetadata),
	}
}

// Merge resolves two concurrent proposals field by field. Group and file
// indices never regress, accumulator maps union structurally, and the
// current-group scratch fields take the newer proposal.
func (gs GroupState) Merge(other GroupState) GroupState {
	merged := GroupState{
		Root:            gs.Root,
		Groups:          state.TakeFirstNonEmpty(gs.Groups, other.Groups),
		GroupIndex:      state.Max(gs.GroupIndex, other.GroupIndex),
		GroupKey:        state.Replace(gs.GroupKey, other.GroupKey),
		Files:           state.Replace(gs.Files, other.Files),
		FileIndex:       state.Max(gs.FileIndex, other.FileIndex),
		Metadata:        state.Append(nil, gs.Metadata),
		Extractions:     state.MergeExtractions(gs.Extractions, other.Extractions),
		OCRResults:      state.MergeOCRResults(gs.OCRResults, other.OCRResults),
		MetadataByGroup: state.MergeByGroup(gs.MetadataByGroup, other.MetadataByGroup),
		Errors:          state.Append(gs.Errors, other.Errors),
	}
	merged.Metadata = state.Append(merged.Metadata, other.Metadata)
	return merged
}

// Done reports whether every discovered group has been processed.
func (gs GroupState) Done() bool {
	return gs.GroupIndex >= len(gs.Groups)
}

func (gs *GroupState) currentGroup() *Group {
	if gs.GroupIndex >= len(gs.Groups) {
		return nil
	}
	return &gs.Groups[gs.GroupIndex]
}

// prepareStep enters the current group: it derives the group key, collects
// the group's files in sorted order, and resets the per-group scratch
// state. An empty group flows through the remaining stages as no-ops.
func (rt *Runtime) prepareStep(ctx context.Context, gs *GroupState) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	group := gs.currentGroup()
	if group == nil {
		return nil
	}

	gs.GroupKey = fmt.Sprintf("group-%d", gs.GroupIndex+1)
	gs.Files = CollectFiles(group.FolderPath)
	gs.FileIndex = 0
	gs.Metadata = nil
	gs.Extractions = make(map[string]map[string]any)

	rt.Logger.InfoContext(
		ctx, "group prepared",
		"group", gs.GroupKey,
		"folder", group.FolderPath,
		"files", len(gs.Files),
	)
	return nil
}

// recognizeStep runs OCR for the file at the current file index, writes
// one markdown file per recognized page, and appends the file's metadata.
// Recognition failure yields no pages and still advances.
func (rt *Runtime) recognizeStep(ctx context.Context, gs *GroupState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if gs.FileIndex >= len(gs.Files) {
		return nil
	}

	file := gs.Files[gs.FileIndex]
	index := gs.FileIndex
	gs.FileIndex++

	fileType := "image"
	if pages.IsPDF(file) {
		fileType = "pdf"
	}

	baseDir := filepath.Join(
		rt.ResultsBase, gs.Root.ProjectName, gs.Root.IOCFolderName,
		gs.GroupKey, fmt.Sprintf("%s-%d", fileType, index),
	)
	pageDir := filepath.Join(baseDir, pageResultsFolder)
	if err := os.MkdirAll(pageDir, 0755); err != nil {
		rt.Logger.WarnContext(ctx, "create result directory failed", "file", file, "error", err)
		return nil
	}

	result, err := rt.OCR.Recognize(ctx, file)
	if err != nil {
		rt.Logger.WarnContext(ctx, "recognition failed", "file", file, "error", err)
		return nil
	}

	var pageFiles []string
	for i, text := range result.Pages {
		pagePath := filepath.Join(pageDir, fmt.Sprintf("page-%d.md", i+1))
		if err := os.WriteFile(pagePath, []byte(text), 0644); err != nil {
			rt.Logger.WarnContext(ctx, "write page failed", "page", pagePath, "error", err)
			continue
		}
		pageFiles = append(pageFiles, pagePath)
	}

	if len(pageFiles) == 0 {
		return nil
	}

	gs.Metadata = append(gs.Metadata, &FileMetadata{
		OriginalPath:     file,
		FileType:         fileType,
		OCRFolder:        baseDir,
		PageFiles:        pageFiles,
		Timestamp:        time.Now().Format(timestampLayout),
		PageCount:        len(pageFiles),
		ExtractionStatus: StatusPending,
	})

	if gs.OCRResults[gs.GroupKey] == nil {
		gs.OCRResults[gs.GroupKey] = make(map[string]string)
	}
	gs.OCRResults[gs.GroupKey][file] = baseDir
	return nil
}

// classifyStep assigns each recognized file its document category. A file
// whose page content is entirely unreadable converts to one
// classification fault item and the loop continues with its siblings.
func (rt *Runtime) classifyStep(ctx context.Context, gs *GroupState) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	stats := map[string]int{}
	for _, doc := range gs.Metadata {
		classification, err := ClassifyFile(doc.PageFiles)
		if err != nil {
			gs.Errors = append(gs.Errors, report.Item{
				Category:    report.CategoryConsistency,
				Type:        report.TypeClassificationFailed,
				Project:     gs.Root.ProjectName,
				Files:       []string{doc.OriginalPath},
				Folder:      gs.GroupKey,
				Pages:       map[string][]int{},
				Description: fmt.Sprintf("文档分类失败：%s", filepath.Base(doc.OriginalPath)),
				Metadata:    map[string]any{"error": err.Error()},
			})
			continue
		}

		doc.Category = classification.Category
		doc.Keyword = classification.Keyword
		doc.MatchedPage = classification.MatchedPage
		stats[classification.Category]++
	}

	rt.Logger.InfoContext(
		ctx, "group classified",
		"group", gs.GroupKey,
		"contracts", stats[TypeContract],
		"deliveries", stats[TypeDelivery],
		"receipts", stats[TypeReceipt],
		"unclassified", stats[TypeUnclassified],
	)
	return nil
}

// extractStep runs the five extraction branches over the classified group.
func (rt *Runtime) extractStep(ctx context.Context, gs *GroupState) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	gs.Extractions = rt.runExtraction(ctx, gs.Metadata)
	return nil
}

// checkStep runs the two consistency checks in parallel over the group's
// accumulated extraction results.
func (rt *Runtime) checkStep(ctx context.Context, gs *GroupState) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	group := gs.currentGroup()
	if group == nil {
		return nil
	}

	var quantityErrs, dateErrs []report.Item
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		quantityErrs = CheckQuantities(gs.Extractions, gs.Root.ProjectName, group.FolderPath)
		return nil
	})
	g.Go(func() error {
		dateErrs = CheckDateOrder(gs.Extractions, gs.Root.ProjectName, group.FolderPath)
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	gs.Errors = state.Append(gs.Errors, quantityErrs)
	gs.Errors = state.Append(gs.Errors, dateErrs)
	return nil
}

// persistStep writes the group's metadata.json, records the group's
// results, clears the per-group scratch state, and advances the group
// index. Persistence failure converts to one group-tagged item; the loop
// still advances.
func (rt *Runtime) persistStep(ctx context.Context, gs *GroupState) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// A group whose every file failed recognition still commits an empty
	// metadata list, so re-runs can tell "processed, nothing readable"
	// from "never reached".
	if gs.GroupKey != "" {
		metadataPath := filepath.Join(
			rt.ResultsBase, gs.Root.ProjectName, gs.Root.IOCFolderName,
			gs.GroupKey, "metadata.json",
		)

		if err := SaveMetadata(metadataPath, gs.Metadata, gs.Extractions); err != nil {
			gs.Errors = append(gs.Errors, report.Item{
				Category:    report.CategoryConsistency,
				Type:        report.TypePersistenceFailed,
				Project:     gs.Root.ProjectName,
				Files:       []string{},
				Folder:      gs.GroupKey,
				Pages:       map[string][]int{},
				Description: fmt.Sprintf("元数据保存失败：%s", metadataPath),
				Metadata:    map[string]any{"error": err.Error()},
			})
		} else {
			rt.Logger.InfoContext(ctx, "group persisted", "group", gs.GroupKey, "path", metadataPath)
		}

		gs.MetadataByGroup[gs.GroupKey] = gs.Metadata
	}

	gs.GroupIndex++
	gs.GroupKey = ""
	gs.Files = nil
	gs.FileIndex = 0
	gs.Metadata = nil
	gs.Extractions = make(map[string]map[string]any)
	return nil
}
