package consistency

import (
	"context"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/auditkit/docaudit/internal/prompts"
	"github.com/auditkit/docaudit/internal/state"
	"github.com/auditkit/docaudit/pkg/formatting"
)

// extractionTypeKey tags a file's extraction record with its document
// category so the checks can partition results without re-reading
// metadata.
const extractionTypeKey = "__type__"

// branch is one structured-extraction pass. The prompt name doubles as the
// result key, which keeps branches for the same document type
// write-disjoint per file.
type branch struct {
	promptKey string
	docType   string
}

var branches = []branch{
	{prompts.ExtractContractDate, TypeContract},
	{prompts.ExtractContractItems, TypeContract},
	{prompts.ExtractDeliveryDate, TypeDelivery},
	{prompts.ExtractDeliveryItems, TypeDelivery},
	{prompts.ExtractReceiptCombined, TypeReceipt},
}

// runExtraction executes the five branches in parallel over the group's
// classified files and reduces the per-branch maps with the structural
// union combinator. Branch failures degrade to missing results.
func (rt *Runtime) runExtraction(ctx context.Context, metadata []*FileMetadata) map[string]map[string]any {
	results := make([]map[string]map[string]any, len(branches))

	g, gctx := errgroup.WithContext(ctx)
	for i, b := range branches {
		g.Go(func() error {
			results[i] = rt.extractBranch(gctx, b, metadata)
			return nil
		})
	}
	g.Wait()

	merged := make(map[string]map[string]any)
	for _, branchResults := range results {
		merged = state.MergeExtractions(merged, branchResults)
	}
	return merged
}

// extractBranch runs one branch over every file of its document type.
// Already-persisted results are reused without model calls; otherwise
// each recognized page is prompted individually and repair-parsed. A
// parse failure still records the raw response for the page.
func (rt *Runtime) extractBranch(ctx context.Context, b branch, metadata []*FileMetadata) map[string]map[string]any {
	template, err := prompts.Load(b.promptKey)
	if err != nil {
		rt.Logger.WarnContext(ctx, "extraction prompt unavailable", "prompt", b.promptKey, "error", err)
		return nil
	}

	results := make(map[string]map[string]any)
	for _, doc := range metadata {
		if doc.Category != b.docType {
			continue
		}

		if existing, ok := doc.ExtractionResults[b.promptKey]; ok {
			results[doc.OriginalPath] = map[string]any{
				extractionTypeKey: b.docType,
				b.promptKey:       existing,
			}
			continue
		}

		if len(doc.PageFiles) == 0 {
			continue
		}

		var pageResults []formatting.Result
		for _, pageFile := range doc.PageFiles {
			content, err := os.ReadFile(pageFile)
			if err != nil {
				continue
			}

			prompt := prompts.Fill(template, map[string]string{"ocr_result": string(content)})
			response, err := rt.Text.Chat(ctx, prompt)
			if err != nil {
				rt.Logger.WarnContext(
					ctx, "extraction call failed",
					"prompt", b.promptKey, "file", doc.OriginalPath, "page", pageFile, "error", err,
				)
				continue
			}

			pageResults = append(pageResults, formatting.ParseAny(response))
		}

		if len(pageResults) > 0 {
			results[doc.OriginalPath] = map[string]any{
				extractionTypeKey: b.docType,
				b.promptKey:       pageResults,
			}
		}
	}

	return results
}
