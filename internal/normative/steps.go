package normative

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/auditkit/docaudit/internal/inference"
	"github.com/auditkit/docaudit/internal/pages"
	"github.com/auditkit/docaudit/internal/prompts"
	"github.com/auditkit/docaudit/internal/report"
	"github.com/auditkit/docaudit/internal/state"
)

// PageLoader renders a file's pages to images under tempDir.
type PageLoader func(ctx context.Context, path, tempDir string) ([]pages.Page, error)

// Runtime bundles the dependencies the verification steps require.
type Runtime struct {
	Vision  inference.Client
	Logger  *slog.Logger
	Pages   PageLoader
	TempDir string
}

// Each step advances its index by exactly one per invocation whatever the
// outcome: load failures, capability errors, and parse failures degrade to
// the negative result for their unit and never stall the pipeline. Steps
// return an error only for context cancellation.

func detectStep(ctx context.Context, rt *Runtime, ns Namespace, cs *CheckState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if cs.Step1Index >= len(cs.Files) {
		return nil
	}

	file := cs.Files[cs.Step1Index]
	cs.Step1Current = state.Some(file)
	defer func() { cs.Step1Index++ }()

	prompt, err := prompts.Load(ns.DetectPrompt)
	if err != nil {
		rt.Logger.WarnContext(ctx, "detect prompt unavailable", "namespace", ns.Name, "error", err)
		return nil
	}

	filePages, err := loadFilePages(ctx, rt, ns, cs.Step1Index, file)
	if err != nil {
		rt.Logger.WarnContext(ctx, "page load failed", "namespace", ns.Name, "file", file, "error", err)
		return nil
	}

	images := make(map[int]string, len(filePages))
	var found []int
	for _, p := range filePages {
		images[p.Number] = p.ImagePath

		content, err := rt.Vision.Vision(ctx, prompt, p.ImagePath)
		if err != nil {
			rt.Logger.WarnContext(
				ctx, "detect call failed",
				"namespace", ns.Name, "file", file, "page", p.Number, "error", err,
			)
			continue
		}
		if ns.parseDetect(content) {
			found = append(found, p.Number)
		}
	}

	cs.PageImages[file] = images
	if len(found) > 0 {
		cs.Regions[file] = found
	}
	return nil
}

func extractStep(ctx context.Context, rt *Runtime, ns Namespace, cs *CheckState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if cs.Step2Index >= len(cs.Files) {
		return nil
	}

	file := cs.Files[cs.Step2Index]
	cs.Step2Current = state.Some(file)
	defer func() { cs.Step2Index++ }()

	regions := cs.Regions[file]
	if len(regions) == 0 {
		return nil
	}

	prompt, err := prompts.Load(ns.ExtractPrompt)
	if err != nil {
		rt.Logger.WarnContext(ctx, "extract prompt unavailable", "namespace", ns.Name, "error", err)
		return nil
	}

	extracted := make(map[int][]Identifier)
	for _, page := range regions {
		content, err := rt.Vision.Vision(ctx, prompt, cs.PageImages[file][page])
		if err != nil {
			rt.Logger.WarnContext(
				ctx, "extract call failed",
				"namespace", ns.Name, "file", file, "page", page, "error", err,
			)
			continue
		}

		// Both conditions must hold: models sometimes echo the found
		// flag alongside an empty list.
		found, identifiers := ns.parseExtract(content)
		if found && len(identifiers) > 0 {
			extracted[page] = identifiers
		}
	}

	if len(extracted) > 0 {
		cs.Identifiers[file] = extracted
	}
	return nil
}

func verifyStep(ctx context.Context, rt *Runtime, ns Namespace, cs *CheckState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if cs.Step3Index >= len(cs.Files) {
		return nil
	}

	file := cs.Files[cs.Step3Index]
	cs.Step3Current = state.Some(file)
	defer func() { cs.Step3Index++ }()

	pageIdentifiers := cs.Identifiers[file]
	if len(pageIdentifiers) == 0 {
		return nil
	}

	template, err := prompts.Load(ns.VerifyPrompt)
	if err != nil {
		rt.Logger.WarnContext(ctx, "verify prompt unavailable", "namespace", ns.Name, "error", err)
		return nil
	}

	for _, page := range slices.Sorted(maps.Keys(pageIdentifiers)) {
		var missing []string
		for _, id := range pageIdentifiers[page] {
			prompt := prompts.Fill(template, map[string]string{
				"identifier": id.Identifier,
				"position":   id.Position,
			})

			content, err := rt.Vision.Vision(ctx, prompt, cs.PageImages[file][page])
			if err != nil {
				rt.Logger.WarnContext(
					ctx, "verify call failed",
					"namespace", ns.Name, "file", file, "page", page, "error", err,
				)
				missing = append(missing, id.Identifier)
				continue
			}
			if ns.parseNegative(content) {
				missing = append(missing, id.Identifier)
			}
		}

		if len(missing) > 0 {
			cs.Errors = append(cs.Errors, report.Item{
				Category: report.CategoryNormative,
				Type:     ns.ErrorType,
				Files:    []string{file},
				Pages:    map[string][]int{file: {page}},
				Description: fmt.Sprintf(
					"page %d of %s has %d %s identifiers without content",
					page, filepath.Base(file), len(missing), ns.Name,
				),
				Metadata: map[string]any{"missing": missing},
			})
		}
	}
	return nil
}

func loadFilePages(ctx context.Context, rt *Runtime, ns Namespace, index int, file string) ([]pages.Page, error) {
	dir := filepath.Join(rt.TempDir, fmt.Sprintf("%s-%d", ns.Name, index))
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create page directory: %w", err)
	}
	return rt.Pages(ctx, file, dir)
}
