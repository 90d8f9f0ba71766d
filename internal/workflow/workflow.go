// Package workflow composes the two audit pipelines over one document
// root: the per-file compliance checks and the cross-document consistency
// checks run in parallel and their findings are unioned into a single run
// result.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/auditkit/docaudit/internal/config"
	"github.com/auditkit/docaudit/internal/consistency"
	"github.com/auditkit/docaudit/internal/inference"
	"github.com/auditkit/docaudit/internal/normative"
	"github.com/auditkit/docaudit/internal/ocr"
	"github.com/auditkit/docaudit/internal/pages"
	"github.com/auditkit/docaudit/internal/report"
	"github.com/auditkit/docaudit/internal/state"
)

// Workflow holds the composed runtimes for one audit process. Close
// releases the rendered-page scratch directory.
type Workflow struct {
	Normative   *normative.Runtime
	Consistency *consistency.Runtime
	Logger      *slog.Logger

	tempDir string
}

// New wires the pipeline runtimes from finalized configuration: one
// inference client shared by both pipelines, the OCR engine per the
// configured work mode, and a scratch directory for rendered PDF pages.
func New(cfg *config.Config, logger *slog.Logger) (*Workflow, error) {
	tempDir, err := os.MkdirTemp("", "docaudit-pages-")
	if err != nil {
		return nil, fmt.Errorf("create page directory: %w", err)
	}

	workers := cfg.Audit.MaxWorkers
	if workers == 0 {
		workers = runtime.NumCPU()
	}

	client := inference.NewAgentClient(cfg.Agent)

	return &Workflow{
		Normative: &normative.Runtime{
			Vision:  client,
			Logger:  logger,
			Pages:   boundedLoader(workers),
			TempDir: tempDir,
		},
		Consistency: &consistency.Runtime{
			Text:        client,
			OCR:         ocr.NewEngine(cfg.OCR, logger),
			Logger:      logger,
			ResultsBase: cfg.Audit.ResultsPath,
		},
		Logger:  logger,
		tempDir: tempDir,
	}, nil
}

// Close removes the rendered-page scratch directory.
func (w *Workflow) Close() error {
	if w.tempDir == "" {
		return nil
	}
	return os.RemoveAll(w.tempDir)
}

// boundedLoader caps concurrent page rendering across the check
// namespaces, which otherwise render independently.
func boundedLoader(limit int) normative.PageLoader {
	return boundLoader(limit, pages.Load)
}

func boundLoader(limit int, load normative.PageLoader) normative.PageLoader {
	sem := make(chan struct{}, limit)
	return func(ctx context.Context, path, tempDir string) ([]pages.Page, error) {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		defer func() { <-sem }()
		return load(ctx, path, tempDir)
	}
}

// Result is the outcome of one audit run. The pipeline accumulators are
// carried alongside the error union so callers can tell a passed check
// from one that never had data to check.
type Result struct {
	RunID       string
	Root        string
	Style       normative.Style
	StartedAt   time.Time
	CompletedAt time.Time

	Files       []string
	Normative   *normative.Results
	Consistency consistency.GroupState
	Errors      []report.Item
}

// Execute runs both pipelines over the document root and unions their
// findings. The per-file checks cover every supported file under the
// root; the consistency checks discover their own document groups.
func (w *Workflow) Execute(ctx context.Context, root string, style normative.Style) (*Result, error) {
	result := &Result{
		RunID:     uuid.NewString(),
		Root:      root,
		Style:     style,
		StartedAt: time.Now(),
	}

	files, err := Scan(root)
	if err != nil {
		return nil, err
	}
	result.Files = files

	w.Logger.InfoContext(
		ctx, "audit started",
		"run_id", result.RunID,
		"root", root,
		"files", len(files),
		"style", string(style),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := normative.Run(gctx, w.Normative, files, style)
		if err != nil {
			return fmt.Errorf("normative checks: %w", err)
		}
		result.Normative = res
		return nil
	})
	g.Go(func() error {
		gs, err := consistency.Run(gctx, w.Consistency, root)
		if err != nil {
			return fmt.Errorf("consistency checks: %w", err)
		}
		result.Consistency = gs
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result.CompletedAt = time.Now()
	result.Errors = state.Append(result.Normative.Errors(), result.Consistency.Errors)

	w.Logger.InfoContext(
		ctx, "audit complete",
		"run_id", result.RunID,
		"errors", len(result.Errors),
		"duration", result.CompletedAt.Sub(result.StartedAt).String(),
	)
	return result, nil
}

// Summary is the serializable view of a run result.
type Summary struct {
	RunID       string        `json:"run_id"`
	Root        string        `json:"root"`
	Style       string        `json:"style"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
	FileCount   int           `json:"file_count"`
	Project     string        `json:"project,omitempty"`
	GroupCount  int           `json:"group_count"`
	ErrorCount  int           `json:"error_count"`
	Errors      []report.Item `json:"errors"`
}

// Summary projects the result into its serializable form. Errors is never
// null: an empty run serializes with an empty list.
func (r *Result) Summary() Summary {
	errs := r.Errors
	if errs == nil {
		errs = []report.Item{}
	}

	return Summary{
		RunID:       r.RunID,
		Root:        r.Root,
		Style:       string(r.Style),
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		FileCount:   len(r.Files),
		Project:     r.Consistency.Root.ProjectName,
		GroupCount:  len(r.Consistency.Groups),
		ErrorCount:  len(errs),
		Errors:      errs,
	}
}
