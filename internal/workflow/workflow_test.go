package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/auditkit/docaudit/internal/consistency"
	"github.com/auditkit/docaudit/internal/normative"
	"github.com/auditkit/docaudit/internal/pages"
	"github.com/auditkit/docaudit/internal/report"
)

type stubClient struct{}

func (stubClient) Vision(context.Context, string, string) (string, error) {
	return "", errors.New("not scripted")
}

func (stubClient) Chat(context.Context, string) (string, error) {
	return "", errors.New("not scripted")
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func touch(t *testing.T, root string, files ...string) {
	t.Helper()
	for _, file := range files {
		path := filepath.Join(root, file)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestScan(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "b.pdf", "sub/a.jpg", "notes.txt", "sub/deep/c.png")

	files, err := Scan(root)
	if err != nil {
		t.Fatal(err)
	}

	want := []string{
		filepath.Join(root, "b.pdf"),
		filepath.Join(root, "sub/a.jpg"),
		filepath.Join(root, "sub/deep/c.png"),
	}
	if !slices.Equal(files, want) {
		t.Errorf("files: got %v, want %v", files, want)
	}
}

func TestScanMissingRoot(t *testing.T) {
	if _, err := Scan(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing root")
	}
}

func TestScanFileRoot(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "doc.pdf")

	if _, err := Scan(filepath.Join(root, "doc.pdf")); err == nil {
		t.Error("expected error for non-directory root")
	}
}

func TestExecuteEmptyRoot(t *testing.T) {
	w := &Workflow{
		Normative: &normative.Runtime{
			Vision: stubClient{},
			Logger: discardLogger(),
			Pages: func(context.Context, string, string) ([]pages.Page, error) {
				return nil, errors.New("no pages expected")
			},
			TempDir: t.TempDir(),
		},
		Consistency: &consistency.Runtime{
			Text:        stubClient{},
			Logger:      discardLogger(),
			ResultsBase: t.TempDir(),
		},
		Logger: discardLogger(),
	}

	result, err := w.Execute(context.Background(), t.TempDir(), normative.StyleStreaming)
	if err != nil {
		t.Fatal(err)
	}

	if result.RunID == "" {
		t.Error("run id not assigned")
	}
	if len(result.Files) != 0 {
		t.Errorf("files: %v", result.Files)
	}
	if result.Normative == nil {
		t.Fatal("normative results missing")
	}
	if len(result.Errors) != 0 {
		t.Errorf("errors: %v", result.Errors)
	}
	if result.CompletedAt.Before(result.StartedAt) {
		t.Error("completion precedes start")
	}
}

func TestSummarySerialization(t *testing.T) {
	result := &Result{
		RunID:     "run-1",
		Root:      "/docs",
		Style:     normative.StyleBatch,
		Normative: &normative.Results{},
		Consistency: consistency.NewGroupState(
			consistency.ProjectRoot{ProjectName: "proj"},
			[]consistency.Group{{FolderPath: "/docs/g"}},
		),
		Errors: []report.Item{{
			Category: report.CategoryNormative,
			Type:     report.TypeDateMissing,
		}},
	}

	data, err := json.Marshal(result.Summary())
	if err != nil {
		t.Fatal(err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["run_id"] != "run-1" || decoded["style"] != "batch" {
		t.Errorf("summary: %v", decoded)
	}
	if decoded["project"] != "proj" || decoded["group_count"] != 1.0 {
		t.Errorf("consistency fields: %v", decoded)
	}
	if decoded["error_count"] != 1.0 {
		t.Errorf("error count: %v", decoded["error_count"])
	}
}

func TestSummaryEmptyErrorsNotNull(t *testing.T) {
	result := &Result{Normative: &normative.Results{}}

	data, err := json.Marshal(result.Summary())
	if err != nil {
		t.Fatal(err)
	}

	var decoded struct {
		Errors []report.Item `json:"errors"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Errors == nil {
		t.Error("errors serialized as null")
	}
}

func TestBoundLoaderLimitsConcurrency(t *testing.T) {
	const limit = 2
	const calls = 6

	var active, peak atomic.Int32
	gate := make(chan struct{})

	loader := boundLoader(limit, func(context.Context, string, string) ([]pages.Page, error) {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-gate
		active.Add(-1)
		return nil, nil
	})

	var wg sync.WaitGroup
	started := make(chan struct{}, calls)
	for range calls {
		wg.Add(1)
		go func() {
			defer wg.Done()
			started <- struct{}{}
			loader(context.Background(), "a.jpg", "")
		}()
	}
	for range calls {
		<-started
	}
	close(gate)
	wg.Wait()

	if got := peak.Load(); got > limit {
		t.Errorf("peak concurrency: got %d, want at most %d", got, limit)
	}
}

func TestBoundLoaderHonorsCancellation(t *testing.T) {
	holding := make(chan struct{})
	release := make(chan struct{})

	loader := boundLoader(1, func(context.Context, string, string) ([]pages.Page, error) {
		close(holding)
		<-release
		return nil, nil
	})

	go loader(context.Background(), "a.jpg", "")
	<-holding

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := loader(ctx, "b.jpg", ""); !errors.Is(err, context.Canceled) {
		t.Errorf("error: got %v, want context.Canceled", err)
	}
	close(release)
}
