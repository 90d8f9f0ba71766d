// Package ocr recognizes document text through two interchangeable
// backends: a hosted recognition API and a locally served model. The
// engine selects backends by work mode; hybrid tries the API first and
// falls back to the local model when the API call fails.
package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/auditkit/docaudit/internal/config"
)

// Result is the recognized text of one file, one markdown string per page.
type Result struct {
	Engine string   `json:"engine"`
	Pages  []string `json:"pages"`
	Merged string   `json:"merged"`
}

// Recognizer performs text recognition on a single file.
type Recognizer interface {
	Recognize(ctx context.Context, filePath string) (*Result, error)
}

// Engine dispatches recognition to the configured backends.
type Engine struct {
	Mode   string
	API    Recognizer
	Local  Recognizer
	Logger *slog.Logger
}

// NewEngine builds an engine from the finalized OCR configuration. The
// configuration guarantees mode validity: api_only always has an API
// endpoint and hybrid has already degraded to local_only when it lacks one.
func NewEngine(cfg config.OCRConfig, logger *slog.Logger) *Engine {
	e := &Engine{Mode: cfg.WorkMode, Logger: logger}

	if cfg.WorkMode != config.OCRModeAPIOnly {
		e.Local = NewLocalModel(cfg.LocalURL, cfg.TimeoutDuration())
	}
	if cfg.WorkMode != config.OCRModeLocalOnly {
		e.API = NewAPIModel(cfg.APIURL, cfg.APIToken, cfg.TimeoutDuration())
	}

	return e
}

// Recognize runs the file through the backend(s) selected by the work mode.
func (e *Engine) Recognize(ctx context.Context, filePath string) (*Result, error) {
	switch e.Mode {
	case config.OCRModeLocalOnly:
		return e.Local.Recognize(ctx, filePath)
	case config.OCRModeAPIOnly:
		return e.API.Recognize(ctx, filePath)
	case config.OCRModeHybrid:
		return e.recognizeHybrid(ctx, filePath)
	default:
		return nil, fmt.Errorf("unknown ocr work mode: %s", e.Mode)
	}
}

func (e *Engine) recognizeHybrid(ctx context.Context, filePath string) (*Result, error) {
	result, err := e.API.Recognize(ctx, filePath)
	if err == nil {
		return result, nil
	}

	e.Logger.WarnContext(
		ctx, "api recognition failed, falling back to local model",
		"file", filePath,
		"error", err,
	)

	return e.Local.Recognize(ctx, filePath)
}

func mergePages(pages []string) string {
	return strings.Join(pages, "\n\n")
}
