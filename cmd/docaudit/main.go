package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/auditkit/docaudit/internal/config"
	"github.com/auditkit/docaudit/internal/normative"
	"github.com/auditkit/docaudit/internal/workflow"
)

func main() {
	var (
		root   = flag.String("root", "", "Document root directory to audit")
		style  = flag.String("style", "streaming", "Check pipeline style: streaming or batch")
		output = flag.String("output", "", "Write the run summary to this file instead of stdout")
	)
	flag.Parse()

	if *root == "" {
		fmt.Fprintln(os.Stderr, "usage: docaudit -root <directory> [-style streaming|batch] [-output report.json]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	pipelineStyle := normative.Style(*style)
	switch pipelineStyle {
	case normative.StyleStreaming, normative.StyleBatch:
	default:
		log.Fatalf("unknown style: %s", *style)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config load failed: ", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	logger.Info(
		"docaudit starting",
		"version", cfg.Version,
		"env", cfg.Env(),
		"root", *root,
		"ocr_mode", cfg.OCR.WorkMode,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, err := workflow.New(cfg, logger)
	if err != nil {
		log.Fatal("workflow setup failed: ", err)
	}
	defer w.Close()

	result, err := w.Execute(ctx, *root, pipelineStyle)
	if err != nil {
		log.Fatal("audit failed: ", err)
	}

	data, err := json.MarshalIndent(result.Summary(), "", "  ")
	if err != nil {
		log.Fatal("encode summary failed: ", err)
	}

	if *output != "" {
		if err := os.WriteFile(*output, data, 0644); err != nil {
			log.Fatal("write summary failed: ", err)
		}
	} else {
		fmt.Println(string(data))
	}

	if len(result.Errors) > 0 {
		os.Exit(1)
	}
}
