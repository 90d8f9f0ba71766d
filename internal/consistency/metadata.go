package consistency

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Document categories. Values appear verbatim in persisted metadata and in
// the classification output of the source documents.
const (
	TypeContract     = "采购合同"
	TypeDelivery     = "送货单"
	TypeReceipt      = "采购入库单"
	TypeUnclassified = "未分类"
)

// ExtractionStatus tracks a file's progress through structured extraction.
type ExtractionStatus string

const (
	StatusPending    ExtractionStatus = "pending"
	StatusInProgress ExtractionStatus = "in_progress"
	StatusCompleted  ExtractionStatus = "completed"
	StatusFailed     ExtractionStatus = "failed"
	StatusSkipped    ExtractionStatus = "skipped"
)

const timestampLayout = "2006-01-02 15:04:05"

// FileMetadata records one file's recognition output and is enriched in
// place by classification and extraction before the group persists.
type FileMetadata struct {
	OriginalPath string   `json:"original_path"`
	FileType     string   `json:"file_type"`
	OCRFolder    string   `json:"ocr_folder"`
	PageFiles    []string `json:"page_files"`
	Timestamp    string   `json:"timestamp"`
	PageCount    int      `json:"page_count"`

	Category    string `json:"文档类别,omitempty"`
	Keyword     string `json:"classification_keyword,omitempty"`
	MatchedPage string `json:"matched_page,omitempty"`

	ExtractionStatus  ExtractionStatus `json:"extraction_status,omitempty"`
	ExtractionResults map[string]any   `json:"extraction_results,omitempty"`
	ExtractionTime    string           `json:"extraction_timestamp,omitempty"`
}

// SaveMetadata writes the group's metadata.json, merging with any existing
// file so re-runs enrich rather than overwrite earlier results. This is
// the group's single durable commit point.
func SaveMetadata(path string, items []*FileMetadata, extractions map[string]map[string]any) error {
	if existing, err := loadMetadata(path); err == nil && existing != nil {
		items = existing
	}
	if items == nil {
		items = []*FileMetadata{}
	}

	now := time.Now().Format(timestampLayout)
	for _, item := range items {
		fileResults, ok := extractions[item.OriginalPath]
		if !ok {
			continue
		}

		if item.ExtractionResults == nil {
			item.ExtractionResults = make(map[string]any, len(fileResults))
		}
		for key, value := range fileResults {
			item.ExtractionResults[key] = value
		}
		item.ExtractionStatus = StatusCompleted
		item.ExtractionTime = now
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create metadata directory: %w", err)
	}

	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

func loadMetadata(path string) ([]*FileMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var items []*FileMetadata
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parse metadata: %w", err)
	}
	return items, nil
}
