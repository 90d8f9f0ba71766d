// Package consistency audits one matched set of procurement documents at a
// time: it discovers document groups under a project root, recognizes and
// classifies every file, extracts structured line items and dates, and
// cross-checks quantities and date ordering across the three document
// types.
package consistency

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/auditkit/docaudit/internal/pages"
)

// rootKeywords must all appear in a folder's name for it to be the
// project's document root.
var rootKeywords = []string{"合同", "送货单", "入库单"}

// ProjectRoot locates the folder holding one project's contract, delivery
// note, and goods-receipt documents.
type ProjectRoot struct {
	ProjectName   string `json:"project_name"`
	ProjectPath   string `json:"project_path"`
	IOCFolderName string `json:"ioc_folder_name"`
	IOCFolderPath string `json:"ioc_folder_path"`
}

// GroupStats summarizes a candidate folder's direct contents.
type GroupStats struct {
	PDFCount    int `json:"pdf_count"`
	ImageCount  int `json:"image_count"`
	FolderCount int `json:"folder_count"`
	TotalItems  int `json:"total_items"`
}

// SampleContents holds a few representative entries for diagnostics.
type SampleContents struct {
	PDFFiles   []string `json:"pdf_files"`
	ImageFiles []string `json:"image_files"`
	Folders    []string `json:"folders"`
}

// Group is one folder judged to contain a matched document set. Groups
// are discovered once per root and never mutated afterward.
type Group struct {
	FolderPath     string         `json:"folder_path"`
	ConditionsMet  []int          `json:"conditions_met"`
	Details        map[string]any `json:"details"`
	Stats          GroupStats     `json:"stats"`
	SampleContents SampleContents `json:"sample_contents"`
}

// DiscoverRoot walks the document root looking for a folder whose name
// contains all three document keywords. The first match wins and its
// subtree is not searched further. A nil result means no root was found.
func DiscoverRoot(root string) (*ProjectRoot, error) {
	var found *ProjectRoot

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() || found != nil {
			if found != nil {
				return fs.SkipAll
			}
			return nil
		}

		name := filepath.Base(path)
		for _, keyword := range rootKeywords {
			if !strings.Contains(name, keyword) {
				return nil
			}
		}

		parent := filepath.Dir(path)
		found = &ProjectRoot{
			ProjectName:   filepath.Base(parent),
			ProjectPath:   parent,
			IOCFolderName: name,
			IOCFolderPath: path,
		}
		return fs.SkipAll
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}

	return found, nil
}

type folderContents struct {
	pdfFiles   []string
	imageFiles []string
	folders    []string
	totalItems int
}

// DiscoverGroups finds every group folder under the project root using an
// explicit worklist. A folder matching any membership condition is
// recorded and its subtree pruned; otherwise its subfolders join the
// worklist. Unreadable folders are skipped.
func DiscoverGroups(iocRoot string) ([]Group, error) {
	if info, err := os.Stat(iocRoot); err != nil || !info.IsDir() {
		return nil, nil
	}

	var groups []Group
	worklist := subfolders(iocRoot)

	for len(worklist) > 0 {
		folder := worklist[0]
		worklist = worklist[1:]

		contents, err := analyzeFolder(folder)
		if err != nil {
			continue
		}

		conditions, details := checkConditions(contents)
		if len(conditions) == 0 {
			worklist = append(worklist, subfolders(folder)...)
			continue
		}

		groups = append(groups, Group{
			FolderPath:    folder,
			ConditionsMet: conditions,
			Details:       details,
			Stats: GroupStats{
				PDFCount:    len(contents.pdfFiles),
				ImageCount:  len(contents.imageFiles),
				FolderCount: len(contents.folders),
				TotalItems:  contents.totalItems,
			},
			SampleContents: SampleContents{
				PDFFiles:   head(contents.pdfFiles, 3),
				ImageFiles: head(contents.imageFiles, 3),
				Folders:    head(contents.folders, 5),
			},
		})
	}

	return groups, nil
}

// Membership conditions, any one of which marks a folder as a group:
//  1. at least one PDF plus a subfolder named with 入库单 or 送货单
//  2. at least one PDF plus at least one image
//  3. at least two PDFs
//  4. at least one image
//  5. subfolders covering 合同, 入库单, and 送货单
func checkConditions(c *folderContents) ([]int, map[string]any) {
	var conditions []int
	details := make(map[string]any)

	if len(c.pdfFiles) >= 1 {
		var special []string
		for _, f := range c.folders {
			if strings.Contains(f, "入库单") || strings.Contains(f, "送货单") {
				special = append(special, f)
			}
		}
		if len(special) > 0 {
			conditions = append(conditions, 1)
			details["condition1"] = map[string]any{
				"pdf_count":       len(c.pdfFiles),
				"special_folders": special,
			}
		}
	}

	if len(c.pdfFiles) >= 1 && len(c.imageFiles) >= 1 {
		conditions = append(conditions, 2)
		details["condition2"] = map[string]any{
			"pdf_count":   len(c.pdfFiles),
			"image_count": len(c.imageFiles),
		}
	}

	if len(c.pdfFiles) >= 2 {
		conditions = append(conditions, 3)
		details["condition3"] = map[string]any{
			"pdf_count": len(c.pdfFiles),
			"pdf_files": head(c.pdfFiles, 5),
		}
	}

	if len(c.imageFiles) >= 1 {
		conditions = append(conditions, 4)
		details["condition4"] = map[string]any{
			"image_count": len(c.imageFiles),
			"image_files": head(c.imageFiles, 5),
		}
	}

	var contract, receipt, delivery []string
	for _, f := range c.folders {
		if strings.Contains(f, "合同") {
			contract = append(contract, f)
		}
		if strings.Contains(f, "入库单") {
			receipt = append(receipt, f)
		}
		if strings.Contains(f, "送货单") {
			delivery = append(delivery, f)
		}
	}
	if len(contract) > 0 && len(receipt) > 0 && len(delivery) > 0 {
		conditions = append(conditions, 5)
		details["condition5"] = map[string]any{
			"contract_folders": contract,
			"receipt_folders":  receipt,
			"delivery_folders": delivery,
		}
	}

	return conditions, details
}

func analyzeFolder(folder string) (*folderContents, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, err
	}

	c := &folderContents{totalItems: len(entries)}
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case entry.IsDir():
			c.folders = append(c.folders, name)
		case pages.IsPDF(name):
			c.pdfFiles = append(c.pdfFiles, name)
		case pages.IsImage(name):
			c.imageFiles = append(c.imageFiles, name)
		}
	}
	return c, nil
}

func subfolders(folder string) []string {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil
	}

	var result []string
	for _, entry := range entries {
		if entry.IsDir() {
			result = append(result, filepath.Join(folder, entry.Name()))
		}
	}
	return result
}

// CollectFiles recursively gathers every supported file under the group
// folder, sorted for deterministic processing order.
func CollectFiles(folder string) []string {
	var files []string
	filepath.WalkDir(folder, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && pages.Supported(path) {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files
}

func head[E any](list []E, n int) []E {
	if len(list) <= n {
		return list
	}
	return list[:n]
}
