package workflow

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/auditkit/docaudit/internal/pages"
)

// Scan gathers every supported document under root in sorted order. These
// are the files the per-file compliance checks run over; the consistency
// pipeline walks the tree itself.
func Scan(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("scan root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scan root: %s is not a directory", root)
	}

	var files []string
	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && pages.Supported(path) {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files, nil
}
