// Package pages turns audit source files into per-page PNG images. PDFs
// render one image per page via ImageMagick; raster images pass through
// as a single page.
package pages

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/JaimeStill/document-context/pkg/config"
	"github.com/JaimeStill/document-context/pkg/document"
	"github.com/JaimeStill/document-context/pkg/image"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"golang.org/x/sync/errgroup"
)

// Page is one renderable page of a source file.
type Page struct {
	Number    int
	ImagePath string
}

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".tiff": true,
	".tif":  true,
	".webp": true,
}

// Supported reports whether the file extension belongs to an auditable
// document type.
func Supported(path string) bool {
	return IsPDF(path) || IsImage(path)
}

// IsPDF reports whether the path has a .pdf extension.
func IsPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}

// IsImage reports whether the path has a supported raster image extension.
func IsImage(path string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(path))]
}

// Count returns the number of pages in the file: the PDF page count via
// pdfcpu, or 1 for image files.
func Count(path string) (int, error) {
	if !IsPDF(path) {
		if !IsImage(path) {
			return 0, fmt.Errorf("unsupported file type: %s", path)
		}
		return 1, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read pdf: %w", err)
	}

	count, err := api.PageCount(bytes.NewReader(data), nil)
	if err != nil {
		return 0, fmt.Errorf("count pages: %w", err)
	}
	return count, nil
}

// Load renders every page of the file to a PNG under tempDir and returns
// the pages in order. Image files are returned as-is without rendering.
func Load(ctx context.Context, path, tempDir string) ([]Page, error) {
	if IsImage(path) {
		return []Page{{Number: 1, ImagePath: path}}, nil
	}
	if !IsPDF(path) {
		return nil, fmt.Errorf("unsupported file type: %s", path)
	}
	return renderPDF(ctx, path, tempDir)
}

func renderPDF(ctx context.Context, path, tempDir string) ([]Page, error) {
	pdfDoc, err := document.OpenPDF(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer pdfDoc.Close()

	renderer, err := image.NewImageMagickRenderer(config.DefaultImageConfig())
	if err != nil {
		return nil, fmt.Errorf("create renderer: %w", err)
	}

	allPages, err := pdfDoc.ExtractAllPages()
	if err != nil {
		return nil, fmt.Errorf("extract pages: %w", err)
	}

	pageCount := len(allPages)
	pages := make([]Page, pageCount)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(renderWorkerCount(pageCount))

	for i, page := range allPages {
		pageNum := i + 1
		imgPath := filepath.Join(tempDir, fmt.Sprintf("page-%d.png", pageNum))
		pages[i] = Page{Number: pageNum, ImagePath: imgPath}

		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}

			data, err := page.ToImage(renderer, nil)
			if err != nil {
				return fmt.Errorf("render page %d: %w", pageNum, err)
			}

			if err := os.WriteFile(imgPath, data, 0600); err != nil {
				return fmt.Errorf("write page %d image: %w", pageNum, err)
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return pages, nil
}

func renderWorkerCount(pageCount int) int {
	return max(min(runtime.NumCPU(), pageCount), 1)
}
