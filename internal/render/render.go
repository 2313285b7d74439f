// Package render rasterizes PDF pages to JPEG bytes on a bounded worker
// pool, shelling out to pdftoppm rather than using a Go PDF-rendering
// binding, and using pdfcpu for page counting.
package render

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// PageCount opens path and returns its page count using pdfcpu. Called
// once per source file rather than once per page.
func PageCount(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	n, err := api.PageCount(f, nil)
	if err != nil {
		return 0, fmt.Errorf("read page count: %w", err)
	}
	return n, nil
}

// Request describes one page to rasterize. Page is 1-indexed, matching
// pdftoppm's -f/-l flags.
type Request struct {
	PDFPath string
	Page    int
	DPI     int
	Quality int
}

// Render shells out to pdftoppm to rasterize a single page to JPEG.
// Rasterization is deterministic given (PDFPath, Page, DPI, Quality); the
// only failure modes are a malformed/corrupt source page (fatal for the
// page) or process-launch failure (fatal for the page).
func Render(ctx context.Context, req Request) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	tmpDir, err := os.MkdirTemp("", "vppe-render-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	outputPrefix := filepath.Join(tmpDir, "page")
	pageStr := fmt.Sprintf("%d", req.Page)
	qualityOpt := fmt.Sprintf("quality=%d", req.Quality)

	cmd := exec.CommandContext(ctx, "pdftoppm",
		"-jpeg",
		"-r", fmt.Sprintf("%d", req.DPI),
		"-jpegopt", qualityOpt,
		"-f", pageStr,
		"-l", pageStr,
		"-singlefile",
		req.PDFPath,
		outputPrefix,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("pdftoppm failed for page %d: %w (stderr: %s)", req.Page, err, stderr.String())
	}

	data, err := os.ReadFile(outputPrefix + ".jpg")
	if err != nil {
		return nil, fmt.Errorf("read rendered page %d: %w", req.Page, err)
	}
	return data, nil
}
