package extract

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/docchat/docchat/pkg/logx"
)

// OCREngine is the rasterize-and-recognize fallback for scanned PDFs.
// Whether an engine is usable is decided once at startup and injected,
// never re-probed per request.
type OCREngine interface {
	Available() bool
	Recognize(pdfPath string) (string, error)
}

type DisabledOCR struct{}

func (DisabledOCR) Available() bool                  { return false }
func (DisabledOCR) Recognize(string) (string, error) { return "", nil }

// CLIEngine drives the poppler pdftoppm rasterizer and tesseract.
// There is no OCR library in the Go ecosystem comparable to the
// Python stack, so this shells out to the same underlying binaries.
type CLIEngine struct {
	pdftoppm  string
	tesseract string
	logger    *logx.Logger
}

// DetectOCR probes PATH for the OCR toolchain. Callers get a disabled
// engine when either binary is missing.
func DetectOCR() OCREngine {
	logger := logx.New("ocr")

	pdftoppm, err1 := exec.LookPath("pdftoppm")
	tesseract, err2 := exec.LookPath("tesseract")
	if err1 != nil || err2 != nil {
		logger.Info("OCR fallback disabled", "pdftoppm", err1 == nil, "tesseract", err2 == nil)
		return DisabledOCR{}
	}

	logger.Info("OCR fallback enabled")
	return &CLIEngine{pdftoppm: pdftoppm, tesseract: tesseract, logger: logger}
}

func (e *CLIEngine) Available() bool { return true }

func (e *CLIEngine) Recognize(pdfPath string) (string, error) {
	tmpDir, err := os.MkdirTemp("", "docchat-ocr-*")
	if err != nil {
		return "", fmt.Errorf("ocr temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	prefix := filepath.Join(tmpDir, "page")
	if out, err := exec.Command(e.pdftoppm, "-png", "-r", "200", pdfPath, prefix).CombinedOutput(); err != nil {
		return "", fmt.Errorf("pdftoppm failed: %w: %s", err, out)
	}

	images, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return "", err
	}
	sort.Strings(images)

	var b strings.Builder
	for i, img := range images {
		out, err := exec.Command(e.tesseract, img, "stdout").Output()
		if err != nil {
			e.logger.Warn("tesseract failed for page image", "image", img, "error", err)
			continue
		}
		if text := strings.TrimSpace(string(out)); text != "" {
			fmt.Fprintf(&b, "\n[Page %d - OCR]\n%s\n", i+1, text)
		}
	}
	return b.String(), nil
}
