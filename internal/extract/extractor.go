package extract

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/docchat/docchat/internal/config"
	"github.com/docchat/docchat/pkg/logx"
	"github.com/lu4p/cat"
)

// ErrNoReadableText means neither native extraction nor the OCR
// fallback produced any content. Surfaced to the uploader as-is.
var ErrNoReadableText = errors.New("no readable text found in document")

type DocType string

const (
	TypePDF     DocType = "PDF"
	TypeText    DocType = "TEXT"
	TypeUnknown DocType = "UNKNOWN"
)

func DocTypeOf(path string) DocType {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return TypePDF
	case ".docx", ".txt", ".rtf", ".odt":
		return TypeText
	default:
		return TypeUnknown
	}
}

// Extractor converts uploaded files into a single text stream. The OCR
// engine is resolved once at construction; a disabled engine simply
// skips the fallback pass.
type Extractor struct {
	ocr    OCREngine
	minLen int
	logger *logx.Logger
}

func New(ocr OCREngine) *Extractor {
	if ocr == nil {
		ocr = DisabledOCR{}
	}
	return &Extractor{
		ocr:    ocr,
		minLen: config.MinExtractedTextLen,
		logger: logx.New("extractor"),
	}
}

// Extract reads the file at path and returns its text content with
// [Page N] markers. PDFs that yield less than the minimum threshold of
// native text go through an image-rasterization OCR pass; the OCR
// result wins only when it recovers more content.
func (e *Extractor) Extract(path string) (string, error) {
	switch DocTypeOf(path) {
	case TypePDF:
		return e.extractPDF(path)
	case TypeText:
		return e.extractTextDoc(path)
	default:
		return "", fmt.Errorf("unsupported document type: %s", filepath.Ext(path))
	}
}

func (e *Extractor) extractPDF(path string) (string, error) {
	text, err := readPDFPages(path, e.logger)
	if err != nil {
		return "", err
	}

	if len(strings.TrimSpace(text)) < e.minLen && e.ocr.Available() {
		e.logger.Warn("native extraction below threshold, running OCR fallback",
			"path", path, "extracted", len(text))
		ocrText, ocrErr := e.ocr.Recognize(path)
		if ocrErr != nil {
			e.logger.Error("OCR fallback failed", "error", ocrErr)
		} else if len(strings.TrimSpace(ocrText)) > len(strings.TrimSpace(text)) {
			text = ocrText
		}
	}

	if strings.TrimSpace(text) == "" {
		return "", ErrNoReadableText
	}
	return text, nil
}

// extractTextDoc reads a .odt, .docx, .rtf or plaintext file into a
// single page of content.
func (e *Extractor) extractTextDoc(path string) (string, error) {
	text, err := cat.File(path)
	if err != nil {
		return "", fmt.Errorf("failed to extract document: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrNoReadableText
	}
	return text, nil
}
