package extract

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/docchat/docchat/internal/config"
	"github.com/docchat/docchat/pkg/logx"
	"github.com/dslipak/pdf"
)

// readPDFPages concatenates the recoverable text of every page,
// annotated with [Page N] markers. A page that fails to parse is
// skipped, not fatal.
func readPDFPages(path string, logger *logx.Logger) (string, error) {
	f, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}

	var b strings.Builder
	numPages := f.NumPage()
	for i := 1; i <= numPages; i++ {
		page := f.Page(i)
		if page.V.IsNull() {
			continue
		}

		content, err := guardedPlainText(page)
		if err != nil {
			logger.Warn("skipping unparseable page", "page", i, "error", err)
			continue
		}
		if strings.TrimSpace(content) == "" {
			continue
		}
		fmt.Fprintf(&b, "\n[Page %d]\n%s\n", i, content)
	}
	return b.String(), nil
}

// guardedPlainText runs GetPlainText behind a watchdog; malformed
// content streams can make the parser spin on a single page.
func guardedPlainText(page pdf.Page) (string, error) {
	type result struct {
		content string
		err     error
	}
	resChan := make(chan result, 1)

	go func() {
		content, err := page.GetPlainText(nil)
		resChan <- result{content, err}
	}()

	select {
	case r := <-resChan:
		return r.content, r.err
	case <-time.After(config.PageExtractTimeout):
		return "", errors.New("page extraction timed out")
	}
}
