package segment

import (
	"strings"
	"unicode"
)

// Clean collapses whitespace runs into single spaces and replaces
// characters outside the allowed set with spaces, so chunk boundaries
// never land inside control sequences left over from PDF extraction.
func Clean(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	lastSpace := false
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		case allowedRune(r):
			b.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

func allowedRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case '.', ',', '!', '?', ';', ':', '(', ')', '-', '"', '\'', '_', '[', ']':
		return true
	}
	return false
}

// Split cuts text into overlapping chunks of at most chunkSize
// characters. Boundaries prefer the last sentence terminator past the
// window midpoint, then the last space, then a hard cut. The next
// window starts overlap characters before the chosen end so adjacent
// chunks share context.
func Split(text string, chunkSize, overlap int) []string {
	if chunkSize <= 0 {
		return nil
	}

	// sizes count characters, not bytes, so multibyte text is never
	// cut mid-rune and a short CJK text stays a single chunk
	runes := []rune(text)
	if len(runes) <= chunkSize {
		if strings.TrimSpace(text) == "" {
			return nil
		}
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + chunkSize
		if end < len(runes) {
			end = boundary(runes, start, end)
		} else {
			end = len(runes)
		}

		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		if end >= len(runes) {
			break
		}

		next := end - overlap
		if next <= start {
			// overlap swallowed the whole advance, force progress
			next = end
		}
		start = next
	}
	return chunks
}

// boundary picks the cut position inside runes[start:limit]. Sentence
// terminators win over spaces, and either is only taken past the
// window midpoint so chunks do not degenerate into fragments.
func boundary(runes []rune, start, limit int) int {
	mid := start + (limit-start)/2

	for i := limit - 1; i > mid; i-- {
		switch runes[i] {
		case '.', '!', '?', '\n':
			return i + 1 //keep the terminator
		}
	}

	for i := limit - 1; i > mid; i-- {
		if runes[i] == ' ' {
			return i
		}
	}

	return limit
}
