package pdf

import (
	"fmt"
	"strings"

	textpdf "github.com/dslipak/pdf"
)

// TextPages returns the selected pages that carry a text layer. Typed digits
// in a PDF live there rather than in an embedded image, so batch uses this to
// explain why a document yielded nothing to classify.
func TextPages(filename, pageRange string) ([]int, error) {
	pages, err := ParsePageRange(pageRange)
	if err != nil {
		return nil, fmt.Errorf("invalid page range %q: %w", pageRange, err)
	}

	r, err := textpdf.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF %q: %w", filename, err)
	}
	total := r.NumPage()
	if len(pages) == 0 {
		for i := 1; i <= total; i++ {
			pages = append(pages, i)
		}
	}

	var out []int
	for _, n := range pages {
		if n > total {
			continue
		}
		page := r.Page(n)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if strings.TrimSpace(text) != "" {
			out = append(out, n)
		}
	}
	return out, nil
}
