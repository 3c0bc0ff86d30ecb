// Package pdf pulls embedded drawings out of PDF files.
package pdf

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/digito/internal/imageio"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// PageImage is one image extracted from a PDF page.
type PageImage struct {
	Page  int
	Index int // position of the image on its page, starting at 1
	Image image.Image
}

// Label returns "<file>#p<page>-<index>" for result tables.
func (p PageImage) Label(file string) string {
	return fmt.Sprintf("%s#p%d-%d", filepath.Base(file), p.Page, p.Index)
}

// IsPDF reports whether path has a .pdf extension.
func IsPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}

// PageCount returns the number of pages in a PDF file.
func PageCount(filename string) (int, error) {
	n, err := api.PageCountFile(filename)
	if err != nil {
		return 0, fmt.Errorf("failed to read PDF %s: %w", filename, err)
	}
	return n, nil
}

// ExtractImages extracts the images of the selected pages, ordered by page
// and position. An empty pageRange selects every page.
func ExtractImages(filename, pageRange string) ([]PageImage, error) {
	pages, err := ParsePageRange(pageRange)
	if err != nil {
		return nil, fmt.Errorf("invalid page range %q: %w", pageRange, err)
	}

	tempDir, err := os.MkdirTemp("", "digito-pdf-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(tempDir) }()

	var selected []string
	for _, p := range pages {
		selected = append(selected, strconv.Itoa(p))
	}
	if err := api.ExtractImagesFile(filename, tempDir, selected, nil); err != nil {
		return nil, fmt.Errorf("failed to extract images from PDF: %w", err)
	}
	return collectExtractedImages(tempDir)
}

// collectExtractedImages loads the files pdfcpu wrote to dir. Files that are
// not page images or fail to decode are skipped.
func collectExtractedImages(dir string) ([]PageImage, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	type named struct {
		page int
		name string
	}
	var files []named
	for _, e := range entries {
		if e.IsDir() || !imageio.IsSupportedImage(e.Name()) {
			continue
		}
		page, err := parsePageFromFilename(e.Name())
		if err != nil {
			continue
		}
		files = append(files, named{page: page, name: e.Name()})
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i].page != files[j].page {
			return files[i].page < files[j].page
		}
		return files[i].name < files[j].name
	})

	var out []PageImage
	perPage := map[int]int{}
	for _, f := range files {
		img, _, err := imageio.LoadImage(filepath.Join(dir, f.name))
		if err != nil {
			continue
		}
		perPage[f.page]++
		out = append(out, PageImage{Page: f.page, Index: perPage[f.page], Image: img})
	}
	return out, nil
}

// parsePageFromFilename reads the page number from an extracted file name.
// pdfcpu writes "<pdf name>_<page>_<object>.<ext>"; "page_<page>_..." is
// accepted as well.
func parsePageFromFilename(filename string) (int, error) {
	stem := strings.TrimSuffix(filename, filepath.Ext(filename))
	parts := strings.Split(stem, "_")
	var token string
	switch {
	case len(parts) >= 2 && parts[0] == "page":
		token = parts[1]
	case len(parts) >= 3:
		token = parts[len(parts)-2]
	default:
		return 0, errors.New("not a page image")
	}
	page, err := strconv.Atoi(token)
	if err != nil || page < 1 {
		return 0, fmt.Errorf("invalid page number %q", token)
	}
	return page, nil
}

// ParsePageRange parses "1-5", "2,4" or combinations such as "1-3,7".
// Duplicates are removed and the result is sorted.
func ParsePageRange(pageRange string) ([]int, error) {
	if strings.TrimSpace(pageRange) == "" {
		return nil, nil
	}
	seen := map[int]bool{}
	var pages []int
	for _, part := range strings.Split(pageRange, ",") {
		tokenPages, err := parseRangeToken(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		for _, p := range tokenPages {
			if !seen[p] {
				seen[p] = true
				pages = append(pages, p)
			}
		}
	}
	sort.Ints(pages)
	return pages, nil
}

func parseRangeToken(part string) ([]int, error) {
	if lo, hi, ok := strings.Cut(part, "-"); ok {
		start, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil || start < 1 {
			return nil, fmt.Errorf("invalid start page: %s", lo)
		}
		end, err := strconv.Atoi(strings.TrimSpace(hi))
		if err != nil {
			return nil, fmt.Errorf("invalid end page: %s", hi)
		}
		if start > end {
			return nil, fmt.Errorf("start page %d greater than end page %d", start, end)
		}
		out := make([]int, 0, end-start+1)
		for i := start; i <= end; i++ {
			out = append(out, i)
		}
		return out, nil
	}
	page, err := strconv.Atoi(part)
	if err != nil || page < 1 {
		return nil, fmt.Errorf("invalid page number: %s", part)
	}
	return []int{page}, nil
}
