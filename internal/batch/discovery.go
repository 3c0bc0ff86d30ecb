package batch

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/MeKo-Tech/digito/internal/imageio"
	"github.com/MeKo-Tech/digito/internal/pdf"
)

// discoverInputs expands args into image and PDF files. Files named
// explicitly are kept even without a known extension so that decoding can
// report the problem; directory entries must be images or PDFs.
func discoverInputs(args []string, recursive bool, include, exclude []string) ([]string, error) {
	var out []string
	seen := map[string]bool{}
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", arg, err)
		}
		if !info.IsDir() {
			if shouldInclude(arg, include, exclude) {
				add(arg)
			}
			continue
		}
		files, err := discoverInDirectory(arg, recursive, include, exclude)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			add(f)
		}
	}
	return out, nil
}

func discoverInDirectory(dir string, recursive bool, include, exclude []string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if !recursive && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if !imageio.IsSupportedImage(path) && !pdf.IsPDF(path) {
			return nil
		}
		if shouldInclude(path, include, exclude) {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}

// shouldInclude applies exclude patterns first, then include patterns.
// Patterns match the base name.
func shouldInclude(path string, include, exclude []string) bool {
	if matchesAny(path, exclude) {
		return false
	}
	return len(include) == 0 || matchesAny(path, include)
}

func matchesAny(path string, patterns []string) bool {
	base := filepath.Base(path)
	for _, pattern := range patterns {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}
	return false
}
