package testutil

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// DigitFixture is a rendered digit written to disk.
type DigitFixture struct {
	Digit int
	Path  string
	Image image.Image
}

// WriteDigitFixtures renders the given digits into dir as digit_<n>.png.
func WriteDigitFixtures(t *testing.T, dir string, digits ...int) []DigitFixture {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o750))

	out := make([]DigitFixture, 0, len(digits))
	for _, d := range digits {
		cfg := DefaultDigitImageConfig()
		cfg.Text = strconv.Itoa(d)
		img, err := GenerateDigitImage(cfg)
		require.NoError(t, err)

		path := filepath.Join(dir, fmt.Sprintf("digit_%d.png", d))
		SaveImage(t, img, path)
		out = append(out, DigitFixture{Digit: d, Path: path, Image: img})
	}
	return out
}

// FixtureDir is where cmd/generate-test-data writes fixtures, relative to
// the module root.
const FixtureDir = "testdata/digits"

var moduleRoot = sync.OnceValues(func() (string, error) {
	_, self, _, ok := runtime.Caller(0)
	if !ok {
		return "", errors.New("testutil: source location unknown")
	}
	for dir := filepath.Dir(self); ; dir = filepath.Dir(dir) {
		if fi, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil && !fi.IsDir() {
			return dir, nil
		}
		if filepath.Dir(dir) == dir {
			return "", fmt.Errorf("testutil: no go.mod above %s", self)
		}
	}
})

// ModuleRoot returns the directory holding go.mod. It is located from this
// package's source file, so it does not depend on the working directory.
func ModuleRoot() (string, error) { return moduleRoot() }
