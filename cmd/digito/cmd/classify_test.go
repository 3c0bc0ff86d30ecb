package cmd

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MeKo-Tech/digito/internal/pipeline"
	"github.com/MeKo-Tech/digito/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPipeline(t *testing.T, digit int) *pipeline.Pipeline {
	t.Helper()
	pl, err := pipeline.New(pipeline.DefaultConfig(), testutil.NewOneHotEngine(digit, 0.75))
	require.NoError(t, err)
	t.Cleanup(func() { _ = pl.Close() })
	return pl
}

func TestClassifyFiles(t *testing.T) {
	dir := t.TempDir()
	fixtures := testutil.WriteDigitFixtures(t, dir, 3, 5)
	pl := newTestPipeline(t, 3)

	files := []string{fixtures[0].Path, fixtures[1].Path}
	results, err := classifyFiles(context.Background(), pl, files, false, "")
	require.NoError(t, err)
	require.Len(t, results, 2)

	for i, r := range results {
		assert.Equal(t, files[i], r.Source)
		require.NotNil(t, r.Result)
		assert.Equal(t, 3, r.Result.Digit)
		assert.InDelta(t, 0.75, r.Result.Confidence, 1e-6)
		assert.Len(t, r.Result.AllPredictions, 10)
		assert.Nil(t, r.Result.Trace)
	}
}

func TestClassifyFiles_TraceAndCanvas(t *testing.T) {
	dir := t.TempDir()
	fixtures := testutil.WriteDigitFixtures(t, dir, 7)
	canvasDir := filepath.Join(dir, "canvas")
	require.NoError(t, os.MkdirAll(canvasDir, 0o750))

	results, err := classifyFiles(context.Background(), newTestPipeline(t, 7),
		[]string{fixtures[0].Path}, true, canvasDir)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.NotNil(t, results[0].Result.Trace)
	assert.FileExists(t, filepath.Join(canvasDir, "digit_7_canvas.png"))
}

func TestClassifyFiles_MissingFile(t *testing.T) {
	_, err := classifyFiles(context.Background(), newTestPipeline(t, 1),
		[]string{filepath.Join(t.TempDir(), "missing.png")}, false, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.png")
}

func TestFormatResults(t *testing.T) {
	dir := t.TempDir()
	fixtures := testutil.WriteDigitFixtures(t, dir, 2, 4)
	pl := newTestPipeline(t, 2)

	one, err := classifyFiles(context.Background(), pl, []string{fixtures[0].Path}, false, "")
	require.NoError(t, err)
	two, err := classifyFiles(context.Background(), pl, []string{fixtures[0].Path, fixtures[1].Path}, false, "")
	require.NoError(t, err)

	t.Run("text", func(t *testing.T) {
		out, err := formatResults(one, "text", "en")
		require.NoError(t, err)
		assert.Equal(t, fixtures[0].Path+": digit 2 (75.0%)\n", out)
	})

	t.Run("json single object", func(t *testing.T) {
		out, err := formatResults(one, "json", "")
		require.NoError(t, err)
		var got map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &got))
		assert.EqualValues(t, 2, got["digit"])
		assert.Contains(t, got, "allPredictions")
	})

	t.Run("json array", func(t *testing.T) {
		out, err := formatResults(two, "json", "")
		require.NoError(t, err)
		var got []map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &got))
		assert.Len(t, got, 2)
	})

	t.Run("csv", func(t *testing.T) {
		out, err := formatResults(two, "csv", "")
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(out), "\n")
		require.Len(t, lines, 3)
		assert.True(t, strings.HasPrefix(lines[0], "source,digit,confidence"))
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := formatResults(one, "xml", "")
		assert.Error(t, err)
	})
}
