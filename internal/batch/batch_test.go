package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MeKo-Tech/digito/internal/pipeline"
	"github.com/MeKo-Tech/digito/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPipeline(t *testing.T, digit int) *pipeline.Pipeline {
	t.Helper()
	pl, err := pipeline.New(pipeline.DefaultConfig(), testutil.NewOneHotEngine(digit, 0.8))
	require.NoError(t, err)
	return pl
}

func TestProcess_Directory(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteDigitFixtures(t, dir, 1, 2, 3)

	res, err := Process(context.Background(), newPipeline(t, 4), []string{dir}, &Config{Workers: 2})
	require.NoError(t, err)
	require.Len(t, res.Items, 3)
	assert.Equal(t, 2, res.WorkerCount)
	assert.Zero(t, res.Failed())
	for i, it := range res.Items {
		assert.Equal(t, filepath.Join(dir, "digit_"+string(rune('1'+i))+".png"), it.Source)
		require.NotNil(t, it.Result)
		assert.Equal(t, 4, it.Result.Digit)
	}

	stats := res.Stats()
	assert.Equal(t, 3, stats.ProcessedImages)
	assert.Zero(t, stats.FailedImages)
}

func TestProcess_CorruptInput(t *testing.T) {
	dir := t.TempDir()
	fx := testutil.WriteDigitFixtures(t, dir, 7)
	bad := filepath.Join(dir, "broken.png")
	require.NoError(t, os.WriteFile(bad, []byte("not a png"), 0o600))

	_, err := Process(context.Background(), newPipeline(t, 7), []string{fx[0].Path, bad}, &Config{})
	require.Error(t, err)

	res, err := Process(context.Background(), newPipeline(t, 7), []string{fx[0].Path, bad}, &Config{ContinueOnError: true})
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	assert.NotNil(t, res.Items[0].Result)
	assert.Nil(t, res.Items[1].Result)
	assert.Contains(t, res.Items[1].Error, "decode")
	assert.Equal(t, 1, res.Failed())
}

func TestProcess_EngineFailureContinues(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteDigitFixtures(t, dir, 1, 2)
	engine := &testutil.FixedEngine{Err: errors.New("device lost")}
	pl, err := pipeline.New(pipeline.DefaultConfig(), engine)
	require.NoError(t, err)

	_, err = Process(context.Background(), pl, []string{dir}, &Config{Workers: 1})
	require.Error(t, err)

	res, err := Process(context.Background(), pl, []string{dir}, &Config{Workers: 1, ContinueOnError: true})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Failed())
	assert.Contains(t, res.Items[0].Error, "device lost")
}

func TestProcess_NoInputs(t *testing.T) {
	_, err := Process(context.Background(), newPipeline(t, 0), []string{t.TempDir()}, &Config{})
	assert.ErrorIs(t, err, ErrNoInputs)

	_, err = Process(context.Background(), newPipeline(t, 0), nil, &Config{Format: "xml"})
	assert.Error(t, err)
}

func TestProcess_ShowsProgress(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteDigitFixtures(t, dir, 5)
	var progress bytes.Buffer

	_, err := Process(context.Background(), newPipeline(t, 5), []string{dir},
		&Config{ShowProgress: true, Progress: &progress})
	require.NoError(t, err)
	assert.Contains(t, progress.String(), "Classifying: ")
}

func TestResult_FormatAndSave(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteDigitFixtures(t, dir, 8)
	res, err := Process(context.Background(), newPipeline(t, 8), []string{dir}, &Config{})
	require.NoError(t, err)

	text, err := res.FormatResults(FormatText, "en")
	require.NoError(t, err)
	assert.Contains(t, text, "digit 8 (80.0%)")

	js, err := res.FormatResults(FormatJSON, "")
	require.NoError(t, err)
	var decoded []pipeline.LabeledResult
	require.NoError(t, json.Unmarshal([]byte(js), &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, 8, decoded[0].Result.Digit)

	csv, err := res.FormatResults(FormatCSV, "")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(csv, "source,digit,confidence"))

	_, err = res.FormatResults("xml", "")
	assert.Error(t, err)

	out := filepath.Join(dir, "out.csv")
	require.NoError(t, res.SaveResults(nil, FormatCSV, out, ""))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, csv, string(data))

	var buf bytes.Buffer
	require.NoError(t, res.SaveResults(&buf, FormatText, "", "en"))
	assert.Equal(t, text, buf.String())

	buf.Reset()
	res.PrintStats(&buf)
	assert.Contains(t, buf.String(), "Classified: 1")
}
