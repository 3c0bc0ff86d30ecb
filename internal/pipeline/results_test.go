package pipeline

import (
	"encoding/csv"
	"strings"
	"testing"

	"github.com/MeKo-Tech/digito/internal/classify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleLabeled(t *testing.T) []LabeledResult {
	t.Helper()
	r, err := classify.FromProbabilities([]float32{0.01, 0.01, 0.01, 0.9, 0.01, 0.01, 0.01, 0.02, 0.01, 0.01})
	require.NoError(t, err)
	blank, err := classify.FromProbabilities([]float32{0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1})
	require.NoError(t, err)
	return []LabeledResult{
		{Source: "three.png", Result: &DigitResult{Result: *r}},
		{Source: "blank.png", Result: &DigitResult{Result: *blank, Empty: true}},
		{Source: "broken.png", Error: "decode error"},
	}
}

func TestToJSON(t *testing.T) {
	_, err := ToJSON(nil)
	assert.Error(t, err)

	s, err := ToJSON(sampleLabeled(t)[0].Result)
	require.NoError(t, err)
	assert.Contains(t, s, `"digit": 3`)
	assert.Contains(t, s, `"allPredictions"`)
	assert.Contains(t, s, `"processing"`)

	all, err := ToJSONAll(sampleLabeled(t))
	require.NoError(t, err)
	assert.Contains(t, all, `"source": "broken.png"`)
}

func TestToCSV(t *testing.T) {
	out, err := ToCSV(sampleLabeled(t))
	require.NoError(t, err)

	rows, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, CSVHeader, rows[0])

	assert.Equal(t, []string{"three.png", "3", "0.9000", "false"}, rows[1][:4])
	assert.Equal(t, "0.9000", rows[1][4+3], "p3 column")
	assert.Equal(t, "true", rows[2][3])
	assert.Equal(t, "decode error", rows[3][len(CSVHeader)-1])
	assert.Empty(t, rows[3][1])
}

func TestToPlainText(t *testing.T) {
	txt := ToPlainText(sampleLabeled(t), "")
	lines := strings.Split(strings.TrimSpace(txt), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "three.png: digit 3"))
	assert.Contains(t, lines[1], "blank canvas")
	assert.Contains(t, lines[2], "error: decode error")

	de := ToPlainText(sampleLabeled(t)[:1], "de-DE")
	assert.Contains(t, de, "digit 3")

	bogus := ToPlainText(sampleLabeled(t)[:1], "not a locale")
	assert.Contains(t, bogus, "digit 3")
}
