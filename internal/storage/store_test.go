package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MeKo-Tech/digito/internal/classify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(Config{
		Enabled:      true,
		DatabasePath: filepath.Join(dir, "db", "test.db"),
		ImageDir:     filepath.Join(dir, "uploads"),
		SaveImages:   true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func result(t *testing.T, digit int, conf float32) classify.Result {
	t.Helper()
	probs := make([]float32, classify.NumClasses)
	rest := (1 - conf) / float32(classify.NumClasses-1)
	for i := range probs {
		probs[i] = rest
	}
	probs[digit] = conf
	res, err := classify.FromProbabilities(probs)
	require.NoError(t, err)
	return *res
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.Error(t, Config{Enabled: true}.Validate())
	assert.Error(t, Config{Enabled: true, DatabasePath: "x.db", SaveImages: true}.Validate())
	assert.NoError(t, Config{Enabled: true, DatabasePath: "x.db"}.Validate())
}

func TestPredictionRepository_InsertGet(t *testing.T) {
	s := openTestStore(t)
	repo := s.Predictions()
	ctx := context.Background()

	p := NewPrediction(result(t, 7, 0.91), false, "seven.png", "/tmp/seven.png")
	require.NoError(t, repo.Insert(ctx, p))
	assert.Positive(t, p.ID)
	assert.False(t, p.CreatedAt.IsZero())

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, got.Digit)
	assert.InDelta(t, 0.91, got.Confidence, 1e-6)
	assert.Equal(t, "seven.png", got.Filename)
	require.Len(t, got.AllPredictions, classify.NumClasses)
	assert.Equal(t, 7, got.AllPredictions[0].Digit)

	_, err = repo.GetByID(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPredictionRepository_ListCountHistogram(t *testing.T) {
	s := openTestStore(t)
	repo := s.Predictions()
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	for i, d := range []int{3, 3, 8, 0} {
		p := NewPrediction(result(t, d, 0.8), d == 0, "", "")
		p.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.Insert(ctx, p))
	}

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	all, err := repo.List(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, 0, all[0].Digit, "newest first")
	assert.True(t, all[0].Empty)

	page, err := repo.List(ctx, 2, 1)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, 8, page[0].Digit)
	assert.Equal(t, 3, page[1].Digit)

	hist, err := repo.DigitHistogram(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, hist[3])
	assert.Equal(t, 1, hist[8])
	assert.Equal(t, 1, hist[0])
	assert.Equal(t, 0, hist[5])

	deleted, err := repo.DeleteOlderThan(ctx, base.Add(90*time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
	n, err = repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestStore_SaveUpload(t *testing.T) {
	s := openTestStore(t)

	path, err := s.SaveUpload([]byte("png-bytes"), ".PNG")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, ".png"))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))

	other, err := s.SaveUpload([]byte("x"), "")
	require.NoError(t, err)
	assert.NotEqual(t, path, other)
	assert.Equal(t, ".png", filepath.Ext(other))
}

func TestStore_SaveUploadWithoutDir(t *testing.T) {
	s, err := Open(Config{Enabled: true, DatabasePath: ":memory:"})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	assert.False(t, s.SavesImages())
	_, err = s.SaveUpload([]byte("x"), "png")
	assert.Error(t, err)
	assert.NoError(t, s.Ping(context.Background()))
}
