package pdf

import (
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/MeKo-Tech/digito/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePageRange(t *testing.T) {
	tests := []struct {
		in      string
		want    []int
		wantErr bool
	}{
		{"", nil, false},
		{"3", []int{3}, false},
		{"1-3", []int{1, 2, 3}, false},
		{"5, 1-2,2", []int{1, 2, 5}, false},
		{"4-2", nil, true},
		{"0", nil, true},
		{"a", nil, true},
		{"1-x", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePageRange(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePageFromFilename(t *testing.T) {
	tests := []struct {
		name    string
		want    int
		wantErr bool
	}{
		{"page_2_image_1.png", 2, false},
		{"digits_3_Im0.png", 3, false},
		{"my_scan_12_Im4.jpg", 12, false},
		{"cover.png", 0, true},
		{"a_b.png", 0, true},
		{"doc_x_Im0.png", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parsePageFromFilename(tt.name)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCollectExtractedImages_OrdersByPage(t *testing.T) {
	dir := t.TempDir()
	img := testutil.CreateDrawing(20, 20, image.Rect(5, 5, 10, 15))
	for _, name := range []string{"doc_2_Im1.png", "doc_1_Im0.png", "doc_2_Im0.png"} {
		testutil.SaveImage(t, img, filepath.Join(dir, name))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "doc_1_Im9.png"), []byte("corrupt"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))

	got, err := collectExtractedImages(dir)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 1, got[0].Page)
	assert.Equal(t, 1, got[0].Index)
	assert.Equal(t, 2, got[1].Page)
	assert.Equal(t, 1, got[1].Index)
	assert.Equal(t, 2, got[2].Index)
	assert.Equal(t, "scan.pdf#p2-2", got[2].Label("/tmp/scan.pdf"))
}

func TestExtractImages_Errors(t *testing.T) {
	_, err := ExtractImages(filepath.Join(t.TempDir(), "missing.pdf"), "")
	assert.Error(t, err)

	_, err = ExtractImages("whatever.pdf", "3-1")
	assert.Error(t, err)

	_, err = PageCount(filepath.Join(t.TempDir(), "missing.pdf"))
	assert.Error(t, err)
}

func TestTextPages_Errors(t *testing.T) {
	_, err := TextPages(filepath.Join(t.TempDir(), "missing.pdf"), "")
	assert.Error(t, err)

	_, err = TextPages("whatever.pdf", "x")
	assert.Error(t, err)

	bogus := filepath.Join(t.TempDir(), "bogus.pdf")
	require.NoError(t, os.WriteFile(bogus, []byte("not a pdf"), 0o600))
	_, err = TextPages(bogus, "")
	assert.Error(t, err)
}

func TestIsPDF(t *testing.T) {
	assert.True(t, IsPDF("a/b/Scan.PDF"))
	assert.False(t, IsPDF("scan.png"))
}
