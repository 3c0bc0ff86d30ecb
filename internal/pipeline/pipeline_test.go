package pipeline

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/MeKo-Tech/digito/internal/classify"
	"github.com/MeKo-Tech/digito/internal/preprocess"
	"github.com/MeKo-Tech/digito/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type closingEngine struct {
	*testutil.FixedEngine
	closed bool
}

func (c *closingEngine) Close() error {
	c.closed = true
	return nil
}

func newTestPipeline(t *testing.T, engine classify.Engine) *Pipeline {
	t.Helper()
	p, err := NewBuilder().WithEngine(engine).Build()
	require.NoError(t, err)
	return p
}

func TestNew_RequiresEngine(t *testing.T) {
	_, err := New(DefaultConfig(), nil)
	assert.ErrorIs(t, err, classify.ErrNoEngine)
}

func TestNew_RejectsBadFilter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Preprocess.Filter = "cubic-ish"
	_, err := New(cfg, testutil.NewOneHotEngine(0, 1))
	assert.Error(t, err)
}

func TestNew_Warmup(t *testing.T) {
	engine := testutil.NewOneHotEngine(1, 0.5)
	_, err := NewBuilder().WithEngine(engine).WithWarmupIterations(3).Build()
	require.NoError(t, err)
	assert.Equal(t, int64(3), engine.Calls())
}

func TestNew_WarmupFailure(t *testing.T) {
	engine := &testutil.FixedEngine{Probs: make([]float32, 3)}
	_, err := NewBuilder().WithEngine(engine).WithWarmupIterations(1).Build()
	var se *classify.ShapeError
	assert.True(t, errors.As(err, &se))
}

func TestBuilder_Options(t *testing.T) {
	b := NewBuilder().WithFilter("linear").WithWorkers(3).WithWarmupIterations(-1)
	cfg := b.Config()
	assert.Equal(t, "linear", cfg.Preprocess.Filter)
	assert.Equal(t, 3, cfg.Parallel.MaxWorkers)
	assert.Equal(t, 0, cfg.WarmupIterations)
}

func TestProcessImage_Drawing(t *testing.T) {
	engine := testutil.NewOneHotEngine(7, 0.91)
	p := newTestPipeline(t, engine)

	img := testutil.CreateDrawing(280, 280, image.Rect(120, 100, 161, 181))
	res, err := p.ProcessImage(context.Background(), img)
	require.NoError(t, err)

	assert.Equal(t, 7, res.Digit)
	assert.InDelta(t, 0.91, res.Confidence, 1e-6)
	assert.False(t, res.Empty)
	assert.Equal(t, 280, res.Width)
	require.NotNil(t, res.Trace)
	assert.Equal(t, 9, res.Trace.OffsetCol)
	assert.Positive(t, res.Processing.TotalNs)
	assert.GreaterOrEqual(t, res.Processing.TotalNs, res.Processing.InferenceNs)

	in := engine.LastInput()
	require.Len(t, in, preprocess.FeatureLen)
	assert.InDelta(t, 1.0, in[14*28+14], 0.01)
}

func TestProcessImage_EmptyCanvasStillClassified(t *testing.T) {
	engine := testutil.NewOneHotEngine(5, 0.3)
	p := newTestPipeline(t, engine)

	res, err := p.ProcessImage(context.Background(), testutil.CreateDrawing(280, 280))
	require.NoError(t, err)
	assert.True(t, res.Empty)
	assert.Equal(t, 5, res.Digit)
	assert.Equal(t, int64(1), engine.Calls())
	for _, v := range engine.LastInput() {
		assert.Zero(t, v)
	}
	assert.Equal(t, int64(1), p.Profiler.EmptyImages.Load())
}

func TestProcessImage_Errors(t *testing.T) {
	p := newTestPipeline(t, testutil.NewOneHotEngine(0, 1))

	_, err := p.ProcessImage(context.Background(), nil)
	var de *preprocess.DecodeError
	assert.True(t, errors.As(err, &de))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.ProcessImage(ctx, testutil.CreateDrawing(10, 10))
	assert.ErrorIs(t, err, context.Canceled)

	var nilPipeline *Pipeline
	_, err = nilPipeline.ProcessRaw(context.Background(), preprocess.RawImage{})
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestProcessRaw_ShapeErrorFromEngine(t *testing.T) {
	p := newTestPipeline(t, &testutil.FixedEngine{Probs: make([]float32, 12)})
	_, err := p.ProcessRaw(context.Background(), preprocess.RawImage{Width: 1, Height: 1, Channels: 1, Pix: []uint8{255}})
	var se *classify.ShapeError
	assert.True(t, errors.As(err, &se))
}

func TestProcessImages_Sequential(t *testing.T) {
	p := newTestPipeline(t, testutil.NewOneHotEngine(2, 0.8))
	_, err := p.ProcessImages(context.Background(), nil)
	assert.Error(t, err)

	res, err := p.ProcessImages(context.Background(), []image.Image{
		testutil.CreateDrawing(50, 50, image.Rect(10, 10, 20, 40)),
		testutil.CreateDrawing(50, 50),
	})
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.False(t, res[0].Empty)
	assert.True(t, res[1].Empty)
}

func TestClose_ReleasesEngine(t *testing.T) {
	engine := &closingEngine{FixedEngine: testutil.NewOneHotEngine(0, 1)}
	p := newTestPipeline(t, engine)
	require.NoError(t, p.Close())
	assert.True(t, engine.closed)

	var nilPipeline *Pipeline
	assert.NoError(t, nilPipeline.Close())
}

func TestProfilerSnapshot(t *testing.T) {
	var prof Profiler
	prof.Record(2_000_000, 4_000_000, false)
	prof.Record(2_000_000, 4_000_000, true)
	snap := prof.Snapshot()
	assert.Equal(t, int64(2), snap["images"])
	assert.Equal(t, int64(1), snap["empty_images"])
	assert.InDelta(t, 2.0, snap["preprocess_ms_per_image"], 1e-9)
	assert.InDelta(t, 4.0, snap["inference_ms_per_image"], 1e-9)
}

func TestRenderCanvas(t *testing.T) {
	vec := make(preprocess.FeatureVector, preprocess.FeatureLen)
	vec[0] = 1
	img, err := RenderCanvas(vec, 4)
	require.NoError(t, err)
	assert.Equal(t, 112, img.Bounds().Dx())
	assert.Equal(t, uint8(255), img.NRGBAAt(3, 3).R)
	assert.Equal(t, uint8(0), img.NRGBAAt(4, 4).R)

	_, err = RenderCanvas(vec[:10], 1)
	assert.Error(t, err)
}

func TestPipeline_StatsAndEngineInfo(t *testing.T) {
	p := newTestPipeline(t, testutil.NewOneHotEngine(2, 0.8))
	_, err := p.ProcessImage(context.Background(), testutil.CreateDrawing(40, 40, image.Rect(5, 5, 20, 30)))
	require.NoError(t, err)
	_, err = p.ProcessImage(context.Background(), testutil.CreateDrawing(40, 40))
	require.NoError(t, err)

	stats := p.Stats()
	assert.Equal(t, int64(2), stats["images"])
	assert.Equal(t, int64(1), stats["empty_images"])
	assert.Equal(t, "custom", p.EngineInfo().Backend)

	var nilPipeline *Pipeline
	assert.Empty(t, nilPipeline.Stats())
}
