package server

import (
	"bytes"
	"context"
	"image"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/MeKo-Tech/digito/internal/notify"
	"github.com/MeKo-Tech/digito/internal/pipeline"
	"github.com/MeKo-Tech/digito/internal/storage"
	"github.com/MeKo-Tech/digito/internal/testutil"
	"github.com/stretchr/testify/require"
)

// stubPipeline answers every request with the same result or error.
type stubPipeline struct {
	res    *pipeline.DigitResult
	err    error
	closed bool
}

func (p *stubPipeline) ProcessImage(ctx context.Context, _ image.Image) (*pipeline.DigitResult, error) {
	if p.err != nil {
		return nil, p.err
	}
	out := *p.res
	return &out, ctx.Err()
}

func (p *stubPipeline) Close() error {
	p.closed = true
	return nil
}

// fakeNotifier records sent predictions.
type fakeNotifier struct {
	mu         sync.Mutex
	state      notify.State
	connectErr error
	sendErr    error
	connects   int
	sent       []string
	closed     bool
}

func (n *fakeNotifier) State() notify.State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

func (n *fakeNotifier) Connect(context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.connects++
	if n.connectErr != nil {
		return n.connectErr
	}
	n.state = notify.Connected
	return nil
}

func (n *fakeNotifier) Send(digit int, confidence float64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state != notify.Connected {
		return notify.ErrNotConnected
	}
	if n.sendErr != nil {
		n.state = notify.Disconnected
		return n.sendErr
	}
	n.sent = append(n.sent, notify.FormatMessage(digit, confidence))
	return nil
}

func (n *fakeNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = true
	n.state = notify.Disconnected
	return nil
}

func (n *fakeNotifier) Sent() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.sent...)
}

func testConfig() Config {
	return Config{
		Port:        8000,
		CORSOrigins: []string{"http://localhost:5173"},
		MaxUploadMB: 1,
		Version:     "test",
	}
}

// newDigitPipeline builds a real pipeline whose engine always votes digit.
func newDigitPipeline(t *testing.T, digit int) *pipeline.Pipeline {
	t.Helper()
	p, err := pipeline.New(pipeline.DefaultConfig(), testutil.NewOneHotEngine(digit, 0.91))
	require.NoError(t, err)
	return p
}

func newTestServer(t *testing.T, cfg Config, opts ...Option) *Server {
	t.Helper()
	s, err := NewServer(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func openMemoryStore(t *testing.T) *storage.Store {
	t.Helper()
	st, err := storage.Open(storage.Config{Enabled: true, DatabasePath: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func drawingPNG(t *testing.T) []byte {
	t.Helper()
	return testutil.EncodePNG(t, testutil.CreateDrawing(280, 280, image.Rect(100, 60, 140, 220)))
}

func drawingBlankPNG(t *testing.T) []byte {
	t.Helper()
	return testutil.EncodePNG(t, testutil.CreateDrawing(280, 280))
}

// multipartRequest builds a POST with data in the given form field.
func multipartRequest(t *testing.T, url, field, filename string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if field != "" {
		fw, err := mw.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	} else {
		require.NoError(t, mw.WriteField("note", "nothing attached"))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, url, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}
