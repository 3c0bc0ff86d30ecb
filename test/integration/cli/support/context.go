// Package support holds the step definitions for the digito feature suite.
package support

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"net/http/httptest"
	"os"
	"sync"

	"github.com/MeKo-Tech/digito/internal/notify"
	"github.com/MeKo-Tech/digito/internal/pipeline"
	"github.com/MeKo-Tech/digito/internal/preprocess"
	"github.com/MeKo-Tech/digito/internal/server"
	"github.com/MeKo-Tech/digito/internal/storage"
	"github.com/MeKo-Tech/digito/internal/testutil"
)

// TestContext holds the state of one scenario.
type TestContext struct {
	TempDir string

	// Classification state
	Drawing    image.Image
	Engine     *testutil.FixedEngine
	Pipeline   *pipeline.Pipeline
	LastResult *pipeline.DigitResult
	LastVector preprocess.FeatureVector
	LastTrace  preprocess.Trace
	LastError  error

	// Server state
	HTTPServer *httptest.Server
	Server     *server.Server
	Store      *storage.Store
	Serial     *MemoryPort

	LastHTTPStatusCode int
	LastHTTPResponse   []byte

	// Batch and CLI state
	InputDir    string
	BatchOutput string
	LastOutput  string
}

// NewTestContext creates a context with its own temp directory.
func NewTestContext() (*TestContext, error) {
	dir, err := os.MkdirTemp("", "digito-test-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	return &TestContext{TempDir: dir}, nil
}

// pipeline returns the scenario pipeline, building one around the engine.
func (testCtx *TestContext) pipeline() (*pipeline.Pipeline, error) {
	if testCtx.Pipeline != nil {
		return testCtx.Pipeline, nil
	}
	if testCtx.Engine == nil {
		return nil, errors.New("no model configured for this scenario")
	}
	pl, err := pipeline.New(pipeline.DefaultConfig(), testCtx.Engine)
	if err != nil {
		return nil, err
	}
	testCtx.Pipeline = pl
	return pl, nil
}

// Cleanup stops servers and removes temporary files.
func (testCtx *TestContext) Cleanup() error {
	var errs []error
	if testCtx.HTTPServer != nil {
		testCtx.HTTPServer.Close()
		testCtx.HTTPServer = nil
	}
	if testCtx.Server != nil {
		// Closes the side channels and the pipeline.
		errs = append(errs, testCtx.Server.Close())
		testCtx.Server = nil
		testCtx.Pipeline = nil
	}
	if testCtx.Pipeline != nil {
		errs = append(errs, testCtx.Pipeline.Close())
	}
	if testCtx.Store != nil {
		errs = append(errs, testCtx.Store.Close())
	}
	errs = append(errs, os.RemoveAll(testCtx.TempDir))
	return errors.Join(errs...)
}

// MemoryPort is an in-memory serial device.
type MemoryPort struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	opens  int
	closed bool
}

// Open satisfies notify.Opener.
func (p *MemoryPort) Open(string, int) (notify.Port, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.opens++
	p.closed = false
	return p, nil
}

// Write records the bytes.
func (p *MemoryPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.Write(b)
}

// Close marks the port closed.
func (p *MemoryPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Received returns everything written so far.
func (p *MemoryPort) Received() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.String()
}
