package support

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/MeKo-Tech/digito/internal/notify"
	"github.com/MeKo-Tech/digito/internal/server"
	"github.com/MeKo-Tech/digito/internal/storage"
	"github.com/cucumber/godog"
)

// RegisterServerSteps registers HTTP API steps.
func (testCtx *TestContext) RegisterServerSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the digit server is running$`, testCtx.theDigitServerIsRunning)
	sc.Step(`^the digit server is running with history and a serial device$`, testCtx.theDigitServerWithSideChannels)
	sc.Step(`^the digit server is running with a limit of (\d+) requests per minute$`, testCtx.theDigitServerWithRateLimit)
	sc.Step(`^the digit server is running without a model$`, testCtx.theDigitServerWithoutModel)

	sc.Step(`^I upload the drawing to "([^"]*)"$`, testCtx.iUploadTheDrawing)
	sc.Step(`^I upload the drawing (\d+) times$`, testCtx.iUploadTheDrawingTimes)
	sc.Step(`^I upload the bytes "([^"]*)" to "([^"]*)"$`, testCtx.iUploadBytes)
	sc.Step(`^I request "([^"]*)"$`, testCtx.iRequest)

	sc.Step(`^the response status is (\d+)$`, testCtx.theResponseStatusIs)
	sc.Step(`^the JSON field "([^"]*)" is "([^"]*)"$`, testCtx.theJSONFieldIs)
	sc.Step(`^the response contains "([^"]*)"$`, testCtx.theResponseContains)
	sc.Step(`^the prediction history contains (\d+) entr(?:y|ies)$`, testCtx.theHistoryContains)
	sc.Step(`^the serial device eventually receives "([^"]*)"$`, testCtx.theSerialDeviceReceives)
}

func (testCtx *TestContext) startServer(cfg server.Config, withModel bool, opts ...server.Option) error {
	if withModel {
		pl, err := testCtx.pipeline()
		if err != nil {
			return err
		}
		opts = append(opts, server.WithPipeline(pl))
	}
	srv, err := server.NewServer(cfg, opts...)
	if err != nil {
		return err
	}
	testCtx.Server = srv
	testCtx.HTTPServer = httptest.NewServer(srv.Handler())
	return nil
}

func testServerConfig() server.Config {
	return server.Config{CORSOrigins: []string{"*"}, MaxUploadMB: 1, Version: "integration"}
}

func (testCtx *TestContext) theDigitServerIsRunning() error {
	return testCtx.startServer(testServerConfig(), true)
}

func (testCtx *TestContext) theDigitServerWithoutModel() error {
	return testCtx.startServer(testServerConfig(), false)
}

func (testCtx *TestContext) theDigitServerWithRateLimit(perMinute int) error {
	cfg := testServerConfig()
	cfg.RateLimit = server.RateLimitConfig{Enabled: true, RequestsPerMinute: perMinute}
	return testCtx.startServer(cfg, true)
}

func (testCtx *TestContext) theDigitServerWithSideChannels() error {
	store, err := storage.Open(storage.Config{Enabled: true, DatabasePath: ":memory:"})
	if err != nil {
		return err
	}
	testCtx.Store = store

	testCtx.Serial = &MemoryPort{}
	n, err := notify.New(notify.Config{Enabled: true, Port: "/dev/ttyTEST", BaudRate: 9600},
		notify.WithOpener(testCtx.Serial.Open))
	if err != nil {
		return err
	}
	return testCtx.startServer(testServerConfig(), true, server.WithStore(store), server.WithNotifier(n))
}

func (testCtx *TestContext) post(path, filename string, data []byte) error {
	if testCtx.HTTPServer == nil {
		return errors.New("server is not running")
	}
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	if _, err := fw.Write(data); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost,
		testCtx.HTTPServer.URL+path, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return testCtx.do(req)
}

func (testCtx *TestContext) do(req *http.Request) error {
	resp, err := testCtx.HTTPServer.Client().Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	testCtx.LastHTTPStatusCode = resp.StatusCode
	testCtx.LastHTTPResponse, err = io.ReadAll(resp.Body)
	return err
}

func (testCtx *TestContext) drawingPNG() ([]byte, error) {
	if testCtx.Drawing == nil {
		return nil, errors.New("no drawing in this scenario")
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, testCtx.Drawing); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (testCtx *TestContext) iUploadTheDrawing(path string) error {
	data, err := testCtx.drawingPNG()
	if err != nil {
		return err
	}
	return testCtx.post(path, "drawing.png", data)
}

func (testCtx *TestContext) iUploadTheDrawingTimes(n int) error {
	for range n {
		if err := testCtx.iUploadTheDrawing("/predict"); err != nil {
			return err
		}
	}
	return nil
}

func (testCtx *TestContext) iUploadBytes(data, path string) error {
	return testCtx.post(path, "drawing.png", []byte(data))
}

func (testCtx *TestContext) iRequest(path string) error {
	if testCtx.HTTPServer == nil {
		return errors.New("server is not running")
	}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, testCtx.HTTPServer.URL+path, nil)
	if err != nil {
		return err
	}
	return testCtx.do(req)
}

func (testCtx *TestContext) theResponseStatusIs(status int) error {
	if testCtx.LastHTTPStatusCode != status {
		return fmt.Errorf("expected status %d, got %d: %s", status, testCtx.LastHTTPStatusCode, testCtx.LastHTTPResponse)
	}
	return nil
}

// theJSONFieldIs compares a top-level or dotted field of the last response.
func (testCtx *TestContext) theJSONFieldIs(field, want string) error {
	var doc any
	if err := json.Unmarshal(testCtx.LastHTTPResponse, &doc); err != nil {
		return fmt.Errorf("response is not JSON: %w", err)
	}
	cur := doc
	for _, key := range strings.Split(field, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return fmt.Errorf("field %q: %v is not an object", key, cur)
		}
		if cur, ok = obj[key]; !ok {
			return fmt.Errorf("field %q missing in %s", field, testCtx.LastHTTPResponse)
		}
	}
	if got := fmt.Sprint(cur); got != want {
		return fmt.Errorf("field %q: expected %q, got %q", field, want, got)
	}
	return nil
}

func (testCtx *TestContext) theResponseContains(text string) error {
	if !strings.Contains(string(testCtx.LastHTTPResponse), text) {
		return fmt.Errorf("response %q does not contain %q", testCtx.LastHTTPResponse, text)
	}
	return nil
}

func (testCtx *TestContext) theHistoryContains(n int) error {
	if testCtx.Store == nil {
		return errors.New("history is not enabled")
	}
	count, err := testCtx.Store.Predictions().Count(context.Background())
	if err != nil {
		return err
	}
	if count != n {
		return fmt.Errorf("expected %d stored predictions, got %d", n, count)
	}
	return nil
}

func (testCtx *TestContext) theSerialDeviceReceives(line string) error {
	if testCtx.Serial == nil {
		return errors.New("no serial device attached")
	}
	want := line + "\n"
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(testCtx.Serial.Received(), want) {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return fmt.Errorf("serial device received %q, want %q", testCtx.Serial.Received(), want)
}
