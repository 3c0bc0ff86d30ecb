package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// ProgressCallback receives progress updates during batch classification.
type ProgressCallback interface {
	OnStart(total int)
	OnProgress(current, total int)
	OnComplete()
	OnError(index int, err error)
}

// NoOpProgressCallback ignores every update.
type NoOpProgressCallback struct{}

func (NoOpProgressCallback) OnStart(int)        {}
func (NoOpProgressCallback) OnProgress(int, int) {}
func (NoOpProgressCallback) OnComplete()        {}
func (NoOpProgressCallback) OnError(int, error) {}

// ConsoleProgressCallback draws a single-line progress bar.
type ConsoleProgressCallback struct {
	mu         sync.Mutex
	w          io.Writer
	prefix     string
	width      int
	interval   time.Duration
	started    time.Time
	lastUpdate time.Time
}

// NewConsoleProgressCallback creates a console reporter writing to w
// (stderr when nil).
func NewConsoleProgressCallback(w io.Writer, prefix string) *ConsoleProgressCallback {
	if w == nil {
		w = os.Stderr
	}
	return &ConsoleProgressCallback{w: w, prefix: prefix, width: 30, interval: 100 * time.Millisecond}
}

func (c *ConsoleProgressCallback) OnStart(total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = time.Now()
	c.lastUpdate = time.Time{}
	_, _ = fmt.Fprintf(c.w, "%s0/%d\n", c.prefix, total)
}

func (c *ConsoleProgressCallback) OnProgress(current, total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	if current < total && now.Sub(c.lastUpdate) < c.interval {
		return
	}
	c.lastUpdate = now
	if total <= 0 {
		return
	}
	filled := c.width * current / total
	bar := strings.Repeat("#", filled) + strings.Repeat(".", c.width-filled)
	line := fmt.Sprintf("\r%s[%s] %d/%d", c.prefix, bar, current, total)
	if elapsed := now.Sub(c.started); elapsed > 0 && current > 0 {
		line += fmt.Sprintf(" %.1f/s", float64(current)/elapsed.Seconds())
	}
	_, _ = fmt.Fprint(c.w, line)
}

func (c *ConsoleProgressCallback) OnComplete() {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintf(c.w, "\n%sdone in %v\n", c.prefix, time.Since(c.started).Round(time.Millisecond))
}

func (c *ConsoleProgressCallback) OnError(index int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintf(c.w, "\n%sitem %d failed: %v\n", c.prefix, index, err)
}

// LogProgressCallback reports progress through slog every interval items.
type LogProgressCallback struct {
	logger   *slog.Logger
	level    slog.Level
	interval int
	mu       sync.Mutex
	lastLog  int
	started  time.Time
}

// NewLogProgressCallback creates a log-based reporter.
func NewLogProgressCallback(logger *slog.Logger, level slog.Level) *LogProgressCallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogProgressCallback{logger: logger, level: level, interval: 10}
}

// WithInterval sets how often progress is logged (every n items).
func (l *LogProgressCallback) WithInterval(n int) *LogProgressCallback {
	if n > 0 {
		l.interval = n
	}
	return l
}

func (l *LogProgressCallback) OnStart(total int) {
	l.mu.Lock()
	l.started = time.Now()
	l.lastLog = 0
	l.mu.Unlock()
	l.logger.Log(context.Background(), l.level, "Batch started", "total", total)
}

func (l *LogProgressCallback) OnProgress(current, total int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if current-l.lastLog < l.interval && current != total {
		return
	}
	l.lastLog = current
	l.logger.Log(context.Background(), l.level, "Batch progress",
		"current", current, "total", total, "elapsed", time.Since(l.started).Round(time.Millisecond))
}

func (l *LogProgressCallback) OnComplete() {
	l.logger.Log(context.Background(), l.level, "Batch completed", "elapsed", time.Since(l.started).Round(time.Millisecond))
}

func (l *LogProgressCallback) OnError(index int, err error) {
	l.logger.Log(context.Background(), slog.LevelError, "Batch item failed", "index", index, "error", err)
}
