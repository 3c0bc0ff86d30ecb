package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/MeKo-Tech/digito/internal/notify"
	"github.com/MeKo-Tech/digito/internal/pipeline"
	"github.com/MeKo-Tech/digito/internal/storage"
)

// Notifier forwards predictions to attached hardware.
type Notifier interface {
	State() notify.State
	Connect(ctx context.Context) error
	Send(digit int, confidence float64) error
	Close() error
}

const (
	defaultNotifyQueue    = 16
	notifyConnectTimeout  = 5 * time.Second
	notifyReconnectPeriod = 30 * time.Second
	// persistTimeout bounds the history insert that runs on the request path.
	persistTimeout = time.Second
)

type notification struct {
	digit      int
	confidence float64
}

// sideChannels runs the work that follows a classification: persisting the
// upload and notifying hardware. Failures are logged and counted, never
// returned to the client.
type sideChannels struct {
	store          *storage.Store
	persistTimeout time.Duration
	notifier       Notifier
	logger         *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan notification
	wg     sync.WaitGroup

	lastAttempt time.Time
	reconnect   time.Duration
	now         func() time.Time
}

func newSideChannels(store *storage.Store, n Notifier, queueSize int, logger *slog.Logger) *sideChannels {
	if queueSize <= 0 {
		queueSize = defaultNotifyQueue
	}
	sc := &sideChannels{
		store:          store,
		persistTimeout: persistTimeout,
		notifier:       n,
		logger:         logger,
		reconnect:      notifyReconnectPeriod,
		now:            time.Now,
	}
	if n != nil {
		sc.queue = make(chan notification, queueSize)
		sc.wg.Add(1)
		go sc.run()
	}
	return sc
}

// Record persists res and queues a notification. It returns the stored row
// id, or 0 when history is disabled or the insert failed.
func (sc *sideChannels) Record(ctx context.Context, res *pipeline.DigitResult, filename string, data []byte, format string) int64 {
	id := sc.persist(ctx, res, filename, data, format)
	sc.enqueue(notification{digit: res.Digit, confidence: res.Confidence})
	return id
}

func (sc *sideChannels) persist(ctx context.Context, res *pipeline.DigitResult, filename string, data []byte, format string) int64 {
	if sc.store == nil {
		return 0
	}
	var imagePath string
	if sc.store.SavesImages() && len(data) > 0 {
		p, err := sc.store.SaveUpload(data, format)
		if err != nil {
			sideChannelEvents.WithLabelValues("upload", "error").Inc()
			sc.logger.Warn("Failed to save upload", "error", err)
		} else {
			sideChannelEvents.WithLabelValues("upload", "ok").Inc()
			imagePath = p
		}
	}

	ctx, cancel := context.WithTimeout(ctx, sc.persistTimeout)
	defer cancel()
	rec := storage.NewPrediction(res.Result, res.Empty, filename, imagePath)
	if err := sc.store.Predictions().Insert(ctx, rec); err != nil {
		sideChannelEvents.WithLabelValues("storage", "error").Inc()
		sc.logger.Warn("Failed to store prediction", "error", err)
		return 0
	}
	sideChannelEvents.WithLabelValues("storage", "ok").Inc()
	return rec.ID
}

func (sc *sideChannels) enqueue(n notification) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	if sc.queue == nil || sc.closed {
		return
	}
	select {
	case sc.queue <- n:
	default:
		sideChannelEvents.WithLabelValues("notifier", "dropped").Inc()
	}
}

func (sc *sideChannels) run() {
	defer sc.wg.Done()
	for n := range sc.queue {
		sc.deliver(n)
	}
}

// deliver sends one notification, connecting first when the notifier is
// idle. Connection attempts are spaced by the reconnect period.
func (sc *sideChannels) deliver(n notification) {
	if sc.notifier.State() == notify.Disconnected {
		if now := sc.now(); !sc.lastAttempt.IsZero() && now.Sub(sc.lastAttempt) < sc.reconnect {
			sideChannelEvents.WithLabelValues("notifier", "skipped").Inc()
			return
		}
		sc.lastAttempt = sc.now()
		ctx, cancel := context.WithTimeout(context.Background(), notifyConnectTimeout)
		err := sc.notifier.Connect(ctx)
		cancel()
		if err != nil {
			sideChannelEvents.WithLabelValues("notifier", "connect_error").Inc()
			sc.logger.Warn("Notifier connect failed", "error", err)
			return
		}
	}
	if err := sc.notifier.Send(n.digit, n.confidence); err != nil {
		sideChannelEvents.WithLabelValues("notifier", "error").Inc()
		sc.logger.Warn("Notifier send failed", "error", err)
		return
	}
	sideChannelEvents.WithLabelValues("notifier", "ok").Inc()
}

// NotifierState reports the hardware link state, or "" without a notifier.
func (sc *sideChannels) NotifierState() string {
	if sc.notifier == nil {
		return ""
	}
	return sc.notifier.State().String()
}

// Close drains queued notifications and disconnects the notifier.
func (sc *sideChannels) Close() {
	sc.mu.Lock()
	if sc.closed {
		sc.mu.Unlock()
		return
	}
	sc.closed = true
	if sc.queue != nil {
		close(sc.queue)
	}
	sc.mu.Unlock()

	sc.wg.Wait()
	if sc.notifier != nil {
		if err := sc.notifier.Close(); err != nil {
			sc.logger.Warn("Failed to close notifier", "error", err)
		}
	}
}
