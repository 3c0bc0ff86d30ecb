// Package notify pushes predictions to a microcontroller over a serial line.
//
// A Notifier moves through Disconnected, Connecting and Connected only via
// explicit Connect and Disconnect calls. Send never opens a connection.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"go.bug.st/serial"
)

var (
	// ErrNotConnected is returned by Send outside the Connected state.
	ErrNotConnected = errors.New("notifier not connected")
	// ErrBusy is returned by Connect when not Disconnected.
	ErrBusy = errors.New("notifier already connecting or connected")
	// ErrNoPort is returned when auto-detection finds no candidate.
	ErrNoPort = errors.New("no serial port found")
	// ErrAborted is returned by Connect when Disconnect ran while connecting.
	ErrAborted = errors.New("connect aborted by disconnect")
)

// Config controls the serial notifier.
type Config struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	// Port is the device name. Empty means auto-detect.
	Port       string        `mapstructure:"port" yaml:"port" json:"port"`
	BaudRate   int           `mapstructure:"baud_rate" yaml:"baud_rate" json:"baud_rate"`
	ResetDelay time.Duration `mapstructure:"reset_delay" yaml:"reset_delay" json:"reset_delay"`
	QueueSize  int           `mapstructure:"queue_size" yaml:"queue_size" json:"queue_size"`
}

// DefaultConfig returns the Arduino defaults: 9600 baud and a 2s reset wait.
func DefaultConfig() Config {
	return Config{
		BaudRate:   9600,
		ResetDelay: 2 * time.Second,
		QueueSize:  16,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.BaudRate <= 0 {
		return fmt.Errorf("baud rate must be positive, got %d", c.BaudRate)
	}
	if c.ResetDelay < 0 {
		return errors.New("reset delay cannot be negative")
	}
	if c.QueueSize < 0 {
		return errors.New("queue size cannot be negative")
	}
	return nil
}

// Port is the subset of serial.Port used by the notifier.
type Port interface {
	io.Writer
	io.Closer
}

// Opener opens a named port at a baud rate.
type Opener func(name string, baud int) (Port, error)

// OpenSerial opens a real serial port with 8N1 framing.
func OpenSerial(name string, baud int) (Port, error) {
	p, err := serial.Open(name, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Notifier owns one serial connection.
type Notifier struct {
	cfg    Config
	open   Opener
	list   Lister
	logger *slog.Logger

	mu       sync.Mutex
	state    State
	port     Port
	portName string
	attempt  uint64
}

// Option customizes a Notifier.
type Option func(*Notifier)

// WithOpener replaces the serial port opener.
func WithOpener(o Opener) Option { return func(n *Notifier) { n.open = o } }

// WithLister replaces the port enumerator used for auto-detection.
func WithLister(l Lister) Option { return func(n *Notifier) { n.list = l } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(n *Notifier) { n.logger = l } }

// New returns a Disconnected notifier.
func New(cfg Config, opts ...Option) (*Notifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	n := &Notifier{cfg: cfg, open: OpenSerial, list: ListPorts, logger: slog.Default()}
	for _, o := range opts {
		o(n)
	}
	return n, nil
}

// State returns the current state.
func (n *Notifier) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// PortName returns the port of the current or last connection.
func (n *Notifier) PortName() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.portName
}

// Connect opens the port and waits for the board to reset. It is only valid
// from Disconnected; on failure the notifier returns to Disconnected.
func (n *Notifier) Connect(ctx context.Context) error {
	n.mu.Lock()
	if n.state != Disconnected {
		n.mu.Unlock()
		return ErrBusy
	}
	n.state = Connecting
	n.attempt++
	attempt := n.attempt
	n.mu.Unlock()

	port, name, err := n.dial(ctx)
	if err != nil {
		n.mu.Lock()
		if n.attempt == attempt && n.state == Connecting {
			n.state = Disconnected
		}
		n.mu.Unlock()
		n.logger.Warn("Serial connect failed", "port", name, "error", err)
		return err
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.attempt != attempt || n.state != Connecting {
		closePort(port, n.logger)
		return ErrAborted
	}
	n.port = port
	n.portName = name
	n.state = Connected
	n.logger.Info("Serial notifier connected", "port", name, "baud", n.cfg.BaudRate)
	return nil
}

func (n *Notifier) dial(ctx context.Context) (Port, string, error) {
	name := n.cfg.Port
	if name == "" {
		ports, err := n.list()
		if err != nil {
			return nil, "", err
		}
		var ok bool
		if name, ok = DetectPort(ports); !ok {
			return nil, "", ErrNoPort
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, name, err
	}

	port, err := n.open(name, n.cfg.BaudRate)
	if err != nil {
		return nil, name, fmt.Errorf("open %s: %w", name, err)
	}

	if n.cfg.ResetDelay > 0 {
		t := time.NewTimer(n.cfg.ResetDelay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			closePort(port, n.logger)
			return nil, name, ctx.Err()
		case <-t.C:
		}
	}
	return port, name, nil
}

// Send writes "PRED:<digit>,<percent>\n". It never connects; a write failure
// drops the connection.
func (n *Notifier) Send(digit int, confidence float64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state != Connected {
		return ErrNotConnected
	}
	if _, err := io.WriteString(n.port, FormatMessage(digit, confidence)); err != nil {
		closePort(n.port, n.logger)
		n.port = nil
		n.state = Disconnected
		return fmt.Errorf("serial write: %w", err)
	}
	n.logger.Debug("Sent prediction to serial port", "port", n.portName, "digit", digit, "confidence", confidence)
	return nil
}

// Disconnect closes the port from any state. A pending Connect is aborted.
func (n *Notifier) Disconnect() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	var err error
	if n.port != nil {
		err = n.port.Close()
		n.port = nil
	}
	n.state = Disconnected
	return err
}

// Close implements io.Closer.
func (n *Notifier) Close() error { return n.Disconnect() }

// FormatMessage renders the wire message. The percentage is truncated.
func FormatMessage(digit int, confidence float64) string {
	return fmt.Sprintf("PRED:%d,%d\n", digit, int(confidence*100))
}

func closePort(p Port, logger *slog.Logger) {
	if err := p.Close(); err != nil {
		logger.Warn("Failed to close serial port", "error", err)
	}
}
