// Package onnx runs digit models with ONNX Runtime.
package onnx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"

	"github.com/MeKo-Tech/digito/internal/classify"
	"github.com/MeKo-Tech/digito/internal/mempool"
	onnxrt "github.com/yalue/onnxruntime_go"
)

// Config controls the ONNX engine.
type Config struct {
	ModelPath string
	// LibraryPath points at the ONNX Runtime shared library. When empty the
	// usual system and project locations are searched.
	LibraryPath string
	NumThreads  int
	// ApplySoftmax converts model logits to probabilities. Leave off for
	// models that already end in a softmax layer.
	ApplySoftmax bool
	GPU          GPUConfig
}

// ErrClosed is returned by Run after Close.
var ErrClosed = errors.New("onnx engine closed")

// Engine is a classify.Engine backed by an ONNX Runtime session.
// ONNX Runtime sessions accept concurrent Run calls, so the engine only
// guards against use after Close.
type Engine struct {
	cfg        Config
	mu         sync.RWMutex
	session    *onnxrt.DynamicAdvancedSession
	inputInfo  onnxrt.InputOutputInfo
	outputInfo onnxrt.InputOutputInfo
	inputShape []int64
}

var envMu sync.Mutex

// NewEngine loads the model and prepares a session.
func NewEngine(cfg Config) (*Engine, error) {
	if err := validateModelPath(cfg.ModelPath); err != nil {
		return nil, err
	}
	if err := cfg.GPU.Validate(); err != nil {
		return nil, fmt.Errorf("gpu config: %w", err)
	}
	if err := InitializeRuntime(cfg.LibraryPath, cfg.GPU.UseGPU); err != nil {
		return nil, err
	}

	in, out, err := modelIO(cfg.ModelPath)
	if err != nil {
		return nil, err
	}
	shape, err := InputShape(in.Dimensions)
	if err != nil {
		return nil, err
	}

	opts, err := onnxrt.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("session opts: %w", err)
	}
	defer func() {
		if err := opts.Destroy(); err != nil {
			slog.Warn("Failed to destroy session options", "error", err)
		}
	}()
	if err := configureGPU(opts, cfg.GPU); err != nil {
		return nil, err
	}
	if cfg.NumThreads > 0 {
		if err := opts.SetIntraOpNumThreads(cfg.NumThreads); err != nil {
			return nil, fmt.Errorf("set threads: %w", err)
		}
	}

	sess, err := onnxrt.NewDynamicAdvancedSession(cfg.ModelPath, []string{in.Name}, []string{out.Name}, opts)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	slog.Info("ONNX engine ready",
		"model", cfg.ModelPath, "input", in.Name, "input_shape", shape,
		"output", out.Name, "gpu", cfg.GPU.UseGPU, "softmax", cfg.ApplySoftmax)
	return &Engine{cfg: cfg, session: sess, inputInfo: in, outputInfo: out, inputShape: shape}, nil
}

// InitializeRuntime locates the shared library and initializes the ONNX
// Runtime environment once per process.
func InitializeRuntime(libraryPath string, useGPU bool) error {
	envMu.Lock()
	defer envMu.Unlock()
	if onnxrt.IsInitialized() {
		return nil
	}
	lib, err := ResolveLibraryPath(libraryPath, useGPU)
	if err != nil {
		return fmt.Errorf("onnx lib path: %w", err)
	}
	onnxrt.SetSharedLibraryPath(lib)
	if err := onnxrt.InitializeEnvironment(); err != nil {
		return fmt.Errorf("init onnx: %w", err)
	}
	slog.Debug("ONNX Runtime initialized", "library", lib)
	return nil
}

// Inspect reports the model's input and output signature without creating a
// session.
func Inspect(modelPath, libraryPath string) (classify.EngineInfo, error) {
	if err := validateModelPath(modelPath); err != nil {
		return classify.EngineInfo{}, err
	}
	if err := InitializeRuntime(libraryPath, false); err != nil {
		return classify.EngineInfo{}, err
	}
	in, out, err := modelIO(modelPath)
	if err != nil {
		return classify.EngineInfo{}, err
	}
	return classify.EngineInfo{
		Backend:     "onnx",
		Model:       modelPath,
		InputName:   in.Name,
		OutputName:  out.Name,
		InputShape:  slices.Clone([]int64(in.Dimensions)),
		OutputShape: slices.Clone([]int64(out.Dimensions)),
	}, nil
}

func validateModelPath(modelPath string) error {
	if modelPath == "" {
		return errors.New("empty model path")
	}
	if _, err := os.Stat(modelPath); err != nil {
		return fmt.Errorf("model file: %w", err)
	}
	return nil
}

func modelIO(modelPath string) (onnxrt.InputOutputInfo, onnxrt.InputOutputInfo, error) {
	inputs, outputs, err := onnxrt.GetInputOutputInfo(modelPath)
	if err != nil {
		return onnxrt.InputOutputInfo{}, onnxrt.InputOutputInfo{}, fmt.Errorf("io info: %w", err)
	}
	if len(inputs) != 1 || len(outputs) != 1 {
		return onnxrt.InputOutputInfo{}, onnxrt.InputOutputInfo{},
			fmt.Errorf("unexpected io (in:%d out:%d)", len(inputs), len(outputs))
	}
	return inputs[0], outputs[0], nil
}

// Run feeds one feature vector through the session and returns the raw
// output values, softmaxed when configured.
func (e *Engine) Run(ctx context.Context, input []float32) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.session == nil {
		return nil, ErrClosed
	}

	if err := VerifyTensor(Tensor{Data: input, Shape: e.inputShape}); err != nil {
		return nil, err
	}
	// The input tensor references buf until it is destroyed below.
	buf := mempool.GetFloat32(len(input))
	defer mempool.PutFloat32(buf)
	copy(buf, input)
	if slog.Default().Enabled(ctx, slog.LevelDebug) {
		lo, hi, mean := TensorStats(buf)
		slog.Debug("ONNX input", "shape", e.inputShape, "min", lo, "max", hi, "mean", mean)
	}

	in, err := onnxrt.NewTensor(onnxrt.NewShape(e.inputShape...), buf)
	if err != nil {
		return nil, fmt.Errorf("tensor: %w", err)
	}
	defer func() {
		if err := in.Destroy(); err != nil {
			slog.Warn("Failed to destroy input tensor", "error", err)
		}
	}()

	outputs := []onnxrt.Value{nil}
	if err := e.session.Run([]onnxrt.Value{in}, outputs); err != nil {
		return nil, fmt.Errorf("run: %w", err)
	}
	defer func() {
		for _, o := range outputs {
			if o == nil {
				continue
			}
			if err := o.Destroy(); err != nil {
				slog.Warn("Failed to destroy output tensor", "error", err)
			}
		}
	}()

	ot, ok := outputs[0].(*onnxrt.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output type %T", outputs[0])
	}
	data := slices.Clone(ot.GetData())
	if e.cfg.ApplySoftmax {
		data = classify.Softmax(data)
	}
	return data, nil
}

// Info describes the loaded model.
func (e *Engine) Info() classify.EngineInfo {
	return classify.EngineInfo{
		Backend:     "onnx",
		Model:       e.cfg.ModelPath,
		InputName:   e.inputInfo.Name,
		OutputName:  e.outputInfo.Name,
		InputShape:  slices.Clone(e.inputShape),
		OutputShape: slices.Clone([]int64(e.outputInfo.Dimensions)),
		Softmax:     e.cfg.ApplySoftmax,
	}
}

// Close destroys the session. Further Run calls fail with ErrClosed.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil
	}
	err := e.session.Destroy()
	e.session = nil
	return err
}
