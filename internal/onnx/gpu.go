package onnx

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	onnxrt "github.com/yalue/onnxruntime_go"
)

// GPUConfig holds CUDA execution provider settings.
type GPUConfig struct {
	UseGPU              bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	DeviceID            int    `mapstructure:"device" yaml:"device" json:"device"`
	MemLimitBytes       uint64 `mapstructure:"mem_limit" yaml:"mem_limit" json:"mem_limit"`
	ArenaExtendStrategy string `mapstructure:"arena_extend_strategy" yaml:"arena_extend_strategy" json:"arena_extend_strategy"`
}

// DefaultGPUConfig returns CPU-only execution.
func DefaultGPUConfig() GPUConfig {
	return GPUConfig{ArenaExtendStrategy: "kNextPowerOfTwo"}
}

// Validate checks the GPU settings. CPU-only configs are always valid.
func (c GPUConfig) Validate() error {
	if !c.UseGPU {
		return nil
	}
	if c.DeviceID < 0 {
		return fmt.Errorf("device ID must be non-negative, got %d", c.DeviceID)
	}
	switch c.ArenaExtendStrategy {
	case "", "kNextPowerOfTwo", "kSameAsRequested":
		return nil
	default:
		return fmt.Errorf("invalid arena extend strategy %q", c.ArenaExtendStrategy)
	}
}

// cudaSettings renders the provider options understood by ONNX Runtime.
func (c GPUConfig) cudaSettings() map[string]string {
	s := map[string]string{"device_id": strconv.Itoa(c.DeviceID)}
	if c.MemLimitBytes > 0 {
		s["gpu_mem_limit"] = strconv.FormatUint(c.MemLimitBytes, 10)
	}
	if c.ArenaExtendStrategy != "" {
		s["arena_extend_strategy"] = c.ArenaExtendStrategy
	}
	return s
}

// configureGPU appends the CUDA provider to opts when requested.
func configureGPU(opts *onnxrt.SessionOptions, cfg GPUConfig) error {
	if !cfg.UseGPU {
		return nil
	}
	cuda, err := onnxrt.NewCUDAProviderOptions()
	if err != nil {
		return fmt.Errorf("cuda provider options (GPU may not be available): %w", err)
	}
	defer func() {
		if err := cuda.Destroy(); err != nil {
			slog.Warn("Failed to destroy CUDA provider options", "error", err)
		}
	}()
	if err := cuda.Update(cfg.cudaSettings()); err != nil {
		return fmt.Errorf("update cuda options: %w", err)
	}
	if err := opts.AppendExecutionProviderCUDA(cuda); err != nil {
		return fmt.Errorf("append cuda provider: %w", err)
	}
	return nil
}

// libraryName returns the shared library file name for the current OS.
func libraryName() (string, error) {
	switch runtime.GOOS {
	case "linux":
		return "libonnxruntime.so", nil
	case "darwin":
		return "libonnxruntime.dylib", nil
	case "windows":
		return "onnxruntime.dll", nil
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}
}

// libraryCandidates lists where the runtime library is searched, in order:
// an explicit path, system locations, then <project>/onnxruntime/lib.
func libraryCandidates(explicit string, useGPU bool) []string {
	var out []string
	if explicit != "" {
		out = append(out, explicit)
	}
	if useGPU {
		out = append(out, "/opt/onnxruntime/gpu/lib/libonnxruntime.so")
	}
	out = append(out,
		"/usr/local/lib/libonnxruntime.so",
		"/usr/lib/libonnxruntime.so",
		"/opt/onnxruntime/cpu/lib/libonnxruntime.so",
	)
	if root, err := findProjectRoot(); err == nil {
		if name, err := libraryName(); err == nil {
			if useGPU {
				out = append(out, filepath.Join(root, "onnxruntime", "gpu", "lib", name))
			}
			out = append(out, filepath.Join(root, "onnxruntime", "lib", name))
		}
	}
	return out
}

// ResolveLibraryPath returns the first existing runtime library candidate.
func ResolveLibraryPath(explicit string, useGPU bool) (string, error) {
	candidates := libraryCandidates(explicit, useGPU)
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("ONNX Runtime library not found (tried %d locations)", len(candidates))
}

func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("could not find project root")
		}
		dir = parent
	}
}
