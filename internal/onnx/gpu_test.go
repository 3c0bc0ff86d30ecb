package onnx

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultGPUConfig(t *testing.T) {
	cfg := DefaultGPUConfig()
	assert.False(t, cfg.UseGPU)
	assert.Equal(t, 0, cfg.DeviceID)
	assert.Equal(t, "kNextPowerOfTwo", cfg.ArenaExtendStrategy)
	assert.NoError(t, cfg.Validate())
}

func TestGPUConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     GPUConfig
		wantErr bool
	}{
		{"cpu ignores bad values", GPUConfig{DeviceID: -3, ArenaExtendStrategy: "x"}, false},
		{"valid gpu", GPUConfig{UseGPU: true, ArenaExtendStrategy: "kSameAsRequested"}, false},
		{"negative device", GPUConfig{UseGPU: true, DeviceID: -1}, true},
		{"bad strategy", GPUConfig{UseGPU: true, ArenaExtendStrategy: "grow"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGPUConfig_CUDASettings(t *testing.T) {
	s := GPUConfig{UseGPU: true, DeviceID: 2, MemLimitBytes: 1024}.cudaSettings()
	assert.Equal(t, "2", s["device_id"])
	assert.Equal(t, "1024", s["gpu_mem_limit"])
	_, ok := s["arena_extend_strategy"]
	assert.False(t, ok)
}

func TestLibraryName(t *testing.T) {
	name, err := libraryName()
	switch runtime.GOOS {
	case "linux":
		assert.Equal(t, "libonnxruntime.so", name)
	case "darwin":
		assert.Equal(t, "libonnxruntime.dylib", name)
	case "windows":
		assert.Equal(t, "onnxruntime.dll", name)
	default:
		assert.Error(t, err)
	}
}

func TestLibraryCandidates_Order(t *testing.T) {
	c := libraryCandidates("/custom/libonnxruntime.so", true)
	require.NotEmpty(t, c)
	assert.Equal(t, "/custom/libonnxruntime.so", c[0])
	assert.Equal(t, "/opt/onnxruntime/gpu/lib/libonnxruntime.so", c[1])

	cpu := libraryCandidates("", false)
	assert.NotContains(t, cpu, "/opt/onnxruntime/gpu/lib/libonnxruntime.so")
}

func TestResolveLibraryPath_Explicit(t *testing.T) {
	lib := filepath.Join(t.TempDir(), "libonnxruntime.so")
	require.NoError(t, os.WriteFile(lib, []byte("stub"), 0o600))

	got, err := ResolveLibraryPath(lib, false)
	require.NoError(t, err)
	assert.Equal(t, lib, got)
}
