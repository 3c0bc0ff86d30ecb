// Package models resolves the on-disk location of classifier models.
package models

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	// DigitModel is the default ONNX digit classifier file name.
	DigitModel = "digit_model.onnx"

	// TypeDigits is the models subdirectory holding digit classifiers.
	TypeDigits = "digits"

	// DefaultModelsDir is relative to the project root.
	DefaultModelsDir = "models"

	// EnvModelsDir overrides the models directory.
	EnvModelsDir = "DIGITO_MODELS_DIR"
)

// ModelInfo describes a model file found on disk.
type ModelInfo struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Size int64  `json:"size"`
}

func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", errors.New("could not find project root (go.mod not found)")
}

// GetModelsDir returns the models directory.
// Priority: 1. explicit modelsDir, 2. environment variable, 3. project root + default.
func GetModelsDir(modelsDir string) string {
	if modelsDir != "" {
		return modelsDir
	}
	if envDir := os.Getenv(EnvModelsDir); envDir != "" {
		return envDir
	}
	if projectRoot, err := findProjectRoot(); err == nil {
		return filepath.Join(projectRoot, DefaultModelsDir)
	}
	return DefaultModelsDir
}

// ResolveModelPath prefers <dir>/digits/<file> and falls back to <dir>/<file>.
func ResolveModelPath(modelsDir, filename string) string {
	baseDir := GetModelsDir(modelsDir)
	organized := filepath.Join(baseDir, TypeDigits, filename)
	if _, err := os.Stat(organized); err == nil {
		return organized
	}
	return filepath.Join(baseDir, filename)
}

// GetDigitModelPath returns the path of the default digit model.
func GetDigitModelPath(modelsDir string) string {
	return ResolveModelPath(modelsDir, DigitModel)
}

// ValidateModelExists checks if a model file exists at the given path.
func ValidateModelExists(modelPath string) error {
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return fmt.Errorf("model file not found: %s", modelPath)
	}
	return nil
}

// ListAvailableModels returns the .onnx files under the models directory,
// sorted by name.
func ListAvailableModels(modelsDir string) ([]ModelInfo, error) {
	base := GetModelsDir(modelsDir)
	var out []ModelInfo
	for _, dir := range []string{base, filepath.Join(base, TypeDigits)} {
		entries, err := os.ReadDir(dir)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read models dir: %w", err)
		}
		for _, e := range entries {
			if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".onnx") {
				continue
			}
			fi, err := e.Info()
			if err != nil {
				continue
			}
			out = append(out, ModelInfo{Name: e.Name(), Path: filepath.Join(dir, e.Name()), Size: fi.Size()})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}
