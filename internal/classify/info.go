package classify

// EngineInfo describes an inference backend for diagnostics.
type EngineInfo struct {
	Backend     string  `json:"backend"`
	Model       string  `json:"model"`
	InputName   string  `json:"input_name,omitempty"`
	OutputName  string  `json:"output_name,omitempty"`
	InputShape  []int64 `json:"input_shape,omitempty"`
	OutputShape []int64 `json:"output_shape,omitempty"`
	Softmax     bool    `json:"softmax"`
}

// Describer is implemented by engines that can report what they run.
type Describer interface {
	Info() EngineInfo
}

// Describe returns the engine description, or a minimal one when the engine
// does not implement Describer.
func Describe(e Engine) EngineInfo {
	if d, ok := e.(Describer); ok {
		return d.Info()
	}
	return EngineInfo{Backend: "custom"}
}
