package extractor

import (
	"fmt"
	"sync"

	"github.com/mamage/photo-similarity/internal/config"
	ort "github.com/yalue/onnxruntime_go"
)

var (
	runtimeOnce sync.Once
	runtimeErr  error
)

// initRuntime initializes the process-wide onnxruntime environment exactly once.
func initRuntime(libPath string) error {
	runtimeOnce.Do(func() {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			path := libPath
			if path == "" {
				path = "system default onnxruntime library"
			}
			runtimeErr = &ModelLoadError{Model: "onnxruntime", Path: path, EnvVar: "ONNXRUNTIME_LIB", Err: err}
		}
	})
	return runtimeErr
}

// ONNXLoader returns a SessionLoader backed by onnxruntime. libPath may be empty to use
// the library found on the default search path.
func ONNXLoader(libPath string) SessionLoader {
	return func(profile config.ModelProfile, path string) (Session, error) {
		if err := initRuntime(libPath); err != nil {
			return nil, err
		}

		inputName, outputName := profile.InputName, profile.OutputName
		if inputName == "" || outputName == "" {
			inputs, outputs, err := ort.GetInputOutputInfo(path)
			if err != nil {
				return nil, fmt.Errorf("failed to inspect model: %w", err)
			}
			if len(inputs) == 0 || len(outputs) == 0 {
				return nil, fmt.Errorf("model has no inputs or outputs")
			}
			if inputName == "" {
				inputName = inputs[0].Name
			}
			if outputName == "" {
				outputName = outputs[0].Name
			}
		}

		session, err := ort.NewDynamicAdvancedSession(path, []string{inputName}, []string{outputName}, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create session: %w", err)
		}
		return &onnxSession{session: session}, nil
	}
}

type onnxSession struct {
	session *ort.DynamicAdvancedSession
}

func (s *onnxSession) Run(input []float32, profile config.ModelProfile) ([]float32, error) {
	size := int64(profile.InputSize)
	in, err := ort.NewTensor(ort.NewShape(1, 3, size, size), input)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer in.Destroy()

	// nil output is allocated by onnxruntime, so any output shape works
	outputs := []ort.Value{nil}
	if err := s.session.Run([]ort.Value{in}, outputs); err != nil {
		return nil, fmt.Errorf("session run failed: %w", err)
	}
	defer outputs[0].Destroy()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output type %T", outputs[0])
	}

	data := out.GetData()
	vec := make([]float32, len(data))
	copy(vec, data)
	return vec, nil
}

func (s *onnxSession) Close() error {
	return s.session.Destroy()
}
