package ml

import (
	"fmt"
	"log"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// Model is the inference dependency. The production implementation wraps an
// ONNX session; tests use a stub.
type Model interface {
	Infer(features []float32) (float32, error)
	Close() error
}

var ortInitOnce sync.Once
var ortInitErr error

// onnxModel runs the phishing classifier through onnxruntime. Sessions are
// not safe for concurrent Run calls, so inference is serialized; the
// classifier is small enough that this never shows up under load.
type onnxModel struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

// LoadModel opens the ONNX classifier at path. A missing or unreadable
// model returns an error; callers treat that as "run without ML".
func LoadModel(path string) (Model, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("model file: %w", err)
	}

	ortInitOnce.Do(func() {
		if lib := os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH"); lib != "" {
			ort.SetSharedLibraryPath(lib)
		}
		ortInitErr = ort.InitializeEnvironment()
	})
	if ortInitErr != nil {
		return nil, fmt.Errorf("initialize onnxruntime: %w", ortInitErr)
	}

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, InputSize))
	if err != nil {
		return nil, fmt.Errorf("input tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(path,
		[]string{"input"}, []string{"output"},
		[]ort.ArbitraryTensor{input}, []ort.ArbitraryTensor{output}, nil)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("create session: %w", err)
	}

	log.Printf("[ml] loaded classifier from %s", path)
	return &onnxModel{session: session, input: input, output: output}, nil
}

func (m *onnxModel) Infer(features []float32) (float32, error) {
	if len(features) != InputSize {
		return 0, fmt.Errorf("feature vector has %d values, want %d", len(features), InputSize)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	copy(m.input.GetData(), features)
	if err := m.session.Run(); err != nil {
		return 0, fmt.Errorf("inference: %w", err)
	}
	return m.output.GetData()[0], nil
}

func (m *onnxModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session.Destroy()
	m.input.Destroy()
	m.output.Destroy()
	return nil
}
