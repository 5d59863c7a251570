// Package extractor computes L2-normalized image embeddings, either with a local ONNX model
// or through a remote embedding server.
package extractor

import (
	"context"
	"fmt"

	"github.com/mamage/photo-similarity/internal/config"
	"github.com/mamage/photo-similarity/internal/vector"
	"go.uber.org/zap"
)

// Extractor turns encoded image bytes into a unit-length embedding.
type Extractor interface {
	Extract(ctx context.Context, imageData []byte) ([]float32, error)
	Model() string
	Backend() string
}

// ONNXExtractor runs a model from a shared Registry in-process.
type ONNXExtractor struct {
	registry *Registry
	model    string
}

// NewONNXExtractor returns an extractor for model. The model is loaded on the first Extract.
func NewONNXExtractor(registry *Registry, model string) (*ONNXExtractor, error) {
	if _, err := registry.Profile(model); err != nil {
		return nil, err
	}
	return &ONNXExtractor{registry: registry, model: model}, nil
}

func (e *ONNXExtractor) Model() string   { return e.model }
func (e *ONNXExtractor) Backend() string { return config.BackendONNX }

// Extract decodes, preprocesses and embeds one image.
func (e *ONNXExtractor) Extract(ctx context.Context, imageData []byte) ([]float32, error) {
	session, profile, err := e.registry.Session(e.model)
	if err != nil {
		return nil, err
	}

	input, err := Preprocess(imageData, profile)
	if err != nil {
		return nil, &InferenceError{Model: e.model, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out, err := session.Run(input, profile)
	if err != nil {
		return nil, &InferenceError{Model: e.model, Err: err}
	}
	if len(out) == 0 {
		return nil, &InferenceError{Model: e.model, Err: fmt.Errorf("model returned an empty output")}
	}
	if profile.Dim > 0 && len(out) != profile.Dim {
		return nil, &InferenceError{Model: e.model, Err: fmt.Errorf("model returned %d values, expected %d", len(out), profile.Dim)}
	}

	return vector.L2Normalize(out), nil
}

// New builds the extractor selected by cfg.Embedding.Backend for model, wrapped with metrics.
// registry is only used by the onnx backend and may be shared between extractors.
func New(cfg *config.Config, registry *Registry, model string, logger *zap.Logger) (Extractor, error) {
	var (
		ext Extractor
		err error
	)
	switch cfg.Embedding.Backend {
	case config.BackendRemote:
		ext = NewRemoteExtractor(cfg.Embedding.URL, model, cfg.Storage.FetchRetryMax)
	case config.BackendONNX, "":
		if registry == nil {
			return nil, fmt.Errorf("onnx backend needs a model registry")
		}
		ext, err = NewONNXExtractor(registry, model)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported embedding backend %q", cfg.Embedding.Backend)
	}
	return NewInstrumented(ext, logger), nil
}
