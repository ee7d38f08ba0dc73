// Package detector turns the provider's detector backends into an ordered
// fallback chain.
package detector

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/example/face-check/internal/embedding"
)

// ErrNoFaceDetected is returned when no detector in the chain found a face.
var ErrNoFaceDetected = errors.New("no face detected by any backend")

// Detector locates faces in an image file.
type Detector interface {
	Name() string
	Detect(ctx context.Context, imagePath string) ([]embedding.Detection, error)
}

// Backend adapts one provider detector backend to the Detector contract.
type Backend struct {
	name     string
	provider embedding.Provider
}

// NewBackend returns the named backend of provider.
func NewBackend(provider embedding.Provider, name string) *Backend {
	return &Backend{name: name, provider: provider}
}

func (b *Backend) Name() string { return b.name }

func (b *Backend) Detect(ctx context.Context, imagePath string) ([]embedding.Detection, error) {
	faces, err := b.provider.DetectFaces(ctx, imagePath, b.name)
	if err != nil {
		return nil, err
	}
	if len(faces) == 0 {
		return nil, embedding.ErrNoFace
	}
	return faces, nil
}

// Chain tries detectors in order and stops at the first that finds a face.
type Chain struct {
	detectors []Detector
	logger    *zap.Logger
}

// NewChain builds a chain; detectors are tried in the given order.
func NewChain(logger *zap.Logger, detectors ...Detector) *Chain {
	return &Chain{detectors: detectors, logger: logger.Named("detector_chain")}
}

// DefaultChain is retinaface, then mtcnn, then opencv.
func DefaultChain(provider embedding.Provider, logger *zap.Logger) *Chain {
	return NewChain(logger,
		NewBackend(provider, embedding.BackendRetinaFace),
		NewBackend(provider, embedding.BackendMTCNN),
		NewBackend(provider, embedding.BackendOpenCV),
	)
}

// Detect returns the first detector that found at least one face together
// with its detections. Context cancellation stops the chain immediately.
func (c *Chain) Detect(ctx context.Context, imagePath string) (Detector, []embedding.Detection, error) {
	for _, d := range c.detectors {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		faces, err := d.Detect(ctx, imagePath)
		if err != nil {
			c.logger.Info("backend failed", zap.String("backend", d.Name()), zap.Error(err))
			continue
		}
		if len(faces) == 0 {
			continue
		}
		c.logger.Info("face detected", zap.String("backend", d.Name()), zap.Int("faces", len(faces)))
		return d, faces, nil
	}
	return nil, nil, fmt.Errorf("%w (tried %d)", ErrNoFaceDetected, len(c.detectors))
}
