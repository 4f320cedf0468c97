// Package pipeline chains image generation, captioning, and object detection around a
// single persisted image.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/raine/image-analysis-app/internal/inference"
	"github.com/raine/image-analysis-app/internal/render"
	"github.com/raine/image-analysis-app/internal/storage"
	"github.com/rs/zerolog/log"
)

// ErrNoImage is returned by Caption and Detect when no image has been generated yet.
// It is user-correctable and should be shown as a warning.
var ErrNoImage = errors.New("no image has been generated yet")

// Generator creates an image from a text prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (image.Image, error)
}

// Captioner describes an image. It always returns displayable text.
type Captioner interface {
	Caption(ctx context.Context, imageData []byte) string
}

// Detector finds objects in an image.
type Detector interface {
	Detect(ctx context.Context, imageData []byte) ([]inference.Detection, error)
}

// ImageStore persists a generated image and returns where it was written.
type ImageStore interface {
	Save(img image.Image) (string, error)
}

// GenerateResult is the output of a generation step. Data is the file content as
// persisted by this step, unaffected by later generations.
type GenerateResult struct {
	Image image.Image
	Path  string
	Data  []byte
}

// DetectResult is the output of a detection step.
type DetectResult struct {
	Detections []inference.Detection
	Canvas     *render.Canvas
}

// Pipeline runs the three steps one at a time. Steps invoked concurrently (for example
// from the web UI and the bot) wait for each other.
type Pipeline struct {
	mu        sync.Mutex
	generator Generator
	captioner Captioner
	detector  Detector
	store     ImageStore
	renderer  *render.Renderer
	session   *Session
}

// New creates a pipeline. A nil session starts a fresh one.
func New(generator Generator, captioner Captioner, detector Detector, store ImageStore, session *Session) *Pipeline {
	if session == nil {
		session = NewSession()
	}
	return &Pipeline{
		generator: generator,
		captioner: captioner,
		detector:  detector,
		store:     store,
		renderer:  render.NewRenderer(),
		session:   session,
	}
}

// Session returns the session holding the last generated image.
func (p *Pipeline) Session() *Session {
	return p.session
}

// Generate creates an image for prompt, persists it, and makes it the session's current
// image. Remote failures are returned unchanged (wrapped) and leave the session as it was.
func (p *Pipeline) Generate(ctx context.Context, prompt string) (*GenerateResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	img, err := p.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to generate image: %w", err)
	}

	path, err := p.store.Save(img)
	if err != nil {
		return nil, fmt.Errorf("failed to save generated image: %w", err)
	}

	data, err := storage.ReadImage(path)
	if err != nil {
		return nil, err
	}

	p.session.set(GeneratedImage{Path: path, Prompt: prompt, GeneratedAt: time.Now()})
	return &GenerateResult{Image: img, Path: path, Data: data}, nil
}

// Caption describes the current image. It returns ErrNoImage without any network call
// when nothing has been generated yet.
func (p *Pipeline) Caption(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	data, err := p.currentImageData()
	if err != nil {
		return "", err
	}

	return p.captioner.Caption(ctx, data), nil
}

// Detect finds objects in the current image and draws them over it. It returns
// ErrNoImage without any network call when nothing has been generated yet.
func (p *Pipeline) Detect(ctx context.Context) (*DetectResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	data, err := p.currentImageData()
	if err != nil {
		return nil, err
	}

	detections, err := p.detector.Detect(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("failed to detect objects: %w", err)
	}

	img, err := storage.DecodeImage(data)
	if err != nil {
		return nil, err
	}

	return &DetectResult{
		Detections: detections,
		Canvas:     p.renderer.Render(img, detections),
	}, nil
}

func (p *Pipeline) currentImageData() ([]byte, error) {
	current, ok := p.session.Current()
	if !ok {
		log.Warn().Msg("image analysis requested before any image was generated")
		return nil, ErrNoImage
	}
	return storage.ReadImage(current.Path)
}
