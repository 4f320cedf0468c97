package pipeline

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/raine/image-analysis-app/internal/inference"
	"github.com/raine/image-analysis-app/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type generatorMock struct {
	mock.Mock
}

func (m *generatorMock) Generate(ctx context.Context, prompt string) (image.Image, error) {
	args := m.Called(ctx, prompt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(image.Image), args.Error(1)
}

type captionerMock struct {
	mock.Mock
}

func (m *captionerMock) Caption(ctx context.Context, data []byte) string {
	args := m.Called(ctx, data)
	return args.String(0)
}

type detectorMock struct {
	mock.Mock
}

func (m *detectorMock) Detect(ctx context.Context, data []byte) ([]inference.Detection, error) {
	args := m.Called(ctx, data)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]inference.Detection), args.Error(1)
}

type fixture struct {
	gen      *generatorMock
	cap      *captionerMock
	det      *detectorMock
	path     string
	pipeline *Pipeline
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		gen:  new(generatorMock),
		cap:  new(captionerMock),
		det:  new(detectorMock),
		path: filepath.Join(t.TempDir(), "generated_image.jpg"),
	}
	f.pipeline = New(f.gen, f.cap, f.det, storage.NewImageFile(f.path), nil)
	return f
}

func testImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: 40, G: 80, B: 120, A: 255})
		}
	}
	return img
}

func TestPipeline_Generate_PersistsAndSetsSession(t *testing.T) {
	f := newFixture(t)
	f.gen.On("Generate", mock.Anything, "dog and cat playing football").Return(testImage(64, 48), nil)

	_, ok := f.pipeline.Session().Current()
	assert.False(t, ok)

	result, err := f.pipeline.Generate(context.Background(), "dog and cat playing football")
	require.NoError(t, err)
	assert.Equal(t, f.path, result.Path)
	assert.Equal(t, 64, result.Image.Bounds().Dx())

	current, ok := f.pipeline.Session().Current()
	require.True(t, ok)
	assert.Equal(t, f.path, current.Path)
	assert.Equal(t, "dog and cat playing football", current.Prompt)

	data, err := os.ReadFile(f.path)
	require.NoError(t, err)
	decoded, err := storage.DecodeImage(data)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 64, 48), decoded.Bounds())
	f.gen.AssertExpectations(t)
}

func TestPipeline_Generate_ResultDataIsASnapshot(t *testing.T) {
	f := newFixture(t)
	f.gen.On("Generate", mock.Anything, "small").Return(testImage(8, 8), nil).Once()
	f.gen.On("Generate", mock.Anything, "large").Return(testImage(32, 32), nil).Once()

	first, err := f.pipeline.Generate(context.Background(), "small")
	require.NoError(t, err)
	persisted, err := os.ReadFile(f.path)
	require.NoError(t, err)
	assert.Equal(t, persisted, first.Data)

	_, err = f.pipeline.Generate(context.Background(), "large")
	require.NoError(t, err)

	decoded, err := storage.DecodeImage(first.Data)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 8, 8), decoded.Bounds())
}

func TestPipeline_Generate_RemoteErrorKeepsPreviousImage(t *testing.T) {
	f := newFixture(t)
	f.gen.On("Generate", mock.Anything, "first").Return(testImage(8, 8), nil).Once()
	remoteErr := &inference.RemoteServiceError{Endpoint: "m", StatusCode: 500, Message: "boom"}
	f.gen.On("Generate", mock.Anything, "second").Return(nil, remoteErr).Once()

	_, err := f.pipeline.Generate(context.Background(), "first")
	require.NoError(t, err)

	_, err = f.pipeline.Generate(context.Background(), "second")
	require.Error(t, err)
	assert.True(t, inference.IsRemoteServiceError(err))

	current, ok := f.pipeline.Session().Current()
	require.True(t, ok)
	assert.Equal(t, "first", current.Prompt)
}

func TestPipeline_CaptionWithoutImage(t *testing.T) {
	f := newFixture(t)

	_, err := f.pipeline.Caption(context.Background())
	assert.ErrorIs(t, err, ErrNoImage)
	f.cap.AssertNotCalled(t, "Caption", mock.Anything, mock.Anything)
}

func TestPipeline_DetectWithoutImage(t *testing.T) {
	f := newFixture(t)

	_, err := f.pipeline.Detect(context.Background())
	assert.ErrorIs(t, err, ErrNoImage)
	f.det.AssertNotCalled(t, "Detect", mock.Anything, mock.Anything)
}

func TestPipeline_Caption_SendsPersistedBytes(t *testing.T) {
	f := newFixture(t)
	f.gen.On("Generate", mock.Anything, "a cat").Return(testImage(16, 16), nil)

	_, err := f.pipeline.Generate(context.Background(), "a cat")
	require.NoError(t, err)

	persisted, err := os.ReadFile(f.path)
	require.NoError(t, err)
	f.cap.On("Caption", mock.Anything, persisted).Return("a cat sitting on a couch")

	caption, err := f.pipeline.Caption(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a cat sitting on a couch", caption)
	f.cap.AssertExpectations(t)
}

func TestPipeline_Caption_SentinelIsNotAnError(t *testing.T) {
	f := newFixture(t)
	f.gen.On("Generate", mock.Anything, mock.Anything).Return(testImage(4, 4), nil)
	f.cap.On("Caption", mock.Anything, mock.Anything).Return(inference.CaptionUnavailable)

	_, err := f.pipeline.Generate(context.Background(), "x")
	require.NoError(t, err)

	caption, err := f.pipeline.Caption(context.Background())
	require.NoError(t, err)
	assert.Equal(t, inference.CaptionUnavailable, caption)
}

func TestPipeline_Detect_RendersDetections(t *testing.T) {
	f := newFixture(t)
	f.gen.On("Generate", mock.Anything, mock.Anything).Return(testImage(100, 100), nil)
	detections := []inference.Detection{
		{Box: inference.Box{XMin: 0, YMin: 0, XMax: 10, YMax: 10}, Label: "dog", Score: 0.9},
		{Box: inference.Box{XMin: 0, YMin: 0, XMax: 10, YMax: 10}, Label: "cat", Score: 0.8},
	}
	f.det.On("Detect", mock.Anything, mock.Anything).Return(detections, nil)

	_, err := f.pipeline.Generate(context.Background(), "x")
	require.NoError(t, err)

	result, err := f.pipeline.Detect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, detections, result.Detections)
	require.Len(t, result.Canvas.Annotations, 2)
	assert.Equal(t, "red", result.Canvas.Annotations[0].Color.Name)
	assert.Equal(t, "green", result.Canvas.Annotations[1].Color.Name)
	assert.Equal(t, "dog: 0.90", result.Canvas.Annotations[0].Label)
	assert.Equal(t, "cat: 0.80", result.Canvas.Annotations[1].Label)
	assert.Equal(t, image.Rect(0, 0, 100, 100), result.Canvas.Image().Bounds())
}

func TestPipeline_Detect_PropagatesRemoteError(t *testing.T) {
	f := newFixture(t)
	f.gen.On("Generate", mock.Anything, mock.Anything).Return(testImage(4, 4), nil)
	f.det.On("Detect", mock.Anything, mock.Anything).
		Return(nil, &inference.RemoteServiceError{Endpoint: "detr", Message: "malformed detection response"})

	_, err := f.pipeline.Generate(context.Background(), "x")
	require.NoError(t, err)

	_, err = f.pipeline.Detect(context.Background())
	require.Error(t, err)
	assert.True(t, inference.IsRemoteServiceError(err))
	assert.False(t, errors.Is(err, ErrNoImage))
}

func TestPipeline_CaptionFailsWhenFileRemoved(t *testing.T) {
	f := newFixture(t)
	f.gen.On("Generate", mock.Anything, mock.Anything).Return(testImage(4, 4), nil)

	_, err := f.pipeline.Generate(context.Background(), "x")
	require.NoError(t, err)
	require.NoError(t, os.Remove(f.path))

	_, err = f.pipeline.Caption(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoImage)
	f.cap.AssertNotCalled(t, "Caption", mock.Anything, mock.Anything)
}
