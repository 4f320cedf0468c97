package inference

import (
	"bytes"
	"context"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/rs/zerolog/log"
)

// DefaultTextToImageModel is the hosted text-to-image model.
const DefaultTextToImageModel = "stabilityai/stable-diffusion-xl-base-1.0"

// ImageGenerator turns a text prompt into an image using a hosted text-to-image model.
type ImageGenerator struct {
	client *Client
	model  string
}

// NewImageGenerator creates a generator for model. An empty model selects the default.
func NewImageGenerator(client *Client, model string) *ImageGenerator {
	if model == "" {
		model = DefaultTextToImageModel
	}
	return &ImageGenerator{client: client, model: model}
}

type textToImageRequest struct {
	Inputs string `json:"inputs"`
}

// Generate sends prompt to the model and decodes the returned image. The prompt is
// forwarded as-is. There is no retry: any failure is returned as a *RemoteServiceError.
func (g *ImageGenerator) Generate(ctx context.Context, prompt string) (image.Image, error) {
	log.Info().Str("model", g.model).Str("prompt", prompt).Msg("generating image")

	res, err := g.client.post(ctx, g.model, textToImageRequest{Inputs: prompt}, "application/json")
	if err != nil {
		return nil, err
	}
	if err := checkResponse(g.model, res); err != nil {
		return nil, err
	}

	img, format, err := image.Decode(bytes.NewReader(res.Body()))
	if err != nil {
		return nil, &RemoteServiceError{
			Endpoint:   g.model,
			StatusCode: res.StatusCode(),
			Message:    "response is not a decodable image",
			Err:        err,
		}
	}

	b := img.Bounds()
	log.Info().Str("format", format).Int("width", b.Dx()).Int("height", b.Dy()).Msg("image generated")
	return img, nil
}
