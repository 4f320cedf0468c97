package inference

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"
)

// DefaultDetectionModel is the hosted object detection model.
const DefaultDetectionModel = "facebook/detr-resnet-50"

// Box is a bounding box in pixel coordinates.
type Box struct {
	XMin float64 `json:"xmin"`
	YMin float64 `json:"ymin"`
	XMax float64 `json:"xmax"`
	YMax float64 `json:"ymax"`
}

// Detection is one labeled bounding box with a confidence score in [0,1].
type Detection struct {
	Box   Box     `json:"box"`
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// ObjectDetector finds objects in an image using a hosted detection model.
type ObjectDetector struct {
	client *Client
	model  string
}

// NewObjectDetector creates a detector for model. An empty model selects the default.
func NewObjectDetector(client *Client, model string) *ObjectDetector {
	if model == "" {
		model = DefaultDetectionModel
	}
	return &ObjectDetector{client: client, model: model}
}

// Detect sends the raw image bytes in a single attempt and returns the detections in the
// order the service sent them. No score threshold or deduplication is applied.
func (d *ObjectDetector) Detect(ctx context.Context, imageData []byte) ([]Detection, error) {
	res, err := d.client.post(ctx, d.model, imageData, "application/octet-stream")
	if err != nil {
		return nil, err
	}
	if err := checkResponse(d.model, res); err != nil {
		return nil, err
	}

	var detections []Detection
	if err := json.Unmarshal(res.Body(), &detections); err != nil {
		return nil, &RemoteServiceError{
			Endpoint:   d.model,
			StatusCode: res.StatusCode(),
			Message:    "malformed detection response",
			Err:        err,
		}
	}

	log.Info().Str("model", d.model).Int("count", len(detections)).Msg("objects detected")
	return detections, nil
}
