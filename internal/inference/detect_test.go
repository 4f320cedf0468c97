package inference

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectDetector_Detect_PreservesOrder(t *testing.T) {
	f, ts := newFakeEndpoint(t, jsonResponse(http.StatusOK, `[
		{"score": 0.31, "label": "ball", "box": {"xmin": 5, "ymin": 6, "xmax": 7, "ymax": 8}},
		{"score": 0.998, "label": "dog", "box": {"xmin": 10, "ymin": 20, "xmax": 110, "ymax": 220}},
		{"score": 0.05, "label": "dog", "box": {"xmin": 11, "ymin": 21, "xmax": 111, "ymax": 221}}
	]`))

	det := NewObjectDetector(NewClient(ts.URL, testToken), "")
	detections, err := det.Detect(context.Background(), []byte("raw-image"))
	require.NoError(t, err)

	require.Len(t, detections, 3)
	assert.Equal(t, "ball", detections[0].Label)
	assert.Equal(t, "dog", detections[1].Label)
	assert.Equal(t, Box{XMin: 10, YMin: 20, XMax: 110, YMax: 220}, detections[1].Box)
	assert.InDelta(t, 0.05, detections[2].Score, 1e-9, "low-confidence detections are kept")

	assert.Equal(t, []byte("raw-image"), f.lastBody)
	assert.Equal(t, "/models/"+DefaultDetectionModel, f.lastPath)
	assert.Equal(t, "Bearer "+testToken, f.lastAuth)
}

func TestObjectDetector_Detect_ErrorBody(t *testing.T) {
	f, ts := newFakeEndpoint(t, jsonResponse(http.StatusServiceUnavailable, `{"error":"Model facebook/detr-resnet-50 is currently loading","estimated_time":30}`))

	det := NewObjectDetector(NewClient(ts.URL, testToken), "")
	_, err := det.Detect(context.Background(), []byte("img"))
	require.Error(t, err)

	var rse *RemoteServiceError
	require.True(t, errors.As(err, &rse))
	assert.Contains(t, rse.Message, "currently loading")
	assert.EqualValues(t, 1, f.calls.Load(), "detection must not retry")
}

func TestObjectDetector_Detect_ErrorOn200(t *testing.T) {
	_, ts := newFakeEndpoint(t, jsonResponse(http.StatusOK, `{"error":["bad image"]}`))

	det := NewObjectDetector(NewClient(ts.URL, testToken), "")
	_, err := det.Detect(context.Background(), []byte("img"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad image")
}

func TestObjectDetector_Detect_Malformed(t *testing.T) {
	_, ts := newFakeEndpoint(t, fakeResponse{status: http.StatusOK, contentType: "text/html", body: []byte("<html>oops</html>")})

	det := NewObjectDetector(NewClient(ts.URL, testToken), "")
	_, err := det.Detect(context.Background(), []byte("img"))
	require.Error(t, err)
	assert.True(t, IsRemoteServiceError(err))
	assert.Contains(t, err.Error(), "malformed detection response")
}

func TestObjectDetector_Detect_EmptyList(t *testing.T) {
	_, ts := newFakeEndpoint(t, jsonResponse(http.StatusOK, `[]`))

	det := NewObjectDetector(NewClient(ts.URL, testToken), "")
	detections, err := det.Detect(context.Background(), []byte("img"))
	require.NoError(t, err)
	assert.Empty(t, detections)
}
