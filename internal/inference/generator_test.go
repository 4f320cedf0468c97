package inference

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImageGenerator_Generate_Success(t *testing.T) {
	f, ts := newFakeEndpoint(t, fakeResponse{status: http.StatusOK, contentType: "image/png", body: testPNG(t, 16, 8)})

	gen := NewImageGenerator(NewClient(ts.URL, testToken), "")
	img, err := gen.Generate(context.Background(), "dog and cat playing football")
	require.NoError(t, err)

	assert.Equal(t, 16, img.Bounds().Dx())
	assert.Equal(t, 8, img.Bounds().Dy())
	assert.Equal(t, "Bearer "+testToken, f.lastAuth)
	assert.Equal(t, "/models/"+DefaultTextToImageModel, f.lastPath)
	assert.JSONEq(t, `{"inputs": "dog and cat playing football"}`, string(f.lastBody))
	assert.EqualValues(t, 1, f.calls.Load())
}

func TestImageGenerator_Generate_ForwardsEmptyPrompt(t *testing.T) {
	f, ts := newFakeEndpoint(t, fakeResponse{status: http.StatusOK, contentType: "image/png", body: testPNG(t, 2, 2)})

	gen := NewImageGenerator(NewClient(ts.URL, testToken), "custom/model")
	_, err := gen.Generate(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, "/models/custom/model", f.lastPath)
	assert.JSONEq(t, `{"inputs": ""}`, string(f.lastBody))
}

func TestImageGenerator_Generate_ErrorBodyNoRetry(t *testing.T) {
	f, ts := newFakeEndpoint(t, jsonResponse(http.StatusServiceUnavailable, `{"error":"Model is currently loading","estimated_time":20.5}`))

	gen := NewImageGenerator(NewClient(ts.URL, testToken), "")
	_, err := gen.Generate(context.Background(), "a cat")
	require.Error(t, err)

	var rse *RemoteServiceError
	require.True(t, errors.As(err, &rse))
	assert.Equal(t, http.StatusServiceUnavailable, rse.StatusCode)
	assert.Equal(t, "Model is currently loading", rse.Message)
	assert.EqualValues(t, 1, f.calls.Load(), "generation must not retry")
}

func TestImageGenerator_Generate_UndecodableBody(t *testing.T) {
	_, ts := newFakeEndpoint(t, fakeResponse{status: http.StatusOK, contentType: "image/jpeg", body: []byte("not an image")})

	gen := NewImageGenerator(NewClient(ts.URL, testToken), "")
	_, err := gen.Generate(context.Background(), "a cat")
	require.Error(t, err)
	assert.True(t, IsRemoteServiceError(err))
	assert.Contains(t, err.Error(), "not a decodable image")
}

func TestImageGenerator_Generate_Unreachable(t *testing.T) {
	_, ts := newFakeEndpoint(t, jsonResponse(http.StatusOK, `{}`))
	url := ts.URL
	ts.Close()

	gen := NewImageGenerator(NewClient(url, testToken), "")
	_, err := gen.Generate(context.Background(), "a cat")
	require.Error(t, err)

	var rse *RemoteServiceError
	require.True(t, errors.As(err, &rse))
	assert.Equal(t, 0, rse.StatusCode)
}

func TestRemoteServiceError_Error(t *testing.T) {
	err := &RemoteServiceError{Endpoint: "m", StatusCode: 400, Message: "bad input"}
	assert.Equal(t, "m: status 400: bad input", err.Error())

	wrapped := &RemoteServiceError{Endpoint: "m", Message: "request failed", Err: context.DeadlineExceeded}
	assert.Equal(t, "m: request failed: context deadline exceeded", wrapped.Error())
	assert.ErrorIs(t, wrapped, context.DeadlineExceeded)
}
