package inference

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

const testToken = "test-token"

// fakeEndpoint serves one canned response per call, repeating the last one.
type fakeEndpoint struct {
	t         *testing.T
	calls     atomic.Int32
	responses []fakeResponse
	lastBody  []byte
	lastAuth  string
	lastPath  string
}

type fakeResponse struct {
	status      int
	contentType string
	body        []byte
}

func jsonResponse(status int, body string) fakeResponse {
	return fakeResponse{status: status, contentType: "application/json", body: []byte(body)}
}

func newFakeEndpoint(t *testing.T, responses ...fakeResponse) (*fakeEndpoint, *httptest.Server) {
	f := &fakeEndpoint{t: t, responses: responses}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(f.calls.Add(1))
		body, _ := io.ReadAll(r.Body)
		f.lastBody = body
		f.lastAuth = r.Header.Get("Authorization")
		f.lastPath = r.URL.Path

		resp := f.responses[len(f.responses)-1]
		if n <= len(f.responses) {
			resp = f.responses[n-1]
		}
		if resp.contentType != "" {
			w.Header().Set("Content-Type", resp.contentType)
		}
		w.WriteHeader(resp.status)
		w.Write(resp.body)
	}))
	t.Cleanup(ts.Close)
	return f, ts
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: 10, G: 20, B: 30, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}
