package web

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/raine/image-analysis-app/internal/inference"
	"github.com/raine/image-analysis-app/internal/pipeline"
	"github.com/raine/image-analysis-app/internal/storage"
	"github.com/rs/zerolog/log"
)

const noImageWarning = "Please generate an image first!"

// Index renders the empty page.
func (s *Server) Index(c echo.Context) error {
	return s.page(c, http.StatusOK, pageData{Prompt: DefaultPrompt})
}

// Generate creates an image from the submitted prompt.
func (s *Server) Generate(c echo.Context) error {
	prompt := c.FormValue("prompt")
	data := pageData{Prompt: prompt}

	result, err := s.steps.Generate(c.Request().Context(), prompt)
	if err != nil {
		log.Error().Err(err).Str("prompt", prompt).Msg("image generation failed")
		data.Notice = &notice{Section: sectionGenerate, Kind: "error", Text: "Image generation failed: " + err.Error()}
		return s.page(c, statusFor(err), data)
	}

	data.ImageURL = fmt.Sprintf("/image?v=%d", time.Now().UnixNano())
	log.Info().Str("path", result.Path).Msg("image ready")
	return s.page(c, http.StatusOK, data)
}

// Caption describes the last generated image.
func (s *Server) Caption(c echo.Context) error {
	data := pageData{Prompt: promptOrDefault(c)}

	caption, err := s.steps.Caption(c.Request().Context())
	if errors.Is(err, pipeline.ErrNoImage) {
		data.Notice = &notice{Section: sectionCaption, Kind: "warning", Text: noImageWarning}
		return s.page(c, http.StatusOK, data)
	}
	if err != nil {
		log.Error().Err(err).Msg("caption failed")
		data.Notice = &notice{Section: sectionCaption, Kind: "error", Text: "Caption failed: " + err.Error()}
		return s.page(c, statusFor(err), data)
	}

	data.Caption = caption
	return s.page(c, http.StatusOK, data)
}

// Detect finds objects in the last generated image and shows them drawn over it.
func (s *Server) Detect(c echo.Context) error {
	data := pageData{Prompt: promptOrDefault(c)}

	result, err := s.steps.Detect(c.Request().Context())
	if errors.Is(err, pipeline.ErrNoImage) {
		data.Notice = &notice{Section: sectionDetect, Kind: "warning", Text: noImageWarning}
		return s.page(c, http.StatusOK, data)
	}
	if err != nil {
		log.Error().Err(err).Msg("object detection failed")
		data.Notice = &notice{Section: sectionDetect, Kind: "error", Text: "Object detection failed: " + err.Error()}
		return s.page(c, statusFor(err), data)
	}

	var buf bytes.Buffer
	if err := result.Canvas.EncodePNG(&buf); err != nil {
		return fmt.Errorf("failed to encode canvas: %w", err)
	}
	data.AnnotatedPNG = template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()))
	data.Detections = result.Detections
	return s.page(c, http.StatusOK, data)
}

// Image serves the persisted generated image.
func (s *Server) Image(c echo.Context) error {
	current, ok := s.steps.Session().Current()
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no image generated yet")
	}
	data, err := storage.ReadImage(current.Path)
	if err != nil {
		return err
	}
	c.Response().Header().Set("Cache-Control", "no-store")
	return c.Blob(http.StatusOK, http.DetectContentType(data), data)
}

// Health reports liveness.
func (s *Server) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) page(c echo.Context, status int, data pageData) error {
	html, err := renderPage(data)
	if err != nil {
		return fmt.Errorf("failed to render page: %w", err)
	}
	return c.HTMLBlob(status, html)
}

func promptOrDefault(c echo.Context) string {
	if p := c.FormValue("prompt"); p != "" {
		return p
	}
	return DefaultPrompt
}

func statusFor(err error) int {
	if inference.IsRemoteServiceError(err) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
