// Package render draws object detection results over an image.
package render

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"

	"github.com/fogleman/gg"
	"github.com/raine/image-analysis-app/internal/inference"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
)

const (
	lineWidth   = 2
	labelOffset = 5 // label baseline distance above the box top
	labelPad    = 2
	labelAlpha  = 0.8
)

// NamedColor is a palette entry.
type NamedColor struct {
	Name  string
	Color color.RGBA
}

// Palette is cycled by detection index. Values match matplotlib's single-letter base
// colors r, g, b, y, c, m.
var Palette = []NamedColor{
	{Name: "red", Color: color.RGBA{R: 255, A: 255}},
	{Name: "green", Color: color.RGBA{G: 128, A: 255}},
	{Name: "blue", Color: color.RGBA{B: 255, A: 255}},
	{Name: "yellow", Color: color.RGBA{R: 191, G: 191, A: 255}},
	{Name: "cyan", Color: color.RGBA{G: 191, B: 191, A: 255}},
	{Name: "magenta", Color: color.RGBA{R: 191, B: 191, A: 255}},
}

// ColorFor returns the palette color for the detection at index i.
func ColorFor(i int) NamedColor {
	return Palette[i%len(Palette)]
}

// LabelText formats a detection label as "{label}: {score:.2f}".
func LabelText(d inference.Detection) string {
	return fmt.Sprintf("%s: %.2f", d.Label, d.Score)
}

// Annotation records one box and label drawn on a canvas.
type Annotation struct {
	X, Y, Width, Height float64
	Color               NamedColor
	Label               string
	LabelX, LabelY      float64 // text baseline origin
}

// Canvas is an image with detection annotations drawn on it.
type Canvas struct {
	img         image.Image
	Annotations []Annotation
}

// Image returns the rasterized canvas.
func (c *Canvas) Image() image.Image {
	return c.img
}

// EncodePNG writes the canvas as a PNG.
func (c *Canvas) EncodePNG(w io.Writer) error {
	return png.Encode(w, c.img)
}

// Renderer draws detections. The zero value is not usable; call NewRenderer.
type Renderer struct {
	face font.Face
}

// NewRenderer creates a renderer using a fixed bitmap font.
func NewRenderer() *Renderer {
	return &Renderer{face: basicfont.Face7x13}
}

// Render draws an unfilled rectangle and a label for every detection on a copy of img.
// Coordinates are used as given; anything outside the image is clipped by the canvas.
// Boxes are drawn first and labels on top of them.
func (r *Renderer) Render(img image.Image, detections []inference.Detection) *Canvas {
	dc := gg.NewContextForImage(img)
	dc.SetFontFace(r.face)
	dc.SetLineWidth(lineWidth)

	annotations := make([]Annotation, len(detections))
	for i, d := range detections {
		a := Annotation{
			X:      d.Box.XMin,
			Y:      d.Box.YMin,
			Width:  d.Box.XMax - d.Box.XMin,
			Height: d.Box.YMax - d.Box.YMin,
			Color:  ColorFor(i),
			Label:  LabelText(d),
			LabelX: d.Box.XMin,
			LabelY: d.Box.YMin - labelOffset,
		}
		annotations[i] = a

		dc.SetColor(a.Color.Color)
		dc.DrawRectangle(a.X, a.Y, a.Width, a.Height)
		dc.Stroke()
	}

	for _, a := range annotations {
		w, h := dc.MeasureString(a.Label)
		dc.SetRGBA(1, 1, 1, labelAlpha)
		dc.DrawRectangle(a.LabelX-labelPad, a.LabelY-h-labelPad, w+2*labelPad, h+2*labelPad)
		dc.Fill()

		dc.SetColor(a.Color.Color)
		dc.DrawString(a.Label, a.LabelX, a.LabelY)
	}

	return &Canvas{img: dc.Image(), Annotations: annotations}
}
