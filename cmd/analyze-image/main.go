package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/raine/image-analysis-app/config"
	"github.com/raine/image-analysis-app/internal/inference"
	"github.com/raine/image-analysis-app/internal/render"
	"github.com/raine/image-analysis-app/internal/storage"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <image-path> [caption|detect|both]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nEnvironment variables:\n")
		fmt.Fprintf(os.Stderr, "  HF_TOKEN - Required\n")
		fmt.Fprintf(os.Stderr, "  CAPTION_BACKEND - huggingface (default) or gemini\n")
		os.Exit(1)
	}

	imagePath := os.Args[1]
	mode := "both"
	if len(os.Args) >= 3 {
		mode = os.Args[2]
	}

	config.LoadEnvFile()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}
	if missing := cfg.CheckRequired(); len(missing) > 0 {
		fmt.Fprintf(os.Stderr, "Missing config: %s\n", strings.Join(missing, ", "))
		os.Exit(1)
	}

	imageData, err := storage.ReadImage(imagePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read image: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	client := inference.NewClient(cfg.HFBaseURL, cfg.HFToken).WithTimeout(cfg.HTTPTimeout)

	switch mode {
	case "caption":
		runCaption(ctx, cfg, client, imageData)
	case "detect":
		runDetect(ctx, cfg, client, imagePath, imageData)
	case "both":
		runCaption(ctx, cfg, client, imageData)
		fmt.Println("\n" + strings.Repeat("-", 50) + "\n")
		runDetect(ctx, cfg, client, imagePath, imageData)
	default:
		fmt.Fprintf(os.Stderr, "Unknown mode: %s (use caption, detect, or both)\n", mode)
		os.Exit(1)
	}
}

func runCaption(ctx context.Context, cfg *config.Config, client *inference.Client, imageData []byte) {
	fmt.Println("=== CAPTION ===")

	var source inference.CaptionSource = inference.NewHuggingFaceCaptioner(client, cfg.CaptionModel)
	if cfg.CaptionBackend == config.CaptionBackendGemini {
		gemini, err := inference.NewGeminiCaptioner(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			fmt.Printf("Error creating Gemini captioner: %v\n", err)
			return
		}
		source = gemini
	}

	caption := inference.NewCaptionFetcher(source).
		WithAttempts(cfg.CaptionAttempts).
		WithRetryDelay(cfg.CaptionRetryDelay).
		Caption(ctx, imageData)

	fmt.Printf("Caption: %s\n", caption)
}

func runDetect(ctx context.Context, cfg *config.Config, client *inference.Client, imagePath string, imageData []byte) {
	fmt.Println("=== DETECT ===")

	detections, err := inference.NewObjectDetector(client, cfg.DetectionModel).Detect(ctx, imageData)
	if err != nil {
		fmt.Printf("Error detecting objects: %v\n", err)
		return
	}

	for i, d := range detections {
		fmt.Printf("%-8s %-24s (%.0f, %.0f) - (%.0f, %.0f)\n",
			render.ColorFor(i).Name, render.LabelText(d), d.Box.XMin, d.Box.YMin, d.Box.XMax, d.Box.YMax)
	}

	img, err := storage.DecodeImage(imageData)
	if err != nil {
		fmt.Printf("Error decoding image: %v\n", err)
		return
	}

	outPath := annotatedPath(imagePath)
	out, err := os.Create(outPath)
	if err != nil {
		fmt.Printf("Error creating %s: %v\n", outPath, err)
		return
	}
	defer out.Close()

	if err := render.NewRenderer().Render(img, detections).EncodePNG(out); err != nil {
		fmt.Printf("Error writing %s: %v\n", outPath, err)
		return
	}
	fmt.Printf("\nAnnotated image: %s\n", outPath)
}

func annotatedPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_detections.png"
}
