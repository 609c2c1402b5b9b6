package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"lumina/internal/config"
	"lumina/internal/logging"
	"lumina/internal/vision"
)

// One-shot text-to-image render against Vertex Imagen. Useful for smoke
// checking credentials and prompt phrasing without the full API.
func main() {
	var (
		prompt  = flag.String("prompt", "", "Text prompt to render")
		outPath = flag.String("out", "render.png", "Output file path")
		timeout = flag.Duration("timeout", 2*time.Minute, "Render timeout")
	)
	flag.Parse()

	logging.Setup()
	cfg := config.FromEnv()

	if strings.TrimSpace(*prompt) == "" {
		log.Fatal().Msg("prompt is required (use -prompt)")
	}
	if cfg.Imagen.ProjectID == "" {
		log.Fatal().Msg("VERTEX_PROJECT_ID is required")
	}

	generator := vision.NewVertexImagen(vision.VertexImagenConfig{
		ProjectID:          cfg.Imagen.ProjectID,
		Location:           cfg.Imagen.Location,
		Model:              cfg.Imagen.Model,
		ServiceAccountJSON: cfg.Imagen.ServiceAccountJSON,
	})

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	image, mimeType, err := generator.Generate(ctx, *prompt)
	if err != nil {
		log.Fatal().Err(err).Msg("generate image")
	}

	path := *outPath
	if ext := extensionFor(mimeType); filepath.Ext(path) == "" {
		path += ext
	}
	if err := os.WriteFile(path, image, 0o644); err != nil {
		log.Fatal().Err(err).Msg("write output")
	}

	fmt.Printf("Rendered %d bytes (%s) to %s\n", len(image), mimeType, path)
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}
