package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"lumina/internal/config"
	"lumina/internal/director"
	"lumina/internal/events"
	"lumina/internal/llm"
	"lumina/internal/logging"
	"lumina/internal/media"
	"lumina/internal/server"
	"lumina/internal/session"
	"lumina/internal/storage"
	"lumina/internal/studio"
	"lumina/internal/vision"
)

func main() {
	logging.Setup()
	cfg := config.FromEnv()

	ctx := context.Background()
	store, err := storage.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("init store")
	}
	defer store.Close()

	var uploader media.Uploader
	if cfg.Media.Bucket != "" && cfg.Media.Region != "" {
		uploader, err = media.NewUploader(ctx, media.Config{
			Bucket:         cfg.Media.Bucket,
			Region:         cfg.Media.Region,
			Endpoint:       cfg.Media.Endpoint,
			PublicURL:      cfg.Media.PublicURL,
			KeyPrefix:      cfg.Media.KeyPrefix,
			ForcePathStyle: cfg.Media.ForcePathStyle,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("init media uploader")
		}
	} else {
		uploader = media.Disabled()
		log.Info().Msg("media uploader disabled, images are served inline")
	}

	// One client serves both flows; the analyzer routes its calls to the
	// analysis model via llm.WithModel.
	aiClient := llm.NewGeminiClient(cfg.AI.APIKey, cfg.AI.ChatModel, cfg.AI.RequestTimeout, nil)

	broker := events.NewBroker()
	hub := session.NewHub(session.Deps{
		Analyzer: vision.NewGeminiAnalyzer(aiClient, cfg.AI.AnalysisModel),
		Editor:   vision.NewGeminiEditor(cfg.AI.APIKey, cfg.AI.EditModel, cfg.AI.RequestTimeout),
		Director: director.New(director.NewGeminiCollaborator(aiClient)),
		Store:    store,
		Uploader: uploader,
		Broker:   broker,
		Logger:   log.Logger,
	})

	var generator vision.Generator
	if cfg.Imagen.ProjectID != "" {
		generator = vision.NewVertexImagen(vision.VertexImagenConfig{
			ProjectID:          cfg.Imagen.ProjectID,
			Location:           cfg.Imagen.Location,
			Model:              cfg.Imagen.Model,
			ServiceAccountJSON: cfg.Imagen.ServiceAccountJSON,
		})
		log.Info().Str("model", cfg.Imagen.Model).Msg("imagen generator ready")
	} else {
		log.Info().Msg("imagen generator disabled (VERTEX_PROJECT_ID missing)")
	}

	handler := studio.Handler{
		Store:     store,
		Hub:       hub,
		Broker:    broker,
		Generator: generator,
		Uploader:  uploader,
		Logger:    log.Logger,
	}

	staticFS := http.FileServer(http.Dir("web"))
	srv := server.New(cfg.Port, handler, staticFS)
	log.Info().Str("addr", srv.Addr).Msg("server ready")

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-shutdownChan
		log.Info().Msg("shutting down server")
		if err := srv.Close(); err != nil {
			log.Error().Err(err).Msg("server close")
		}
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server failed")
	}
}
