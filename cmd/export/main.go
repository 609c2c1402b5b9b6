package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/rs/zerolog/log"

	"lumina/internal/config"
	"lumina/internal/export"
	"lumina/internal/logging"
	"lumina/internal/storage"
)

// Exports finished project conversations as a JSONL dataset for reviewing
// and tuning the designer's phrasing.
func main() {
	var (
		outputPath = flag.String("out", "dataset.jsonl", "Where to write the JSONL dataset")
		minResults = flag.Int("min-results", 1, "Minimum number of rendered designs per project")
		minTurns   = flag.Int("min-turns", 2, "Minimum number of conversational turns per project")
	)
	flag.Parse()

	logging.Setup()
	cfg := config.FromEnv()
	if cfg.DatabaseURL == "" {
		log.Fatal().Msg("DATABASE_URL is required to export projects")
	}

	ctx := context.Background()
	store, err := storage.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("connect store")
	}
	defer store.Close()

	projects, err := store.ListProjects(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("list projects")
	}

	examples := export.BuildExamples(projects, export.Options{
		MinResults: *minResults,
		MinTurns:   *minTurns,
	})
	if err := export.WriteJSONL(*outputPath, examples); err != nil {
		log.Fatal().Err(err).Msg("write dataset")
	}

	fmt.Printf("Wrote %d examples from %d projects to %s\n", len(examples), len(projects), *outputPath)
}
