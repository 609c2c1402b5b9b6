package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds runtime configuration values.
type Config struct {
	Port        string
	DatabaseURL string
	AI          AIConfig
	Imagen      ImagenConfig
	Media       MediaConfig
}

// AIConfig describes the Gemini models backing analysis, chat and edits.
type AIConfig struct {
	APIKey         string
	ChatModel      string
	AnalysisModel  string
	EditModel      string
	RequestTimeout time.Duration
}

// ImagenConfig describes the Vertex AI Imagen setup for text-to-image mode.
type ImagenConfig struct {
	ProjectID          string
	Location           string
	Model              string
	ServiceAccountJSON string
}

// MediaConfig describes S3/media related configuration.
type MediaConfig struct {
	Bucket         string
	Region         string
	Endpoint       string
	PublicURL      string
	KeyPrefix      string
	ForcePathStyle bool
}

// FromEnv loads configuration from environment variables and applies defaults.
func FromEnv() Config {
	return Config{
		Port:        getenv("APP_PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		AI: AIConfig{
			APIKey:         os.Getenv("GEMINI_API_KEY"),
			ChatModel:      getenv("GEMINI_CHAT_MODEL", "gemini-2.5-flash"),
			AnalysisModel:  getenv("GEMINI_ANALYSIS_MODEL", "gemini-2.5-flash"),
			EditModel:      getenv("GEMINI_EDIT_MODEL", "gemini-2.5-flash-image"),
			RequestTimeout: getenvDuration("AI_REQUEST_TIMEOUT", 90*time.Second),
		},
		Imagen: ImagenConfig{
			ProjectID:          os.Getenv("VERTEX_PROJECT_ID"),
			Location:           getenv("VERTEX_LOCATION", "us-central1"),
			Model:              getenv("IMAGEN_MODEL", "imagen-4.0-generate-001"),
			ServiceAccountJSON: os.Getenv("VERTEX_SERVICE_ACCOUNT_JSON"),
		},
		Media: MediaConfig{
			Bucket:         os.Getenv("S3_BUCKET"),
			Region:         os.Getenv("S3_REGION"),
			Endpoint:       os.Getenv("S3_ENDPOINT"),
			PublicURL:      os.Getenv("S3_PUBLIC_URL"),
			KeyPrefix:      strings.Trim(os.Getenv("S3_KEY_PREFIX"), "/"),
			ForcePathStyle: getenvBool("S3_FORCE_PATH_STYLE", false),
		},
	}
}

func getenv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return fallback
}

func getenvBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}

	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}

	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}

	parsed, err := time.ParseDuration(val)
	if err != nil || parsed <= 0 {
		return fallback
	}

	return parsed
}
