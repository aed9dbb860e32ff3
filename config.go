package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Server configuration, loaded once at startup. The deliberation core never
// reads these; handlers use them to assemble explicit DeliberationRequests.
var (
	// OpenRouterAPIKey is the API key for OpenRouter
	OpenRouterAPIKey string

	// CouncilParticipants is the default council queried in Stage 1
	CouncilParticipants = []string{
		"openai/gpt-5.1",
		"google/gemini-3-pro-preview",
		"anthropic/claude-sonnet-4.5",
		"x-ai/grok-4",
	}

	// ChairmanModel synthesizes the final answer in Stage 3
	ChairmanModel = "google/gemini-3-pro-preview"

	// TitleModel generates conversation titles
	TitleModel = "google/gemini-2.5-flash"

	// DefaultMode applies when a request does not name a mode
	DefaultMode = ModeFull

	// OpenRouterAPIURL is the endpoint for OpenRouter API
	OpenRouterAPIURL = "https://openrouter.ai/api/v1/chat/completions"

	// DataDir is the directory for conversation storage
	DataDir = "data/conversations"

	// Timeout defaults
	ModelQueryTimeout = DefaultPerCallTimeout
	TitleGenTimeout   = 30 * time.Second

	// DeliberationTimeout bounds a whole run across all three stages
	DeliberationTimeout = 10 * time.Minute

	// CORS allowed origins (configurable via environment)
	// In development (empty/default), allows any localhost port
	// In production, set CORS_ALLOWED_ORIGINS environment variable
	CORSAllowedOrigins = []string{}

	// MaxRequestBodySize is the maximum allowed request body size (1MB)
	MaxRequestBodySize int64 = 1 << 20

	// ResultCacheTTL is the time-to-live for cached deliberation results
	ResultCacheTTL = 5 * time.Minute
)

// CouncilFile is the YAML shape of the optional council configuration file
// named by COUNCIL_CONFIG
type CouncilFile struct {
	Participants   []string `yaml:"participants"`
	Chairman       string   `yaml:"chairman"`
	TitleModel     string   `yaml:"title_model"`
	Mode           string   `yaml:"mode"`
	PerCallTimeout string   `yaml:"per_call_timeout"`
}

// LoadConfig loads configuration from environment variables and the
// optional council YAML file
func LoadConfig() {
	// Load .env file - try multiple locations
	envLocations := []string{
		".env",    // Current directory
		"../.env", // Parent directory
	}

	envLoaded := false
	for _, envPath := range envLocations {
		absPath, err := filepath.Abs(envPath)
		if err != nil {
			continue
		}

		if _, err := os.Stat(absPath); err == nil {
			if err := godotenv.Load(absPath); err == nil {
				log.Info().Str("path", absPath).Msg("loaded .env")
				envLoaded = true
				break
			}
		}
	}

	if !envLoaded {
		log.Warn().Msg(".env file not found in any expected location")
	}

	OpenRouterAPIKey = os.Getenv("OPENROUTER_API_KEY")
	if OpenRouterAPIKey == "" {
		log.Fatal().Msg("OPENROUTER_API_KEY environment variable is required")
	}

	// Load CORS origins from environment if provided
	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		CORSAllowedOrigins = nil
		for _, origin := range strings.Split(corsOrigins, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				CORSAllowedOrigins = append(CORSAllowedOrigins, origin)
			}
		}
	}

	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		DataDir = dataDir
	}

	if path := os.Getenv("COUNCIL_CONFIG"); path != "" {
		if err := loadCouncilFile(path); err != nil {
			log.Fatal().Err(err).Str("path", path).Msg("failed to load council config")
		}
	}

	log.Info().
		Int("participants", len(CouncilParticipants)).
		Str("chairman", ChairmanModel).
		Str("default_mode", string(DefaultMode)).
		Msg("configuration loaded")
}

// loadCouncilFile applies the file's non-empty fields on top of the defaults
func loadCouncilFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read council config: %w", err)
	}

	var file CouncilFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse council config: %w", err)
	}

	if len(file.Participants) > 0 {
		CouncilParticipants = file.Participants
	}
	if file.Chairman != "" {
		ChairmanModel = file.Chairman
	}
	if file.TitleModel != "" {
		TitleModel = file.TitleModel
	}
	if file.Mode != "" {
		mode := Mode(file.Mode)
		if mode != ModeFull && mode != ModeQuick {
			return fmt.Errorf("unknown mode %q in council config", file.Mode)
		}
		DefaultMode = mode
	}
	if file.PerCallTimeout != "" {
		timeout, err := time.ParseDuration(file.PerCallTimeout)
		if err != nil {
			return fmt.Errorf("invalid per_call_timeout: %w", err)
		}
		ModelQueryTimeout = timeout
	}

	return nil
}
