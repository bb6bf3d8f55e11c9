package config

import (
	"os"
	"path/filepath"
)

type Config struct {
	Server   ServerConfig
	Local    LocalConfig
	Gemini   GeminiConfig
	Groq     GroqConfig
	Search   SearchConfig
	Graph    GraphConfig
	Storage  StorageConfig
	Learning LearningConfig
	Answer   AnswerConfig
	Log      LogConfig
	API      APIConfig
}

type ServerConfig struct {
	Port    int
	MCPPort int
}

// LocalConfig points at an Ollama-compatible local inference server. The
// local provider is the last link of the generation chain and the only
// source of embeddings.
type LocalConfig struct {
	BaseURL    string
	ChatModel  string
	EmbedModel string
}

// GeminiConfig configures the quality cloud provider. An empty APIKey
// disables it.
type GeminiConfig struct {
	BaseURL string
	Model   string
	APIKey  string
}

// GroqConfig configures the fast cloud provider. An empty APIKey disables it.
type GroqConfig struct {
	BaseURL string
	Model   string
	APIKey  string
}

type SearchConfig struct {
	DuckDuckGoURL string
	GoogleURL     string
	GoogleAPIKey  string
	GoogleCX      string
	MinChars      int // minimum snippet text before a backend's result counts
}

// GraphConfig configures the optional Neo4j relationship store. An empty URI
// disables it.
type GraphConfig struct {
	URI      string
	User     string
	Password string
}

type StorageConfig struct {
	DataDir string
}

type LearningConfig struct {
	QuickBatch    int    // pending concepts consumed per quick cycle
	DeepenCount   int    // known concepts deepened per deep cycle
	BatchDeadline string // wall-clock budget for a batch job, Go duration
	BatchPerRound int    // max concepts processed per batch round
}

type AnswerConfig struct {
	// Threshold is the cosine-distance cutoff for a confident answer.
	// Matches at or above it are treated as unknown.
	Threshold float64
}

type LogConfig struct {
	Level string
}

type APIConfig struct {
	Token string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:    4600,
			MCPPort: 4601,
		},
		Local: LocalConfig{
			BaseURL:    "http://localhost:11434",
			ChatModel:  "llama3.2",
			EmbedModel: "nomic-embed-text",
		},
		Gemini: GeminiConfig{
			BaseURL: "https://generativelanguage.googleapis.com",
			Model:   "gemini-2.0-flash",
		},
		Groq: GroqConfig{
			BaseURL: "https://api.groq.com",
			Model:   "llama-3.1-8b-instant",
		},
		Search: SearchConfig{
			DuckDuckGoURL: "https://html.duckduckgo.com/html/",
			GoogleURL:     "https://www.googleapis.com/customsearch/v1",
			MinChars:      50,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Learning: LearningConfig{
			QuickBatch:    3,
			DeepenCount:   5,
			BatchDeadline: "10m",
			BatchPerRound: 25,
		},
		Answer: AnswerConfig{
			Threshold: 0.6,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "seedling-data"
		}
	}
	return filepath.Join(dir, "seedling")
}

// Load reads configuration from the JSON file backend at
// $XDG_CONFIG_HOME/seedling/config.json, then applies SEEDLING_* environment
// overrides. Secrets (API keys, tokens) are environment-only.
func Load() (Config, error) {
	return loadWith(newFileBackend())
}

func loadWith(b Backend) (Config, error) {
	cfg := defaults()
	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}
