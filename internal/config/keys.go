package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kFloat
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "SEEDLING_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.mcp_port", typ: kInt, env: "SEEDLING_SERVER_MCP_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.MCPPort = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.MCPPort },
	},
	{
		key: "local.base_url", typ: kString, env: "SEEDLING_LOCAL_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Local.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Local.BaseURL },
	},
	{
		key: "local.chat_model", typ: kString, env: "SEEDLING_LOCAL_CHAT_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Local.ChatModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Local.ChatModel },
	},
	{
		key: "local.embed_model", typ: kString, env: "SEEDLING_LOCAL_EMBED_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Local.EmbedModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Local.EmbedModel },
	},
	{
		key: "gemini.base_url", typ: kString, env: "SEEDLING_GEMINI_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Gemini.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.BaseURL },
	},
	{
		key: "gemini.model", typ: kString, env: "SEEDLING_GEMINI_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Gemini.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.Model },
	},
	{
		key: "gemini.api_key", typ: kString, env: "SEEDLING_GEMINI_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Gemini.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.APIKey },
	},
	{
		key: "groq.base_url", typ: kString, env: "SEEDLING_GROQ_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Groq.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Groq.BaseURL },
	},
	{
		key: "groq.model", typ: kString, env: "SEEDLING_GROQ_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Groq.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Groq.Model },
	},
	{
		key: "groq.api_key", typ: kString, env: "SEEDLING_GROQ_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Groq.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Groq.APIKey },
	},
	{
		key: "search.duckduckgo_url", typ: kString, env: "SEEDLING_SEARCH_DUCKDUCKGO_URL",
		apply:   func(cfg *Config, v any) { cfg.Search.DuckDuckGoURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Search.DuckDuckGoURL },
	},
	{
		key: "search.google_url", typ: kString, env: "SEEDLING_SEARCH_GOOGLE_URL",
		apply:   func(cfg *Config, v any) { cfg.Search.GoogleURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Search.GoogleURL },
	},
	{
		key: "search.google_api_key", typ: kString, env: "SEEDLING_SEARCH_GOOGLE_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Search.GoogleAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Search.GoogleAPIKey },
	},
	{
		key: "search.google_cx", typ: kString, env: "SEEDLING_SEARCH_GOOGLE_CX",
		apply:   func(cfg *Config, v any) { cfg.Search.GoogleCX = v.(string) },
		extract: func(cfg Config) any { return cfg.Search.GoogleCX },
	},
	{
		key: "search.min_chars", typ: kInt, env: "SEEDLING_SEARCH_MIN_CHARS",
		apply:   func(cfg *Config, v any) { cfg.Search.MinChars = v.(int) },
		extract: func(cfg Config) any { return cfg.Search.MinChars },
	},
	{
		key: "graph.uri", typ: kString, env: "SEEDLING_GRAPH_URI",
		apply:   func(cfg *Config, v any) { cfg.Graph.URI = v.(string) },
		extract: func(cfg Config) any { return cfg.Graph.URI },
	},
	{
		key: "graph.user", typ: kString, env: "SEEDLING_GRAPH_USER",
		apply:   func(cfg *Config, v any) { cfg.Graph.User = v.(string) },
		extract: func(cfg Config) any { return cfg.Graph.User },
	},
	{
		key: "graph.password", typ: kString, env: "SEEDLING_GRAPH_PASSWORD",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Graph.Password = v.(string) },
		extract: func(cfg Config) any { return cfg.Graph.Password },
	},
	{
		key: "storage.data_dir", typ: kString, env: "SEEDLING_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "learning.quick_batch", typ: kInt, env: "SEEDLING_LEARNING_QUICK_BATCH",
		apply:   func(cfg *Config, v any) { cfg.Learning.QuickBatch = v.(int) },
		extract: func(cfg Config) any { return cfg.Learning.QuickBatch },
	},
	{
		key: "learning.deepen_count", typ: kInt, env: "SEEDLING_LEARNING_DEEPEN_COUNT",
		apply:   func(cfg *Config, v any) { cfg.Learning.DeepenCount = v.(int) },
		extract: func(cfg Config) any { return cfg.Learning.DeepenCount },
	},
	{
		key: "learning.batch_deadline", typ: kString, env: "SEEDLING_LEARNING_BATCH_DEADLINE",
		apply:   func(cfg *Config, v any) { cfg.Learning.BatchDeadline = v.(string) },
		extract: func(cfg Config) any { return cfg.Learning.BatchDeadline },
	},
	{
		key: "learning.batch_per_round", typ: kInt, env: "SEEDLING_LEARNING_BATCH_PER_ROUND",
		apply:   func(cfg *Config, v any) { cfg.Learning.BatchPerRound = v.(int) },
		extract: func(cfg Config) any { return cfg.Learning.BatchPerRound },
	},
	{
		key: "answer.threshold", typ: kFloat, env: "SEEDLING_ANSWER_THRESHOLD",
		apply:   func(cfg *Config, v any) { cfg.Answer.Threshold = v.(float64) },
		extract: func(cfg Config) any { return cfg.Answer.Threshold },
	},
	{
		key: "log.level", typ: kString, env: "SEEDLING_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "api.token", typ: kString, env: "SEEDLING_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.API.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.API.Token },
	},
}

func applyBackend(cfg *Config, b Backend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kFloat:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					s.apply(cfg, f)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse float from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
