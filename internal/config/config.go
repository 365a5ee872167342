package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/katakuxiko/finqa/internal/store"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	OpenAIKey      string  `yaml:"openai_api_key"`
	LMBaseURL      string  `yaml:"openai_base_url"`
	EmbedModel     string  `yaml:"embedding_model"`
	ChatModel      string  `yaml:"llm_model"`
	LLMTemperature float32 `yaml:"llm_temperature"`
	MaxTokens      int     `yaml:"max_tokens"`

	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`

	RetrievalK          int     `yaml:"retrieval_k"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`

	VectorBackend string `yaml:"vector_backend"`
	EmbeddingDim  int    `yaml:"embedding_dim"`
	DBDriver      string `yaml:"db_driver"`
	PgConn        string `yaml:"pg_conn"`
	SQLitePath    string `yaml:"sqlite_path"`

	UploadDir      string   `yaml:"pdf_upload_path"`
	AllowedOrigins []string `yaml:"allowed_origins"`

	RedisAddr      string        `yaml:"redis_addr"`
	RedisPassword  string        `yaml:"redis_password"`
	RedisDB        int           `yaml:"redis_db"`
	EmbedCacheTTL  time.Duration `yaml:"embed_cache_ttl"`
	EmbedCacheSize int           `yaml:"embed_cache_size"`

	Debug bool `yaml:"debug"`
}

const (
	BackendPgVector = "pgvector"
	BackendSQLite   = "sqlite"
)

// Load собирает конфиг: значения по умолчанию, затем YAML из CONFIG_FILE
// (если задан), затем переменные окружения. .env подхватывается, если есть.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Default() *Config {
	return &Config{
		Host:                "0.0.0.0",
		Port:                8000,
		LMBaseURL:           "https://api.openai.com/v1",
		EmbedModel:          "text-embedding-ada-002",
		ChatModel:           "gpt-3.5-turbo",
		LLMTemperature:      0.1,
		MaxTokens:           1000,
		ChunkSize:           1000,
		ChunkOverlap:        200,
		RetrievalK:          5,
		SimilarityThreshold: 0.7,
		VectorBackend:       BackendPgVector,
		EmbeddingDim:        1536,
		DBDriver:            store.DriverPostgres,
		PgConn:              "host=localhost port=5432 user=postgres password=postgres dbname=finqa sslmode=disable",
		SQLitePath:          "data/finqa.db",
		UploadDir:           "data/pdfs",
		AllowedOrigins:      []string{"http://localhost:3000", "http://127.0.0.1:3000"},
		EmbedCacheTTL:       24 * time.Hour,
		EmbedCacheSize:      1024,
	}
}

func (c *Config) applyEnv() error {
	c.Host = getenv("HOST", c.Host)
	c.OpenAIKey = getenv("OPENAI_API_KEY", c.OpenAIKey)
	c.LMBaseURL = getenv("OPENAI_BASE_URL", c.LMBaseURL)
	c.EmbedModel = getenv("EMBEDDING_MODEL", c.EmbedModel)
	c.ChatModel = getenv("LLM_MODEL", c.ChatModel)
	c.VectorBackend = getenv("VECTOR_BACKEND", c.VectorBackend)
	c.DBDriver = getenv("DB_DRIVER", c.DBDriver)
	c.PgConn = getenv("PG_CONN", c.PgConn)
	c.SQLitePath = getenv("SQLITE_PATH", c.SQLitePath)
	c.UploadDir = getenv("PDF_UPLOAD_PATH", c.UploadDir)
	c.RedisAddr = getenv("REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = getenv("REDIS_PASSWORD", c.RedisPassword)

	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = splitList(v)
	}

	var err error
	ints := []struct {
		key string
		dst *int
	}{
		{"PORT", &c.Port},
		{"MAX_TOKENS", &c.MaxTokens},
		{"CHUNK_SIZE", &c.ChunkSize},
		{"CHUNK_OVERLAP", &c.ChunkOverlap},
		{"RETRIEVAL_K", &c.RetrievalK},
		{"EMBEDDING_DIM", &c.EmbeddingDim},
		{"REDIS_DB", &c.RedisDB},
		{"EMBED_CACHE_SIZE", &c.EmbedCacheSize},
	}
	for _, it := range ints {
		if v := os.Getenv(it.key); v != "" {
			if *it.dst, err = strconv.Atoi(v); err != nil {
				return fmt.Errorf("%s: %w", it.key, err)
			}
		}
	}
	if v := os.Getenv("LLM_TEMPERATURE"); v != "" {
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return fmt.Errorf("LLM_TEMPERATURE: %w", err)
		}
		c.LLMTemperature = float32(f)
	}
	if v := os.Getenv("SIMILARITY_THRESHOLD"); v != "" {
		if c.SimilarityThreshold, err = strconv.ParseFloat(v, 64); err != nil {
			return fmt.Errorf("SIMILARITY_THRESHOLD: %w", err)
		}
	}
	if v := os.Getenv("EMBED_CACHE_TTL"); v != "" {
		if c.EmbedCacheTTL, err = time.ParseDuration(v); err != nil {
			return fmt.Errorf("EMBED_CACHE_TTL: %w", err)
		}
	}
	if v := os.Getenv("DEBUG"); v != "" {
		c.Debug = strings.EqualFold(v, "true") || v == "1"
	}
	return nil
}

func (c *Config) Validate() error {
	switch {
	case c.ChunkSize <= 0:
		return fmt.Errorf("chunk size must be positive")
	case c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize:
		return fmt.Errorf("chunk overlap must be in [0, %d)", c.ChunkSize)
	case c.RetrievalK <= 0:
		return fmt.Errorf("retrieval k must be positive")
	case c.SimilarityThreshold < 0:
		return fmt.Errorf("similarity threshold must not be negative")
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.VectorBackend != BackendPgVector && c.VectorBackend != BackendSQLite {
		return fmt.Errorf("unknown vector backend %q", c.VectorBackend)
	}
	if c.DBDriver != store.DriverPostgres && c.DBDriver != store.DriverSQLite {
		return fmt.Errorf("unknown db driver %q", c.DBDriver)
	}
	if c.VectorBackend == BackendPgVector && c.EmbeddingDim <= 0 {
		return fmt.Errorf("embedding dim must be positive for pgvector")
	}
	return nil
}

// ServerAddr — адрес для fiber.App.Listen.
func (c *Config) ServerAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
