package ragengine

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the RAG engine.
type Config struct {
	// DBPath is the full path to the SQLite database file.
	// If empty, defaults to ~/.ragengine/<DBName>.db
	DBPath string `json:"db_path" yaml:"db_path"`

	// DBName is the name for the database (used when DBPath is empty).
	DBName string `json:"db_name" yaml:"db_name"`

	// StorageDir controls where the database is created when DBPath
	// is not explicitly set: "home" (default) or "local"/"cwd".
	StorageDir string `json:"storage_dir" yaml:"storage_dir"`

	// VectorBackend selects the Vector store implementation: "sqlite"
	// (default, sqlite-vec) or "qdrant".
	VectorBackend string       `json:"vector_backend" yaml:"vector_backend"`
	Qdrant        QdrantConfig `json:"qdrant" yaml:"qdrant"`

	// LLM providers
	Chat      LLMConfig `json:"chat" yaml:"chat"`
	Embedding LLMConfig `json:"embedding" yaml:"embedding"`

	// Reranker is the optional cross-encoder reranking endpoint (§4.D).
	Reranker           RerankerConfig `json:"reranker" yaml:"reranker"`
	CandidateMultiplier int           `json:"candidate_multiplier" yaml:"candidate_multiplier"`

	// Query transformation (§4.E)
	EnableExpand bool `json:"enable_expand" yaml:"enable_expand"`
	EnableHyDE   bool `json:"enable_hyde" yaml:"enable_hyde"`

	// Chunking (§4.B)
	ChunkSize     int  `json:"chunk_size" yaml:"chunk_size"`
	ChunkOverlap  int  `json:"chunk_overlap" yaml:"chunk_overlap"`
	MinChunkSize  int  `json:"min_chunk_size" yaml:"min_chunk_size"`
	PreserveParas bool `json:"preserve_paragraphs" yaml:"preserve_paragraphs"`

	// Ask (§4.J)
	AskTemperature float64 `json:"ask_temperature" yaml:"ask_temperature"`
	AskMaxTokens   int     `json:"ask_max_tokens" yaml:"ask_max_tokens"`
	VerifyEnabled  bool    `json:"verify_enabled" yaml:"verify_enabled"`

	// Embedding dimension (must match the embedding model).
	EmbeddingDim int `json:"embedding_dim" yaml:"embedding_dim"`

	// ParseTimeoutSeconds bounds how long any single-format parser may run.
	ParseTimeoutSeconds int `json:"parse_timeout_seconds" yaml:"parse_timeout_seconds"`
	// MaxFileSizeBytes rejects files above this size before parsing.
	MaxFileSizeBytes int64 `json:"max_file_size_bytes" yaml:"max_file_size_bytes"`
}

// LLMConfig configures a single LLM provider endpoint.
type LLMConfig struct {
	Provider string `json:"provider" yaml:"provider"` // ollama, lmstudio, openrouter, xai, gemini, custom
	Model    string `json:"model" yaml:"model"`
	BaseURL  string `json:"base_url" yaml:"base_url"`
	APIKey   string `json:"api_key" yaml:"api_key"`
}

// RerankerConfig configures the optional cross-encoder reranking endpoint.
type RerankerConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	BaseURL string `json:"base_url" yaml:"base_url"`
	Model   string `json:"model" yaml:"model"`
	APIKey  string `json:"api_key" yaml:"api_key"`
}

// QdrantConfig configures the Qdrant vector store backend.
type QdrantConfig struct {
	Host       string `json:"host" yaml:"host"`
	Port       int    `json:"port" yaml:"port"`
	APIKey     string `json:"api_key" yaml:"api_key"`
	Collection string `json:"collection" yaml:"collection"`
	UseTLS     bool   `json:"use_tls" yaml:"use_tls"`
}

// DefaultConfig returns a Config with sensible defaults for local inference.
func DefaultConfig() Config {
	return Config{
		DBName:        "ragengine",
		StorageDir:    "home",
		VectorBackend: "sqlite",
		Chat: LLMConfig{
			Provider: "ollama",
			Model:    "llama3.1:8b",
			BaseURL:  "http://localhost:11434",
		},
		Embedding: LLMConfig{
			Provider: "ollama",
			Model:    "nomic-embed-text",
			BaseURL:  "http://localhost:11434",
		},
		CandidateMultiplier: 3,
		ChunkSize:           512,
		ChunkOverlap:        50,
		MinChunkSize:        50,
		PreserveParas:       true,
		AskTemperature:      0.3,
		AskMaxTokens:        2000,
		EmbeddingDim:        1024,
		ParseTimeoutSeconds: 60,
		MaxFileSizeBytes:    100 * 1024 * 1024,
	}
}

// LoadConfig reads a YAML config file, overlays a sibling ".env" file (if
// present) into the process environment, and merges the result over
// DefaultConfig(). A missing path is not an error; DefaultConfig() is
// returned untouched.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	envPath := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
		slog.Warn("config: failed to load .env overlay", "path", envPath, "error", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("%w: reading config file: %v", ErrInvalidConfig, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: parsing yaml config: %v", ErrInvalidConfig, err)
	}

	if key := os.Getenv("RAGENGINE_CHAT_API_KEY"); key != "" {
		cfg.Chat.APIKey = key
	}
	if key := os.Getenv("RAGENGINE_EMBEDDING_API_KEY"); key != "" {
		cfg.Embedding.APIKey = key
	}
	if key := os.Getenv("RAGENGINE_RERANKER_API_KEY"); key != "" {
		cfg.Reranker.APIKey = key
	}

	return cfg, nil
}

// resolveDBPath computes the final database path from config fields.
func (c *Config) resolveDBPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}

	name := c.DBName
	if name == "" {
		name = "ragengine"
	}

	switch c.StorageDir {
	case "local", "cwd":
		return name + ".db"
	default: // "home" or empty
		home, err := os.UserHomeDir()
		if err != nil {
			return name + ".db" // fallback to cwd
		}
		dir := filepath.Join(home, ".ragengine")
		return filepath.Join(dir, name+".db")
	}
}
