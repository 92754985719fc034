package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"
)

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
// Ollama's /api/embeddings endpoint is accepted too.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries"`
}

// GeminiEmbedderConfig configures Gemini embeddings.
type GeminiEmbedderConfig struct {
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type   string                `yaml:"type"`
	OpenAI *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
	Gemini *GeminiEmbedderConfig `yaml:"gemini,omitempty"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type      string           `yaml:"type"`
	Qdrant    *QdrantConfig    `yaml:"qdrant,omitempty"`
	PGVector  *PGVectorConfig  `yaml:"pgvector,omitempty"`
	SQLiteVec *SQLiteVecConfig `yaml:"sqlitevec,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Collection  string `yaml:"collection"`
	Distance    string `yaml:"distance"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// PGVectorConfig points at a PostgreSQL database with the vector extension.
// The DSN is read from the named environment variable.
type PGVectorConfig struct {
	DSNEnv string `yaml:"dsn_env"`
	Table  string `yaml:"table"`
}

// SQLiteVecConfig is a local sqlite-vec database file.
type SQLiteVecConfig struct {
	Path string `yaml:"path"`
}

// OpenAIChatConfig configures an OpenAI-compatible chat completions endpoint.
type OpenAIChatConfig struct {
	BaseURL     string  `yaml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	TimeoutSecs int     `yaml:"timeout_secs"`
	MaxRetries  int     `yaml:"max_retries"`
}

// GeminiChatConfig configures Gemini generation.
type GeminiChatConfig struct {
	APIKeyEnv   string  `yaml:"api_key_env"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
	MaxRetries  int     `yaml:"max_retries"`
}

// GeneratorConfig selects the language model answering questions.
type GeneratorConfig struct {
	Type              string            `yaml:"type"`
	SystemInstruction string            `yaml:"system_instruction,omitempty"`
	OpenAI            *OpenAIChatConfig `yaml:"openai,omitempty"`
	Gemini            *GeminiChatConfig `yaml:"gemini,omitempty"`
}

// RetrievalConfig tunes date-aware retrieval and prompt assembly.
type RetrievalConfig struct {
	TopK                int     `yaml:"top_k"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	MaxContextChars     int     `yaml:"max_context_chars"`
	// StoreFilter sends the date filter to the vector store. Defaults to true.
	StoreFilter *bool `yaml:"store_filter,omitempty"`
	// Template files override the built-in prompts.
	DatedTemplateFile   string `yaml:"dated_template_file,omitempty"`
	UndatedTemplateFile string `yaml:"undated_template_file,omitempty"`
}

// StoreFilterEnabled reports the effective store_filter setting.
func (r RetrievalConfig) StoreFilterEnabled() bool { return r.StoreFilter == nil || *r.StoreFilter }

// S3Config locates manifests in S3 or an S3-compatible service.
type S3Config struct {
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint,omitempty"`
	AccessKeyEnv string `yaml:"access_key_env,omitempty"`
	SecretKeyEnv string `yaml:"secret_key_env,omitempty"`
}

// IngestConfig configures chunking and metadata derivation.
type IngestConfig struct {
	SentencesPerChunk int       `yaml:"sentences_per_chunk"`
	OverlapSentences  int       `yaml:"overlap_sentences"`
	GenerationCutoffs []int     `yaml:"generation_cutoffs"`
	SummarySentences  int       `yaml:"summary_sentences"`
	S3                *S3Config `yaml:"s3,omitempty"`
}

// RepositoryConfig selects where document records are kept. It defaults to
// memory for the memory vector store and bolt otherwise.
type RepositoryConfig struct {
	Type     string          `yaml:"type"`
	Path     string          `yaml:"path,omitempty"`
	Postgres *PGVectorConfig `yaml:"postgres,omitempty"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	Mode           string   `yaml:"mode"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// LogConfig configures the slog handler installed by the commands.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Embedder    EmbedderConfig    `yaml:"embedder"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Generator   GeneratorConfig   `yaml:"generator"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Ingest      IngestConfig      `yaml:"ingest"`
	Repository  RepositoryConfig  `yaml:"repository"`
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	applyConfigDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/legisrag/config.yaml.
// If neither exists, it writes defaults to ~/.config/legisrag/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadTemplates returns the prompt template overrides, empty when unset.
func (r RetrievalConfig) ReadTemplates() (dated, undated string, err error) {
	read := func(path string) (string, error) {
		if path == "" {
			return "", nil
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("config: read template: %w", err)
		}
		return string(b), nil
	}
	if dated, err = read(r.DatedTemplateFile); err != nil {
		return "", "", err
	}
	undated, err = read(r.UndatedTemplateFile)
	return dated, undated, err
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "legisrag", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Embedder:    EmbedderConfig{Type: "tfidf"},
		VectorStore: VectorStoreConfig{Type: "memory"},
		Generator:   GeneratorConfig{Type: "openai"},
		// TF-IDF cosine scores run well below those of dense embeddings.
		Retrieval:  RetrievalConfig{TopK: 5, SimilarityThreshold: 0.15},
		Ingest:     IngestConfig{SentencesPerChunk: 5, OverlapSentences: 1},
		Repository: RepositoryConfig{Type: "memory"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "tfidf"
	}
	switch cfg.Embedder.Type {
	case "openai":
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		o := cfg.Embedder.OpenAI
		if o.BaseURL == "" {
			o.BaseURL = "https://api.openai.com/v1"
		}
		if o.APIKeyEnv == "" {
			o.APIKeyEnv = "OPENAI_API_KEY"
		}
		if o.Model == "" {
			o.Model = "text-embedding-3-small"
		}
		if o.TimeoutSecs == 0 {
			o.TimeoutSecs = 30
		}
		if o.MaxRetries == 0 {
			o.MaxRetries = 2
		}
	case "gemini":
		if cfg.Embedder.Gemini == nil {
			cfg.Embedder.Gemini = &GeminiEmbedderConfig{}
		}
		if cfg.Embedder.Gemini.APIKeyEnv == "" {
			cfg.Embedder.Gemini.APIKeyEnv = "GEMINI_API_KEY"
		}
		if cfg.Embedder.Gemini.Model == "" {
			cfg.Embedder.Gemini.Model = "text-embedding-004"
		}
	}

	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "memory"
	}
	switch cfg.VectorStore.Type {
	case "qdrant":
		if cfg.VectorStore.Qdrant == nil {
			cfg.VectorStore.Qdrant = &QdrantConfig{}
		}
		q := cfg.VectorStore.Qdrant
		if q.URL == "" {
			q.URL = "http://localhost:6333"
		}
		if q.Collection == "" {
			q.Collection = "legislation"
		}
		if q.TimeoutSecs == 0 {
			q.TimeoutSecs = 15
		}
	case "pgvector":
		if cfg.VectorStore.PGVector == nil {
			cfg.VectorStore.PGVector = &PGVectorConfig{}
		}
		if cfg.VectorStore.PGVector.DSNEnv == "" {
			cfg.VectorStore.PGVector.DSNEnv = "DATABASE_URL"
		}
	case "sqlitevec":
		if cfg.VectorStore.SQLiteVec == nil {
			cfg.VectorStore.SQLiteVec = &SQLiteVecConfig{}
		}
		if cfg.VectorStore.SQLiteVec.Path == "" {
			cfg.VectorStore.SQLiteVec.Path = filepath.Join("data", "legislation.db")
		}
	}

	if cfg.Generator.Type == "" {
		cfg.Generator.Type = "openai"
	}
	switch cfg.Generator.Type {
	case "openai":
		if cfg.Generator.OpenAI == nil {
			cfg.Generator.OpenAI = &OpenAIChatConfig{}
		}
		o := cfg.Generator.OpenAI
		if o.BaseURL == "" {
			o.BaseURL = "https://api.openai.com/v1"
		}
		if o.APIKeyEnv == "" {
			o.APIKeyEnv = "OPENAI_API_KEY"
		}
		if o.Model == "" {
			o.Model = "gpt-4o-mini"
		}
		if o.TimeoutSecs == 0 {
			o.TimeoutSecs = 60
		}
		if o.MaxRetries == 0 {
			o.MaxRetries = 2
		}
	case "gemini":
		if cfg.Generator.Gemini == nil {
			cfg.Generator.Gemini = &GeminiChatConfig{}
		}
		g := cfg.Generator.Gemini
		if g.APIKeyEnv == "" {
			g.APIKeyEnv = "GEMINI_API_KEY"
		}
		if g.Model == "" {
			g.Model = "gemini-1.5-flash"
		}
		if g.MaxRetries == 0 {
			g.MaxRetries = 2
		}
	}

	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 5
	}
	if cfg.Retrieval.SimilarityThreshold == 0 {
		cfg.Retrieval.SimilarityThreshold = 0.5
	}

	if cfg.Ingest.SentencesPerChunk == 0 {
		cfg.Ingest.SentencesPerChunk = 5
	}
	if len(cfg.Ingest.GenerationCutoffs) == 0 {
		cfg.Ingest.GenerationCutoffs = []int{2025}
	}
	if cfg.Ingest.SummarySentences == 0 {
		cfg.Ingest.SummarySentences = 2
	}
	if s3 := cfg.Ingest.S3; s3 != nil && s3.Region == "" {
		s3.Region = "us-east-1"
	}

	if cfg.Repository.Type == "" {
		// Records must not outlive the vectors they describe.
		cfg.Repository.Type = "bolt"
		if cfg.VectorStore.Type == "memory" {
			cfg.Repository.Type = "memory"
		}
	}
	switch cfg.Repository.Type {
	case "bolt":
		if cfg.Repository.Path == "" {
			cfg.Repository.Path = filepath.Join("data", "documents.db")
		}
	case "postgres":
		if cfg.Repository.Postgres == nil {
			cfg.Repository.Postgres = &PGVectorConfig{}
		}
		if cfg.Repository.Postgres.DSNEnv == "" {
			cfg.Repository.Postgres.DSNEnv = "DATABASE_URL"
		}
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "release"
	}
	if cfg.Server.AllowedOrigins == nil {
		cfg.Server.AllowedOrigins = []string{"http://localhost:4200"}
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

// Validate reports every invalid setting.
func (c *AppConfig) Validate() error {
	var errs []error
	oneOf := func(field, v string, allowed ...string) {
		if !slices.Contains(allowed, v) {
			errs = append(errs, fmt.Errorf("%s: unknown value %q (want one of %v)", field, v, allowed))
		}
	}
	oneOf("embedder.type", c.Embedder.Type, "tfidf", "openai", "gemini")
	oneOf("vector_store.type", c.VectorStore.Type, "memory", "qdrant", "pgvector", "sqlitevec")
	oneOf("generator.type", c.Generator.Type, "openai", "gemini")
	oneOf("repository.type", c.Repository.Type, "memory", "bolt", "postgres")
	oneOf("server.mode", c.Server.Mode, "debug", "release", "test")
	oneOf("log.level", c.Log.Level, "debug", "info", "warn", "error")
	oneOf("log.format", c.Log.Format, "text", "json")

	if c.Embedder.Type == "tfidf" && c.VectorStore.Type != "memory" {
		errs = append(errs, fmt.Errorf("embedder.type: tfidf vectors depend on the whole corpus and need vector_store.type memory"))
	}
	if c.Retrieval.TopK < 0 {
		errs = append(errs, fmt.Errorf("retrieval.top_k: must not be negative"))
	}
	if t := c.Retrieval.SimilarityThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("retrieval.similarity_threshold: %v outside [0,1]", t))
	}
	if c.Retrieval.MaxContextChars < 0 {
		errs = append(errs, fmt.Errorf("retrieval.max_context_chars: must not be negative"))
	}
	if c.Ingest.SentencesPerChunk < 0 || c.Ingest.OverlapSentences < 0 {
		errs = append(errs, fmt.Errorf("ingest: chunk sizes must not be negative"))
	}
	if !slices.IsSorted(c.Ingest.GenerationCutoffs) {
		errs = append(errs, fmt.Errorf("ingest.generation_cutoffs: must be ascending"))
	}
	return errors.Join(errs...)
}
