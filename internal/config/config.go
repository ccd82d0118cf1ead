package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/nevindra/strata"
)

type Config struct {
	Chunking  ChunkingConfig  `toml:"chunking"`
	Indexing  IndexingConfig  `toml:"indexing"`
	Retrieval RetrievalConfig `toml:"retrieval"`
	Store     StoreConfig     `toml:"store"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Observer  ObserverConfig  `toml:"observer"`
}

type ChunkingConfig struct {
	ParentSeparator      string `toml:"parent_separator"`
	ParentChunkSize      int    `toml:"parent_chunk_size"`
	ChildSeparator       string `toml:"child_separator"`
	ChildChunkSize       int    `toml:"child_chunk_size"`
	EnableParentChild    bool   `toml:"enable_parent_child"`
	UnicodeNormalization bool   `toml:"unicode_normalization"`
	TableLocale          string `toml:"table_locale"`
}

type IndexingConfig struct {
	BatchSize        int           `toml:"batch_size"`
	Workers          int           `toml:"workers"`
	MaxInFlight      int           `toml:"max_in_flight"`
	RetryMaxAttempts int           `toml:"retry_max_attempts"`
	RetryBaseDelay   time.Duration `toml:"retry_base_delay"`
	RetryTimeout     time.Duration `toml:"retry_timeout"`
	EmbedRPS         float64       `toml:"embed_rps"`
}

type RetrievalConfig struct {
	TopK         int `toml:"top_k"`
	Fanout       int `toml:"fanout"`
	PreviewChars int `toml:"preview_chars"`
	MaxPreviews  int `toml:"max_previews"`
}

// Store backends.
const (
	BackendSQLite      = "sqlite"
	BackendPostgres    = "postgres"
	BackendBboltSQLite = "bbolt-sqlite"
)

type StoreConfig struct {
	Backend     string `toml:"backend"`
	Path        string `toml:"path"`
	BboltPath   string `toml:"bbolt_path"`
	PostgresDSN string `toml:"postgres_dsn"`
	Collection  string `toml:"collection"`
}

type EmbeddingConfig struct {
	Provider   string `toml:"provider"`
	Model      string `toml:"model"`
	APIKey     string `toml:"api_key"`
	BaseURL    string `toml:"base_url"`
	Dimensions int    `toml:"dimensions"`
}

type ObserverConfig struct {
	Enabled bool `toml:"enabled"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Chunking: ChunkingConfig{
			ParentSeparator:   "\n\n",
			ParentChunkSize:   1024,
			ChildSeparator:    "\n",
			ChildChunkSize:    512,
			EnableParentChild: true,
			TableLocale:       "en",
		},
		Indexing: IndexingConfig{
			BatchSize:        50,
			Workers:          4,
			MaxInFlight:      2,
			RetryMaxAttempts: 3,
			RetryBaseDelay:   time.Second,
		},
		Retrieval: RetrievalConfig{TopK: 5, Fanout: 4, PreviewChars: 200, MaxPreviews: 3},
		Store: StoreConfig{
			Backend:    BackendSQLite,
			Path:       "./strata.db",
			BboltPath:  "./parents.bolt",
			Collection: "knowledge_base",
		},
		Embedding: EmbeddingConfig{Provider: "openai", Model: "text-embedding-3-small", Dimensions: 1536},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
// A missing file is not an error; a malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = "strata.toml"
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	case !errors.Is(err, fs.ErrNotExist):
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overrides fields from STRATA_* variables.
func applyEnv(cfg *Config) error {
	str := map[string]*string{
		"STRATA_STORE_BACKEND":      &cfg.Store.Backend,
		"STRATA_STORE_PATH":         &cfg.Store.Path,
		"STRATA_BBOLT_PATH":         &cfg.Store.BboltPath,
		"STRATA_POSTGRES_DSN":       &cfg.Store.PostgresDSN,
		"STRATA_COLLECTION":         &cfg.Store.Collection,
		"STRATA_EMBEDDING_PROVIDER": &cfg.Embedding.Provider,
		"STRATA_EMBEDDING_MODEL":    &cfg.Embedding.Model,
		"STRATA_EMBEDDING_API_KEY":  &cfg.Embedding.APIKey,
		"STRATA_EMBEDDING_BASE_URL": &cfg.Embedding.BaseURL,
		"STRATA_TABLE_LOCALE":       &cfg.Chunking.TableLocale,
	}
	for k, dst := range str {
		if v := os.Getenv(k); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"STRATA_EMBEDDING_DIMENSIONS": &cfg.Embedding.Dimensions,
		"STRATA_PARENT_CHUNK_SIZE":    &cfg.Chunking.ParentChunkSize,
		"STRATA_CHILD_CHUNK_SIZE":     &cfg.Chunking.ChildChunkSize,
		"STRATA_BATCH_SIZE":           &cfg.Indexing.BatchSize,
		"STRATA_WORKERS":              &cfg.Indexing.Workers,
		"STRATA_TOP_K":                &cfg.Retrieval.TopK,
	}
	for k, dst := range ints {
		v := os.Getenv(k)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", k, err)
		}
		*dst = n
	}

	bools := map[string]*bool{
		"STRATA_ENABLE_PARENT_CHILD": &cfg.Chunking.EnableParentChild,
		"STRATA_OBSERVER_ENABLED":    &cfg.Observer.Enabled,
	}
	for k, dst := range bools {
		v := os.Getenv(k)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", k, err)
		}
		*dst = b
	}

	if v := os.Getenv("STRATA_EMBED_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("config: STRATA_EMBED_RPS: %w", err)
		}
		cfg.Indexing.EmbedRPS = f
	}
	return nil
}

// Validate checks the values that would otherwise fail deep inside a
// component. It returns a *strata.ValidationError naming the first bad field.
func (c Config) Validate() error {
	invalid := func(field, reason string) error {
		return &strata.ValidationError{Field: field, Reason: reason}
	}
	switch {
	case c.Chunking.ParentSeparator == "":
		return invalid("chunking.parent_separator", "must not be empty")
	case c.Chunking.ChildSeparator == "":
		return invalid("chunking.child_separator", "must not be empty")
	case c.Chunking.ParentChunkSize <= 0:
		return invalid("chunking.parent_chunk_size", "must be positive")
	case c.Chunking.ChildChunkSize <= 0:
		return invalid("chunking.child_chunk_size", "must be positive")
	case c.Indexing.BatchSize <= 0:
		return invalid("indexing.batch_size", "must be positive")
	case c.Indexing.Workers <= 0:
		return invalid("indexing.workers", "must be positive")
	case c.Indexing.MaxInFlight <= 0:
		return invalid("indexing.max_in_flight", "must be positive")
	case c.Indexing.RetryMaxAttempts <= 0:
		return invalid("indexing.retry_max_attempts", "must be positive")
	case c.Indexing.RetryBaseDelay < 0:
		return invalid("indexing.retry_base_delay", "must not be negative")
	case c.Indexing.RetryTimeout < 0:
		return invalid("indexing.retry_timeout", "must not be negative")
	case c.Indexing.EmbedRPS < 0:
		return invalid("indexing.embed_rps", "must not be negative")
	case c.Retrieval.TopK <= 0:
		return invalid("retrieval.top_k", "must be positive")
	case c.Retrieval.Fanout <= 0:
		return invalid("retrieval.fanout", "must be positive")
	case c.Retrieval.PreviewChars < 0:
		return invalid("retrieval.preview_chars", "must not be negative")
	case c.Retrieval.MaxPreviews < 0:
		return invalid("retrieval.max_previews", "must not be negative")
	case c.Embedding.Model == "":
		return invalid("embedding.model", "must be set")
	case c.Embedding.Dimensions <= 0:
		return invalid("embedding.dimensions", "must be positive")
	}

	switch c.Store.Backend {
	case BackendSQLite:
		if c.Store.Path == "" {
			return invalid("store.path", "must be set for sqlite")
		}
	case BackendBboltSQLite:
		if c.Store.Path == "" || c.Store.BboltPath == "" {
			return invalid("store.bbolt_path", "store.path and store.bbolt_path must be set for bbolt-sqlite")
		}
	case BackendPostgres:
		if c.Store.PostgresDSN == "" {
			return invalid("store.postgres_dsn", "must be set for postgres")
		}
	default:
		return invalid("store.backend", fmt.Sprintf("unknown backend %q", c.Store.Backend))
	}

	switch c.Embedding.Provider {
	case "openai", "openrouter", "dashscope", "ollama", "gemini":
	default:
		return invalid("embedding.provider", fmt.Sprintf("unknown provider %q", c.Embedding.Provider))
	}
	return nil
}
