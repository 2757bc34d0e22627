// Package config loads and validates scholia configuration.
//
// Configuration is layered in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/scholia/config.yaml)
//  3. Corpus config (.scholia.yaml in the corpus root)
//  4. Environment variables (SCHOLIA_*)
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete scholia configuration.
type Config struct {
	Version   int             `yaml:"version" json:"version"`
	Corpus    CorpusConfig    `yaml:"corpus" json:"corpus"`
	Retrieval RetrievalConfig `yaml:"retrieval" json:"retrieval"`
	Injection InjectionConfig `yaml:"injection" json:"injection"`
	Index     IndexConfig     `yaml:"index" json:"index"`
	Embedding EmbeddingConfig `yaml:"embedding" json:"embedding"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
	Watch     WatchConfig     `yaml:"watch" json:"watch"`
}

// CorpusConfig configures the knowledge corpus location and limits.
type CorpusConfig struct {
	// Root is the corpus root directory holding markdown documents.
	Root string `yaml:"root" json:"root"`
	// StorageDir holds persisted index artifacts.
	// Empty means <root>/.scholia.
	StorageDir string `yaml:"storage_dir" json:"storage_dir"`
	// MaxFileSize is the per-file size cap in bytes (default: 5 MB).
	MaxFileSize int64 `yaml:"max_file_size" json:"max_file_size"`
}

// RetrievalConfig configures hybrid retrieval parameters.
// Weights are configurable via:
//  1. User config (~/.config/scholia/config.yaml) - personal defaults
//  2. Corpus config (.scholia.yaml) - per-corpus tuning
//  3. Env vars (SCHOLIA_VECTOR_WEIGHT, SCHOLIA_KEYWORD_WEIGHT) - highest priority
type RetrievalConfig struct {
	// TopK is the default number of hits returned per search.
	TopK int `yaml:"top_k" json:"top_k"`

	// VectorWeight is the weight for semantic similarity (0.0-1.0).
	// Must sum to 1.0 with KeywordWeight.
	VectorWeight float64 `yaml:"vector_weight" json:"vector_weight"`

	// KeywordWeight is the weight for lexical term-frequency matching (0.0-1.0).
	// Must sum to 1.0 with VectorWeight.
	KeywordWeight float64 `yaml:"keyword_weight" json:"keyword_weight"`
}

// InjectionConfig configures context assembly.
type InjectionConfig struct {
	// MaxTokens is the token budget for the injected knowledge block.
	MaxTokens int `yaml:"max_tokens" json:"max_tokens"`
}

// IndexConfig configures chunking and index building.
type IndexConfig struct {
	// ChunkSize is the chunk length in characters.
	ChunkSize int `yaml:"chunk_size" json:"chunk_size"`
	// ChunkOverlap is the overlap between adjacent chunks in characters.
	ChunkOverlap int `yaml:"chunk_overlap" json:"chunk_overlap"`
	// BatchSize is the number of chunks embedded per provider call.
	BatchSize int `yaml:"batch_size" json:"batch_size"`
	// Workers bounds concurrent embedding batches during a build.
	Workers int `yaml:"workers" json:"workers"`
}

// EmbeddingConfig configures the embedding provider chain.
type EmbeddingConfig struct {
	// Provider selects the embedding backend.
	// Empty triggers auto-detection: remote (if credentialed) -> local -> none.
	// Explicit values: "remote", "local", "static", "off".
	Provider string `yaml:"provider" json:"provider"`
	// Model is the embedding model identifier. Empty uses the provider default.
	Model string `yaml:"model" json:"model"`

	// RemoteBaseURL is the OpenAI-compatible embeddings API base URL.
	RemoteBaseURL string `yaml:"remote_base_url" json:"remote_base_url"`
	// RemoteAPIKeyEnv names the environment variable holding the API key.
	// No credential in that variable means the remote provider is skipped.
	RemoteAPIKeyEnv string `yaml:"remote_api_key_env" json:"remote_api_key_env"`
	// RemoteRateLimit caps remote requests per second (default: 4).
	RemoteRateLimit float64 `yaml:"remote_rate_limit" json:"remote_rate_limit"`

	// LocalBaseURL is the local model server endpoint (default: http://localhost:11434).
	LocalBaseURL string `yaml:"local_base_url" json:"local_base_url"`

	// CacheDir holds the persistent embedding cache.
	// Empty means the corpus storage directory.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`
	// CacheSize is the in-memory LRU entry count (default: 2048).
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level" json:"level"`
	// File is the log file path. Empty uses ~/.scholia/logs/scholia.log.
	File string `yaml:"file" json:"file"`
}

// WatchConfig configures the corpus watcher.
type WatchConfig struct {
	// Debounce is the event coalescing window (e.g. "500ms").
	Debounce string `yaml:"debounce" json:"debounce"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Corpus: CorpusConfig{
			Root:        ".",
			StorageDir:  "",
			MaxFileSize: 5 * 1024 * 1024,
		},
		Retrieval: RetrievalConfig{
			TopK:          5,
			VectorWeight:  0.6,
			KeywordWeight: 0.4,
		},
		Injection: InjectionConfig{
			MaxTokens: 2000,
		},
		Index: IndexConfig{
			ChunkSize:    1000,
			ChunkOverlap: 200,
			BatchSize:    32,
			Workers:      runtime.NumCPU(),
		},
		Embedding: EmbeddingConfig{
			Provider:        "", // Empty triggers auto-detection: remote -> local -> none
			Model:           "",
			RemoteBaseURL:   "https://api.openai.com/v1",
			RemoteAPIKeyEnv: "OPENAI_API_KEY",
			RemoteRateLimit: 4,
			LocalBaseURL:    "", // Empty uses default http://localhost:11434
			CacheDir:        "",
			CacheSize:       2048,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
		Watch: WatchConfig{
			Debounce: "500ms",
		},
	}
}

// StorageDir returns the resolved storage directory for index artifacts.
func (c *Config) StorageDir() string {
	if c.Corpus.StorageDir != "" {
		return c.Corpus.StorageDir
	}
	return filepath.Join(c.Corpus.Root, ".scholia")
}

// CacheDir returns the resolved embedding cache directory.
func (c *Config) CacheDir() string {
	if c.Embedding.CacheDir != "" {
		return c.Embedding.CacheDir
	}
	return c.StorageDir()
}

// DebounceWindow returns the parsed watch debounce window, falling back
// to 500ms when the configured value does not parse.
func (c *Config) DebounceWindow() time.Duration {
	d, err := time.ParseDuration(c.Watch.Debounce)
	if err != nil || d <= 0 {
		return 500 * time.Millisecond
	}
	return d
}

// GetUserConfigPath returns the path to the user/global configuration file.
// It follows XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/scholia/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/scholia/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "scholia", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback - should rarely happen
		return filepath.Join(os.TempDir(), ".config", "scholia", "config.yaml")
	}
	return filepath.Join(home, ".config", "scholia", "config.yaml")
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// loadUserConfig loads the user/global configuration file if it exists.
// Returns nil config and nil error if the file doesn't exist (that's OK).
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()

	if !fileExists(configPath) {
		return nil, nil // No user config is fine
	}

	cfg := NewConfig()
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}

	return cfg, nil
}

// Load loads configuration for the given corpus directory.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	// Step 1: Load user/global config (if exists)
	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	// Step 2: Load corpus config (overrides user config)
	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	// Step 3: Default the corpus root to the directory we loaded from
	if cfg.Corpus.Root == "." || cfg.Corpus.Root == "" {
		cfg.Corpus.Root = dir
	}

	// Step 4: Apply environment variable overrides (highest precedence)
	cfg.applyEnvOverrides()

	// Step 5: Validate the final configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadFile loads configuration from an explicit config file path,
// bypassing corpus-directory discovery. The corpus root defaults to
// the file's directory when the file does not set one.
func LoadFile(path string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadYAML(path); err != nil {
		return nil, err
	}

	if cfg.Corpus.Root == "." || cfg.Corpus.Root == "" {
		abs, err := filepath.Abs(filepath.Dir(path))
		if err != nil {
			return nil, fmt.Errorf("failed to resolve config directory: %w", err)
		}
		cfg.Corpus.Root = abs
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile attempts to load configuration from .scholia.yaml or .scholia.yml.
func (c *Config) loadFromFile(dir string) error {
	// Try .yaml first (takes precedence)
	yamlPath := filepath.Join(dir, ".scholia.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return c.loadYAML(yamlPath)
	}

	// Try .yml as fallback
	ymlPath := filepath.Join(dir, ".scholia.yml")
	if _, err := os.Stat(ymlPath); err == nil {
		return c.loadYAML(ymlPath)
	}

	// No config file is fine - use defaults
	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	// Use a temporary struct for parsing to detect type errors
	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	// Merge parsed values with defaults (only non-zero values)
	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	// Corpus
	if other.Corpus.Root != "" && other.Corpus.Root != "." {
		c.Corpus.Root = other.Corpus.Root
	}
	if other.Corpus.StorageDir != "" {
		c.Corpus.StorageDir = other.Corpus.StorageDir
	}
	if other.Corpus.MaxFileSize != 0 {
		c.Corpus.MaxFileSize = other.Corpus.MaxFileSize
	}

	// Retrieval
	// Note: 0 is not a practical value for weights, so we only merge non-zero values
	if other.Retrieval.TopK != 0 {
		c.Retrieval.TopK = other.Retrieval.TopK
	}
	if other.Retrieval.VectorWeight != 0 {
		c.Retrieval.VectorWeight = other.Retrieval.VectorWeight
	}
	if other.Retrieval.KeywordWeight != 0 {
		c.Retrieval.KeywordWeight = other.Retrieval.KeywordWeight
	}

	// Injection
	if other.Injection.MaxTokens != 0 {
		c.Injection.MaxTokens = other.Injection.MaxTokens
	}

	// Index
	if other.Index.ChunkSize != 0 {
		c.Index.ChunkSize = other.Index.ChunkSize
	}
	if other.Index.ChunkOverlap != 0 {
		c.Index.ChunkOverlap = other.Index.ChunkOverlap
	}
	if other.Index.BatchSize != 0 {
		c.Index.BatchSize = other.Index.BatchSize
	}
	if other.Index.Workers != 0 {
		c.Index.Workers = other.Index.Workers
	}

	// Embedding
	if other.Embedding.Provider != "" {
		c.Embedding.Provider = other.Embedding.Provider
	}
	if other.Embedding.Model != "" {
		c.Embedding.Model = other.Embedding.Model
	}
	if other.Embedding.RemoteBaseURL != "" {
		c.Embedding.RemoteBaseURL = other.Embedding.RemoteBaseURL
	}
	if other.Embedding.RemoteAPIKeyEnv != "" {
		c.Embedding.RemoteAPIKeyEnv = other.Embedding.RemoteAPIKeyEnv
	}
	if other.Embedding.RemoteRateLimit != 0 {
		c.Embedding.RemoteRateLimit = other.Embedding.RemoteRateLimit
	}
	if other.Embedding.LocalBaseURL != "" {
		c.Embedding.LocalBaseURL = other.Embedding.LocalBaseURL
	}
	if other.Embedding.CacheDir != "" {
		c.Embedding.CacheDir = other.Embedding.CacheDir
	}
	if other.Embedding.CacheSize != 0 {
		c.Embedding.CacheSize = other.Embedding.CacheSize
	}

	// Logging
	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.File != "" {
		c.Logging.File = other.Logging.File
	}

	// Watch
	if other.Watch.Debounce != "" {
		c.Watch.Debounce = other.Watch.Debounce
	}
}

// applyEnvOverrides applies SCHOLIA_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SCHOLIA_TOP_K"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Retrieval.TopK = k
		}
	}
	if v := os.Getenv("SCHOLIA_VECTOR_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Retrieval.VectorWeight = w
		}
	}
	if v := os.Getenv("SCHOLIA_KEYWORD_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Retrieval.KeywordWeight = w
		}
	}
	if v := os.Getenv("SCHOLIA_MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Injection.MaxTokens = n
		}
	}
	if v := os.Getenv("SCHOLIA_EMBEDDING_PROVIDER"); v != "" {
		c.Embedding.Provider = v
	}
	if v := os.Getenv("SCHOLIA_EMBEDDING_MODEL"); v != "" {
		c.Embedding.Model = v
	}
	if v := os.Getenv("SCHOLIA_REMOTE_BASE_URL"); v != "" {
		c.Embedding.RemoteBaseURL = v
	}
	if v := os.Getenv("SCHOLIA_LOCAL_BASE_URL"); v != "" {
		c.Embedding.LocalBaseURL = v
	}
	if v := os.Getenv("SCHOLIA_CACHE_DIR"); v != "" {
		c.Embedding.CacheDir = v
	}
	if v := os.Getenv("SCHOLIA_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// parseFloat64 parses a string to float64, used for config parsing.
func parseFloat64(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(strings.TrimSpace(s), "%f", &f)
	return f, err
}

// FindCorpusRoot finds the corpus root directory.
// It looks for a .scholia.yaml/.yml file or a .scholia storage directory
// by walking up the directory tree. Falls back to the start directory.
func FindCorpusRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	currentDir := absDir
	for {
		if fileExists(filepath.Join(currentDir, ".scholia.yaml")) ||
			fileExists(filepath.Join(currentDir, ".scholia.yml")) {
			return currentDir, nil
		}

		if dirExists(filepath.Join(currentDir, ".scholia")) {
			return currentDir, nil
		}

		// Move up one directory
		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			// Reached root, return original directory
			return absDir, nil
		}
		currentDir = parentDir
	}
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// dirExists checks if a directory exists.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	// Validate retrieval weights
	if c.Retrieval.VectorWeight < 0 || c.Retrieval.VectorWeight > 1 {
		return fmt.Errorf("vector_weight must be between 0 and 1, got %f", c.Retrieval.VectorWeight)
	}
	if c.Retrieval.KeywordWeight < 0 || c.Retrieval.KeywordWeight > 1 {
		return fmt.Errorf("keyword_weight must be between 0 and 1, got %f", c.Retrieval.KeywordWeight)
	}

	// Validate weight sum
	sum := c.Retrieval.VectorWeight + c.Retrieval.KeywordWeight
	if math.Abs(sum-1.0) > 0.01 {
		return fmt.Errorf("vector_weight + keyword_weight must equal 1.0, got %.2f", sum)
	}

	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("top_k must be positive, got %d", c.Retrieval.TopK)
	}
	if c.Injection.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be positive, got %d", c.Injection.MaxTokens)
	}

	// Validate chunking
	if c.Index.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", c.Index.ChunkSize)
	}
	if c.Index.ChunkOverlap < 0 {
		return fmt.Errorf("chunk_overlap must be non-negative, got %d", c.Index.ChunkOverlap)
	}
	if c.Index.ChunkOverlap >= c.Index.ChunkSize {
		return fmt.Errorf("chunk_overlap (%d) must be smaller than chunk_size (%d)",
			c.Index.ChunkOverlap, c.Index.ChunkSize)
	}

	// Validate provider (empty string allowed for auto-detection)
	if c.Embedding.Provider != "" {
		validProviders := map[string]bool{"auto": true, "remote": true, "local": true, "static": true, "off": true}
		if !validProviders[strings.ToLower(c.Embedding.Provider)] {
			return fmt.Errorf("embedding.provider must be 'remote', 'local', 'static', 'off', or empty (auto-detect), got %s", c.Embedding.Provider)
		}
	}

	// Validate log level
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
