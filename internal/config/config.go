package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is the per-vault configuration file.
const ConfigFileName = ".vaultrag.yaml"

// Config represents the complete vaultrag configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Indexing   IndexingConfig   `yaml:"indexing" json:"indexing"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Store      StoreConfig      `yaml:"store" json:"store"`
	Watch      WatchConfig      `yaml:"watch" json:"watch"`
	WebSearch  WebSearchConfig  `yaml:"websearch" json:"websearch"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// IndexingConfig configures chunking and file selection.
type IndexingConfig struct {
	// ChunkSize is the maximum characters per leaf chunk.
	ChunkSize int `yaml:"chunk_size" json:"chunk_size"`

	// MaxHeaderLevel is the deepest heading that opens a section (1-6).
	MaxHeaderLevel int `yaml:"max_header_level" json:"max_header_level"`

	Exclude []string `yaml:"exclude" json:"exclude"`
	Include []string `yaml:"include" json:"include"`

	// Concurrency bounds in-flight embedding requests. 0 = one per chunk
	// in the batch.
	Concurrency int `yaml:"concurrency" json:"concurrency"`

	BatchSize int `yaml:"batch_size" json:"batch_size"`
}

// SearchConfig configures similarity search defaults.
type SearchConfig struct {
	MinSimilarity float64 `yaml:"min_similarity" json:"min_similarity"`
	Limit         int     `yaml:"limit" json:"limit"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	Provider   string `yaml:"provider" json:"provider"` // ollama, openai or static
	Model      string `yaml:"model" json:"model"`
	Host       string `yaml:"host" json:"host"` // Ollama endpoint or OpenAI-compatible base URL
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	CacheSize  int    `yaml:"cache_size" json:"cache_size"`
	Timeout    string `yaml:"timeout" json:"timeout"`
}

// StoreConfig configures the vector store.
type StoreConfig struct {
	// Path is the database file. Relative paths resolve against the vault's
	// data directory.
	Path   string `yaml:"path" json:"path"`
	Driver string `yaml:"driver" json:"driver"` // sqlite (pure Go) or sqlite3 (cgo)
}

// WatchConfig configures watch mode.
type WatchConfig struct {
	Debounce string `yaml:"debounce" json:"debounce"`
}

// WebSearchConfig configures web search fan-out.
type WebSearchConfig struct {
	Timeout   string              `yaml:"timeout" json:"timeout"`
	Providers []WebProviderConfig `yaml:"providers" json:"providers"`
}

// WebProviderConfig describes one JSON web search endpoint. A GET request
// sends the query as the q parameter, a POST sends it as "query" in a JSON
// body.
type WebProviderConfig struct {
	Name string `yaml:"name" json:"name"`
	// Type is "http" (default) or "tavily", which fills in Tavily's
	// endpoint, method and key variable.
	Type       string `yaml:"type,omitempty" json:"type,omitempty"`
	Endpoint   string `yaml:"endpoint" json:"endpoint"`
	Method     string `yaml:"method,omitempty" json:"method,omitempty"` // GET or POST
	APIKeyEnv  string `yaml:"api_key_env" json:"api_key_env"`
	KeyHeader  string `yaml:"key_header" json:"key_header"` // Defaults to Authorization: Bearer
	MaxResults int    `yaml:"max_results" json:"max_results"`
	// Params are extra query parameters (GET) or body fields (POST), such
	// as Tavily's search_depth.
	Params map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
}

// LoggingConfig configures the file logger.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	// MaxSizeMB rolls vaultrag.log over at this size; 0 uses 10.
	MaxSizeMB int `yaml:"max_size_mb,omitempty" json:"max_size_mb,omitempty"`
	// MaxFiles is how many rolled-over files are kept; 0 uses 5.
	MaxFiles int `yaml:"max_files,omitempty" json:"max_files,omitempty"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Indexing: IndexingConfig{
			ChunkSize:      1000,
			MaxHeaderLevel: 3,
			Exclude:        []string{},
			Include:        []string{},
			Concurrency:    0,
			BatchSize:      100,
		},
		Search: SearchConfig{
			MinSimilarity: 0,
			Limit:         10,
		},
		Embeddings: EmbeddingsConfig{
			Provider:  "ollama",
			Model:     "", // Empty uses the provider default
			CacheSize: 1000,
			Timeout:   "60s",
		},
		Store: StoreConfig{
			Path:   "vectors.db",
			Driver: "sqlite",
		},
		Watch: WatchConfig{
			Debounce: "500ms",
		},
		WebSearch: WebSearchConfig{
			Timeout: "30s",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// GetUserConfigPath returns $XDG_CONFIG_HOME/vaultrag/config.yaml, or
// ~/.config/vaultrag/config.yaml. Its settings apply to every vault.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "vaultrag", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "vaultrag", "config.yaml")
	}
	return filepath.Join(home, ".config", "vaultrag", "config.yaml")
}

// UserConfigExists reports whether the user config layer is present.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// loadUserConfig returns nil, nil when there is no user config.
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()
	if !fileExists(configPath) {
		return nil, nil
	}

	var parsed Config
	if err := parseYAML(configPath, &parsed); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}
	return &parsed, nil
}

// Load loads configuration for the vault at dir.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/vaultrag/config.yaml)
//  3. Vault config (.vaultrag.yaml in the vault root)
//  4. .env in the vault root (never overrides variables already set)
//  5. Environment variables (VAULTRAG_*)
func Load(dir string) (*Config, error) {
	return LoadWithFile(dir, "")
}

// LoadWithFile is Load with an explicit config file replacing the vault's
// .vaultrag.yaml. An empty path behaves like Load.
func LoadWithFile(dir, path string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if path != "" {
		if !fileExists(path) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	} else if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	if err := loadDotEnv(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadDotEnv loads dir/.env into the process environment if present.
func loadDotEnv(dir string) error {
	path := filepath.Join(dir, ".env")
	if !fileExists(path) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// loadFromFile attempts to load configuration from .vaultrag.yaml or .vaultrag.yml.
func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ConfigFileName)
	if fileExists(yamlPath) {
		return c.loadYAML(yamlPath)
	}

	ymlPath := filepath.Join(dir, ".vaultrag.yml")
	if fileExists(ymlPath) {
		return c.loadYAML(ymlPath)
	}

	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	var parsed Config
	if err := parseYAML(path, &parsed); err != nil {
		return err
	}
	c.mergeWith(&parsed)
	return nil
}

func parseYAML(path string, into *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, into); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	// Indexing
	if other.Indexing.ChunkSize != 0 {
		c.Indexing.ChunkSize = other.Indexing.ChunkSize
	}
	if other.Indexing.MaxHeaderLevel != 0 {
		c.Indexing.MaxHeaderLevel = other.Indexing.MaxHeaderLevel
	}
	if len(other.Indexing.Exclude) > 0 {
		c.Indexing.Exclude = append(c.Indexing.Exclude, other.Indexing.Exclude...)
	}
	if len(other.Indexing.Include) > 0 {
		c.Indexing.Include = other.Indexing.Include
	}
	if other.Indexing.Concurrency != 0 {
		c.Indexing.Concurrency = other.Indexing.Concurrency
	}
	if other.Indexing.BatchSize != 0 {
		c.Indexing.BatchSize = other.Indexing.BatchSize
	}

	// Search. A zero min_similarity is the default, so only non-zero merges.
	if other.Search.MinSimilarity != 0 {
		c.Search.MinSimilarity = other.Search.MinSimilarity
	}
	if other.Search.Limit != 0 {
		c.Search.Limit = other.Search.Limit
	}

	// Embeddings
	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Host != "" {
		c.Embeddings.Host = other.Embeddings.Host
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.CacheSize != 0 {
		c.Embeddings.CacheSize = other.Embeddings.CacheSize
	}
	if other.Embeddings.Timeout != "" {
		c.Embeddings.Timeout = other.Embeddings.Timeout
	}

	// Store
	if other.Store.Path != "" {
		c.Store.Path = other.Store.Path
	}
	if other.Store.Driver != "" {
		c.Store.Driver = other.Store.Driver
	}

	if other.Watch.Debounce != "" {
		c.Watch.Debounce = other.Watch.Debounce
	}
	if other.WebSearch.Timeout != "" {
		c.WebSearch.Timeout = other.WebSearch.Timeout
	}
	if len(other.WebSearch.Providers) > 0 {
		c.WebSearch.Providers = other.WebSearch.Providers
	}
	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.MaxSizeMB != 0 {
		c.Logging.MaxSizeMB = other.Logging.MaxSizeMB
	}
	if other.Logging.MaxFiles != 0 {
		c.Logging.MaxFiles = other.Logging.MaxFiles
	}
}

// applyEnvOverrides applies VAULTRAG_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("VAULTRAG_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	// VAULTRAG_EMBEDDER is an alias for VAULTRAG_EMBEDDINGS_PROVIDER
	if v := os.Getenv("VAULTRAG_EMBEDDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("VAULTRAG_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("VAULTRAG_EMBEDDINGS_HOST"); v != "" {
		c.Embeddings.Host = v
	}
	if v := os.Getenv("VAULTRAG_CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Indexing.ChunkSize = n
		}
	}
	// Explicit zero is allowed here, unlike in YAML.
	if v := os.Getenv("VAULTRAG_MIN_SIMILARITY"); v != "" {
		if f, err := parseFloat64(v); err == nil {
			c.Search.MinSimilarity = f
		}
	}
	if v := os.Getenv("VAULTRAG_STORE_DRIVER"); v != "" {
		c.Store.Driver = v
	}
	if v := os.Getenv("VAULTRAG_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// parseFloat64 parses a string to float64, used for config parsing.
func parseFloat64(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

// FindVaultRoot walks up from startDir looking for .vaultrag.yaml or an
// .obsidian directory. It returns startDir (absolute) if neither is found.
func FindVaultRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	currentDir := absDir
	for {
		if fileExists(filepath.Join(currentDir, ConfigFileName)) ||
			dirExists(filepath.Join(currentDir, ".obsidian")) {
			return currentDir, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
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
	if c.Indexing.ChunkSize <= 0 {
		return fmt.Errorf("indexing.chunk_size must be positive, got %d", c.Indexing.ChunkSize)
	}
	if c.Indexing.MaxHeaderLevel < 1 || c.Indexing.MaxHeaderLevel > 6 {
		return fmt.Errorf("indexing.max_header_level must be between 1 and 6, got %d", c.Indexing.MaxHeaderLevel)
	}
	if c.Indexing.Concurrency < 0 {
		return fmt.Errorf("indexing.concurrency must be non-negative, got %d", c.Indexing.Concurrency)
	}
	if c.Indexing.BatchSize < 0 {
		return fmt.Errorf("indexing.batch_size must be non-negative, got %d", c.Indexing.BatchSize)
	}

	if c.Search.MinSimilarity < -1 || c.Search.MinSimilarity > 1 {
		return fmt.Errorf("search.min_similarity must be between -1 and 1, got %f", c.Search.MinSimilarity)
	}
	if c.Search.Limit < 0 {
		return fmt.Errorf("search.limit must be non-negative, got %d", c.Search.Limit)
	}

	validProviders := map[string]bool{"ollama": true, "openai": true, "static": true}
	if !validProviders[strings.ToLower(c.Embeddings.Provider)] {
		return fmt.Errorf("embeddings.provider must be 'ollama', 'openai' or 'static', got %s", c.Embeddings.Provider)
	}
	if c.Embeddings.Dimensions < 0 {
		return fmt.Errorf("embeddings.dimensions must be non-negative, got %d", c.Embeddings.Dimensions)
	}

	validDrivers := map[string]bool{"sqlite": true, "sqlite3": true}
	if !validDrivers[c.Store.Driver] {
		return fmt.Errorf("store.driver must be 'sqlite' or 'sqlite3', got %s", c.Store.Driver)
	}

	durations := []struct{ name, value string }{
		{"embeddings.timeout", c.Embeddings.Timeout},
		{"watch.debounce", c.Watch.Debounce},
		{"websearch.timeout", c.WebSearch.Timeout},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		if dur, err := time.ParseDuration(d.value); err != nil || dur < 0 {
			return fmt.Errorf("%s must be a non-negative duration like \"500ms\", got %q", d.name, d.value)
		}
	}

	seen := make(map[string]bool, len(c.WebSearch.Providers))
	for i, p := range c.WebSearch.Providers {
		switch strings.ToLower(p.Type) {
		case "", "http":
			if p.Name == "" || p.Endpoint == "" {
				return fmt.Errorf("websearch.providers[%d] needs a name and an endpoint", i)
			}
		case "tavily":
			if p.Name == "" {
				return fmt.Errorf("websearch.providers[%d] needs a name", i)
			}
		default:
			return fmt.Errorf("websearch.providers[%d].type must be 'http' or 'tavily', got %s", i, p.Type)
		}
		switch strings.ToUpper(p.Method) {
		case "", "GET", "POST":
		default:
			return fmt.Errorf("websearch.providers[%d].method must be GET or POST, got %s", i, p.Method)
		}
		if seen[p.Name] {
			return fmt.Errorf("websearch.providers has duplicate name %q", p.Name)
		}
		seen[p.Name] = true
		if p.MaxResults < 0 {
			return fmt.Errorf("websearch.providers[%d].max_results must be non-negative, got %d", i, p.MaxResults)
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}
	if c.Logging.MaxSizeMB < 0 || c.Logging.MaxFiles < 0 {
		return fmt.Errorf("logging.max_size_mb and logging.max_files must be non-negative")
	}

	return nil
}

// duration parses a validated duration, returning fallback when empty.
func duration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// EmbeddingTimeout returns the per-request embedding timeout.
func (c *Config) EmbeddingTimeout() time.Duration {
	return duration(c.Embeddings.Timeout, 60*time.Second)
}

// WatchDebounce returns the watch-mode debounce window.
func (c *Config) WatchDebounce() time.Duration {
	return duration(c.Watch.Debounce, 500*time.Millisecond)
}

// WebSearchTimeout returns the web search fan-out timeout.
func (c *Config) WebSearchTimeout() time.Duration {
	return duration(c.WebSearch.Timeout, 30*time.Second)
}

// StorePath resolves the database path against dataDir.
func (c *Config) StorePath(dataDir string) string {
	if c.Store.Path == "" || filepath.IsAbs(c.Store.Path) {
		return c.Store.Path
	}
	return filepath.Join(dataDir, c.Store.Path)
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
