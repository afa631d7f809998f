// Package config provides configuration for the convsearch binary.
// Loads from: CLI flags > env vars > .convsearch/config.toml > built-in
// defaults, the same layering the teacher's config package used for a
// vault.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
)

// Embedding model settings.
const (
	EmbeddingModel = "nomic-embed-text"
)

// EmbeddingDim returns the configured embedding dimensions. It checks the
// embedding provider config for an explicit dimensions setting, then falls
// back to provider-specific defaults.
func EmbeddingDim() int {
	ec := EmbeddingProviderConfig()
	if ec.Dimensions > 0 {
		return ec.Dimensions
	}
	switch ec.Provider {
	case "openai":
		model := ec.Model
		if model == "" {
			model = "text-embedding-3-small"
		}
		switch model {
		case "text-embedding-3-large":
			return 3072
		default:
			return 1536
		}
	default: // "ollama" or ""
		model := ec.Model
		if model == "" {
			model = EmbeddingModel
		}
		switch model {
		case "mxbai-embed-large":
			return 1024
		case "all-minilm":
			return 384
		case "snowflake-arctic-embed":
			return 1024
		case "bge-m3":
			return 1024
		default:
			return 768
		}
	}
}

// ModelInfo describes a known embedding model.
type ModelInfo struct {
	Name       string
	Provider   string
	Dimensions int
}

// KnownModels lists embedding models convsearch has provider-default
// dimensions for, consulted by IsKnownModel.
var KnownModels = []ModelInfo{
	{Name: "nomic-embed-text", Provider: "ollama", Dimensions: 768},
	{Name: "mxbai-embed-large", Provider: "ollama", Dimensions: 1024},
	{Name: "all-minilm", Provider: "ollama", Dimensions: 384},
	{Name: "bge-m3", Provider: "ollama", Dimensions: 1024},
	{Name: "text-embedding-3-small", Provider: "openai", Dimensions: 1536},
	{Name: "text-embedding-3-large", Provider: "openai", Dimensions: 3072},
}

// IsKnownModel reports whether name appears in KnownModels.
func IsKnownModel(name string) bool {
	for _, m := range KnownModels {
		if m.Name == name {
			return true
		}
	}
	return false
}

// Config holds all convsearch configuration, loaded from TOML + env + flags.
type Config struct {
	Corpus    CorpusConfig    `toml:"corpus"`
	Ollama    OllamaConfig    `toml:"ollama"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Extract   ExtractConfig   `toml:"extract"`
}

// CorpusConfig holds conversation-corpus settings.
type CorpusConfig struct {
	Path     string   `toml:"path"`
	SkipDirs []string `toml:"skip_dirs"`
}

// OllamaConfig holds Ollama connection settings.
type OllamaConfig struct {
	URL   string `toml:"url"`
	Model string `toml:"model"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `toml:"provider"`   // "ollama" (default), "openai", "openai-compatible"
	Model      string `toml:"model"`      // model name (provider-specific default if empty)
	APIKey     string `toml:"api_key"`    // API key (required for openai, optional for openai-compatible)
	BaseURL    string `toml:"base_url"`   // base URL for embedding API (provider-specific default if empty)
	Dimensions int    `toml:"dimensions"` // vector dimensions (0 = provider default)
}

// ExtractConfig holds semantic-ref extraction settings.
type ExtractConfig struct {
	LLMMode string `toml:"llm_mode"` // "off" (default), "local-only", "on"
}

// DefaultConfig returns a Config with all built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Ollama: OllamaConfig{
			URL:   "http://localhost:11434",
			Model: EmbeddingModel,
		},
		Embedding: EmbeddingConfig{
			Provider: "ollama",
			Model:    EmbeddingModel,
		},
		Extract: ExtractConfig{
			LLMMode: "off",
		},
	}
}

// LoadConfig merges all configuration sources: defaults < TOML file < env
// vars. CLI flags (CorpusOverride) are handled separately by CorpusPath.
func LoadConfig() (*Config, error) {
	configPath := findConfigFile()
	return LoadConfigFrom(configPath)
}

// LoadConfigFrom loads configuration from a specific file path, merging
// with defaults and env vars. Use this instead of LoadConfig() when you
// know exactly which config file to load (e.g. after writing one during
// `convsearch init`).
func LoadConfigFrom(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			meta, err := toml.DecodeFile(configPath, cfg)
			if err != nil {
				return nil, fmt.Errorf("parse config %s: %w", configPath, err)
			}
			warnUnknownKeys(meta, configPath)
		}
	}

	if v := os.Getenv("CONVSEARCH_CORPUS"); v != "" {
		cfg.Corpus.Path = v
	}
	if v := os.Getenv("OLLAMA_URL"); v != "" {
		cfg.Ollama.URL = v
	}
	if v := os.Getenv("CONVSEARCH_SKIP_DIRS"); v != "" {
		for _, d := range strings.Split(v, ",") {
			if d = strings.TrimSpace(d); d != "" {
				cfg.Corpus.SkipDirs = append(cfg.Corpus.SkipDirs, d)
			}
		}
	}
	if v := os.Getenv("CONVSEARCH_EMBED_PROVIDER"); v != "" {
		cfg.Embedding.Provider = v
	}
	if v := os.Getenv("CONVSEARCH_EMBED_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}
	if v := os.Getenv("CONVSEARCH_EMBED_BASE_URL"); v != "" {
		cfg.Embedding.BaseURL = v
	}
	if v := os.Getenv("CONVSEARCH_EMBED_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("CONVSEARCH_EXTRACT_LLM"); v != "" {
		cfg.Extract.LLMMode = v
	}
	if cfg.Embedding.APIKey == "" && (cfg.Embedding.Provider == "openai" || cfg.Embedding.Provider == "openai-compatible") {
		if v := os.Getenv("OPENAI_API_KEY"); v != "" {
			cfg.Embedding.APIKey = v
		}
	}

	if len(cfg.Corpus.SkipDirs) > 0 {
		RebuildSkipDirs(cfg.Corpus.SkipDirs)
	}

	return cfg, nil
}

func findConfigFile() string {
	if cp := resolveCorpusForConfig(); cp != "" {
		p := filepath.Join(cp, ".convsearch", "config.toml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	if cwd, err := os.Getwd(); err == nil {
		p := filepath.Join(cwd, ".convsearch", "config.toml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// resolveCorpusForConfig resolves the corpus path for config loading
// without calling CorpusPath(), to avoid a circular dependency with config
// loading itself.
func resolveCorpusForConfig() string {
	if CorpusOverride != "" {
		return CorpusOverride
	}
	if v := os.Getenv("CONVSEARCH_CORPUS"); v != "" {
		return v
	}
	return ""
}

// ConfigFilePath returns the path where the config file should be written
// for the given corpus path.
func ConfigFilePath(corpusPath string) string {
	return filepath.Join(corpusPath, ".convsearch", "config.toml")
}

// GenerateConfig writes a default .convsearch/config.toml with comments.
func GenerateConfig(corpusPath string) error {
	configPath := ConfigFilePath(corpusPath)
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(configPath, []byte(generateTOMLContent(corpusPath)), 0o600)
}

func generateTOMLContent(corpusPath string) string {
	var b strings.Builder
	b.WriteString("# convsearch configuration\n")
	b.WriteString("#\n")
	b.WriteString("# Priority: CLI flags > environment variables > this file > built-in defaults\n")
	b.WriteString("# Environment variables: CONVSEARCH_CORPUS, OLLAMA_URL, CONVSEARCH_SKIP_DIRS,\n")
	b.WriteString("#   CONVSEARCH_EMBED_PROVIDER, CONVSEARCH_EMBED_MODEL, CONVSEARCH_EMBED_BASE_URL,\n")
	b.WriteString("#   CONVSEARCH_EMBED_API_KEY, CONVSEARCH_EXTRACT_LLM\n\n")

	b.WriteString("[corpus]\n")
	if corpusPath != "" {
		b.WriteString(fmt.Sprintf("path = %q\n", corpusPath))
	} else {
		b.WriteString("# path = \"/path/to/your/conversation/exports\"\n")
	}
	b.WriteString("# skip_dirs = [\".venv\", \"build\"]  # added to built-in exclusions\n\n")

	b.WriteString("[ollama]\n")
	b.WriteString("url = \"http://localhost:11434\"\n")
	b.WriteString("model = \"nomic-embed-text\"\n\n")

	b.WriteString("[embedding]\n")
	b.WriteString("# Embedding provider: \"ollama\" (default), \"openai\", \"openai-compatible\", or \"none\" (keyword-only)\n")
	activeProvider := EmbeddingProvider()
	if activeProvider == "" {
		activeProvider = "ollama"
	}
	b.WriteString(fmt.Sprintf("provider = %q\n", activeProvider))
	b.WriteString(fmt.Sprintf("model = %q\n", EmbeddingModel))
	b.WriteString("# api_key = \"\"    # required for cloud providers, or set CONVSEARCH_EMBED_API_KEY / OPENAI_API_KEY\n")
	b.WriteString("# dimensions = 0  # 0 = use provider default\n\n")

	b.WriteString("[extract]\n")
	b.WriteString("# Semantic-ref extraction policy:\n")
	b.WriteString("#   \"off\"        = regex-only extraction (default)\n")
	b.WriteString("#   \"local-only\" = allow LLM extraction only with local chat endpoints\n")
	b.WriteString("#   \"on\"         = allow LLM extraction with any configured chat provider\n")
	b.WriteString("llm_mode = \"off\"\n")

	return b.String()
}

// ShowConfig returns the current effective configuration as TOML.
func ShowConfig() string {
	cfg, err := LoadConfig()
	if err != nil {
		return fmt.Sprintf("# Error loading config: %v\n", err)
	}
	var buf strings.Builder
	enc := toml.NewEncoder(&buf)
	_ = enc.Encode(cfg)
	return buf.String()
}

// EmbeddingProvider returns the configured embedding provider name.
func EmbeddingProvider() string {
	if v := os.Getenv("CONVSEARCH_EMBED_PROVIDER"); v != "" {
		return v
	}
	if cfg := loadConfigSafe(); cfg != nil && cfg.Embedding.Provider != "" {
		return cfg.Embedding.Provider
	}
	return "ollama"
}

// EmbeddingProviderConfig returns the full embedding provider configuration.
func EmbeddingProviderConfig() EmbeddingConfig {
	cfg := loadConfigSafe()
	if cfg == nil {
		return EmbeddingConfig{Provider: "ollama"}
	}
	ec := cfg.Embedding
	if ec.Provider == "" {
		ec.Provider = "ollama"
	}
	if v := os.Getenv("CONVSEARCH_EMBED_PROVIDER"); v != "" {
		ec.Provider = v
	}
	if v := os.Getenv("CONVSEARCH_EMBED_MODEL"); v != "" {
		ec.Model = v
	}
	if v := os.Getenv("CONVSEARCH_EMBED_BASE_URL"); v != "" {
		ec.BaseURL = v
	}
	if v := os.Getenv("CONVSEARCH_EMBED_API_KEY"); v != "" {
		ec.APIKey = v
	}
	if ec.APIKey == "" && (ec.Provider == "openai" || ec.Provider == "openai-compatible") {
		if v := os.Getenv("OPENAI_API_KEY"); v != "" {
			ec.APIKey = v
		}
	}
	if ec.Provider == "ollama" && cfg.Ollama.Model != "" && cfg.Ollama.Model != EmbeddingModel {
		if ec.Model == "" || ec.Model == EmbeddingModel {
			ec.Model = cfg.Ollama.Model
		}
	}
	return ec
}

// ExtractLLMMode returns the semantic-ref extraction LLM policy:
// "off" (default), "local-only", or "on".
func ExtractLLMMode() string {
	mode := ""
	if v := os.Getenv("CONVSEARCH_EXTRACT_LLM"); v != "" {
		mode = v
	} else if cfg := loadConfigSafe(); cfg != nil {
		mode = cfg.Extract.LLMMode
	}
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "off", "false", "0", "disabled":
		return "off"
	case "local-only", "local":
		return "local-only"
	case "on", "true", "1", "enabled":
		return "on"
	default:
		return "off"
	}
}

func loadConfigSafe() *Config {
	cfg, err := LoadConfig()
	if err != nil {
		return nil
	}
	return cfg
}

// ConfigWarning returns any config file parse error, or empty string if OK.
func ConfigWarning() string {
	_, err := LoadConfig()
	if err != nil {
		return err.Error()
	}
	return ""
}

// FindConfigFile returns the path to the active config file, or empty
// string if none found.
func FindConfigFile() string {
	return findConfigFile()
}

// configSuggestions maps common wrong keys to the correct TOML key name.
var configSuggestions = map[string]string{
	"exclude_paths": "skip_dirs",
	"exclude_dirs":  "skip_dirs",
	"skip_paths":    "skip_dirs",
	"ignored_dirs":  "skip_dirs",
	"ignore_dirs":   "skip_dirs",
	"excludes":      "skip_dirs",
	"apikey":        "api_key",
	"api-key":       "api_key",
	"baseurl":       "base_url",
	"base-url":      "base_url",
}

// warnUnknownKeys prints warnings for unrecognized config keys.
func warnUnknownKeys(meta toml.MetaData, configPath string) {
	undecoded := meta.Undecoded()
	if len(undecoded) == 0 {
		return
	}
	fname := filepath.Base(configPath)
	for _, key := range undecoded {
		keyStr := key.String()
		lastPart := key[len(key)-1]
		if suggestion, ok := configSuggestions[lastPart]; ok {
			fmt.Fprintf(os.Stderr, "convsearch: WARNING: unknown key %q in %s — did you mean %q?\n", keyStr, fname, suggestion)
		} else {
			fmt.Fprintf(os.Stderr, "convsearch: WARNING: unknown key %q in %s (will be ignored)\n", keyStr, fname)
		}
	}
}

// defaultSkipDirs are directories to skip during corpus walks.
var defaultSkipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	".convsearch":  true,
	".trash":       true,
}

// SkipDirs is the set of directories to skip during corpus walks.
var SkipDirs = buildSkipDirs()

func buildSkipDirs() map[string]bool {
	dirs := make(map[string]bool)
	for k, v := range defaultSkipDirs {
		dirs[k] = v
	}
	if extra := os.Getenv("CONVSEARCH_SKIP_DIRS"); extra != "" {
		for _, d := range strings.Split(extra, ",") {
			if d = strings.TrimSpace(d); d != "" {
				dirs[d] = true
			}
		}
	}
	return dirs
}

// RebuildSkipDirs rebuilds the SkipDirs map, incorporating config file
// settings. Called after config is loaded if skip_dirs is set in TOML.
func RebuildSkipDirs(extra []string) {
	dirs := buildSkipDirs()
	for _, d := range extra {
		if d = strings.TrimSpace(d); d != "" {
			dirs[d] = true
		}
	}
	SkipDirs = dirs
}

// CorpusOverride is set by a CLI flag (highest priority) before CorpusPath
// is called.
var CorpusOverride string

// corpusMarker is the dotfile that marks a directory as an already
// initialized conversation corpus.
const corpusMarker = ".convsearch"

// CorpusPath returns the conversation corpus root directory.
// SECURITY: validates the path is a reasonable corpus root (not / or
// another dangerous top-level path that would cause an ingest walk to
// cover the entire filesystem).
func CorpusPath() string {
	var path string
	switch {
	case CorpusOverride != "":
		path = CorpusOverride
	case os.Getenv("CONVSEARCH_CORPUS") != "":
		path = os.Getenv("CONVSEARCH_CORPUS")
	default:
		if cfg := loadConfigSafe(); cfg != nil && cfg.Corpus.Path != "" {
			path = cfg.Corpus.Path
		} else {
			path = defaultCorpusPath()
		}
	}
	if path != "" {
		path = validateCorpusPath(path)
	}
	return path
}

func defaultCorpusPath() string {
	if cwd, err := os.Getwd(); err == nil {
		if _, err := os.Stat(filepath.Join(cwd, corpusMarker)); err == nil {
			return cwd
		}
	}
	return ""
}

// validateCorpusPath rejects corpus paths that are too broad (e.g. /,
// /home, /Users) and resolves symlinks to prevent symlink-based escapes.
func validateCorpusPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	dangerous := []string{"/", "/home", "/Users", "/tmp", "/var", "/etc", "/opt"}
	if runtime.GOOS == "windows" && len(abs) >= 3 {
		for _, letter := range "ABCDEFGHIJKLMNOPQRSTUVWXYZ" {
			dangerous = append(dangerous, string(letter)+":\\")
		}
		driveRoot := abs[:3]
		dangerous = append(dangerous, filepath.Join(driveRoot, "Users"), filepath.Join(driveRoot, "Windows"))
	}
	for _, d := range dangerous {
		if abs == d {
			fmt.Fprintf(os.Stderr, "WARNING: corpus path %q is too broad, ignoring.\n", abs)
			return ""
		}
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return path
	}
	for _, d := range dangerous {
		if resolved == d {
			fmt.Fprintf(os.Stderr, "WARNING: corpus path %q resolves to %q which is too broad, ignoring.\n", abs, resolved)
			return ""
		}
		if resolvedDangerous, err := filepath.EvalSymlinks(d); err == nil && resolved == resolvedDangerous {
			fmt.Fprintf(os.Stderr, "WARNING: corpus path %q resolves to %q which is too broad, ignoring.\n", abs, resolved)
			return ""
		}
	}
	return path
}

// Sentinel errors for consistent messaging across the CLI and MCP server.
var (
	ErrNoCorpus       = fmt.Errorf("no conversation corpus found — run 'convsearch init' or set CONVSEARCH_CORPUS")
	ErrNoDatabase     = fmt.Errorf("cannot open convsearch database — run 'convsearch init', 'convsearch ingest', or 'convsearch doctor' to diagnose")
	ErrOllamaNotLocal = fmt.Errorf("OLLAMA_URL must point to localhost for security")
)

// OllamaURL returns the validated Ollama API URL.
func OllamaURL() (string, error) {
	raw := os.Getenv("OLLAMA_URL")
	if raw == "" {
		if cfg := loadConfigSafe(); cfg != nil && cfg.Ollama.URL != "" {
			raw = cfg.Ollama.URL
		} else {
			raw = "http://localhost:11434"
		}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid OLLAMA_URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("OLLAMA_URL must use http or https scheme, got: %s", u.Scheme)
	}
	host := u.Hostname()
	if host != "localhost" && host != "127.0.0.1" && host != "::1" {
		return "", ErrOllamaNotLocal
	}
	return raw, nil
}

// DBPath returns the path to the SQLite database file.
func DBPath() string {
	return filepath.Join(DataDir(), "convsearch.db")
}

// DataDir returns the data directory for the convsearch binary.
func DataDir() string {
	if v := os.Getenv("CONVSEARCH_DATA_DIR"); v != "" {
		return validateDataDir(v)
	}
	return filepath.Join(CorpusPath(), ".convsearch", "data")
}

// validateDataDir checks that the given path is a valid, writable
// directory (or can be created). Falls back to the default data dir if
// the path is invalid.
func validateDataDir(dir string) string {
	fallback := filepath.Join(CorpusPath(), ".convsearch", "data")
	abs, err := filepath.Abs(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "WARNING: CONVSEARCH_DATA_DIR=%q is not a valid path, using default.\n", dir)
		return fallback
	}
	info, err := os.Stat(abs)
	if err == nil {
		if !info.IsDir() {
			fmt.Fprintf(os.Stderr, "WARNING: CONVSEARCH_DATA_DIR=%q is not a directory, using default.\n", abs)
			return fallback
		}
		testFile := filepath.Join(abs, ".convsearch_write_test")
		if f, err := os.Create(testFile); err != nil {
			fmt.Fprintf(os.Stderr, "WARNING: CONVSEARCH_DATA_DIR=%q is not writable, using default.\n", abs)
			return fallback
		} else {
			f.Close()
			os.Remove(testFile)
		}
		return abs
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "WARNING: CONVSEARCH_DATA_DIR=%q cannot be created (%v), using default.\n", abs, err)
		return fallback
	}
	return abs
}

// VerboseEnabled reports whether verbose diagnostic output is requested.
func VerboseEnabled() bool {
	return os.Getenv("CONVSEARCH_VERBOSE") == "1"
}
