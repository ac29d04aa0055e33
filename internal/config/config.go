package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// LLM provider tags understood by the backend.
const (
	ProviderOpenAI = "openai"
	ProviderBytez  = "bytez"
	ProviderLocal  = "local"

	// ProviderUnknown is reported when the backend config cannot be read.
	ProviderUnknown = "unknown"
)

// Providers lists the selectable provider tags in display order.
var Providers = []string{ProviderOpenAI, ProviderBytez, ProviderLocal}

// ProviderLabels maps a provider tag to its display name.
var ProviderLabels = map[string]string{
	ProviderOpenAI: "OpenAI",
	ProviderBytez:  "Bytez",
	ProviderLocal:  "Local (Ollama)",
}

const (
	DefaultBackendURL = "http://localhost:8000"
	DefaultListenAddr = ":3000"
	DefaultLogDir     = "logs"
	DefaultConfigFile = "docchat.toml"
)

// Config holds application configuration
type Config struct {
	BackendURL   string `toml:"backend_url"`   // Origin of the chat/documents backend
	ListenAddr   string `toml:"listen_addr"`   // Address of the web front-end
	Serve        bool   `toml:"serve"`         // Run the web front-end instead of the terminal
	UseDocuments bool   `toml:"use_documents"` // Initial value of the use-documents flag
	WatchDir     string `toml:"watch_dir"`     // Drop folder for automatic uploads (optional)
	LogDir       string `toml:"log_dir"`
	Debug        bool   `toml:"debug"`
}

// ValidProvider reports whether tag is one of the selectable providers.
func ValidProvider(tag string) bool {
	for _, p := range Providers {
		if p == tag {
			return true
		}
	}
	return false
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		BackendURL:   DefaultBackendURL,
		ListenAddr:   DefaultListenAddr,
		UseDocuments: true,
		LogDir:       DefaultLogDir,
	}
}

// Load builds the configuration from defaults, the optional TOML file,
// a .env file and the environment, in that order. An empty path means
// DefaultConfigFile, which may be absent; a named file must exist.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}
	if _, err := os.Stat(path); explicit || !errors.Is(err, os.ErrNotExist) {
		if err := LoadFile(path, &cfg); err != nil {
			return cfg, err
		}
	}

	// .env is optional
	_ = godotenv.Load()

	if err := ApplyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadFile overlays the TOML file at path onto cfg.
func LoadFile(path string, cfg *Config) error {
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode config file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays DOCCHAT_* environment variables onto cfg.
func ApplyEnv(cfg *Config) error {
	if v := os.Getenv("DOCCHAT_API_URL"); v != "" {
		cfg.BackendURL = v
	}
	if v := os.Getenv("DOCCHAT_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("DOCCHAT_WATCH_DIR"); v != "" {
		cfg.WatchDir = v
	}
	if v := os.Getenv("DOCCHAT_LOG_DIR"); v != "" {
		cfg.LogDir = v
	}
	if v := os.Getenv("DOCCHAT_DEBUG"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid DOCCHAT_DEBUG %q: %w", v, err)
		}
		cfg.Debug = b
	}
	if v := os.Getenv("DOCCHAT_USE_DOCUMENTS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid DOCCHAT_USE_DOCUMENTS %q: %w", v, err)
		}
		cfg.UseDocuments = b
	}
	return nil
}

// Validate checks that the backend origin is an absolute http(s) URL.
func (c Config) Validate() error {
	u, err := url.Parse(c.BackendURL)
	if err != nil {
		return fmt.Errorf("invalid backend url %q: %w", c.BackendURL, err)
	}
	if u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("invalid backend url %q: must be an absolute http(s) url", c.BackendURL)
	}
	if strings.TrimSpace(c.ListenAddr) == "" && c.Serve {
		return errors.New("listen address is required in serve mode")
	}
	return nil
}
