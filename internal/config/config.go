package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Auth    AuthConfig
	Insight InsightConfig
	Fetch   FetchConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	DataDir     string
	ArtifactDir string
}

type AuthConfig struct {
	Token string
}

type InsightConfig struct {
	Enabled bool
	BaseURL string
	Model   string
}

type FetchConfig struct {
	TimeoutSeconds int
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	dataDir := defaultDataDir()
	return Config{
		Server: ServerConfig{
			Port: 4100,
		},
		Storage: StorageConfig{
			DataDir:     dataDir,
			ArtifactDir: filepath.Join(dataDir, "artifacts"),
		},
		Insight: InsightConfig{
			Enabled: false,
			BaseURL: "http://localhost:11434",
			Model:   "phi3.5",
		},
		Fetch: FetchConfig{
			TimeoutSeconds: 15,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and the platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.chat2doc.app) and the API
// token falls back to macOS Keychain. On Linux the backend is a JSON file at
// $XDG_CONFIG_HOME/chat2doc/config.json and the token falls back to a secrets
// file under $XDG_DATA_HOME.
//
// Environment variables (CHAT2DOC_*) override backend values on all
// platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), keychainReader{})
}

// keychain abstracts secret retrieval for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Auth.Token == "" {
		if tok, err := kc.Get("chat2doc", "api_token"); err == nil && tok != "" {
			cfg.Auth.Token = tok
		}
	}

	if cfg.Auth.Token == "" {
		msg := "missing required config: API token. " +
			"Set it via environment variable CHAT2DOC_API_TOKEN" +
			tokenHint()
		return Config{}, fmt.Errorf("%s", msg)
	}

	return cfg, nil
}

// keychainReader reads from the platform secret store.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainExec(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
