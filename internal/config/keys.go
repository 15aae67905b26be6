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
	kBool
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
		key: "server.port", typ: kInt, env: "CHAT2DOC_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "storage.data_dir", typ: kString, env: "CHAT2DOC_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.artifact_dir", typ: kString, env: "CHAT2DOC_STORAGE_ARTIFACT_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.ArtifactDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.ArtifactDir },
	},
	{
		key: "auth.api_token", typ: kString, env: "CHAT2DOC_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Auth.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.Auth.Token },
	},
	{
		key: "insight.enabled", typ: kBool, env: "CHAT2DOC_INSIGHT_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Insight.Enabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Insight.Enabled },
	},
	{
		key: "insight.base_url", typ: kString, env: "CHAT2DOC_INSIGHT_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Insight.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Insight.BaseURL },
	},
	{
		key: "insight.model", typ: kString, env: "CHAT2DOC_INSIGHT_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Insight.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Insight.Model },
	},
	{
		key: "fetch.timeout_seconds", typ: kInt, env: "CHAT2DOC_FETCH_TIMEOUT_SECONDS",
		apply:   func(cfg *Config, v any) { cfg.Fetch.TimeoutSeconds = v.(int) },
		extract: func(cfg Config) any { return cfg.Fetch.TimeoutSeconds },
	},
	{
		key: "log.level", typ: kString, env: "CHAT2DOC_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
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
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
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
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
