package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/airheartdev/docsession"
	"github.com/airheartdev/docsession/memory"
	"github.com/airheartdev/docsession/redisstore"
	"github.com/go-chi/cors"
	"github.com/goccy/go-yaml"
)

type Config struct {
	Listen   string                    `yaml:"listen"`
	Token    string                    `yaml:"token"`
	LogLevel string                    `yaml:"logLevel"`
	Backend  string                    `yaml:"backend"`
	Redis    redisstore.Options        `yaml:"redis"`
	Views    map[string]memory.ViewDef `yaml:"views"`
	Seed     map[string]map[string]any `yaml:"seed"`

	// Origins allowed to call the server from a browser. Empty allows any.
	CORSOrigins []string `yaml:"corsOrigins"`
}

func DefaultConfig() Config {
	return Config{
		Listen:   "127.0.0.1:1234",
		LogLevel: "INFO",
		Backend:  "memory",
		Redis:    redisstore.DefaultOptions(),
	}
}

// LoadConfig reads a YAML config file over the defaults. An empty path
// yields the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if lvl := os.Getenv("DOCSESSION_LOG_LEVEL"); lvl != "" {
		cfg.LogLevel = lvl
	}
	switch cfg.Backend {
	case "memory", "redis":
	default:
		return cfg, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
	return cfg, nil
}

func (c Config) Level() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func (c Config) corsOptions() cors.Options {
	opts := cors.Options{
		AllowedOrigins: c.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", docsession.RequestIDHeader},
		MaxAge:         600,
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	} else {
		// credentials are only sent to origins the operator listed
		opts.AllowCredentials = true
	}
	return opts
}
