package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/drummonds/travellens-web/internal/session"
)

const configFileName = "travellens-web.yaml"

// --- Config ---

type Config struct {
	BackendURL     string `yaml:"backend_url"`
	Addr           string `yaml:"addr"`
	CacheDir       string `yaml:"cache_dir,omitempty"`
	StateFile      string `yaml:"state_file,omitempty"`
	RequestTimeout string `yaml:"request_timeout,omitempty"` // Go duration; empty means none
	SessionTTL     string `yaml:"session_ttl,omitempty"`
}

func defaultConfig() Config {
	return Config{
		Addr:       ":8080",
		SessionTTL: session.DefaultTTL.String(),
	}
}

func loadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

func writeExampleConfig(path string) error {
	cfg := Config{
		BackendURL:     "http://localhost:8000",
		Addr:           ":8080",
		RequestTimeout: "2m",
		SessionTTL:     "30m",
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	header := "# travellens-web configuration\n# backend_url is the CBIR service serving /AllImages/, /LabelsSummary/, /upload/ and /predict/\n\n"
	return os.WriteFile(path, []byte(header+string(data)), 0644)
}

// settings is Config with defaults applied and durations parsed.
type settings struct {
	Config
	cacheDir   string
	stateFile  string
	timeout    time.Duration
	sessionTTL time.Duration
}

func (cfg Config) resolve() (settings, error) {
	s := settings{Config: cfg}

	s.cacheDir = cfg.CacheDir
	if s.cacheDir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			return settings{}, fmt.Errorf("finding cache dir: %w", err)
		}
		s.cacheDir = filepath.Join(base, "travellens-web")
	}
	s.stateFile = cfg.StateFile
	if s.stateFile == "" {
		s.stateFile = filepath.Join(s.cacheDir, "state.db")
	}

	if cfg.RequestTimeout != "" {
		d, err := time.ParseDuration(cfg.RequestTimeout)
		if err != nil {
			return settings{}, fmt.Errorf("request_timeout: %w", err)
		}
		if d < 0 {
			return settings{}, errors.New("request_timeout: must not be negative")
		}
		s.timeout = d
	}

	s.sessionTTL = session.DefaultTTL
	if cfg.SessionTTL != "" {
		d, err := time.ParseDuration(cfg.SessionTTL)
		if err != nil {
			return settings{}, fmt.Errorf("session_ttl: %w", err)
		}
		if d <= 0 {
			return settings{}, errors.New("session_ttl: must be positive")
		}
		s.sessionTTL = d
	}
	return s, nil
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `travellens-web - browser frontend for a content-based image retrieval service

Usage:
  travellens-web              Run using %s (connects to the CBIR backend)
  travellens-web -demo        Run against a built-in in-memory backend
  travellens-web -init        Create an example %s
  travellens-web -addr :9090  Override listen address
  travellens-web -open        Open the frontend in a browser once it is listening

If no flags are given and no %s is found, this help is shown.

Config file fields:
  backend_url      URL of the CBIR backend (e.g. http://localhost:8000)
  addr             Listen address (default: :8080)
  cache_dir        Preview thumbnails and state (default: user cache dir)
  state_file       bbolt file holding the theme (default: <cache_dir>/state.db)
  request_timeout  Backend request timeout, e.g. 2m (default: none)
  session_ttl      Idle time before a browser session is dropped (default: 30m)

`, configFileName, configFileName, configFileName)
	flag.PrintDefaults()
}
