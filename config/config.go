package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// Config è la configurazione del backend, caricata da YAML
type Config struct {
	PythonPath            string   `yaml:"python_path"`              // Interprete Python (vuoto: cerca nel PATH)
	DisableCompiler       bool     `yaml:"disable_compiler"`         // Forza il parser strutturale
	CompileTimeoutSeconds int      `yaml:"compile_timeout_seconds"`  // Default 10, massimo 60
	PreviewTimeoutSeconds int      `yaml:"preview_timeout_seconds"`  // Timeout per richiesta di anteprima
	Port                  int      `yaml:"port"`
	Debug                 bool     `yaml:"debug"`
	EnableCORS            bool     `yaml:"enable_cors"`
	WatchDebounceMs       int      `yaml:"watch_debounce_ms"`
	WatchPaths            []string `yaml:"watch_paths"`
}

// Default restituisce la configurazione di base
func Default() *Config {
	return &Config{
		CompileTimeoutSeconds: 10,
		PreviewTimeoutSeconds: 5,
		Port:                  8787,
		EnableCORS:            true,
		WatchDebounceMs:       500,
	}
}

// Load carica la configurazione dal file indicato, sopra i default.
// File assente non è un errore: si usano i default.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("errore lettura configurazione: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("configurazione non valida: %w", err)
	}

	cfg.applyBounds()
	return cfg, nil
}

// applyBounds riporta i valori fuori range ai limiti ammessi
func (c *Config) applyBounds() {
	if c.CompileTimeoutSeconds <= 0 {
		c.CompileTimeoutSeconds = 10
	}
	if c.CompileTimeoutSeconds > 60 {
		c.CompileTimeoutSeconds = 60
	}
	if c.PreviewTimeoutSeconds <= 0 {
		c.PreviewTimeoutSeconds = 5
	}
	if c.Port <= 0 {
		c.Port = 8787
	}
	if c.WatchDebounceMs <= 0 {
		c.WatchDebounceMs = 500
	}
}
