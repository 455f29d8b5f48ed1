package config

import (
	"os"
	"path/filepath"
	"testing"
)

// File assente: si usano i default senza errore
func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "inesistente.yaml"))
	if err != nil {
		t.Fatalf("Missing config file must not be an error: %v", err)
	}

	if cfg.CompileTimeoutSeconds != 10 {
		t.Errorf("Expected default timeout 10, got %d", cfg.CompileTimeoutSeconds)
	}
	if cfg.Port != 8787 {
		t.Errorf("Expected default port 8787, got %d", cfg.Port)
	}
	if cfg.DisableCompiler {
		t.Error("Compiler must be enabled by default")
	}
}

func TestLoadAppliesValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bardic.yaml")
	yaml := "python_path: /usr/bin/python3\ndisable_compiler: true\nport: 9000\ncompile_timeout_seconds: 30\n"
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Errore caricamento: %v", err)
	}

	if cfg.PythonPath != "/usr/bin/python3" {
		t.Errorf("Wrong python_path: '%s'", cfg.PythonPath)
	}
	if !cfg.DisableCompiler {
		t.Error("Expected disable_compiler = true")
	}
	if cfg.Port != 9000 || cfg.CompileTimeoutSeconds != 30 {
		t.Errorf("Wrong values: port=%d timeout=%d", cfg.Port, cfg.CompileTimeoutSeconds)
	}
}

// I valori fuori range vengono riportati ai limiti
func TestLoadClampsTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bardic.yaml")
	if err := os.WriteFile(path, []byte("compile_timeout_seconds: 500\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Errore caricamento: %v", err)
	}

	if cfg.CompileTimeoutSeconds != 60 {
		t.Errorf("Expected timeout capped at 60, got %d", cfg.CompileTimeoutSeconds)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bardic.yaml")
	if err := os.WriteFile(path, []byte("port: [not a number\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Invalid YAML must be an error")
	}
}
