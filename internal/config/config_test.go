package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.BackendURL != "http://localhost:8000" {
		t.Errorf("unexpected default backend url: %s", cfg.BackendURL)
	}
	if !cfg.UseDocuments {
		t.Error("use documents should default to true")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoad_DefaultFileMayBeMissing(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("DOCCHAT_API_URL", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("missing default file should be ignored: %v", err)
	}
	if cfg.BackendURL != DefaultBackendURL {
		t.Errorf("unexpected backend url: %s", cfg.BackendURL)
	}
}

func TestLoad_NamedFileMustExist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.toml")
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for a missing named config file")
	}
}

func TestLoad_NamedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.toml")
	if err := os.WriteFile(path, []byte("listen_addr = \":4000\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DOCCHAT_LISTEN_ADDR", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != ":4000" {
		t.Errorf("listen addr = %s", cfg.ListenAddr)
	}
}

func TestLoadFile_Overlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docchat.toml")
	data := "backend_url = \"http://rag.internal:9000\"\nuse_documents = false\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := Default()
	if err := LoadFile(path, &cfg); err != nil {
		t.Fatalf("load file: %v", err)
	}
	if cfg.BackendURL != "http://rag.internal:9000" {
		t.Errorf("backend url not overlaid: %s", cfg.BackendURL)
	}
	if cfg.UseDocuments {
		t.Error("use_documents not overlaid")
	}
	if cfg.ListenAddr != DefaultListenAddr {
		t.Errorf("unset keys should keep defaults, got %s", cfg.ListenAddr)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("DOCCHAT_API_URL", "https://backend.example")
	t.Setenv("DOCCHAT_DEBUG", "true")
	t.Setenv("DOCCHAT_USE_DOCUMENTS", "0")

	cfg := Default()
	if err := ApplyEnv(&cfg); err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if cfg.BackendURL != "https://backend.example" || !cfg.Debug || cfg.UseDocuments {
		t.Errorf("env not applied: %+v", cfg)
	}
}

func TestApplyEnv_InvalidBool(t *testing.T) {
	t.Setenv("DOCCHAT_DEBUG", "maybe")
	cfg := Default()
	if err := ApplyEnv(&cfg); err == nil {
		t.Error("expected error for invalid bool")
	}
}

func TestValidate(t *testing.T) {
	for _, raw := range []string{"localhost:8000", "ftp://host", "/api/backend", ""} {
		cfg := Default()
		cfg.BackendURL = raw
		if err := cfg.Validate(); err == nil {
			t.Errorf("expected %q to be rejected", raw)
		}
	}
}

func TestValidProvider(t *testing.T) {
	for _, p := range []string{"openai", "bytez", "local"} {
		if !ValidProvider(p) {
			t.Errorf("%s should be valid", p)
		}
	}
	if ValidProvider("unknown") || ValidProvider("") {
		t.Error("unknown and empty must not be selectable")
	}
}
