package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigValidates(t *testing.T) {
	config := NewDefaultConfig()
	if err := Validate(config); err != nil {
		t.Fatalf("Default config must validate: %v", err)
	}
}

func TestValidateRejectsOverlapAtChunkSize(t *testing.T) {
	config := NewDefaultConfig()
	config.Chunking.Overlap = config.Chunking.ChunkSize

	err := Validate(config)
	if err == nil {
		t.Fatal("Expected error for overlap >= chunk_size")
	}
	if _, ok := err.(*ConfigError); !ok {
		t.Errorf("Expected ConfigError, got %T", err)
	}
}

func TestValidateRejectsShallowRerankDepth(t *testing.T) {
	config := NewDefaultConfig()
	config.Retrieval.RerankDepth = config.Retrieval.DefaultK - 1

	if err := Validate(config); err == nil {
		t.Fatal("Expected error for rerank_depth below default_k")
	}
}

func TestValidateRejectsBadTimeout(t *testing.T) {
	config := NewDefaultConfig()
	config.Gemini.Timeout = "three minutes"

	if err := Validate(config); err == nil {
		t.Fatal("Expected error for unparseable timeout")
	}
}

func TestValidateRejectsUnknownProvider(t *testing.T) {
	config := NewDefaultConfig()
	config.LLM.DefaultProvider = "psychic"

	if err := Validate(config); err == nil {
		t.Fatal("Expected error for unknown provider")
	}
}

func TestParseTimeout(t *testing.T) {
	d, err := ParseTimeout("")
	if err != nil {
		t.Fatal(err)
	}
	if d != 2*time.Minute {
		t.Errorf("Empty timeout should default to 2m, got %v", d)
	}

	d, err = ParseTimeout("45s")
	if err != nil {
		t.Fatal(err)
	}
	if d != 45*time.Second {
		t.Errorf("Expected 45s, got %v", d)
	}
}

func TestLoadFromFilesLayering(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.toml")
	override := filepath.Join(dir, "override.toml")

	baseToml := `
[server]
port = 9000

[chunking]
chunk_size = 500
`
	overrideToml := `
[server]
port = 9100
`
	if err := os.WriteFile(base, []byte(baseToml), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(override, []byte(overrideToml), 0o644); err != nil {
		t.Fatal(err)
	}

	config, err := LoadFromFiles(base, override)
	if err != nil {
		t.Fatal(err)
	}
	if config.Server.Port != 9100 {
		t.Errorf("Later files must win: got port %d", config.Server.Port)
	}
	if config.Chunking.ChunkSize != 500 {
		t.Errorf("Earlier file values must survive: got chunk_size %d", config.Chunking.ChunkSize)
	}
	// Untouched values keep their defaults.
	if config.Retrieval.DefaultK != 5 {
		t.Errorf("Defaults must survive file layering: got default_k %d", config.Retrieval.DefaultK)
	}
}

func TestLoadFromFilesMissingFileFails(t *testing.T) {
	if _, err := LoadFromFiles(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatal("An explicitly named missing config file is an error")
	}
}

func TestLoadFromFilesNoPathsGivesDefaults(t *testing.T) {
	config, err := LoadFromFiles()
	if err != nil {
		t.Fatal(err)
	}
	if config.Server.Port != NewDefaultConfig().Server.Port {
		t.Error("No files must leave defaults intact")
	}
}

func TestApplyFlagOverrides(t *testing.T) {
	config := NewDefaultConfig()
	ApplyFlagOverrides(config, 8088, "0.0.0.0")
	if config.Server.Port != 8088 {
		t.Errorf("Flag port must win, got %d", config.Server.Port)
	}
	if config.Server.Host != "0.0.0.0" {
		t.Errorf("Flag host must win, got %s", config.Server.Host)
	}

	before := config.Server.Port
	ApplyFlagOverrides(config, 0, "")
	if config.Server.Port != before {
		t.Error("Zero-value flags must not override")
	}
}
