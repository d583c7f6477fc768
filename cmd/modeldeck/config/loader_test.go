// Copyright (C) 2025 HarborML (oss@harborml.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFrom_CreatesDefaultOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deep", "modeldeck.yaml")

	cfg, err := loadFrom(path)
	if err != nil {
		t.Fatalf("loadFrom() = %v", err)
	}
	if cfg.Ollama.Binary != "ollama" {
		t.Errorf("default binary = %q, want ollama", cfg.Ollama.Binary)
	}
	if cfg.Ollama.Timeout() != 30*time.Second {
		t.Errorf("default timeout = %v, want 30s", cfg.Ollama.Timeout())
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("config file should exist after first load: %v", err)
	}
}

func TestLoadFrom_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "modeldeck.yaml")
	partial := `
ollama:
  binary: /opt/ollama/bin/ollama
classify:
  extra_liberation_keywords: ["jailbreak"]
`
	if err := os.WriteFile(path, []byte(partial), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadFrom(path)
	if err != nil {
		t.Fatalf("loadFrom() = %v", err)
	}
	if cfg.Ollama.Binary != "/opt/ollama/bin/ollama" {
		t.Errorf("binary override lost: %q", cfg.Ollama.Binary)
	}
	if cfg.Ollama.TimeoutSeconds != 30 {
		t.Errorf("unset timeout should keep default, got %d", cfg.Ollama.TimeoutSeconds)
	}
	if len(cfg.Classify.ExtraLiberationKeywords) != 1 || cfg.Classify.ExtraLiberationKeywords[0] != "jailbreak" {
		t.Errorf("keyword extension lost: %v", cfg.Classify.ExtraLiberationKeywords)
	}
	if cfg.Paths.UsageStore != "~/.modeldeck/usage.json" {
		t.Errorf("unset path should keep default, got %q", cfg.Paths.UsageStore)
	}
}

func TestLoadFrom_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "modeldeck.yaml")
	if err := os.WriteFile(path, []byte("ollama: [not a map"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := loadFrom(path); err == nil {
		t.Error("malformed config should fail loudly, not silently default")
	}
}
