// Copyright (C) 2025 HarborML (oss@harborml.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import "time"

type DeckConfig struct {
	// Ollama: how to reach the runner CLI
	Ollama OllamaConfig `yaml:"ollama"`

	// Paths: where persisted state and logs live
	Paths PathsConfig `yaml:"paths"`

	// Logging: verbosity and format
	Logging LoggingConfig `yaml:"logging"`

	// Classify: user extensions to the naming heuristics
	Classify ClassifyConfig `yaml:"classify"`
}

type OllamaConfig struct {
	Binary         string `yaml:"binary"`          // e.g. ollama, /usr/local/bin/ollama
	TimeoutSeconds int    `yaml:"timeout_seconds"` // per CLI invocation
	DeleteTimeout  int    `yaml:"delete_timeout_seconds"`
}

type PathsConfig struct {
	UsageStore  string `yaml:"usage_store"`  // JSON document with stars/queue/usage
	LogDir      string `yaml:"log_dir"`      // "" disables file logging
	ManifestDir string `yaml:"manifest_dir"` // "" means the runner default
}

type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	JSON  bool   `yaml:"json"`
}

type ClassifyConfig struct {
	// ExtraLiberationKeywords extend the built-in uncensored-variant list.
	ExtraLiberationKeywords []string `yaml:"extra_liberation_keywords"`

	// ExtraSpecialSuffixes extend the built-in variant-suffix list.
	ExtraSpecialSuffixes []string `yaml:"extra_special_suffixes"`
}

// Timeout returns the per-call runner timeout as a duration.
func (c OllamaConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// DeleteTimeoutDuration returns the per-model deletion timeout.
func (c OllamaConfig) DeleteTimeoutDuration() time.Duration {
	return time.Duration(c.DeleteTimeout) * time.Second
}

func DefaultConfig() DeckConfig {
	return DeckConfig{
		Ollama: OllamaConfig{
			Binary:         "ollama",
			TimeoutSeconds: 30,
			DeleteTimeout:  60,
		},
		Paths: PathsConfig{
			UsageStore: "~/.modeldeck/usage.json",
			LogDir:     "~/.modeldeck/logs",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Classify: ClassifyConfig{},
	}
}
