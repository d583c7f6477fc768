// Copyright (C) 2025 HarborML (oss@harborml.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

var (
	// Global is a singleton instance
	Global DeckConfig
	once   sync.Once
)

// Load ensures the config is loaded into the Global variable. A missing
// file is created with defaults on first run.
func Load() error {
	var err error
	once.Do(func() {
		home, homeErr := os.UserHomeDir()
		if homeErr != nil {
			err = fmt.Errorf("could not find the user's home directory: %w", homeErr)
			return
		}
		Global, err = loadFrom(filepath.Join(home, ".modeldeck", "modeldeck.yaml"))
	})
	return err
}

// loadFrom reads the config at path, creating it with defaults first when
// absent. Unknown keys are ignored; missing keys keep their defaults.
func loadFrom(path string) (DeckConfig, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Printf(" First run detected, creating the config at %s\n", path)
		if err := createDefault(path); err != nil {
			return DeckConfig{}, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return DeckConfig{}, fmt.Errorf("failed to read the config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return DeckConfig{}, fmt.Errorf("failed to parse the config file: %w", err)
	}
	return cfg, nil
}

func createDefault(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
