// Copyright (C) 2025 HarborML (oss@harborml.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/harborml/modeldeck/cmd/modeldeck/config"
	"github.com/harborml/modeldeck/pkg/classify"
	"github.com/harborml/modeldeck/pkg/inventory"
	"github.com/harborml/modeldeck/pkg/logging"
	"github.com/harborml/modeldeck/pkg/usagestore"
	"github.com/harborml/modeldeck/pkg/viewmodel"
)

// app bundles the wired components behind every command.
type app struct {
	cfg         config.DeckConfig
	logger      *logging.Logger
	store       *usagestore.Store
	runner      *inventory.ExecRunner
	engine      *viewmodel.Engine
	coordinator *viewmodel.Coordinator
	manifestDir string
}

// buildApp loads config and wires runner, store, engine and coordinator.
// quietLogs suppresses stderr logging; the TUI needs that so log lines do
// not tear the alternate screen.
func buildApp(quietLogs bool) (*app, error) {
	if err := config.Load(); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg := config.Global

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	logger := logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Paths.LogDir,
		Service: "modeldeck",
		JSON:    cfg.Logging.JSON,
		Quiet:   quietLogs,
	})

	store := usagestore.NewStore(
		usagestore.NewFileBackend(logging.ExpandPath(cfg.Paths.UsageStore)),
		logger.Slog(),
	)
	if err := store.Load(); err != nil {
		logger.Close()
		return nil, fmt.Errorf("load usage store: %w", err)
	}

	detector := classify.NewVariantDetector()
	detector.LiberationKeywords = append(detector.LiberationKeywords,
		cfg.Classify.ExtraLiberationKeywords...)
	detector.SpecialSuffixes = append(detector.SpecialSuffixes,
		cfg.Classify.ExtraSpecialSuffixes...)

	manifestDir := cfg.Paths.ManifestDir
	if manifestDir == "" {
		manifestDir = inventory.DefaultManifestDir()
	} else {
		manifestDir = logging.ExpandPath(manifestDir)
	}

	runner := inventory.NewExecRunner(cfg.Ollama.Binary, cfg.Ollama.Timeout(), logger.Slog())
	engine := viewmodel.NewEngine(runner, store, viewmodel.Options{
		Detector: detector,
		Logger:   logger.Slog(),
		DiskPath: manifestDir,
	})
	coordinator := viewmodel.NewCoordinator(engine, cfg.Ollama.DeleteTimeoutDuration(), logger.Slog())

	return &app{
		cfg:         cfg,
		logger:      logger,
		store:       store,
		runner:      runner,
		engine:      engine,
		coordinator: coordinator,
		manifestDir: manifestDir,
	}, nil
}

func (a *app) close() {
	a.logger.Close()
}

// outputCfg assembles the shared output flags.
func outputCfg() OutputConfig {
	return OutputConfig{JSON: jsonOutput, Compact: compactOutput, Quiet: quietOutput}
}

// fatal prints the error and exits with the error code.
func fatal(msg string, err error) {
	OutputError(jsonOutput, msg, err)
	// Runner errors carry remediation worth showing in text mode.
	var re *inventory.RunnerError
	if !jsonOutput && errors.As(err, &re) && re.Remediation != "" {
		fmt.Fprintf(os.Stderr, "\nTo fix:\n%s\n", re.Remediation)
	}
	os.Exit(CLIExitError)
}

// =============================================================================
// list
// =============================================================================

// ModelListEntry is one row of `modeldeck list --json`.
type ModelListEntry struct {
	Name           string   `json:"name"`
	ID             string   `json:"id"`
	SizeBytes      int64    `json:"size_bytes"`
	Size           string   `json:"size"`
	ModifiedAt     string   `json:"modified_at"`
	Age            string   `json:"age"`
	Capabilities   []string `json:"capabilities"`
	Starred        bool     `json:"starred"`
	Queued         bool     `json:"queued_for_deletion"`
	Liberated      bool     `json:"liberated"`
	Duplicate      bool     `json:"duplicate"`
	SpecialVariant bool     `json:"special_variant"`
	FamilyBase     string   `json:"family_base,omitempty"`
	FamilySize     int      `json:"family_size,omitempty"`
	UseCount       int      `json:"use_count,omitempty"`
	LastUsed       string   `json:"last_used,omitempty"`
}

// ModelListResult holds list output.
type ModelListResult struct {
	Models []ModelListEntry `json:"models"`
	Count  int              `json:"count"`
	Stale  bool             `json:"stale"`
}

func listEntry(m viewmodel.EnrichedModel) ModelListEntry {
	caps := make([]string, len(m.Capabilities))
	for i, c := range m.Capabilities {
		caps[i] = string(c)
	}
	entry := ModelListEntry{
		Name:           m.Name,
		ID:             m.ID,
		SizeBytes:      m.SizeBytes,
		Size:           formatBytes(m.SizeBytes),
		ModifiedAt:     m.ModifiedAt.Format(time.RFC3339),
		Age:            m.Age.String(),
		Capabilities:   caps,
		Starred:        m.Starred,
		Queued:         m.QueuedForDeletion,
		Liberated:      m.Liberated,
		Duplicate:      m.Duplicate,
		SpecialVariant: m.SpecialVariant,
		UseCount:       m.Usage.Count,
	}
	if m.Family != nil {
		entry.FamilyBase = m.Family.Base
		entry.FamilySize = m.Family.Total
	}
	if m.Usage.LastUsed != nil {
		entry.LastUsed = m.Usage.LastUsed.Format(time.RFC3339)
	}
	return entry
}

func runList(cmd *cobra.Command, args []string) {
	start := time.Now()
	a, err := buildApp(true)
	if err != nil {
		fatal("Cannot start", err)
	}
	defer a.close()

	filter, err := viewmodel.ParseFilter(filterFlag)
	if err != nil {
		fatal("Invalid flag", err)
	}
	sortKey, err := viewmodel.ParseSortKey(sortFlag)
	if err != nil {
		fatal("Invalid flag", err)
	}

	if err := a.engine.Refresh(context.Background()); err != nil {
		fatal("Cannot list models", err)
	}

	models := a.engine.Models(viewmodel.Query{
		Search: searchFlag,
		Filter: filter,
		Sort:   sortKey,
	})

	result := ModelListResult{Count: len(models), Stale: a.engine.Stale()}
	for _, m := range models {
		result.Models = append(result.Models, listEntry(m))
	}

	if jsonOutput || quietOutput {
		os.Exit(OutputResult(outputCfg(), "list", start, result, false, nil))
	}

	renderModelTable(models)
	os.Exit(CLIExitSuccess)
}

// renderModelTable prints the text listing.
func renderModelTable(models []viewmodel.EnrichedModel) {
	if len(models) == 0 {
		fmt.Println("No models match.")
		return
	}

	now := time.Now()
	color := colorEnabled()
	fmt.Printf("%-5s %-34s %10s  %-14s %-9s %s\n",
		"FLAGS", "NAME", "SIZE", "MODIFIED", "AGE", "CAPABILITIES")
	for _, m := range models {
		name := m.Name
		if color {
			switch {
			case m.QueuedForDeletion:
				name = queuedStyle.Render(name)
			case m.Starred:
				name = starredStyle.Render(name)
			}
		}
		fmt.Printf("%-5s %-34s %10s  %-14s %-9s %s\n",
			statusIcons(m),
			name,
			formatBytes(m.SizeBytes),
			formatRelative(m.ModifiedAt, now),
			m.Age.String(),
			capabilityList(m),
		)
	}
}

// =============================================================================
// star / queue
// =============================================================================

// FlagToggleResult holds star/queue output.
type FlagToggleResult struct {
	Model   string `json:"model"`
	Flag    string `json:"flag"`
	Enabled bool   `json:"enabled"`
	Warning string `json:"warning,omitempty"`
}

func runStar(cmd *cobra.Command, args []string) {
	runToggle(args[0], "starred", func(a *app, name string) (bool, error) {
		return a.engine.ToggleStar(name)
	})
}

func runQueue(cmd *cobra.Command, args []string) {
	runToggle(args[0], "queued_for_deletion", func(a *app, name string) (bool, error) {
		return a.engine.ToggleQueued(name)
	})
}

func runToggle(name, flag string, toggle func(*app, string) (bool, error)) {
	start := time.Now()
	a, err := buildApp(true)
	if err != nil {
		fatal("Cannot start", err)
	}
	defer a.close()

	if err := a.engine.Refresh(context.Background()); err != nil {
		fatal("Cannot read inventory", err)
	}
	if _, ok := a.engine.Lookup(name); !ok {
		fatal("Unknown model", fmt.Errorf("%q is not installed", name))
	}

	enabled, err := toggle(a, name)
	result := FlagToggleResult{Model: name, Flag: flag, Enabled: enabled}

	// A flush failure is a warning: the toggle took effect for this
	// session even when the file write failed.
	var fe *usagestore.FlushError
	if errors.As(err, &fe) {
		result.Warning = fe.Error()
	} else if err != nil {
		fatal("Cannot update model flags", err)
	}

	if jsonOutput || quietOutput {
		os.Exit(OutputResult(outputCfg(), flag, start, result, false, nil))
	}

	state := "off"
	if enabled {
		state = "on"
	}
	fmt.Printf("%s: %s %s\n", name, flag, state)
	if result.Warning != "" {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", result.Warning)
	}
	os.Exit(CLIExitSuccess)
}

// =============================================================================
// delete
// =============================================================================

func runDelete(cmd *cobra.Command, args []string) {
	start := time.Now()
	a, err := buildApp(true)
	if err != nil {
		fatal("Cannot start", err)
	}
	defer a.close()

	if err := a.engine.Refresh(context.Background()); err != nil {
		fatal("Cannot read inventory", err)
	}

	queued := a.coordinator.ListQueued()
	if len(queued) == 0 {
		if jsonOutput || quietOutput {
			os.Exit(OutputResult(outputCfg(), "delete", start, viewmodel.DeletionReport{}, false, nil))
		}
		fmt.Println("Deletion queue is empty.")
		os.Exit(CLIExitSuccess)
	}

	if !assumeYes {
		if jsonOutput || quietOutput {
			fatal("Confirmation required",
				errors.New("refusing to delete without --yes in non-interactive mode"))
		}
		if !confirmDeletion(queued, a.coordinator.QueuedStorageEstimate()) {
			fmt.Println("Aborted; queue unchanged.")
			os.Exit(CLIExitSuccess)
		}
	}

	report := a.coordinator.ExecuteDeletions(context.Background())

	if jsonOutput || quietOutput {
		os.Exit(OutputResult(outputCfg(), "delete", start, report, len(report.Failed) > 0, nil))
	}

	for _, out := range report.Succeeded {
		fmt.Printf("deleted %s (%s)\n", out.Name, formatBytes(out.SizeBytes))
	}
	for _, out := range report.Failed {
		fmt.Fprintf(os.Stderr, "failed  %s: %s\n", out.Name, out.Reason)
	}
	fmt.Printf("Recovered %s across %d model(s); %d failure(s).\n",
		formatBytes(report.RecoveredBytes), len(report.Succeeded), len(report.Failed))

	if len(report.Failed) > 0 {
		os.Exit(CLIExitFindings)
	}
	os.Exit(CLIExitSuccess)
}

// confirmDeletion shows the queued set and asks for explicit consent.
func confirmDeletion(queued []viewmodel.EnrichedModel, estimate int64) bool {
	fmt.Println("Queued for deletion:")
	for _, m := range queued {
		fmt.Printf("  %s (%s)\n", m.Name, formatBytes(m.SizeBytes))
	}

	confirmed := false
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(fmt.Sprintf("Delete %d model(s) and recover %s?",
				len(queued), formatBytes(estimate))).
			Affirmative("Delete").
			Negative("Keep").
			Value(&confirmed),
	))
	if err := form.Run(); err != nil {
		return false
	}
	return confirmed
}

// =============================================================================
// info
// =============================================================================

// ModelInfoResult holds info output.
type ModelInfoResult struct {
	ModelListEntry
	Architecture string   `json:"architecture,omitempty"`
	Parameters   string   `json:"parameters,omitempty"`
	Quantization string   `json:"quantization,omitempty"`
	ContextLen   string   `json:"context_length,omitempty"`
	License      string   `json:"license,omitempty"`
	FamilyOthers []string `json:"family_members,omitempty"`
}

func runInfo(cmd *cobra.Command, args []string) {
	start := time.Now()
	name := args[0]
	a, err := buildApp(true)
	if err != nil {
		fatal("Cannot start", err)
	}
	defer a.close()

	if err := a.engine.Refresh(context.Background()); err != nil {
		fatal("Cannot read inventory", err)
	}
	m, ok := a.engine.Lookup(name)
	if !ok {
		fatal("Unknown model", fmt.Errorf("%q is not installed", name))
	}

	detail, err := a.runner.ShowModel(context.Background(), name)
	if err != nil {
		fatal("Cannot read model detail", err)
	}

	result := ModelInfoResult{
		ModelListEntry: listEntry(m),
		Architecture:   detail.Architecture,
		Parameters:     detail.Parameters,
		Quantization:   detail.Quantization,
		ContextLen:     detail.ContextLen,
		License:        detail.License,
	}
	if m.Family != nil {
		result.FamilyOthers = append(result.FamilyOthers, m.Family.Duplicates...)
		result.FamilyOthers = append(result.FamilyOthers, m.Family.SpecialVariants...)
	}

	if jsonOutput || quietOutput {
		os.Exit(OutputResult(outputCfg(), "info", start, result, false, nil))
	}

	now := time.Now()
	fmt.Printf("%s\n", m.Name)
	fmt.Printf("  id            %s\n", m.ID)
	fmt.Printf("  size          %s\n", formatBytes(m.SizeBytes))
	fmt.Printf("  modified      %s (%s)\n", formatRelative(m.ModifiedAt, now), m.Age)
	fmt.Printf("  capabilities  %s\n", capabilityList(m))
	if detail.Architecture != "" {
		fmt.Printf("  architecture  %s\n", detail.Architecture)
	}
	if detail.Parameters != "" {
		fmt.Printf("  parameters    %s\n", detail.Parameters)
	}
	if detail.Quantization != "" {
		fmt.Printf("  quantization  %s\n", detail.Quantization)
	}
	if detail.ContextLen != "" {
		fmt.Printf("  context       %s\n", detail.ContextLen)
	}
	if m.Usage.Count > 0 {
		fmt.Printf("  uses          %d (last %s)\n", m.Usage.Count,
			formatRelative(derefTime(m.Usage.LastUsed), now))
	}
	if m.Family != nil {
		fmt.Printf("  family        %s (%d installed)\n", m.Family.Base, m.Family.Total)
		for _, member := range result.FamilyOthers {
			if member != m.Name {
				fmt.Printf("    sibling     %s\n", member)
			}
		}
	}
	if m.Starred || m.QueuedForDeletion || m.Liberated {
		fmt.Printf("  flags         %s\n", statusIcons(m))
	}
	os.Exit(CLIExitSuccess)
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// =============================================================================
// storage
// =============================================================================

// StorageResult holds storage output.
type StorageResult struct {
	ModelCount     int    `json:"model_count"`
	ModelBytes     int64  `json:"model_bytes"`
	ModelSize      string `json:"model_size"`
	QueuedBytes    int64  `json:"queued_bytes"`
	QueuedSize     string `json:"queued_size"`
	DiskTotalBytes uint64 `json:"disk_total_bytes,omitempty"`
	DiskFreeBytes  uint64 `json:"disk_free_bytes,omitempty"`
}

func runStorage(cmd *cobra.Command, args []string) {
	start := time.Now()
	a, err := buildApp(true)
	if err != nil {
		fatal("Cannot start", err)
	}
	defer a.close()

	if err := a.engine.Refresh(context.Background()); err != nil {
		fatal("Cannot read inventory", err)
	}

	info := a.engine.StorageInfo()
	result := StorageResult{
		ModelCount:     info.ModelCount,
		ModelBytes:     info.ModelBytes,
		ModelSize:      formatBytes(info.ModelBytes),
		QueuedBytes:    info.QueuedBytes,
		QueuedSize:     formatBytes(info.QueuedBytes),
		DiskTotalBytes: info.DiskTotalBytes,
		DiskFreeBytes:  info.DiskFreeBytes,
	}

	if jsonOutput || quietOutput {
		os.Exit(OutputResult(outputCfg(), "storage", start, result, false, nil))
	}

	fmt.Printf("Models:          %d using %s\n", info.ModelCount, formatBytes(info.ModelBytes))
	if info.QueuedBytes > 0 {
		fmt.Printf("Queued to free:  %s\n", formatBytes(info.QueuedBytes))
	}
	if info.DiskTotalBytes > 0 {
		fmt.Printf("Device:          %s free of %s\n",
			formatBytes(int64(info.DiskFreeBytes)), formatBytes(int64(info.DiskTotalBytes)))
	}
	os.Exit(CLIExitSuccess)
}
