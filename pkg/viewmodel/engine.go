// Copyright (C) 2025 HarborML (oss@harborml.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

/*
Package viewmodel turns raw inventory records into the annotated, queryable
view the presentation layer renders.

# Problem Statement

The runner gives us a flat list of name/size/modified rows. The UI wants
much more: capability tags, age buckets, duplicate and variant flags,
starred and queued state, usage counters, all searchable, filterable and
sortable, and all of it resilient to the runner being slow or briefly
unavailable.

# Solution

An Engine that owns the last known-good snapshot. Refresh(ctx) rebuilds the
snapshot from the runner and the classifiers; a failed refresh keeps the
previous snapshot and marks it stale rather than blanking the screen.
Concurrent refreshes are resolved by generation: whichever refresh started
last wins, and results from superseded refreshes are discarded when they
land.

Models(Query) is the single read path. Persisted flags are overlaid from
the usage store at read time, so a star toggle is visible on the next
render without re-running the classifiers.

The Deletion Queue Coordinator in this package executes the queued set
against the runner; see deletion.go.
*/
package viewmodel

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/harborml/modeldeck/pkg/classify"
	"github.com/harborml/modeldeck/pkg/inventory"
	"github.com/harborml/modeldeck/pkg/usagestore"
)

// Engine holds the enriched inventory snapshot and its freshness state.
type Engine struct {
	runner   inventory.ModelRunner
	store    *usagestore.Store
	detector *classify.VariantDetector
	logger   *slog.Logger

	// now is injected so age bucketing is deterministic in tests.
	now func() time.Time

	// diskPath is where StorageInfo samples filesystem capacity.
	diskPath string

	mu          sync.Mutex
	snapshot    []EnrichedModel
	stale       bool
	lastRefresh time.Time
	generation  uint64
}

// Options tunes engine construction. The zero value is usable.
type Options struct {
	// Detector overrides the default variant detector, letting config
	// extend the keyword tables.
	Detector *classify.VariantDetector

	// Logger receives refresh diagnostics. Defaults to slog.Default().
	Logger *slog.Logger

	// Now overrides the clock.
	Now func() time.Time

	// DiskPath is the filesystem sampled by StorageInfo. Defaults to the
	// runner's manifest directory.
	DiskPath string
}

// NewEngine creates an engine over the given runner and store. The
// snapshot starts empty and stale; call Refresh before the first render.
func NewEngine(runner inventory.ModelRunner, store *usagestore.Store, opts Options) *Engine {
	detector := opts.Detector
	if detector == nil {
		detector = classify.NewVariantDetector()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	diskPath := opts.DiskPath
	if diskPath == "" {
		diskPath = inventory.DefaultManifestDir()
	}
	return &Engine{
		runner:   runner,
		store:    store,
		detector: detector,
		logger:   logger,
		now:      now,
		diskPath: diskPath,
		stale:    true,
	}
}

// Refresh rebuilds the snapshot from the runner.
//
// # Description
//
// Lists models, runs the classifiers, and swaps in the new snapshot.
// The runner call happens outside the lock, so refreshes can overlap; a
// generation counter ensures only the latest-started refresh is allowed
// to publish. A superseded refresh returns nil without touching state.
//
// # Outputs
//
//   - error: The runner's error on failure. The previous snapshot is kept
//     and marked stale; callers keep rendering it.
func (e *Engine) Refresh(ctx context.Context) error {
	refreshID := uuid.NewString()

	e.mu.Lock()
	e.generation++
	gen := e.generation
	e.mu.Unlock()

	e.logger.Debug("refresh started", "refresh_id", refreshID, "generation", gen)
	records, err := e.runner.ListModels(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.generation {
		e.logger.Debug("refresh superseded, discarding", "refresh_id", refreshID)
		return nil
	}

	if err != nil {
		e.stale = true
		e.logger.Warn("refresh failed, keeping previous snapshot",
			"refresh_id", refreshID, "error", err)
		return err
	}

	e.snapshot = e.enrich(records)
	e.stale = false
	e.lastRefresh = e.now()
	e.logger.Info("refresh complete", "refresh_id", refreshID, "models", len(records))
	return nil
}

// enrich runs the classifiers over raw records. Store-derived flags are
// deliberately not baked in here; they are overlaid at read time.
func (e *Engine) enrich(records []inventory.ModelRecord) []EnrichedModel {
	names := make([]string, len(records))
	for i, rec := range records {
		names[i] = rec.Name
	}
	variants := e.detector.Detect(names)
	now := e.now()

	models := make([]EnrichedModel, len(records))
	for i, rec := range records {
		flags := variants[rec.Name]
		models[i] = EnrichedModel{
			ModelRecord:    rec,
			Capabilities:   classify.Capabilities(rec.Name),
			Age:            classify.CategorizeAge(rec.ModifiedAt, now),
			Liberated:      flags.Liberated,
			Duplicate:      flags.Duplicate,
			SpecialVariant: flags.SpecialVariant,
			Family:         flags.Family,
		}
	}
	return models
}

// Models returns the query result over the current snapshot, with the
// usage store's flags overlaid. The returned slice is a copy.
func (e *Engine) Models(q Query) []EnrichedModel {
	e.mu.Lock()
	snapshot := make([]EnrichedModel, len(e.snapshot))
	copy(snapshot, e.snapshot)
	e.mu.Unlock()

	for i := range snapshot {
		rec := e.store.Get(snapshot[i].Name)
		snapshot[i].Starred = rec.Starred
		snapshot[i].QueuedForDeletion = rec.QueuedForDeletion
		snapshot[i].Usage = rec.Usage
	}
	return q.Apply(snapshot)
}

// Lookup returns the enriched model by exact name.
func (e *Engine) Lookup(name string) (EnrichedModel, bool) {
	for _, m := range e.Models(Query{}) {
		if m.Name == name {
			return m, true
		}
	}
	return EnrichedModel{}, false
}

// ToggleStar flips the starred flag and returns the new value.
//
// The error, when non-nil, is the store's flush warning; the flip itself
// took effect in memory regardless.
func (e *Engine) ToggleStar(name string) (bool, error) {
	next := !e.store.Get(name).Starred
	return next, e.store.SetStarred(name, next)
}

// ToggleQueued flips the queued-for-deletion flag and returns the new
// value.
func (e *Engine) ToggleQueued(name string) (bool, error) {
	next := !e.store.Get(name).QueuedForDeletion
	return next, e.store.SetQueued(name, next)
}

// MarkStale flags the snapshot as out of date without discarding it. The
// store watcher calls this when the model directory changes externally.
func (e *Engine) MarkStale() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stale = true
}

// Stale reports whether the snapshot may not reflect the installed set.
func (e *Engine) Stale() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stale
}

// LastRefresh returns when the snapshot was last rebuilt successfully,
// zero before the first success.
func (e *Engine) LastRefresh() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastRefresh
}

// dropFromSnapshot removes one model after a confirmed delete, so the
// view updates without waiting for the next full refresh.
func (e *Engine) dropFromSnapshot(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	kept := e.snapshot[:0]
	for _, m := range e.snapshot {
		if m.Name != name {
			kept = append(kept, m)
		}
	}
	e.snapshot = kept
}

// StorageInfo summarizes disk usage: what the models occupy and what the
// device holds.
type StorageInfo struct {
	// ModelBytes is the summed size of every installed model.
	ModelBytes int64

	// ModelCount is the number of installed models.
	ModelCount int

	// QueuedBytes is the space recovered if the deletion queue runs.
	QueuedBytes int64

	// DiskTotalBytes and DiskFreeBytes describe the device backing the
	// model store; zero when the platform cannot report them.
	DiskTotalBytes uint64
	DiskFreeBytes  uint64
}

// StorageInfo computes the storage summary from the current snapshot.
func (e *Engine) StorageInfo() StorageInfo {
	var info StorageInfo
	for _, m := range e.Models(Query{}) {
		info.ModelBytes += m.SizeBytes
		info.ModelCount++
		if m.QueuedForDeletion {
			info.QueuedBytes += m.SizeBytes
		}
	}
	total, free, err := diskUsage(e.diskPath)
	if err != nil {
		e.logger.Debug("cannot sample disk capacity", "path", e.diskPath, "error", err)
	} else {
		info.DiskTotalBytes = total
		info.DiskFreeBytes = free
	}
	return info
}
