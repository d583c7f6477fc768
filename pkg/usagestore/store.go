// Copyright (C) 2025 HarborML (oss@harborml.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

/*
Package usagestore persists per-model user state: starred flags, the
deletion queue, and usage counters.

# Problem Statement

The model inventory itself is disposable - it is re-read from the runner on
every refresh. But "I starred this model" and "this model is queued for
deletion" have to survive restarts, and they have to survive crashes
mid-write without losing the previous document.

# Solution

A single JSON document keyed by model name, read whole at startup and
rewritten whole after every mutation:

	{
	  "models": {
	    "llama3:8b": {
	      "starred": true,
	      "queuedForDeletion": false,
	      "usage": {"count": 12, "lastUsed": "...", "totalTokens": 48211}
	    }
	  }
	}

Durability is at-least-once: each mutation flushes immediately, the file
backend replaces the document atomically (write temp, fsync, rename), and a
failed flush is retried once then reported as a warning while the in-memory
state stays authoritative for the session.

# Concurrency

Single writer at a time, consistent with a desktop tool. A mutex serializes
mutations and flushes inside one process; cross-process coordination is out
of scope.

# Forward Compatibility

Unknown fields in the document are ignored on load and lost on the next
rewrite; optional fields default to zero values. Stale keys for models
deleted outside the app are tolerated and pruned on the next successful
delete, never eagerly on refresh.
*/
package usagestore

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// document is the on-disk layout. The extra nesting level leaves room for
// top-level settings without a format break.
type document struct {
	Models    map[string]UsageRecord `json:"models"`
	UpdatedAt time.Time              `json:"updatedAt"`
}

// FlushError reports a failed persistence attempt. The mutation itself
// succeeded in memory; callers surface this as a warning, not a failure.
type FlushError struct {
	Err error
}

// Error implements the error interface.
func (e *FlushError) Error() string {
	return fmt.Sprintf("usage store flush failed (in-memory state kept): %v", e.Err)
}

// Unwrap exposes the underlying cause.
func (e *FlushError) Unwrap() error {
	return e.Err
}

// Store is the process-wide usage state with an injected persistence
// backend. Construct one at startup, Load it, and pass it explicitly to
// whatever needs it; there is no package-level singleton.
type Store struct {
	mu      sync.Mutex
	backend Backend
	logger  *slog.Logger
	now     func() time.Time
	records map[string]UsageRecord
}

// NewStore creates a store over the given backend. Call Load before use.
func NewStore(backend Backend, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		backend: backend,
		logger:  logger,
		now:     time.Now,
		records: make(map[string]UsageRecord),
	}
}

// Load reads the persisted document into memory.
//
// A backend with no document yet yields an empty store, not an error. A
// corrupt document is an error: silently discarding user state is worse
// than making the caller decide.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.backend.Load()
	if err != nil {
		return err
	}
	if len(data) == 0 {
		s.records = make(map[string]UsageRecord)
		return nil
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse usage store: %w", err)
	}
	if doc.Models == nil {
		doc.Models = make(map[string]UsageRecord)
	}
	s.records = doc.Models
	s.logger.Debug("usage store loaded", "models", len(s.records))
	return nil
}

// Get returns the record for a model, a zero record if absent. Never fails.
func (s *Store) Get(name string) UsageRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[name]
}

// Names returns all model names with a persisted record, sorted.
func (s *Store) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.records))
	for n := range s.records {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// SetStarred sets the starred flag and flushes.
//
// The returned error is always a *FlushError or nil; the in-memory state
// is updated either way.
func (s *Store) SetStarred(name string, starred bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.records[name]
	rec.Starred = starred
	s.setLocked(name, rec)
	return s.flushLocked()
}

// SetQueued sets the queued-for-deletion flag and flushes.
func (s *Store) SetQueued(name string, queued bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.records[name]
	rec.QueuedForDeletion = queued
	s.setLocked(name, rec)
	return s.flushLocked()
}

// RecordUsage folds a usage event into the model's counters and flushes.
func (s *Store) RecordUsage(name string, ev UsageEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.records[name]
	u := rec.Usage

	ts := ev.Timestamp
	if u.FirstUsed == nil || ts.Before(*u.FirstUsed) {
		first := ts
		u.FirstUsed = &first
	}
	if u.LastUsed == nil || ts.After(*u.LastUsed) {
		last := ts
		u.LastUsed = &last
	}
	if ev.ResponseTimeMs > 0 {
		// Running mean over latency-reporting events only; events with
		// an unknown latency move Count but not the average.
		u.AvgResponseTimeMs = (u.AvgResponseTimeMs*float64(u.LatencySamples) + ev.ResponseTimeMs) / float64(u.LatencySamples+1)
		u.LatencySamples++
	}
	u.Count++
	u.TotalTokens += ev.Tokens

	rec.Usage = u
	s.records[name] = rec
	return s.flushLocked()
}

// Remove purges a model's record entirely and flushes. Called after a
// successful delete so the document does not accumulate ghosts.
func (s *Store) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[name]; !ok {
		return nil
	}
	delete(s.records, name)
	return s.flushLocked()
}

// Prune drops records for models not in the given name set. This is the
// explicit cleanup path for models deleted outside the app; it is never
// invoked implicitly on refresh.
func (s *Store) Prune(installed []string) (int, error) {
	keep := make(map[string]bool, len(installed))
	for _, n := range installed {
		keep[n] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	pruned := 0
	for n := range s.records {
		if !keep[n] {
			delete(s.records, n)
			pruned++
		}
	}
	if pruned == 0 {
		return 0, nil
	}
	return pruned, s.flushLocked()
}

// setLocked stores a record, dropping it when it carries no information.
func (s *Store) setLocked(name string, rec UsageRecord) {
	if rec.zero() {
		delete(s.records, name)
		return
	}
	s.records[name] = rec
}

// flushLocked rewrites the whole document, retrying once. Caller holds mu.
func (s *Store) flushLocked() error {
	doc := document{Models: s.records, UpdatedAt: s.now()}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		// Marshal failure leaves the backend untouched, so the
		// previous version stays intact.
		return &FlushError{Err: err}
	}

	if err := s.backend.Save(data); err != nil {
		s.logger.Warn("usage store flush failed, retrying once", "error", err)
		if err = s.backend.Save(data); err != nil {
			s.logger.Warn("usage store flush retry failed", "error", err)
			return &FlushError{Err: err}
		}
	}
	return nil
}
