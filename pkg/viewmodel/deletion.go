// Copyright (C) 2025 HarborML (oss@harborml.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package viewmodel

import (
	"context"
	"log/slog"
	"time"
)

// DefaultDeleteTimeout bounds a single model deletion. Large models can
// take a while to unlink; an unresponsive runner should not hang the whole
// batch forever.
const DefaultDeleteTimeout = 60 * time.Second

// DeletionOutcome is one model's result within a batch.
type DeletionOutcome struct {
	// Name is the model involved.
	Name string `json:"name"`

	// SizeBytes is the model's size at queue time, for the recovered
	// space tally.
	SizeBytes int64 `json:"sizeBytes"`

	// Reason is the runner's diagnostic for failures, empty on success.
	Reason string `json:"reason,omitempty"`
}

// DeletionReport is the aggregate result of one batch execution.
type DeletionReport struct {
	// Succeeded lists models removed from the store, in execution order.
	Succeeded []DeletionOutcome `json:"succeeded"`

	// Failed lists models that stayed queued, with diagnostics.
	Failed []DeletionOutcome `json:"failed"`

	// RecoveredBytes is the summed size of the succeeded models.
	RecoveredBytes int64 `json:"recoveredBytes"`
}

// Empty reports whether the batch had nothing to do.
func (r DeletionReport) Empty() bool {
	return len(r.Succeeded) == 0 && len(r.Failed) == 0
}

// Coordinator executes the queued deletions against the runner.
//
// Deletions run sequentially, in name order. Everything before a failure
// is gone; everything after it is still attempted.
type Coordinator struct {
	engine  *Engine
	timeout time.Duration
	logger  *slog.Logger
}

// NewCoordinator creates a coordinator over the engine. A non-positive
// timeout falls back to DefaultDeleteTimeout.
func NewCoordinator(engine *Engine, timeout time.Duration, logger *slog.Logger) *Coordinator {
	if timeout <= 0 {
		timeout = DefaultDeleteTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{engine: engine, timeout: timeout, logger: logger}
}

// ListQueued returns the queued models in name order.
func (c *Coordinator) ListQueued() []EnrichedModel {
	return c.engine.Models(Query{Filter: FilterQueued, Sort: SortName})
}

// QueuedStorageEstimate sums the on-disk size of the queued set, the
// number shown to the user before they confirm.
func (c *Coordinator) QueuedStorageEstimate() int64 {
	var total int64
	for _, m := range c.ListQueued() {
		total += m.SizeBytes
	}
	return total
}

// ExecuteDeletions runs the queued batch.
//
// # Description
//
// Callers confirm with the user first; this method only executes. Each
// model gets its own timeout derived from ctx. A success purges the
// model's usage record and drops it from the snapshot immediately. A
// failure records the diagnostic and leaves the model queued so the user
// can retry; it never aborts the rest of the batch. Cancellation of ctx
// stops the batch between models, leaving the remainder queued.
//
// # Outputs
//
//   - DeletionReport: Per-model outcomes. An empty queue yields an empty
//     report and no runner calls.
func (c *Coordinator) ExecuteDeletions(ctx context.Context) DeletionReport {
	var report DeletionReport
	queued := c.ListQueued()
	if len(queued) == 0 {
		c.logger.Debug("deletion batch skipped, queue empty")
		return report
	}

	c.logger.Info("deletion batch started", "queued", len(queued))
	for _, m := range queued {
		if ctx.Err() != nil {
			c.logger.Warn("deletion batch cancelled", "remaining", m.Name)
			break
		}

		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		err := c.engine.runner.DeleteModel(callCtx, m.Name)
		cancel()

		if err != nil {
			c.logger.Warn("model deletion failed", "model", m.Name, "error", err)
			report.Failed = append(report.Failed, DeletionOutcome{
				Name:      m.Name,
				SizeBytes: m.SizeBytes,
				Reason:    err.Error(),
			})
			continue
		}

		if err := c.engine.store.Remove(m.Name); err != nil {
			c.logger.Warn("usage record purge failed", "model", m.Name, "error", err)
		}
		c.engine.dropFromSnapshot(m.Name)

		report.Succeeded = append(report.Succeeded, DeletionOutcome{
			Name:      m.Name,
			SizeBytes: m.SizeBytes,
		})
		report.RecoveredBytes += m.SizeBytes
	}

	c.logger.Info("deletion batch finished",
		"succeeded", len(report.Succeeded), "failed", len(report.Failed))
	return report
}
