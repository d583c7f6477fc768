// Copyright (C) 2025 HarborML (oss@harborml.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package viewmodel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborml/modeldeck/pkg/inventory"
)

func newTestCoordinator(t *testing.T, runner *fakeRunner) (*Coordinator, *Engine) {
	t.Helper()
	engine, _ := newTestEngine(t, runner)
	require.NoError(t, engine.Refresh(context.Background()))
	return NewCoordinator(engine, time.Second, nil), engine
}

func TestCoordinator_EmptyQueueIsNoop(t *testing.T) {
	runner := &fakeRunner{records: []inventory.ModelRecord{record("llama3:8b", 4<<30, 5)}}
	coord, _ := newTestCoordinator(t, runner)

	report := coord.ExecuteDeletions(context.Background())
	assert.True(t, report.Empty())
	assert.Empty(t, runner.deleted, "no runner calls for an empty queue")
}

func TestCoordinator_QueuedStorageEstimate(t *testing.T) {
	runner := &fakeRunner{records: []inventory.ModelRecord{
		record("big:70b", 10<<30, 5),
		record("small:1b", 1<<30, 5),
		record("kept:7b", 4<<30, 5),
	}}
	coord, engine := newTestCoordinator(t, runner)

	for _, name := range []string{"big:70b", "small:1b"} {
		_, err := engine.ToggleQueued(name)
		require.NoError(t, err)
	}

	assert.Equal(t, int64(11<<30), coord.QueuedStorageEstimate())
	assert.Len(t, coord.ListQueued(), 2)
}

func TestCoordinator_ExecuteDeletions(t *testing.T) {
	runner := &fakeRunner{records: []inventory.ModelRecord{
		record("doomed-a:7b", 4<<30, 5),
		record("doomed-b:7b", 2<<30, 5),
		record("kept:7b", 1<<30, 5),
	}}
	coord, engine := newTestCoordinator(t, runner)

	for _, name := range []string{"doomed-a:7b", "doomed-b:7b"} {
		_, err := engine.ToggleQueued(name)
		require.NoError(t, err)
	}

	report := coord.ExecuteDeletions(context.Background())
	require.Len(t, report.Succeeded, 2)
	assert.Empty(t, report.Failed)
	assert.Equal(t, int64(6<<30), report.RecoveredBytes)

	// Deleted models leave the snapshot and the queue.
	assert.Len(t, engine.Models(Query{}), 1)
	assert.Empty(t, coord.ListQueued())
}

func TestCoordinator_ContinuesPastFailure(t *testing.T) {
	runner := &fakeRunner{
		records: []inventory.ModelRecord{
			record("fails:7b", 4<<30, 5),
			record("succeeds:7b", 2<<30, 5),
		},
		deleteErr: map[string]error{
			"fails:7b": &inventory.RunnerError{
				Kind:    inventory.KindDeleteFailed,
				Model:   "fails:7b",
				Message: "failed to delete fails:7b",
				Detail:  "model is currently loaded",
			},
		},
	}
	coord, engine := newTestCoordinator(t, runner)

	for _, name := range []string{"fails:7b", "succeeds:7b"} {
		_, err := engine.ToggleQueued(name)
		require.NoError(t, err)
	}

	report := coord.ExecuteDeletions(context.Background())

	require.Len(t, report.Succeeded, 1)
	assert.Equal(t, "succeeds:7b", report.Succeeded[0].Name)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, "fails:7b", report.Failed[0].Name)
	assert.Contains(t, report.Failed[0].Reason, "failed to delete fails:7b")
	assert.Equal(t, int64(2<<30), report.RecoveredBytes)

	// The failed model stays queued for retry; the succeeded one is gone.
	queued := coord.ListQueued()
	require.Len(t, queued, 1)
	assert.Equal(t, "fails:7b", queued[0].Name)
	assert.Len(t, engine.Models(Query{}), 1)
}

func TestCoordinator_CancelledContextStopsBatch(t *testing.T) {
	runner := &fakeRunner{records: []inventory.ModelRecord{
		record("queued-a:7b", 4<<30, 5),
		record("queued-b:7b", 2<<30, 5),
	}}
	coord, engine := newTestCoordinator(t, runner)

	for _, name := range []string{"queued-a:7b", "queued-b:7b"} {
		_, err := engine.ToggleQueued(name)
		require.NoError(t, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := coord.ExecuteDeletions(ctx)
	assert.True(t, report.Empty())
	assert.Len(t, coord.ListQueued(), 2, "cancelled batch leaves everything queued")
}
