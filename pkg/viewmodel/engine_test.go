// Copyright (C) 2025 HarborML (oss@harborml.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package viewmodel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborml/modeldeck/pkg/classify"
	"github.com/harborml/modeldeck/pkg/inventory"
	"github.com/harborml/modeldeck/pkg/usagestore"
)

var testNow = time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)

// fakeRunner is an in-memory ModelRunner for engine and coordinator tests.
type fakeRunner struct {
	mu        sync.Mutex
	records   []inventory.ModelRecord
	listErr   error
	deleteErr map[string]error
	deleted   []string
	listCalls int

	// listGate, when set, blocks ListModels until the channel closes.
	// Only the first call blocks; used to overlap refreshes.
	listGate chan struct{}
}

func (f *fakeRunner) ListModels(ctx context.Context) ([]inventory.ModelRecord, error) {
	f.mu.Lock()
	f.listCalls++
	gate := f.listGate
	f.listGate = nil
	records := make([]inventory.ModelRecord, len(f.records))
	copy(records, f.records)
	err := f.listErr
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (f *fakeRunner) DeleteModel(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.deleteErr[name]; err != nil {
		return err
	}
	f.deleted = append(f.deleted, name)
	return nil
}

func (f *fakeRunner) ShowModel(ctx context.Context, name string) (*inventory.ModelInfo, error) {
	return &inventory.ModelInfo{Name: name}, nil
}

func (f *fakeRunner) setRecords(records []inventory.ModelRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = records
}

func record(name string, sizeBytes int64, ageDays int) inventory.ModelRecord {
	return inventory.ModelRecord{
		Name:       name,
		ID:         "id-" + name,
		SizeBytes:  sizeBytes,
		ModifiedAt: testNow.Add(-time.Duration(ageDays) * 24 * time.Hour),
	}
}

func newTestEngine(t *testing.T, runner *fakeRunner) (*Engine, *usagestore.Store) {
	t.Helper()
	store := usagestore.NewStore(usagestore.NewMemoryBackend(), nil)
	require.NoError(t, store.Load())
	engine := NewEngine(runner, store, Options{
		Now:      func() time.Time { return testNow },
		DiskPath: t.TempDir(),
	})
	return engine, store
}

func TestEngine_RefreshEnriches(t *testing.T) {
	runner := &fakeRunner{records: []inventory.ModelRecord{
		record("llama3:8b", 4<<30, 5),
		record("llama3:8b-q4", 2<<30, 40),
		record("llava:7b", 4<<30, 20),
	}}
	engine, _ := newTestEngine(t, runner)

	require.NoError(t, engine.Refresh(context.Background()))
	assert.False(t, engine.Stale())
	assert.Equal(t, testNow, engine.LastRefresh())

	models := engine.Models(Query{})
	require.Len(t, models, 3)

	byName := make(map[string]EnrichedModel)
	for _, m := range models {
		byName[m.Name] = m
	}

	assert.Equal(t, classify.AgeRecent, byName["llama3:8b"].Age)
	assert.Equal(t, classify.AgeOld, byName["llama3:8b-q4"].Age)
	assert.Equal(t, classify.AgeModerate, byName["llava:7b"].Age)

	// Both quantization siblings share an identity; both get flagged.
	assert.True(t, byName["llama3:8b"].Duplicate)
	assert.True(t, byName["llama3:8b-q4"].Duplicate)
	assert.False(t, byName["llava:7b"].Duplicate)
	require.NotNil(t, byName["llama3:8b"].Family)
	assert.Equal(t, 2, byName["llama3:8b"].Family.Total)

	assert.True(t, byName["llava:7b"].HasCapability(classify.CapabilityVision))
}

func TestEngine_RefreshFailureKeepsSnapshot(t *testing.T) {
	runner := &fakeRunner{records: []inventory.ModelRecord{
		record("llama3:8b", 4<<30, 5),
	}}
	engine, _ := newTestEngine(t, runner)
	require.NoError(t, engine.Refresh(context.Background()))

	runner.mu.Lock()
	runner.listErr = &inventory.RunnerError{
		Kind:    inventory.KindUnavailable,
		Message: "cannot reach the ollama CLI",
	}
	runner.mu.Unlock()

	err := engine.Refresh(context.Background())
	require.Error(t, err)

	assert.True(t, engine.Stale())
	assert.Len(t, engine.Models(Query{}), 1, "previous snapshot must survive a failed refresh")
}

func TestEngine_RefreshSuperseded(t *testing.T) {
	gate := make(chan struct{})
	runner := &fakeRunner{
		records:  []inventory.ModelRecord{record("old-set:7b", 1<<30, 5)},
		listGate: gate,
	}
	engine, _ := newTestEngine(t, runner)

	// First refresh blocks inside the runner until the gate opens.
	firstDone := make(chan error, 1)
	go func() { firstDone <- engine.Refresh(context.Background()) }()

	// Wait until the first list call is in flight, then publish a newer
	// inventory through a second refresh.
	require.Eventually(t, func() bool {
		runner.mu.Lock()
		defer runner.mu.Unlock()
		return runner.listCalls == 1
	}, time.Second, time.Millisecond)

	runner.setRecords([]inventory.ModelRecord{record("new-set:7b", 1<<30, 5)})
	require.NoError(t, engine.Refresh(context.Background()))

	close(gate)
	require.NoError(t, <-firstDone)

	models := engine.Models(Query{})
	require.Len(t, models, 1)
	assert.Equal(t, "new-set:7b", models[0].Name, "stale refresh result must be discarded")
}

func TestEngine_ToggleStar(t *testing.T) {
	runner := &fakeRunner{records: []inventory.ModelRecord{record("llama3:8b", 4<<30, 5)}}
	engine, store := newTestEngine(t, runner)
	require.NoError(t, engine.Refresh(context.Background()))

	on, err := engine.ToggleStar("llama3:8b")
	require.NoError(t, err)
	assert.True(t, on)
	assert.True(t, store.Get("llama3:8b").Starred)

	models := engine.Models(Query{Filter: FilterStarred})
	require.Len(t, models, 1)
	assert.Equal(t, "llama3:8b", models[0].Name)

	off, err := engine.ToggleStar("llama3:8b")
	require.NoError(t, err)
	assert.False(t, off)
	assert.Empty(t, engine.Models(Query{Filter: FilterStarred}))
}

func TestEngine_ToggleQueued(t *testing.T) {
	runner := &fakeRunner{records: []inventory.ModelRecord{
		record("llama3:8b", 4<<30, 5),
		record("mistral:7b", 4<<30, 5),
	}}
	engine, _ := newTestEngine(t, runner)
	require.NoError(t, engine.Refresh(context.Background()))

	on, err := engine.ToggleQueued("mistral:7b")
	require.NoError(t, err)
	assert.True(t, on)

	queued := engine.Models(Query{Filter: FilterQueued})
	require.Len(t, queued, 1, "queued filter must return exactly the queued set")
	assert.Equal(t, "mistral:7b", queued[0].Name)
}

func TestEngine_MarkStale(t *testing.T) {
	runner := &fakeRunner{records: []inventory.ModelRecord{record("llama3:8b", 4<<30, 5)}}
	engine, _ := newTestEngine(t, runner)
	require.NoError(t, engine.Refresh(context.Background()))
	require.False(t, engine.Stale())

	engine.MarkStale()
	assert.True(t, engine.Stale())
	assert.Len(t, engine.Models(Query{}), 1, "stale snapshot keeps rendering")
}

func TestEngine_Lookup(t *testing.T) {
	runner := &fakeRunner{records: []inventory.ModelRecord{record("llama3:8b", 4<<30, 5)}}
	engine, _ := newTestEngine(t, runner)
	require.NoError(t, engine.Refresh(context.Background()))

	m, ok := engine.Lookup("llama3:8b")
	require.True(t, ok)
	assert.Equal(t, "llama3:8b", m.Name)

	_, ok = engine.Lookup("ghost:7b")
	assert.False(t, ok)
}

func TestEngine_StorageInfo(t *testing.T) {
	runner := &fakeRunner{records: []inventory.ModelRecord{
		record("llama3:8b", 4 << 30, 5),
		record("mistral:7b", 2 << 30, 5),
	}}
	engine, _ := newTestEngine(t, runner)
	require.NoError(t, engine.Refresh(context.Background()))

	_, err := engine.ToggleQueued("mistral:7b")
	require.NoError(t, err)

	info := engine.StorageInfo()
	assert.Equal(t, 2, info.ModelCount)
	assert.Equal(t, int64(6<<30), info.ModelBytes)
	assert.Equal(t, int64(2<<30), info.QueuedBytes)
	assert.NotZero(t, info.DiskTotalBytes)
}
