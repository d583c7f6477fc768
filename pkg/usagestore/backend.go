// Copyright (C) 2025 HarborML (oss@harborml.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package usagestore

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Backend is the persistence layer behind a Store.
//
// The store reads and writes the whole document; the backend only moves
// bytes. Keeping the interface this narrow lets tests swap in an in-memory
// backend and lets the file backend own the atomic-replacement discipline.
type Backend interface {
	// Load returns the persisted document, or (nil, nil) when nothing
	// has been persisted yet. A missing file is not an error.
	Load() ([]byte, error)

	// Save replaces the persisted document. On failure the previous
	// version must remain intact.
	Save(data []byte) error
}

// FileBackend persists the document as a single JSON file.
type FileBackend struct {
	path string
}

// NewFileBackend creates a backend writing to the given path. The parent
// directory is created on first save.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// Path returns the backing file path.
func (b *FileBackend) Path() string {
	return b.path
}

// Load reads the whole document. A file that does not exist yet yields
// (nil, nil) so first launch starts from an empty store.
func (b *FileBackend) Load() ([]byte, error) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read usage store: %w", err)
	}
	return data, nil
}

// Save writes the document with write-to-temp-then-rename so a crash or a
// serialization failure partway never corrupts the previous version.
func (b *FileBackend) Save(data []byte) error {
	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("create usage store directory: %w", err)
	}

	// The temp file must live on the same filesystem as the target for
	// the rename to be atomic.
	tmp, err := os.CreateTemp(dir, filepath.Base(b.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, b.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace usage store: %w", err)
	}
	if err := os.Chmod(b.path, fs.FileMode(0640)); err != nil {
		return fmt.Errorf("chmod usage store: %w", err)
	}
	return nil
}

// MemoryBackend keeps the document in memory. Intended for tests; it can
// inject save failures to exercise the retry path.
type MemoryBackend struct {
	mu   sync.Mutex
	data []byte

	// FailNextSaves makes the next N Save calls fail.
	FailNextSaves int

	// SaveCalls counts Save invocations, including failed ones.
	SaveCalls int
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

// Load returns the current in-memory document.
func (b *MemoryBackend) Load() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.data == nil {
		return nil, nil
	}
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out, nil
}

// Save stores a copy of the document, honoring injected failures.
func (b *MemoryBackend) Save(data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.SaveCalls++
	if b.FailNextSaves > 0 {
		b.FailNextSaves--
		return fmt.Errorf("injected save failure")
	}
	b.data = make([]byte, len(data))
	copy(b.data, data)
	return nil
}

// Bytes returns the current document for assertions.
func (b *MemoryBackend) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out
}
