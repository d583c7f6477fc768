// Copyright (C) 2025 HarborML (oss@harborml.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

//go:build unix

package viewmodel

import (
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// diskUsage reports total and free bytes for the filesystem holding path.
// A missing path falls back to its nearest existing ancestor, since the
// model directory may not exist before the first pull.
func diskUsage(path string) (total, free uint64, err error) {
	for path != "" {
		if _, statErr := os.Stat(path); statErr == nil {
			break
		}
		parent := filepath.Dir(path)
		if parent == path {
			break
		}
		path = parent
	}

	var fs unix.Statfs_t
	if err := unix.Statfs(path, &fs); err != nil {
		return 0, 0, err
	}
	bsize := uint64(fs.Bsize)
	return fs.Blocks * bsize, fs.Bavail * bsize, nil
}
