// Copyright (C) 2025 HarborML (oss@harborml.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

//go:build !unix

package viewmodel

import "errors"

// diskUsage is unsupported off unix; StorageInfo degrades to model sums.
func diskUsage(string) (total, free uint64, err error) {
	return 0, 0, errors.New("disk capacity not supported on this platform")
}
