// Copyright (C) 2025 HarborML (oss@harborml.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package classify

import (
	"math"
	"time"
)

// AgeCategory buckets a model by how long ago it was last modified.
type AgeCategory int

const (
	// AgeRecent means the model was modified less than 14 days ago.
	AgeRecent AgeCategory = iota

	// AgeModerate means 14 to 29 whole days.
	AgeModerate

	// AgeOld means 30 days or more.
	AgeOld
)

// Age bucket boundaries in whole days. Lower bound inclusive, upper bound
// exclusive: day 13 is recent, day 14 is moderate, day 30 is old.
const (
	recentUpperDays   = 14
	moderateUpperDays = 30
)

// String returns the category as a lowercase identifier.
func (a AgeCategory) String() string {
	switch a {
	case AgeRecent:
		return "recent"
	case AgeModerate:
		return "moderate"
	case AgeOld:
		return "old"
	default:
		return "unknown"
	}
}

// CategorizeAge maps a modified timestamp to an age bucket.
//
// # Description
//
// Age is the elapsed wall-clock time between modifiedAt and now, floored to
// whole days. The reference time is a parameter rather than a clock read so
// that categorization stays deterministic under test.
//
// A modifiedAt in the future (clock skew on the model store) floors to a
// negative day count and classifies as recent.
//
// # Inputs
//
//   - modifiedAt: When the model was last modified.
//   - now: The reference time for the age computation.
//
// # Outputs
//
//   - AgeCategory: recent, moderate, or old.
func CategorizeAge(modifiedAt, now time.Time) AgeCategory {
	days := int(math.Floor(now.Sub(modifiedAt).Hours() / 24))
	switch {
	case days < recentUpperDays:
		return AgeRecent
	case days < moderateUpperDays:
		return AgeModerate
	default:
		return AgeOld
	}
}
