// Copyright (C) 2025 HarborML (oss@harborml.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package viewmodel

import (
	"fmt"
	"sort"
	"strings"

	"github.com/harborml/modeldeck/pkg/classify"
)

// Filter selects a subset of the enriched inventory.
type Filter string

const (
	FilterAll        Filter = "all"
	FilterRecent     Filter = "recent"
	FilterModerate   Filter = "moderate"
	FilterOld        Filter = "old"
	FilterStarred    Filter = "starred"
	FilterLiberated  Filter = "liberated"
	FilterQueued     Filter = "queued"
	FilterDuplicates Filter = "duplicates"
	FilterVariants   Filter = "variants"
)

// Filters lists every filter in UI cycling order.
var Filters = []Filter{
	FilterAll, FilterRecent, FilterModerate, FilterOld,
	FilterStarred, FilterLiberated, FilterQueued,
	FilterDuplicates, FilterVariants,
}

// ParseFilter converts user input to a Filter; empty means all.
func ParseFilter(s string) (Filter, error) {
	if s == "" {
		return FilterAll, nil
	}
	for _, f := range Filters {
		if Filter(strings.ToLower(s)) == f {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown filter %q", s)
}

// matches reports whether the model passes the filter.
func (f Filter) matches(m EnrichedModel) bool {
	switch f {
	case FilterAll, "":
		return true
	case FilterRecent:
		return m.Age == classify.AgeRecent
	case FilterModerate:
		return m.Age == classify.AgeModerate
	case FilterOld:
		return m.Age == classify.AgeOld
	case FilterStarred:
		return m.Starred
	case FilterLiberated:
		return m.Liberated
	case FilterQueued:
		return m.QueuedForDeletion
	case FilterDuplicates:
		return m.Duplicate
	case FilterVariants:
		return m.SpecialVariant
	default:
		return false
	}
}

// SortKey orders the filtered inventory.
type SortKey string

const (
	// SortName orders ascending by name, byte-wise lexicographic. No
	// locale collation: model names are registry identifiers, not prose.
	SortName SortKey = "name"

	// SortSize orders descending by on-disk size.
	SortSize SortKey = "size"

	// SortModified orders descending by modification time, newest first.
	SortModified SortKey = "modified"
)

// SortKeys lists every sort key in UI cycling order.
var SortKeys = []SortKey{SortName, SortSize, SortModified}

// ParseSortKey converts user input to a SortKey; empty means name.
func ParseSortKey(s string) (SortKey, error) {
	if s == "" {
		return SortName, nil
	}
	for _, k := range SortKeys {
		if SortKey(strings.ToLower(s)) == k {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown sort key %q", s)
}

// Query is one view over the inventory: a search term, a filter, and a
// sort order, applied in exactly that sequence.
type Query struct {
	// Search is a case-insensitive substring matched against the model
	// name or any capability tag. Empty matches everything.
	Search string

	// Filter restricts the result set; zero value means all.
	Filter Filter

	// Sort orders the result; zero value means name ascending.
	Sort SortKey
}

// Apply runs the query pipeline over the models.
//
// Search, then filter, then sort. Sorting is stable so equal keys keep
// their prior relative order, which keeps the list from jumping around as
// the user cycles sorts in the UI.
func (q Query) Apply(models []EnrichedModel) []EnrichedModel {
	out := make([]EnrichedModel, 0, len(models))
	search := strings.ToLower(strings.TrimSpace(q.Search))
	for _, m := range models {
		if search != "" && !matchesSearch(m, search) {
			continue
		}
		if !q.Filter.matches(m) {
			continue
		}
		out = append(out, m)
	}

	switch q.Sort {
	case SortSize:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].SizeBytes > out[j].SizeBytes
		})
	case SortModified:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].ModifiedAt.After(out[j].ModifiedAt)
		})
	default:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].Name < out[j].Name
		})
	}
	return out
}

// matchesSearch checks the lowercased name and the capability tags.
func matchesSearch(m EnrichedModel, search string) bool {
	if strings.Contains(strings.ToLower(m.Name), search) {
		return true
	}
	return classify.MatchCapability(m.Capabilities, search)
}
