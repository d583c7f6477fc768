// Copyright (C) 2025 HarborML (oss@harborml.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package usagestore

import "time"

// UsageStats are the accumulated usage counters for one model.
//
// Optional fields are pointers or omitempty so a document written by an
// older build round-trips without inventing values.
type UsageStats struct {
	// Count is the number of recorded usage events.
	Count int `json:"count"`

	// LastUsed is when the model was last used, nil if never.
	LastUsed *time.Time `json:"lastUsed,omitempty"`

	// FirstUsed is when the model was first used, nil if never.
	FirstUsed *time.Time `json:"firstUsed,omitempty"`

	// TotalTokens is the cumulative token count across all events.
	TotalTokens int64 `json:"totalTokens,omitempty"`

	// AvgResponseTimeMs is the running mean response latency over the
	// events that reported one.
	AvgResponseTimeMs float64 `json:"avgResponseTimeMs,omitempty"`

	// LatencySamples is the number of events folded into
	// AvgResponseTimeMs. Events with an unknown latency are counted in
	// Count but not here.
	LatencySamples int `json:"latencySamples,omitempty"`
}

// Used reports whether any usage has ever been recorded.
func (s UsageStats) Used() bool {
	return s.Count > 0
}

// UsageRecord is the persisted per-model state: the user flags plus the
// usage counters. Records are keyed by model name, which is stable across
// inventory refreshes as long as the model is not renamed.
type UsageRecord struct {
	// Starred marks a user favorite.
	Starred bool `json:"starred"`

	// QueuedForDeletion marks the model for the next batch delete.
	QueuedForDeletion bool `json:"queuedForDeletion"`

	// Usage holds the accumulated counters.
	Usage UsageStats `json:"usage"`
}

// zero reports whether the record carries no information and can be
// dropped from the document instead of persisted.
func (r UsageRecord) zero() bool {
	return !r.Starred && !r.QueuedForDeletion && !r.Usage.Used()
}

// UsageEvent describes a single model usage for RecordUsage.
type UsageEvent struct {
	// Timestamp is when the usage happened.
	Timestamp time.Time

	// Tokens is the token count of the exchange, 0 if unknown.
	Tokens int64

	// ResponseTimeMs is the response latency, 0 if unknown.
	ResponseTimeMs float64
}
