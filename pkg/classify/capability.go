// Copyright (C) 2025 HarborML (oss@harborml.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package classify derives display metadata from raw model records.
//
// # Description
//
// Everything in this package is a pure function of its inputs: capability
// tagging and age bucketing look at a single record, variant detection looks
// at the whole inventory. No function here reads the clock, shells out, or
// touches persisted state, which keeps the classifiers trivially testable.
//
// The keyword tables are deliberately data-driven. Model naming on the
// Ollama registry is folk taxonomy, not a grammar; when a new convention
// shows up the fix should be a table entry, not a code change.
package classify

import "strings"

// Capability is a coarse functional tag derived from a model's name.
type Capability string

const (
	// CapabilityText is carried by every model unconditionally.
	CapabilityText Capability = "text"

	// CapabilityVision marks multimodal models that accept images.
	CapabilityVision Capability = "vision"

	// CapabilityCode marks models tuned for programming tasks.
	CapabilityCode Capability = "code"

	// CapabilityEmbedding marks embedding-only models.
	CapabilityEmbedding Capability = "embed"

	// CapabilityTools marks models advertised for tool/function calling.
	CapabilityTools Capability = "tools"

	// CapabilityReasoning marks extended-thinking model families.
	CapabilityReasoning Capability = "reasoning"
)

// capabilityOrder fixes the iteration order so classification output is
// deterministic regardless of map layout.
var capabilityOrder = []Capability{
	CapabilityVision,
	CapabilityCode,
	CapabilityEmbedding,
	CapabilityTools,
	CapabilityReasoning,
}

// capabilityKeywords maps each tag to the name substrings that imply it.
// Matching is case-insensitive and the tags are independent; a single name
// can trigger several.
var capabilityKeywords = map[Capability][]string{
	CapabilityVision:    {"vision", "vl", "visual", "llava", "clip"},
	CapabilityCode:      {"code", "coder", "coding"},
	CapabilityEmbedding: {"embed"},
	CapabilityTools:     {"tool", "function", "agent"},
	CapabilityReasoning: {"r1", "reasoning", "think"},
}

// Capabilities returns the capability tags for a model name.
//
// # Description
//
// Runs the name through the keyword tables and returns the matching tags,
// always starting with CapabilityText. The result is never empty: a
// malformed or empty name still classifies as {text}.
//
// # Inputs
//
//   - name: Model name as reported by the runner (e.g. "llava:7b").
//
// # Outputs
//
//   - []Capability: Matched tags in fixed order, text first.
func Capabilities(name string) []Capability {
	lower := strings.ToLower(name)
	caps := []Capability{CapabilityText}
	for _, c := range capabilityOrder {
		for _, kw := range capabilityKeywords[c] {
			if strings.Contains(lower, kw) {
				caps = append(caps, c)
				break
			}
		}
	}
	return caps
}

// HasCapability reports whether the tag set contains the given tag.
func HasCapability(caps []Capability, c Capability) bool {
	for _, have := range caps {
		if have == c {
			return true
		}
	}
	return false
}

// MatchCapability reports whether any tag in the set contains the lowercased
// query as a substring. Used by the search pipeline so a query like "code"
// finds models whose name never mentions code.
func MatchCapability(caps []Capability, query string) bool {
	query = strings.ToLower(query)
	for _, c := range caps {
		if strings.Contains(string(c), query) {
			return true
		}
	}
	return false
}
