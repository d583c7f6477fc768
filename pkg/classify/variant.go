// Copyright (C) 2025 HarborML (oss@harborml.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package classify

import (
	"regexp"
	"sort"
	"strings"
)

// DefaultLiberationKeywords flags model variants marketed as having safety
// filtering removed. The list is a starting point, not business logic;
// users extend it through configuration.
var DefaultLiberationKeywords = []string{
	"uncensored", "abliterated", "unfiltered", "raw",
	"nsfw", "freedom", "libre", "unleashed", "unlimited",
	"dpo", "rogue", "wild", "rebel", "free",
}

// DefaultSpecialSuffixes are tag segments that mark a meaningful variant of
// a base model (tuning style, modality, alignment method) rather than a
// redundant copy.
var DefaultSpecialSuffixes = []string{
	"instruct", "chat", "code", "vision", "embed", "text",
	"a3b", "dpo", "ift", "sft", "rlhf", "tool", "function",
	"reasoning", "uncensored", "abliterated", "base",
}

// quantSegment matches tag segments that denote a quantization or storage
// format (q4, q4_K_M, iq2_xs, fp16, 8bit, ...). These segments never carry
// identity: "llama3:8b-q4" is the same model as "llama3:8b".
var quantSegment = regexp.MustCompile(`^(i?q\d[\w]*|fp16|fp32|f16|f32|bf16|\d+bit|gguf|awq|gptq)$`)

// VariantDetector classifies naming variants across a whole inventory.
//
// Duplicate detection is relational: it only makes sense against the full
// set of installed models, so the detector takes the complete name list.
// The keyword tables are fields so configuration can extend them.
type VariantDetector struct {
	// LiberationKeywords are substrings that flag an uncensored variant.
	LiberationKeywords []string

	// SpecialSuffixes are tag segments that make a name a purposeful
	// variant instead of a duplicate.
	SpecialSuffixes []string
}

// NewVariantDetector returns a detector loaded with the default tables.
func NewVariantDetector() *VariantDetector {
	return &VariantDetector{
		LiberationKeywords: DefaultLiberationKeywords,
		SpecialSuffixes:    DefaultSpecialSuffixes,
	}
}

// IsLiberated reports whether the name carries a liberation keyword.
func (d *VariantDetector) IsLiberated(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range d.LiberationKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// BaseName extracts the canonical model identity from a full name.
//
// # Description
//
// The name grammar is "base:tag" where the tag is a dash-separated list of
// segments ("8b-instruct-q4_K_M"). Identity is the base plus the leading
// tag segments up to the first variant segment (a quantization marker or a
// known special suffix). Everything is lowercased.
//
//	"llama3"           -> "llama3"
//	"llama3:8b"        -> "llama3:8b"
//	"llama3:8b-q4"     -> "llama3:8b"
//	"mistral:7b-instruct-fp16" -> "mistral:7b"
//
// This is a heuristic over community naming habits. There is no
// authoritative separator grammar, so multi-segment edge cases resolve in
// favor of stripping: a segment is kept only if it looks like plain
// parameter sizing.
func (d *VariantDetector) BaseName(name string) string {
	lower := strings.ToLower(name)
	base, tag, hasTag := strings.Cut(lower, ":")
	if !hasTag || tag == "" {
		return base
	}
	var kept []string
	for _, seg := range strings.Split(tag, "-") {
		if d.isVariantSegment(seg) {
			break
		}
		kept = append(kept, seg)
	}
	if len(kept) == 0 {
		return base
	}
	return base + ":" + strings.Join(kept, "-")
}

// variantTag returns the tag portion of a name, lowercased ("" if none).
func variantTag(name string) string {
	_, tag, _ := strings.Cut(strings.ToLower(name), ":")
	return tag
}

// IsSpecialVariant reports whether the name's tag carries a recognized
// non-default marker (quantization, tuning style, alignment method).
func (d *VariantDetector) IsSpecialVariant(name string) bool {
	tag := variantTag(name)
	if tag == "" {
		return false
	}
	for _, suffix := range d.SpecialSuffixes {
		if strings.Contains(tag, suffix) {
			return true
		}
	}
	for _, seg := range strings.Split(tag, "-") {
		if quantSegment.MatchString(seg) {
			return true
		}
	}
	return false
}

func (d *VariantDetector) isVariantSegment(seg string) bool {
	if quantSegment.MatchString(seg) {
		return true
	}
	for _, suffix := range d.SpecialSuffixes {
		if seg == suffix {
			return true
		}
	}
	return false
}

// FamilySummary describes the set of installed models sharing a base name.
type FamilySummary struct {
	// Base is the shared canonical identity.
	Base string

	// Total is the number of installed models in the family.
	Total int

	// SpecialVariants are family members with a purposeful variant tag.
	SpecialVariants []string

	// Duplicates are family members with no distinguishing tag.
	Duplicates []string
}

// VariantFlags are the per-model outputs of variant detection.
type VariantFlags struct {
	// Liberated is true when the name carries a liberation keyword.
	Liberated bool

	// Duplicate is true when at least one other installed model shares
	// the same base identity. Every member of such a family is flagged;
	// which one to keep is the user's call, so no primary is elected.
	Duplicate bool

	// SpecialVariant is true when the tag carries a recognized marker.
	SpecialVariant bool

	// Family summarizes the sibling set, nil for singletons.
	Family *FamilySummary
}

// Detect classifies every name in the inventory.
//
// # Inputs
//
//   - names: The complete set of installed model names.
//
// # Outputs
//
//   - map[string]VariantFlags: Flags keyed by the original (unmodified)
//     model name. Every input name has an entry.
func (d *VariantDetector) Detect(names []string) map[string]VariantFlags {
	families := make(map[string][]string)
	for _, name := range names {
		base := d.BaseName(name)
		families[base] = append(families[base], name)
	}

	flags := make(map[string]VariantFlags, len(names))
	for base, members := range families {
		sort.Strings(members)

		var summary *FamilySummary
		if len(members) > 1 {
			summary = &FamilySummary{Base: base, Total: len(members)}
			for _, m := range members {
				if d.IsSpecialVariant(m) {
					summary.SpecialVariants = append(summary.SpecialVariants, m)
				} else {
					summary.Duplicates = append(summary.Duplicates, m)
				}
			}
		}

		for _, m := range members {
			flags[m] = VariantFlags{
				Liberated:      d.IsLiberated(m),
				Duplicate:      len(members) > 1,
				SpecialVariant: d.IsSpecialVariant(m),
				Family:         summary,
			}
		}
	}
	return flags
}
