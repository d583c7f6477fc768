// Copyright (C) 2025 HarborML (oss@harborml.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package classify

import "testing"

func TestCapabilities(t *testing.T) {
	tests := []struct {
		name string
		want []Capability
	}{
		{"mistral:7b", []Capability{CapabilityText}},
		{"llava:7b", []Capability{CapabilityText, CapabilityVision}},
		{"deepseek-coder:6.7b-instruct", []Capability{CapabilityText, CapabilityCode}},
		{"nomic-embed-text:latest", []Capability{CapabilityText, CapabilityEmbedding}},
		{"deepseek-r1:14b", []Capability{CapabilityText, CapabilityReasoning}},
		{"qwen2.5-coder-tools:7b", []Capability{CapabilityText, CapabilityCode, CapabilityTools}},
		{"LLaVA:13B", []Capability{CapabilityText, CapabilityVision}},
		{"", []Capability{CapabilityText}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Capabilities(tt.name)
			if len(got) != len(tt.want) {
				t.Fatalf("Capabilities(%q) = %v, want %v", tt.name, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Capabilities(%q)[%d] = %v, want %v", tt.name, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestCapabilities_AlwaysContainsText(t *testing.T) {
	names := []string{"", "x", "llama3:8b", "garbage name with spaces", "🚀"}
	for _, name := range names {
		caps := Capabilities(name)
		if len(caps) == 0 {
			t.Fatalf("Capabilities(%q) returned empty set", name)
		}
		if !HasCapability(caps, CapabilityText) {
			t.Errorf("Capabilities(%q) = %v, missing text tag", name, caps)
		}
	}
}

func TestMatchCapability(t *testing.T) {
	caps := Capabilities("gpt-oss-coder:20b")
	if !MatchCapability(caps, "code") {
		t.Error("query 'code' should match the code capability tag")
	}
	if !MatchCapability(caps, "CODE") {
		t.Error("capability match should be case-insensitive")
	}
	if MatchCapability(caps, "vision") {
		t.Error("query 'vision' should not match a text/code model")
	}
}
