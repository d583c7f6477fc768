// Copyright (C) 2025 HarborML (oss@harborml.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package inventory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var parseNow = time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)

// Variables, not constants: fractional sizes like 4.7 GB only convert to
// int64 through a runtime expression, matching what ParseSize computes.
var (
	gib = float64(1 << 30)
	tib = float64(1 << 40)
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{name: "gigabytes", input: "4.7 GB", want: int64(4.7 * gib)},
		{name: "megabytes", input: "500 MB", want: 500 << 20},
		{name: "terabytes", input: "1.1 TB", want: int64(1.1 * tib)},
		{name: "plain bytes", input: "815 B", want: 815},
		{name: "lowercase unit", input: "2 gb", want: 2 << 30},
		{name: "missing unit", input: "4.7", wantErr: true},
		{name: "unknown unit", input: "4.7 XB", wantErr: true},
		{name: "non numeric", input: "big GB", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSize(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRelativeTime(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Time
		wantErr bool
	}{
		{name: "weeks", input: "2 weeks ago", want: parseNow.Add(-14 * 24 * time.Hour)},
		{name: "single day", input: "a day ago", want: parseNow.Add(-24 * time.Hour)},
		{name: "an hour", input: "an hour ago", want: parseNow.Add(-time.Hour)},
		{name: "months", input: "3 months ago", want: parseNow.Add(-90 * 24 * time.Hour)},
		{name: "about a minute", input: "About a minute ago", want: parseNow.Add(-time.Minute)},
		{name: "sub second", input: "Less than a second ago", want: parseNow},
		{name: "yesterday", input: "yesterday", want: parseNow.Add(-24 * time.Hour)},
		{name: "empty", input: "", wantErr: true},
		{name: "no ago suffix", input: "2 weeks", wantErr: true},
		{name: "unknown unit", input: "2 fortnights ago", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRelativeTime(tt.input, parseNow)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseList(t *testing.T) {
	output := `NAME                ID              SIZE      MODIFIED
llama3:8b           365c0bd3c000    4.7 GB    2 weeks ago
deepseek-coder:6.7b 9aabe5a3b12a    3.8 GB    5 days ago
llava:7b            8dd30f6b0cb1    4.7 GB    3 months ago
`

	records := ParseList(output, parseNow, nil)
	require.Len(t, records, 3)

	assert.Equal(t, "llama3:8b", records[0].Name)
	assert.Equal(t, "365c0bd3c000", records[0].ID)
	assert.Equal(t, int64(4.7*gib), records[0].SizeBytes)
	assert.Equal(t, parseNow.Add(-14*24*time.Hour), records[0].ModifiedAt)

	assert.Equal(t, "deepseek-coder:6.7b", records[1].Name)
	assert.Equal(t, parseNow.Add(-5*24*time.Hour), records[1].ModifiedAt)
}

func TestParseList_SkipsBadRows(t *testing.T) {
	output := `NAME        ID              SIZE      MODIFIED
good:7b     abc123          1.0 GB    2 days ago
truncated-row
bad-size:7b def456          huge GB   2 days ago
also-good:3b 789xyz         500 MB    1 week ago
`

	records := ParseList(output, parseNow, nil)
	require.Len(t, records, 2)
	assert.Equal(t, "good:7b", records[0].Name)
	assert.Equal(t, "also-good:3b", records[1].Name)
}

func TestParseList_EmptyAndHeaderOnly(t *testing.T) {
	assert.Nil(t, ParseList("", parseNow, nil))
	assert.Empty(t, ParseList("NAME  ID  SIZE  MODIFIED\n", parseNow, nil))
}

func TestParseShow(t *testing.T) {
	output := `Model
    architecture        llama
    parameters          8.0B
    context length      8192
    embedding length    4096
    quantization        Q4_0

License
    META LLAMA 3 COMMUNITY LICENSE AGREEMENT
`

	info := ParseShow("llama3:8b", output)
	assert.Equal(t, "llama3:8b", info.Name)
	assert.Equal(t, "llama", info.Architecture)
	assert.Equal(t, "8.0B", info.Parameters)
	assert.Equal(t, "Q4_0", info.Quantization)
	assert.Equal(t, "8192", info.ContextLen)
	assert.Equal(t, "META LLAMA 3 COMMUNITY LICENSE AGREEMENT", info.License)
}

func TestParseShow_UnknownSectionsIgnored(t *testing.T) {
	output := `Model
    architecture    qwen2

Projector
    something       new
`
	info := ParseShow("qwen:7b", output)
	assert.Equal(t, "qwen2", info.Architecture)
	assert.Empty(t, info.Parameters)
}
