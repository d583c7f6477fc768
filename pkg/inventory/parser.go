// Copyright (C) 2025 HarborML (oss@harborml.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package inventory

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// sizeUnits maps the runner's size suffixes to byte multipliers. The
// runner reports binary multiples.
var sizeUnits = map[string]int64{
	"B":  1,
	"KB": 1 << 10,
	"MB": 1 << 20,
	"GB": 1 << 30,
	"TB": 1 << 40,
}

// relativeUnits maps the units in the MODIFIED column to durations.
// Months and years are calendar approximations; they only need to be good
// enough for bucketing, not for arithmetic.
var relativeUnits = map[string]time.Duration{
	"second": time.Second,
	"minute": time.Minute,
	"hour":   time.Hour,
	"day":    24 * time.Hour,
	"week":   7 * 24 * time.Hour,
	"month":  30 * 24 * time.Hour,
	"year":   365 * 24 * time.Hour,
}

// ParseList converts the tabular `ollama list` output into records.
//
// # Description
//
// The first line is a header and is skipped. Each remaining row is
// whitespace-split: NAME, ID, then a two-token SIZE ("4.7 GB"), then the
// relative MODIFIED text ("2 weeks ago"). Rows that do not fit the shape
// are logged and skipped; one malformed row never fails the refresh.
//
// # Inputs
//
//   - output: Raw stdout from the list command.
//   - now: Reference time used to resolve relative timestamps.
//   - logger: Destination for skipped-row diagnostics.
//
// # Outputs
//
//   - []ModelRecord: One record per parsable row, in output order.
func ParseList(output string, now time.Time, logger *slog.Logger) []ModelRecord {
	if logger == nil {
		logger = slog.Default()
	}

	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) <= 1 {
		return nil
	}

	records := make([]ModelRecord, 0, len(lines)-1)
	for _, line := range lines[1:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		rec, err := parseRow(line, now)
		if err != nil {
			logger.Warn("skipping unparsable inventory row", "row", line, "error", err)
			continue
		}
		records = append(records, rec)
	}
	return records
}

func parseRow(line string, now time.Time) (ModelRecord, error) {
	fields := strings.Fields(line)
	if len(fields) < 5 {
		return ModelRecord{}, fmt.Errorf("expected at least 5 columns, got %d", len(fields))
	}

	size, err := ParseSize(fields[2] + " " + fields[3])
	if err != nil {
		return ModelRecord{}, err
	}

	modified, err := ParseRelativeTime(strings.Join(fields[4:], " "), now)
	if err != nil {
		return ModelRecord{}, err
	}

	return ModelRecord{
		Name:       fields[0],
		ID:         fields[1],
		SizeBytes:  size,
		ModifiedAt: modified,
	}, nil
}

// ParseSize converts a human-readable size string ("4.7 GB") to bytes.
func ParseSize(s string) (int64, error) {
	parts := strings.Fields(s)
	if len(parts) != 2 {
		return 0, fmt.Errorf("malformed size %q", s)
	}
	value, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, fmt.Errorf("malformed size value %q: %w", parts[0], err)
	}
	mult, ok := sizeUnits[strings.ToUpper(parts[1])]
	if !ok {
		return 0, fmt.Errorf("unknown size unit %q", parts[1])
	}
	return int64(value * float64(mult)), nil
}

// ParseRelativeTime resolves the runner's relative timestamp text against
// a reference time.
//
// Accepted shapes: "N <unit>s ago", "About a minute ago",
// "Less than a second ago". The result is approximate by construction;
// downstream age bucketing only needs day resolution.
func ParseRelativeTime(s string, now time.Time) (time.Time, error) {
	text := strings.ToLower(strings.TrimSpace(s))
	if text == "" {
		return time.Time{}, fmt.Errorf("empty modified field")
	}

	switch text {
	case "less than a second ago", "just now":
		return now, nil
	case "about a minute ago":
		return now.Add(-time.Minute), nil
	case "about an hour ago":
		return now.Add(-time.Hour), nil
	case "yesterday":
		return now.Add(-24 * time.Hour), nil
	}

	fields := strings.Fields(text)
	if len(fields) < 3 || fields[len(fields)-1] != "ago" {
		return time.Time{}, fmt.Errorf("unrecognized modified field %q", s)
	}

	count, err := strconv.Atoi(fields[0])
	if err != nil {
		// "a week ago", "an hour ago"
		if fields[0] == "a" || fields[0] == "an" {
			count = 1
		} else {
			return time.Time{}, fmt.Errorf("unrecognized count in %q", s)
		}
	}

	unit := strings.TrimSuffix(fields[1], "s")
	dur, ok := relativeUnits[unit]
	if !ok {
		return time.Time{}, fmt.Errorf("unknown time unit %q in %q", fields[1], s)
	}
	return now.Add(-time.Duration(count) * dur), nil
}

// ParseShow converts `ollama show` key/value output into ModelInfo.
//
// The show output is loosely structured, with indented "key value" pairs
// under section headers. Unknown keys are ignored so newer runner
// versions do not break the parse.
func ParseShow(name, output string) *ModelInfo {
	info := &ModelInfo{Name: name}
	var section string

	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		// Unindented lines are section headers (Model, Capabilities,
		// Parameters, License, ...).
		if !strings.HasPrefix(line, " ") && !strings.HasPrefix(line, "\t") {
			section = strings.ToLower(trimmed)
			continue
		}

		switch section {
		case "model":
			key, value, ok := splitShowPair(trimmed)
			if !ok {
				continue
			}
			switch key {
			case "architecture":
				info.Architecture = value
			case "parameters":
				info.Parameters = value
			case "quantization":
				info.Quantization = value
			case "context length":
				info.ContextLen = value
			}
		case "license":
			if info.License == "" {
				info.License = trimmed
			}
		case "template":
			if info.Template == "" {
				info.Template = trimmed
			}
		}
	}
	return info
}

// splitShowPair splits an indented show row at the multi-space gap
// between key and value.
func splitShowPair(row string) (key, value string, ok bool) {
	idx := strings.Index(row, "  ")
	if idx < 0 {
		return "", "", false
	}
	return strings.ToLower(strings.TrimSpace(row[:idx])), strings.TrimSpace(row[idx:]), true
}
