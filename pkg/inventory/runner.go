// Copyright (C) 2025 HarborML (oss@harborml.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

/*
Package inventory adapts the external model-runner CLI into typed records.

# Problem Statement

The Ollama CLI is the source of truth for which models are installed, how
big they are, and when they changed. Its `list` output is a human-oriented
table with relative timestamps and unit-suffixed sizes:

	NAME            ID              SIZE      MODIFIED
	llama3:8b       365c0bd3c000    4.7 GB    2 weeks ago
	llava:7b        8dd30f6b0cb1    4.7 GB    3 months ago

The rest of the application wants none of that: it wants byte counts,
absolute timestamps, and errors it can categorize.

# Solution

A narrow ModelRunner interface (list, delete, show) with one subprocess
implementation (ExecRunner) and a parser that converts the tabular output
into ModelRecord values. Core logic is tested against fakes of the
interface and never shells out.

# Error Handling

Every failure is a *RunnerError carrying a Kind for programmatic handling,
the captured diagnostic text verbatim, and a remediation hint. A row the
parser cannot understand is skipped and logged; it never aborts the whole
refresh.
*/
package inventory

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ModelRecord is one installed model as reported by the runner.
// Records are immutable and rebuilt on every refresh; they are never
// persisted.
type ModelRecord struct {
	// Name is the unique identifier, possibly "base:tag".
	Name string

	// ID is the short content-hash string from the runner.
	ID string

	// SizeBytes is the on-disk size parsed from the human-readable
	// size column.
	SizeBytes int64

	// ModifiedAt is the absolute modification time, reconstructed from
	// the runner's relative timestamp against the refresh time.
	ModifiedAt time.Time
}

// ModelInfo is the on-demand detail from `ollama show`.
type ModelInfo struct {
	Name         string
	Architecture string
	Parameters   string
	Quantization string
	ContextLen   string
	Template     string
	License      string
}

// ModelRunner is the contract with the external runner CLI.
//
// Implementations must be safe for concurrent use. All operations take a
// context; the subprocess implementation enforces per-call timeouts on top
// of it.
type ModelRunner interface {
	// ListModels returns the full installed inventory.
	ListModels(ctx context.Context) ([]ModelRecord, error)

	// DeleteModel removes one model by name.
	DeleteModel(ctx context.Context, name string) error

	// ShowModel returns detail for one model.
	ShowModel(ctx context.Context, name string) (*ModelInfo, error)
}

// ErrorKind categorizes runner failures for programmatic handling.
type ErrorKind int

const (
	// KindUnavailable means the runner CLI is missing or not running.
	// Recoverable by retry; the caller keeps its last known inventory.
	KindUnavailable ErrorKind = iota

	// KindParse means the CLI produced output we could not understand.
	KindParse

	// KindDeleteFailed means a delete command exited non-zero.
	KindDeleteFailed

	// KindNotFound means the named model does not exist.
	KindNotFound

	// KindCancelled means the context expired or was cancelled.
	KindCancelled
)

// String returns the kind as a stable identifier for logging.
func (k ErrorKind) String() string {
	switch k {
	case KindUnavailable:
		return "RUNNER_UNAVAILABLE"
	case KindParse:
		return "PARSE_ERROR"
	case KindDeleteFailed:
		return "DELETE_FAILED"
	case KindNotFound:
		return "MODEL_NOT_FOUND"
	case KindCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// RunnerError is the structured failure type for all runner operations.
type RunnerError struct {
	// Kind categorizes the error.
	Kind ErrorKind

	// Model is the model involved, empty for inventory-wide failures.
	Model string

	// Message is a one-line human-readable description.
	Message string

	// Detail carries the runner's diagnostic output verbatim.
	Detail string

	// Remediation suggests how to fix the issue.
	Remediation string
}

// Error implements the error interface.
func (e *RunnerError) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("%s (model: %s)", e.Message, e.Model)
	}
	return e.Message
}

// FullError returns the message with detail and remediation appended.
func (e *RunnerError) FullError() string {
	var b strings.Builder
	b.WriteString(e.Error())
	if e.Detail != "" {
		b.WriteString("\n\nDetails: ")
		b.WriteString(e.Detail)
	}
	if e.Remediation != "" {
		b.WriteString("\n\nTo fix:\n")
		b.WriteString(e.Remediation)
	}
	return b.String()
}

// cancelErr builds the error for a context that died mid-operation. The
// per-call timeout context may already be gone, so the cause can come from
// either the caller's context or the wrapped error.
func cancelErr(ctx context.Context, model string) *RunnerError {
	cause := ctx.Err()
	if cause == nil {
		cause = context.DeadlineExceeded
	}
	return &RunnerError{
		Kind:        KindCancelled,
		Model:       model,
		Message:     "operation cancelled",
		Detail:      cause.Error(),
		Remediation: "Try again, or raise the runner timeout in the config",
	}
}
