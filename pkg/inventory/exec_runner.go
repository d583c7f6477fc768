// Copyright (C) 2025 HarborML (oss@harborml.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package inventory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// DefaultCommandTimeout bounds a single runner invocation. List and show
// are fast; delete can take a few seconds while the store releases locks.
const DefaultCommandTimeout = 30 * time.Second

// ExecRunner implements ModelRunner by shelling out to the runner binary.
type ExecRunner struct {
	binary  string
	timeout time.Duration
	logger  *slog.Logger

	// now is injected for tests; relative timestamps in the list output
	// are resolved against it.
	now func() time.Time

	// run is the subprocess seam, replaced in tests.
	run func(ctx context.Context, args ...string) (stdout, stderr string, err error)
}

// NewExecRunner creates a runner around the given binary ("ollama" by
// default when empty).
func NewExecRunner(binary string, timeout time.Duration, logger *slog.Logger) *ExecRunner {
	if binary == "" {
		binary = "ollama"
	}
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &ExecRunner{
		binary:  binary,
		timeout: timeout,
		logger:  logger,
		now:     time.Now,
	}
	r.run = r.runCommand
	return r
}

// ListModels invokes `<binary> list` and parses the table.
//
// # Outputs
//
//   - []ModelRecord: One record per parsable row. Bad rows are skipped.
//   - error: *RunnerError with KindUnavailable when the CLI is missing or
//     exits non-zero, KindCancelled on timeout.
func (r *ExecRunner) ListModels(ctx context.Context) ([]ModelRecord, error) {
	stdout, stderr, err := r.run(ctx, "list")
	if err != nil {
		return nil, r.invocationError(ctx, err, stderr, "")
	}

	records := ParseList(stdout, r.now(), r.logger)
	r.logger.Debug("inventory refreshed", "count", len(records))
	return records, nil
}

// DeleteModel invokes `<binary> rm <name>`.
//
// Success is a zero exit status. On failure the captured stderr is
// surfaced verbatim in the error detail, per model, so the user sees
// exactly what the runner said.
func (r *ExecRunner) DeleteModel(ctx context.Context, name string) error {
	_, stderr, err := r.run(ctx, "rm", name)
	if err == nil {
		r.logger.Info("model deleted", "model", name)
		return nil
	}

	if ctxDead(ctx, err) {
		return cancelErr(ctx, name)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &RunnerError{
			Kind:        KindDeleteFailed,
			Model:       name,
			Message:     fmt.Sprintf("failed to delete %s", name),
			Detail:      strings.TrimSpace(stderr),
			Remediation: "Check that the model is not in use, then retry",
		}
	}
	return r.invocationError(ctx, err, stderr, name)
}

// ShowModel invokes `<binary> show <name>` and parses the detail.
func (r *ExecRunner) ShowModel(ctx context.Context, name string) (*ModelInfo, error) {
	stdout, stderr, err := r.run(ctx, "show", name)
	if err != nil {
		if strings.Contains(stderr, "not found") {
			return nil, &RunnerError{
				Kind:        KindNotFound,
				Model:       name,
				Message:     fmt.Sprintf("model %q is not installed", name),
				Detail:      strings.TrimSpace(stderr),
				Remediation: "Refresh the inventory; the model may have been removed",
			}
		}
		return nil, r.invocationError(ctx, err, stderr, name)
	}
	return ParseShow(name, stdout), nil
}

// runCommand executes one subprocess with the per-call timeout layered on
// the caller's context.
func (r *ExecRunner) runCommand(ctx context.Context, args ...string) (string, string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	// A timeout kills the process and surfaces as a signal error; report
	// the context death instead so callers can classify it.
	if err != nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	return stdout.String(), stderr.String(), err
}

// invocationError maps a failed invocation to a RunnerError.
func (r *ExecRunner) invocationError(ctx context.Context, err error, stderr, model string) *RunnerError {
	if ctxDead(ctx, err) {
		return cancelErr(ctx, model)
	}
	detail := strings.TrimSpace(stderr)
	if detail == "" {
		detail = err.Error()
	}
	return &RunnerError{
		Kind:        KindUnavailable,
		Model:       model,
		Message:     fmt.Sprintf("cannot reach the %s CLI", r.binary),
		Detail:      detail,
		Remediation: fmt.Sprintf("Check that %s is installed and the server is running (`%s serve`)", r.binary, r.binary),
	}
}

// ctxDead reports whether the failure is attributable to the context.
func ctxDead(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
