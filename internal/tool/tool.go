// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package tool runs the external programs the pipeline depends on
// (pdftotext, pdfinfo, ocrmypdf, and the browser helper) with hard
// timeouts. Command execution goes through an Executor so tests can
// substitute canned results.
package tool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// Well-known tool binaries.
const (
	PDFToText = "pdftotext"
	PDFInfo   = "pdfinfo"
	OCRMyPDF  = "ocrmypdf"
)

var (
	// ErrToolMissing is returned when a required binary is not on PATH.
	ErrToolMissing = errors.New("required external tool not found")

	// ErrTimeout is returned when a command exceeds its time budget.
	ErrTimeout = errors.New("external tool timed out")
)

// Result is the captured outcome of one command.
type Result struct {
	Stdout   []byte
	Stderr   string
	ExitCode int
}

// Executor abstracts command execution for testing.
type Executor interface {
	LookPath(file string) (string, error)
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

// osExecutor is the production executor backed by os/exec.
type osExecutor struct{}

func (osExecutor) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

func (osExecutor) Run(ctx context.Context, name string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	// Children of a killed process may hold the pipes open.
	cmd.WaitDelay = 2 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.Bytes(), Stderr: stderr.String()}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}
	return res, err
}

// Runner executes tools with timeouts.
type Runner struct {
	exec Executor
}

// NewRunner returns a Runner backed by os/exec.
func NewRunner() *Runner {
	return &Runner{exec: osExecutor{}}
}

// NewRunnerWithExecutor returns a Runner backed by e.
func NewRunnerWithExecutor(e Executor) *Runner {
	return &Runner{exec: e}
}

// Require checks that every named binary is on PATH.
func (r *Runner) Require(names ...string) error {
	for _, name := range names {
		if _, err := r.exec.LookPath(name); err != nil {
			return fmt.Errorf("%w: %s", ErrToolMissing, name)
		}
	}
	return nil
}

// Available reports whether name is on PATH.
func (r *Runner) Available(name string) bool {
	_, err := r.exec.LookPath(name)
	return err == nil
}

// Run executes name with args under timeout. A timeout yields an error
// wrapping ErrTimeout; a non-zero exit yields an *ExitError carrying the
// code and stderr. The Result is returned in both cases.
func (r *Runner) Run(ctx context.Context, timeout time.Duration, name string, args ...string) (Result, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	res, err := r.exec.Run(ctx, name, args...)
	if err == nil {
		return res, nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return res, fmt.Errorf("%s after %v: %w", name, timeout, ErrTimeout)
	}
	if ctx.Err() != nil {
		return res, ctx.Err()
	}
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		return res, fmt.Errorf("%w: %s", ErrToolMissing, name)
	}
	if res.ExitCode != 0 {
		return res, &ExitError{Name: name, Code: res.ExitCode, Stderr: res.Stderr}
	}
	return res, fmt.Errorf("running %s: %w", name, err)
}

// ExitError reports a non-zero exit status.
type ExitError struct {
	Name   string
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s exited with status %d", e.Name, e.Code)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

// ExitCode returns the exit status carried by err, or -1.
func ExitCode(err error) int {
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return -1
}
