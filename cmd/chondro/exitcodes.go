// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"errors"

	"github.com/pdiddy/chondro/internal/config"
	"github.com/pdiddy/chondro/internal/extract"
	"github.com/pdiddy/chondro/internal/tool"
)

// Process exit codes.
const (
	ExitSuccess     = 0 // Clean run
	ExitError       = 1 // Runtime failure, including items that failed
	ExitConfigError = 2 // Invalid configuration or lookup table
	ExitStoreError  = 3 // Queue or corpus could not be opened or written
	ExitToolMissing = 4 // pdftotext or ocrmypdf not on PATH
)

// storeError marks failures of the SQLite stores.
type storeError struct{ err error }

func (e *storeError) Error() string { return e.err.Error() }
func (e *storeError) Unwrap() error { return e.err }

func storeErr(err error) error {
	if err == nil {
		return nil
	}
	return &storeError{err: err}
}

// exitCode maps an error returned by a command to a process exit code.
func exitCode(err error) int {
	var se *storeError
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, config.ErrInvalid), errors.Is(err, extract.ErrTable):
		return ExitConfigError
	case errors.Is(err, tool.ErrToolMissing):
		return ExitToolMissing
	case errors.As(err, &se):
		return ExitStoreError
	default:
		return ExitError
	}
}
