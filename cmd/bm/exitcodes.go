package main

import (
	"errors"

	"github.com/matsen/bibmeta/internal/config"
	"github.com/matsen/bibmeta/internal/counter"
	"github.com/matsen/bibmeta/internal/importer"
)

// Exit codes
const (
	ExitSuccess     = 0 // Success
	ExitError       = 1 // General error (invalid arguments, runtime failure, store unavailable)
	ExitConfigError = 2 // Configuration error (no repository, invalid config)
	ExitDataError   = 3 // Data error (unreadable batch, corrupt counter)
	ExitLocked      = 4 // Another batch holds the repository lock
)

// exitCodeFor maps an error to the exit code reported for it.
func exitCodeFor(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, counter.ErrLocked):
		return ExitLocked
	case errors.Is(err, config.ErrNotRepository):
		return ExitConfigError
	case errors.Is(err, counter.ErrCorrupt), errors.Is(err, importer.ErrNoHeader),
		errors.Is(err, importer.ErrUnsupportedFormat):
		return ExitDataError
	}
	return ExitError
}
