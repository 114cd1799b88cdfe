package errors

import (
	"errors"
)

// Sentinel errors for different categories
var (
	// ErrInvalidInput - malformed tool arguments, bad slash command, invalid config value
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound - unknown tool, missing ME.md, missing desire state file
	ErrNotFound = errors.New("not found")

	// ErrPermissionDenied - workspace path escapes or denylisted file access
	ErrPermissionDenied = errors.New("permission denied")

	// ErrBusy - a turn is already active on the session
	ErrBusy = errors.New("session busy")

	// ErrCancelled - the active turn was cancelled by the user or a newer turn
	ErrCancelled = errors.New("turn cancelled")

	// ErrTransient - backend transport failure (surface to the user, history untouched)
	ErrTransient = errors.New("transient error")

	// ErrInvalidModelOutput - model returned malformed structured output
	ErrInvalidModelOutput = errors.New("invalid model output")

	// ErrConfig - configuration problem that halts startup
	ErrConfig = errors.New("configuration error")

	// ErrInternal - internal error
	ErrInternal = errors.New("internal error")
)
