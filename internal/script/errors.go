package script

import "errors"

// Sentinel errors classifying why a script command failed, so callers can
// branch on failure kind without parsing error strings. Every Host.Run
// error wraps exactly one of these.
var (
	ErrInitFailed       = errors.New("script: host initialization failed")
	ErrLoadFailed       = errors.New("script: source could not be loaded")
	ErrRuntimeFailure   = errors.New("script: runtime error")
	ErrTimeout          = errors.New("script: exceeded its timeout")
	ErrSandboxViolation = errors.New("script: attempted a disallowed capability")
	ErrIO               = errors.New("script: I/O error")
)
