package pipeline

import "errors"

// Failure categories of the execution substrate. Call sites wrap these with
// context naming the offending module, task or socket, so callers can both
// match with errors.Is and read what went wrong.
var (
	// ErrConfig reports an invalid construction-time parameter.
	ErrConfig = errors.New("invalid configuration")
	// ErrSize reports a buffer or element-count mismatch at a call boundary.
	ErrSize = errors.New("size mismatch")
	// ErrNotReady reports an execution attempt while a socket is unbound.
	ErrNotReady = errors.New("not ready")
	// ErrLookup reports an unknown socket, task or timer name.
	ErrLookup = errors.New("unknown name")
	// ErrUnimplemented reports execution of a task with no bound codelet.
	ErrUnimplemented = errors.New("unimplemented operation")
)
