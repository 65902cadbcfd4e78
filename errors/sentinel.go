// Package errors provides predefined sentinel errors for common failure cases.
package errors

// Service lifecycle errors.
var (
	// ErrServiceNotFound indicates the service does not exist.
	ErrServiceNotFound = &OpError{Kind: ErrNotFound, Detail: "service not found"}

	// ErrServiceRunning indicates delete was attempted on a running service.
	ErrServiceRunning = &OpError{Kind: ErrState, Detail: "service is running"}

	// ErrServiceNotRunning indicates a signal was attempted on a service
	// with no live process.
	ErrServiceNotRunning = &OpError{Kind: ErrState, Detail: "service is not running"}

	// ErrInvalidName indicates a service or fd name failed validation.
	ErrInvalidName = &OpError{Kind: ErrInvalid, Detail: "invalid name"}

	// ErrEmptyName indicates a name argument was missing.
	ErrEmptyName = &OpError{Kind: ErrInvalid, Detail: "name cannot be empty"}
)

// Named-fd errors.
var (
	// ErrFdNotFound indicates the named fd does not exist.
	ErrFdNotFound = &OpError{Kind: ErrNotFound, Detail: "fd not found"}

	// ErrFdSpecial indicates an operation tried to delete or overwrite one
	// of the four special fds (null, stdin, stdout, stderr).
	ErrFdSpecial = &OpError{Kind: ErrInvalid, Detail: "cannot modify special fd"}

	// ErrFdOpenFailed indicates fd.open's underlying open(2) failed.
	ErrFdOpenFailed = &OpError{Kind: ErrIO, Detail: "open failed"}
)

// Pool / resource errors.
var (
	// ErrPoolExhausted indicates a fixed-size arena has no free slots.
	ErrPoolExhausted = &OpError{Kind: ErrLimit, Detail: "pool exhausted"}

	// ErrVarsOverflow indicates a service's packed vars buffer would exceed
	// its pool-mode cap.
	ErrVarsOverflow = &OpError{Kind: ErrLimit, Detail: "vars buffer overflow"}
)

// Controller / protocol errors.
var (
	// ErrBufferOverflow indicates a line exceeded the controller's input
	// buffer and was dropped; logged alongside the wire-level "overflow"
	// event, never itself put on the wire.
	ErrBufferOverflow = &OpError{Kind: ErrLimit, Detail: "overflow"}

	// ErrUnknownCommand indicates the protocol dispatcher found no handler
	// for the command name.
	ErrUnknownCommand = &OpError{Kind: ErrInvalid, Detail: "unknown-command"}

	// ErrOverflow indicates a controller's output buffer saturated and
	// events were dropped; logged alongside the wire-level "overflow"
	// event, never itself put on the wire.
	ErrOverflow = &OpError{Kind: ErrLimit, Detail: "overflow"}
)

// Failsafe / shutdown errors.
var (
	// ErrFailsafeArmed indicates a termination command was refused because
	// failsafe is armed and the caller has not proven the arming code.
	ErrFailsafeArmed = &OpError{Kind: ErrState, Detail: "failsafe"}

	// ErrFailsafeCode indicates a failsafe disarm attempt used the wrong
	// code.
	ErrFailsafeCode = &OpError{Kind: ErrInvalid, Detail: "wrong failsafe code"}
)
