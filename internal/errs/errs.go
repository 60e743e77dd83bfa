// Package errs defines the hashboard controller's error-code taxonomy.
//
// Errors surfaced by the hashboard-control packages are wrapped in a
// *Error carrying a Code (internal/tracer's optional eBPF helpers
// return plain fmt.Errorf errors instead), so callers can branch with errors.As without string matching
// while the underlying cause stays attached via %w.
package errs

import (
	"errors"
	"fmt"
)

// Code identifies the broad category of failure, mirroring the kinds
// named in the hashboard controller design: hashboard bring-up,
// chip enumeration, baud-rate negotiation, sensor/I2C access, the
// halt bus, and the IoCore transport itself.
type Code string

const (
	Hashboard      Code = "hashboard"
	ChipEnumerate  Code = "chip_enumeration"
	BaudRate       Code = "baud_rate"
	Sensors        Code = "sensors"
	I2C            Code = "i2c"
	Halt           Code = "halt"
	IO             Code = "io"
)

// Error wraps an underlying cause with a Code.
type Error struct {
	Code Code
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with a code and an operation label, following the
// teacher's fmt.Errorf("...: %w", err) convention but attaching a
// machine-checkable Code alongside the message.
func New(code Code, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Op: op, Err: err}
}

// Is reports whether err carries the given Code anywhere in its chain.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
