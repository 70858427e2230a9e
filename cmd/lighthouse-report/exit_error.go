package main

import "fmt"

const (
	exitFatal   = 1
	exitPartial = 2
)

// ExitError carries the process exit code out of a RunE handler.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func fatal(err error) error {
	return &ExitError{Code: exitFatal, Err: err}
}
