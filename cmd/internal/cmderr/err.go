// Package cmderr distinguishes CLI usage errors (bad flags, missing
// arguments) from errors raised by the daemon itself, so the root command
// knows whether to print usage help alongside the error message.
package cmderr

// FlowlensErr wraps an error that originated from daemon logic rather than
// from command line parsing.
type FlowlensErr struct {
	Err error
}

func (a FlowlensErr) Error() string {
	return a.Err.Error()
}

// github.com/pkg/errors causer interface
func (a FlowlensErr) Cause() error {
	return a.Err
}

// github.com/pkg/errors Unwrap interface
func (a FlowlensErr) Unwrap() error {
	return a.Err
}
