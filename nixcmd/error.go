package nixcmd

import "fmt"

// NewCommandError wraps a failed invocation together with the output it
// produced, so that callers logging the error can show the diagnostics.
func NewCommandError(msg string, err error, output string) error {
	return CommandError{
		Message: msg,
		Err:     err,
		Output:  output,
	}
}

type CommandError struct {
	Message string
	Err     error
	Output  string
}

func (e CommandError) Error() string {
	return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
}

func (e CommandError) Unwrap() error {
	return e.Err
}
