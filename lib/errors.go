package zclone

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrVolumeNotFound     = errors.New("volume does not exist")
	ErrEmptyHistory       = errors.New("snapshot history is empty")
	ErrVerificationFailed = errors.New("backup verification failed")
	ErrNotPrivileged      = errors.New("run this command as root, or pass --user to run on a normal account")
)

// A stage of a pipeline exited with an error
type CommandError struct {
	Command  string
	ExitCode int

	// Last lines of the command error stream, if captured
	Stderr []string

	Err error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("command failed: %s: returncode %d", e.Command, e.ExitCode)
	if len(e.Stderr) > 0 {
		msg += ": " + strings.Join(e.Stderr, "; ")
	}
	return msg
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Output of a command did not have the expected shape
type ParseError struct {
	What  string
	Input string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot parse %s: %q", e.What, e.Input)
}
