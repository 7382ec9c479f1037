package core

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("empty description")
	ErrUnknownSource    = errors.New("unknown statement source")
	ErrEmptyPeriodLabel = errors.New("empty period label")
)

// FormatError reports an unrecognized or malformed file structure.
// It is fatal to that file's parse: the run aborts and the message is
// surfaced to the user.
type FormatError struct {
	Source Source
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("malformed %s statement: %s", e.Source.Account(), e.Reason)
}

// StorageError reports a history persistence failure. The generated
// report is still offered for download when this occurs.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("history storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
