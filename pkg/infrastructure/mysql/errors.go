package mysql

import (
	"errors"
	"fmt"
)

// ErrPoolNotFound is wrapped by NotFoundError so callers can match with errors.Is.
var ErrPoolNotFound = errors.New("pool not found")

// ConfigError reports a missing or invalid pool name or configuration.
// It is never retried.
type ConfigError struct {
	Name   string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("pool config: %s", e.Reason)
	}
	return fmt.Sprintf("pool config %q: %s", e.Name, e.Reason)
}

// NotFoundError reports an operation that referenced a pool name with no
// live entry and no configuration to create one.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("pool %q not found", e.Name)
}

func (e *NotFoundError) Unwrap() error { return ErrPoolNotFound }

// CommandError reports a failed query or execute call, carrying the pool
// and command it was issued against.
type CommandError struct {
	Pool    string
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command on pool %q failed: %v", e.Pool, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// ExhaustedRetriesError reports that a retried operation failed on all
// attempts. Err is the failure of the final attempt.
type ExhaustedRetriesError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedRetriesError) Error() string {
	return fmt.Sprintf("operation failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedRetriesError) Unwrap() error { return e.Err }

// Transaction stages reported by TransactionError.
const (
	StageBegin     = "begin"
	StageOperation = "operation"
	StageCommit    = "commit"
)

// TransactionError reports a failure inside a coordinated transaction.
// Op is the index of the failed operation when Stage is StageOperation,
// -1 otherwise.
type TransactionError struct {
	Pool  string
	Stage string
	Op    int
	Err   error
}

func (e *TransactionError) Error() string {
	if e.Stage == StageOperation {
		return fmt.Sprintf("transaction on pool %q: operation %d failed: %v", e.Pool, e.Op, e.Err)
	}
	return fmt.Sprintf("transaction on pool %q: %s failed: %v", e.Pool, e.Stage, e.Err)
}

func (e *TransactionError) Unwrap() error { return e.Err }
