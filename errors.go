package hangfire

import "errors"

var (
	// Transition errors.
	ErrInvalidArgument     = errors.New("hangfire: invalid argument")
	ErrPreconditionFailed  = errors.New("hangfire: precondition failed")
	ErrConflictOnCommit    = errors.New("hangfire: conflict on commit")
	ErrOperationFailed     = errors.New("hangfire: operation failed")
	ErrAborted             = errors.New("hangfire: state transition aborted")
	ErrMaxAttemptsExceeded = errors.New("hangfire: max state change attempts exceeded")

	// Store errors.
	ErrNoStore         = errors.New("hangfire: no storage configured")
	ErrStoreClosed     = errors.New("hangfire: storage closed")
	ErrMigrationFailed = errors.New("hangfire: migration failed")
	ErrTransactionDone = errors.New("hangfire: transaction already committed or rolled back")

	// Not found errors.
	ErrJobNotFound = errors.New("hangfire: job not found")

	// Conflict errors.
	ErrJobAlreadyExists = errors.New("hangfire: job already exists")
)
