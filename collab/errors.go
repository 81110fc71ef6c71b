package collab

import (
	"context"
	"errors"
	"fmt"
)

// error taxonomy for ledger operations:
// - transient infrastructure errors (rate limits, network blips) are retried
//   with backoff and never surfaced unless retries exhaust
// - rejections (remote validation, wrong signer, invalid state transition,
//   duplicate entity at a derived address) are surfaced and never retried.
//   Retrying a rejected mutation could double-submit side effects.
// - decode errors are skipped per item during listing
// - a declined signature is a neutral cancellation, not a failure
// - not-found is a value outcome, not an error

// ErrCanceled means the signer declined to approve a mutation.
var ErrCanceled = errors.New("canceled by signer")

type TransientError struct {
	Err error
}

func NewTransientError(err error) *TransientError {
	return &TransientError{
		Err: err,
	}
}

func (self *TransientError) Error() string {
	return fmt.Sprintf("transient: %s", self.Err)
}

func (self *TransientError) Unwrap() error {
	return self.Err
}

// RejectedError is a remote validation or authorization rejection.
// The message is the remote-supplied reason where available.
type RejectedError struct {
	Code    string
	Message string
}

func NewRejectedError(code string, message string) *RejectedError {
	return &RejectedError{
		Code:    code,
		Message: message,
	}
}

func (self *RejectedError) Error() string {
	if self.Code == "" {
		return fmt.Sprintf("rejected: %s", self.Message)
	}
	return fmt.Sprintf("rejected (%s): %s", self.Code, self.Message)
}

type DecodeError struct {
	Address       Address
	SchemaVersion int
	Err           error
}

func NewDecodeError(address Address, schemaVersion int, err error) *DecodeError {
	return &DecodeError{
		Address:       address,
		SchemaVersion: schemaVersion,
		Err:           err,
	}
}

func (self *DecodeError) Error() string {
	return fmt.Sprintf("decode %s (schema v%d): %s", self.Address, self.SchemaVersion, self.Err)
}

func (self *DecodeError) Unwrap() error {
	return self.Err
}

func IsTransient(err error) bool {
	var transientErr *TransientError
	if errors.As(err, &transientErr) {
		return true
	}
	// context errors are terminal for the caller, not retryable
	return false
}

func IsRejected(err error) bool {
	var rejectedErr *RejectedError
	return errors.As(err, &rejectedErr)
}

func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled) || errors.Is(err, context.Canceled)
}
