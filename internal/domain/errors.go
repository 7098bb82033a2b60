package domain

import "errors"

// Error classifications persisted on terminally failed jobs.
const (
	ErrClassValidation = "validation_error"
	ErrClassUpstream   = "upstream_error"
	ErrClassScrape     = "scrape_error"
	ErrClassDelivery   = "delivery_error"
)

var (
	// ErrJobNotFound is returned when a job cannot be found in the database
	ErrJobNotFound = errors.New("job not found")

	// ErrJobAlreadyClaimed is returned when attempting to claim a job that's already claimed
	ErrJobAlreadyClaimed = errors.New("job already claimed or not in queued status")

	// ErrInvalidPayload is returned when job payload JSON is malformed
	ErrInvalidPayload = errors.New("invalid job payload")

	// ErrRecordNotFound is returned when a scraped record does not exist
	ErrRecordNotFound = errors.New("record not found")

	// ErrSubscriptionNotFound is returned when a subscription does not exist
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrDeadLetterNotFound is returned when a dead letter does not exist
	ErrDeadLetterNotFound = errors.New("dead letter not found")

	// ErrAlreadyResolved rejects replay of a dead letter that a prior
	// replay already resolved
	ErrAlreadyResolved = errors.New("dead letter already resolved")

	// ErrSecretImmutable rejects in-place mutation of a signing secret
	ErrSecretImmutable = errors.New("signing secret cannot be changed; create a new subscription")
)

// RetryableError wraps transient errors that should trigger a retry
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err is wrapped as retryable.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}
