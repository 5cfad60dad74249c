package domain

import "errors"

var (
	// ErrJobNotFound is returned when a job id is unknown to the backend that was asked.
	ErrJobNotFound = errors.New("job not found")

	// ErrInvalidJobID is returned when a job id cannot be parsed.
	ErrInvalidJobID = errors.New("invalid job id")

	// ErrInvalidPayload is returned when a submitted payload is not well-formed JSON.
	ErrInvalidPayload = errors.New("payload is not valid JSON")

	// ErrPayloadRejected is returned by a processor that cannot handle a payload.
	// Retrying such a job cannot succeed.
	ErrPayloadRejected = errors.New("payload rejected by processor")

	// ErrBrokerUnavailable is returned when the queue broker is unreachable or rejects a write.
	ErrBrokerUnavailable = errors.New("queue broker is currently unavailable")

	// ErrStoreUnavailable is returned when the result store is unreachable or rejects a write.
	ErrStoreUnavailable = errors.New("result store is currently unavailable")

	// ErrUpstreamUnavailable is what the ingestion service reports for any backend failure.
	ErrUpstreamUnavailable = errors.New("upstream service unavailable")
)
