package main

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind classifies why a call or a whole deliberation failed
type ErrorKind string

const (
	// ErrKindTimeout marks a call that exceeded its deadline
	ErrKindTimeout ErrorKind = "timeout"
	// ErrKindProvider marks a transport or backend failure
	ErrKindProvider ErrorKind = "provider_error"
	// ErrKindParseFailure marks a ranking reply no parse strategy could read
	ErrKindParseFailure ErrorKind = "parse_failure"
	// ErrKindInsufficientResponses marks a Stage 1 with fewer than two successes
	ErrKindInsufficientResponses ErrorKind = "insufficient_responses"
	// ErrKindSynthesisFailed marks a failed or timed-out chairman call
	ErrKindSynthesisFailed ErrorKind = "synthesis_failed"
)

// ErrDeliberationConsumed is returned by Run when a Deliberation is reused.
// The state machine is single-use; terminal states permit no transitions.
var ErrDeliberationConsumed = errors.New("deliberation already consumed")

// RequestValidationError identifies the request field that failed validation
type RequestValidationError struct {
	Field  string
	Reason string
}

func (e *RequestValidationError) Error() string {
	return fmt.Sprintf("invalid deliberation request: %s: %s", e.Field, e.Reason)
}

// RankingParseError reports a ranking reply that yielded fewer than two
// distinct valid labels under both parse strategies
type RankingParseError struct {
	Found int
}

func (e *RankingParseError) Error() string {
	return fmt.Sprintf("ranking parse failure: found %d valid labels, need at least 2", e.Found)
}

// classifyError maps a transport error to the failure taxonomy. Context
// expiry and network timeouts are timeouts; everything else is charged to
// the provider. The detail string is kept for logs and metadata only.
func classifyError(err error) (ErrorKind, string) {
	if err == nil {
		return "", ""
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrKindTimeout, err.Error()
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrKindTimeout, err.Error()
	}
	return ErrKindProvider, err.Error()
}
