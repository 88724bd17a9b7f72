package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks quiz parameters rejected before any network call.
	ErrValidation = errors.New("invalid quiz parameters")
	// ErrTokenRequest is returned when a provider session token cannot be obtained.
	ErrTokenRequest = errors.New("session token request failed")
	// ErrRateLimited is returned once the provider keeps rate limiting after all retries.
	ErrRateLimited = errors.New("trivia provider rate limit exceeded")
	// ErrNoQuestionsAvailable means the provider has too few questions for the query.
	ErrNoQuestionsAvailable = errors.New("no questions available for the selected criteria")
	// ErrInvalidParameters means the provider rejected the query parameters.
	ErrInvalidParameters = errors.New("trivia provider rejected the parameters")
	// ErrTokenExhausted means the session token is unknown or has served every question.
	ErrTokenExhausted = errors.New("session token exhausted")
	// ErrUnknownResponse covers transport failures and unexpected provider responses.
	ErrUnknownResponse = errors.New("unexpected trivia provider response")

	// ErrSessionNotFound is returned when a quiz session does not exist.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrSessionClosed is returned for operations on a closed session.
	ErrSessionClosed = errors.New("quiz session closed")
	// ErrNotStarted is returned when a session has not been started yet.
	ErrNotStarted = errors.New("quiz session not started")
	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("quiz session already started")
	// ErrNotActive is returned for question interactions outside the active state.
	ErrNotActive = errors.New("no active question")
	// ErrUnknownAnswer is returned when a selection is not one of the presented options.
	ErrUnknownAnswer = errors.New("answer is not an option of the current question")
)

// ValidationError describes a rejected quiz parameter.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// TokenError wraps a failed token request.
type TokenError struct {
	Err error
}

func (e *TokenError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %v", ErrTokenRequest, e.Err)
	}
	return ErrTokenRequest.Error()
}

func (e *TokenError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrTokenRequest}
	}
	return []error{ErrTokenRequest, e.Err}
}

// Provider response codes that name a token problem.
const (
	ResponseCodeTokenNotFound = 3
	ResponseCodeTokenEmpty    = 4
)

// FetchError classifies a failed question fetch. Reason is one of the provider
// sentinels above; ResponseCode is -1 when no provider payload was decoded.
type FetchError struct {
	Reason       error
	ResponseCode int
	Attempts     int
	Err          error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("fetch questions: %v (response code %d, %d attempt(s))", e.Reason, e.ResponseCode, e.Attempts)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Reason}
	}
	return []error{e.Reason, e.Err}
}

// TokenEmpty reports whether the provider served every question for the token.
// Such a token can be reset instead of replaced.
func (e *FetchError) TokenEmpty() bool {
	return e.ResponseCode == ResponseCodeTokenEmpty
}
