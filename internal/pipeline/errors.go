package pipeline

import (
	"errors"
	"fmt"

	"github.com/shamayhq/nesach/internal/extraction"
	"github.com/shamayhq/nesach/internal/providers"
)

// ErrEmptyDocument is returned when the input document carries neither
// text nor binary content.
var ErrEmptyDocument = errors.New("document has no text or binary content")

// GatewayError reports a failed LLM gateway call: network, auth, rate
// limiting, or a provider-side failure. The analysis pass absorbs it, the
// comprehensive pass propagates it, detail sub-queries absorb it per
// category.
type GatewayError struct {
	Provider  string
	ErrorType string // provider classification, e.g. "http_error"
	Err       error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gateway call failed (%s): %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("gateway call failed (%s): %s", e.Provider, e.ErrorType)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// MalformedResponseError reports gateway content that could not be parsed
// into the stage's expected shape, after the provider-level repair
// attempts were exhausted. Carries the same stage-dependent severity as
// GatewayError.
type MalformedResponseError struct {
	Detail string // which response was malformed, e.g. "structure survey"
	Err    error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed response (%s): %v", e.Detail, e.Err)
	}
	return fmt.Sprintf("malformed response (%s)", e.Detail)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// StageError attributes a terminal pipeline failure to the pass that
// caused it.
type StageError struct {
	Stage extraction.Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s pass: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// malformedErrorTypes are the provider classifications that mean the
// gateway answered but the content was unusable.
var malformedErrorTypes = map[string]bool{
	"json_parse":            true,
	"empty_response":        true,
	"content_marshal_error": true,
}

// classifyCallFailure maps a failed chat call onto the error taxonomy.
// The result may be nil when the transport failed before producing one.
func classifyCallFailure(provider string, result *providers.ChatResult, err error) error {
	var errorType, message string
	if result != nil {
		errorType = result.ErrorType
		message = result.ErrorMessage
	}
	if malformedErrorTypes[errorType] {
		if err == nil && message != "" {
			err = errors.New(message)
		}
		return &MalformedResponseError{Detail: errorType, Err: err}
	}
	if err == nil {
		if message == "" {
			message = "call did not succeed"
		}
		err = errors.New(message)
	}
	return &GatewayError{Provider: provider, ErrorType: errorType, Err: err}
}
