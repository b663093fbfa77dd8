package errors

import (
	sterrors "errors"
	"fmt"
)

var (
	ErrPipelineRequired     = sterrors.New("pipeflow: pipeline is required")
	ErrPipelineClosed       = sterrors.New("pipeflow: pipeline is closed")
	ErrMessageRequired      = sterrors.New("pipeflow: message is required")
	ErrHandlerRequired      = sterrors.New("pipeflow: handler is required")
	ErrSubscriberRequired   = sterrors.New("pipeflow: subscriber is required")
	ErrNameRequired         = sterrors.New("pipeflow: registration name is required")
	ErrConcreteTypeRequired = sterrors.New("pipeflow: message type must be a concrete type")
	ErrRegistrarUnavailable = sterrors.New("pipeflow: resolver does not accept registrations")
	ErrAmbiguousHandler     = sterrors.New("pipeflow: ambiguous handler")
	ErrResultType           = sterrors.New("pipeflow: unexpected result type")
	ErrUnknownChainKind     = sterrors.New("pipeflow: unknown chain kind")
	ErrMiddlewareRequired   = sterrors.New("pipeflow: middleware registration requires Middleware or Builder")
	ErrPublisherRequired    = sterrors.New("pipeflow: publisher is required")
	ErrTopicRequired        = sterrors.New("pipeflow: topic is required")
	ErrPayloadTooLarge      = sterrors.New("pipeflow: payload exceeds transport limit")
	ErrUnknownCodec         = sterrors.New("pipeflow: unknown codec")
	ErrConfigRequired       = sterrors.New("pipeflow: configuration is required")
	ErrLoggerRequired       = sterrors.New("pipeflow: logger is required")
)

// ConfigurationError reports that more than one handler resolved for a message type.
type ConfigurationError struct {
	MessageType string
	Handlers    int
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %d handlers resolved for %s", ErrAmbiguousHandler.Error(), e.Handlers, e.MessageType)
}

func (e *ConfigurationError) Unwrap() error {
	return ErrAmbiguousHandler
}

// PanicError carries a recovered panic value and the stack captured at recovery.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("pipeflow: panic recovered: %v", e.Value)
}

// Unwrap exposes the panic value when it was itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// ResultTypeError is returned by typed process helpers when the handler result
// cannot be converted to the requested type.
type ResultTypeError struct {
	Want string
	Got  string
}

func (e *ResultTypeError) Error() string {
	return fmt.Sprintf("%s: want %s, got %s", ErrResultType.Error(), e.Want, e.Got)
}

func (e *ResultTypeError) Unwrap() error {
	return ErrResultType
}

// UnprocessableMessageError marks a message that a handler rejected as invalid input.
type UnprocessableMessageError struct {
	Reason string
	Err    error
}

// NewUnprocessableMessageError wraps err so statistics classify it as a validation failure.
func NewUnprocessableMessageError(reason string, err error) *UnprocessableMessageError {
	return &UnprocessableMessageError{Reason: reason, Err: err}
}

func (e *UnprocessableMessageError) Error() string {
	if e.Err == nil {
		return "pipeflow: unprocessable message: " + e.Reason
	}
	return "pipeflow: unprocessable message: " + e.Reason + ": " + e.Err.Error()
}

func (e *UnprocessableMessageError) Unwrap() error {
	return e.Err
}

// ConfigValidationError wraps the joined validation failures of a config.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return "pipeflow: invalid configuration: " + e.Err.Error()
}

func (e ConfigValidationError) Unwrap() error {
	return e.Err
}

// NewConfigValidationError returns nil when err is nil.
func NewConfigValidationError(err error) error {
	if err == nil {
		return nil
	}
	return ConfigValidationError{Err: err}
}
