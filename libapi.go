package pipeflow

import (
	"context"

	runtimepkg "github.com/drblury/pipeflow/internal/runtime"
	ce "github.com/drblury/pipeflow/internal/runtime/cloudevents"
	codecpkg "github.com/drblury/pipeflow/internal/runtime/codec"
	configpkg "github.com/drblury/pipeflow/internal/runtime/config"
	errspkg "github.com/drblury/pipeflow/internal/runtime/errors"
	idspkg "github.com/drblury/pipeflow/internal/runtime/ids"
	jsoncodec "github.com/drblury/pipeflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/pipeflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/pipeflow/internal/runtime/metadata"
	resolverpkg "github.com/drblury/pipeflow/internal/runtime/resolver"
	transportpkg "github.com/drblury/pipeflow/transport"
)

type (
	Config               = configpkg.Config
	Pipeline             = runtimepkg.Pipeline
	PipelineDependencies = runtimepkg.PipelineDependencies
	Dispatcher           = runtimepkg.Dispatcher

	Handler[T any]                = runtimepkg.Handler[T]
	HandlerFuncs[T any]           = runtimepkg.HandlerFuncs[T]
	HandlerRegistration[T any]    = runtimepkg.HandlerRegistration[T]
	Subscriber[T any]             = runtimepkg.Subscriber[T]
	SubscriberFunc[T any]         = runtimepkg.SubscriberFunc[T]
	SubscriberRegistration[T any] = runtimepkg.SubscriberRegistration[T]

	MessageHandler             = runtimepkg.MessageHandler
	MessageSubscriber          = runtimepkg.MessageSubscriber
	ForwardOptions             = runtimepkg.ForwardOptions
	ChainKind                  = runtimepkg.ChainKind
	Chains                     = runtimepkg.Chains
	MiddlewareDescriptor       = runtimepkg.MiddlewareDescriptor
	ProcessNext                = runtimepkg.ProcessNext
	ErrorNext                  = runtimepkg.ErrorNext
	SubscriptionNext           = runtimepkg.SubscriptionNext
	ProcessMiddleware          = runtimepkg.ProcessMiddleware
	ProcessMiddlewareFunc      = runtimepkg.ProcessMiddlewareFunc
	ErrorMiddleware            = runtimepkg.ErrorMiddleware
	ErrorMiddlewareFunc        = runtimepkg.ErrorMiddlewareFunc
	SubscriptionMiddleware     = runtimepkg.SubscriptionMiddleware
	SubscriptionMiddlewareFunc = runtimepkg.SubscriptionMiddlewareFunc
	MiddlewareBuilder          = runtimepkg.MiddlewareBuilder
	MiddlewareRegistration     = runtimepkg.MiddlewareRegistration
	Hooks                      = runtimepkg.Hooks
	HookContext                = runtimepkg.HookContext
	TypeStats                  = runtimepkg.TypeStats
	TypeStatsSnapshot          = runtimepkg.TypeStatsSnapshot
	ResourceUsage              = runtimepkg.ResourceUsage
	ErrorClassifier            = runtimepkg.ErrorClassifier
	ErrorCategory              = runtimepkg.ErrorCategory

	Resolver   = resolverpkg.Resolver
	Registrar  = resolverpkg.Registrar
	Container  = resolverpkg.Container
	Capability = resolverpkg.Capability
	Factory    = resolverpkg.Factory
	Lifetime   = resolverpkg.Lifetime

	Codec    = codecpkg.Codec
	Event    = ce.Event
	Metadata = metadatapkg.Metadata

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	ConfigurationError        = errspkg.ConfigurationError
	PanicError                = errspkg.PanicError
	ResultTypeError           = errspkg.ResultTypeError
	UnprocessableMessageError = errspkg.UnprocessableMessageError
	ConfigValidationError     = errspkg.ConfigValidationError

	TransportBuilder      = transportpkg.Builder
	TransportConfig       = transportpkg.Config
	TransportRegistry     = transportpkg.Registry
	TransportCapabilities = transportpkg.Capabilities
)

// Chain kinds.
const (
	ChainProcess      = runtimepkg.ChainProcess
	ChainError        = runtimepkg.ChainError
	ChainSubscription = runtimepkg.ChainSubscription
)

// Component lifetimes.
const (
	Transient = resolverpkg.Transient
	Singleton = resolverpkg.Singleton
)

// Error category constants for ErrorClassifier.
const (
	ErrorCategoryNone          = runtimepkg.ErrorCategoryNone
	ErrorCategoryConfiguration = runtimepkg.ErrorCategoryConfiguration
	ErrorCategoryValidation    = runtimepkg.ErrorCategoryValidation
	ErrorCategoryPanic         = runtimepkg.ErrorCategoryPanic
	ErrorCategoryDownstream    = runtimepkg.ErrorCategoryDownstream
	ErrorCategoryOther         = runtimepkg.ErrorCategoryOther
)

// LogLevelTrace is the slog level of Trace entries.
const LogLevelTrace = loggingpkg.LevelTrace

// Metadata keys written on forwarded messages.
const (
	MetadataKeyMessageType   = metadatapkg.KeyMessageType
	MetadataKeyCorrelationID = metadatapkg.KeyCorrelationID
	MetadataKeyContentType   = metadatapkg.KeyContentType
	MetadataKeySource        = metadatapkg.KeySource
)

var (
	NewPipeline    = runtimepkg.NewPipeline
	ValidateConfig = configpkg.ValidateConfig
	SubscriberName = runtimepkg.SubscriberName

	NewContainer         = resolverpkg.NewContainer
	Instance             = resolverpkg.Instance
	HandlerCapability    = resolverpkg.HandlerCapability
	SubscriberCapability = resolverpkg.SubscriberCapability
	MiddlewareCapability = resolverpkg.MiddlewareCapability

	DefaultMiddlewares              = runtimepkg.DefaultMiddlewares
	RecovererMiddleware             = runtimepkg.RecovererMiddleware
	CorrelationIDMiddleware         = runtimepkg.CorrelationIDMiddleware
	TracerMiddleware                = runtimepkg.TracerMiddleware
	MetricsMiddleware               = runtimepkg.MetricsMiddleware
	LogMessagesMiddleware           = runtimepkg.LogMessagesMiddleware
	TimingMiddleware                = runtimepkg.TimingMiddleware
	ErrorLoggingMiddleware          = runtimepkg.ErrorLoggingMiddleware
	SubscriptionRecovererMiddleware = runtimepkg.SubscriptionRecovererMiddleware
	SubscriptionTracerMiddleware    = runtimepkg.SubscriptionTracerMiddleware
	SubscriptionMetricsMiddleware   = runtimepkg.SubscriptionMetricsMiddleware

	HooksMiddleware             = runtimepkg.HooksMiddleware
	SubscriptionHooksMiddleware = runtimepkg.SubscriptionHooksMiddleware
	LoggingHooks                = runtimepkg.LoggingHooks
	MetricsHooks                = runtimepkg.MetricsHooks
	AlertingHooks               = runtimepkg.AlertingHooks

	LookupCodec   = codecpkg.Lookup
	RegisterCodec = codecpkg.Register

	NewCloudEvent = ce.New

	DefaultTransportRegistry = transportpkg.DefaultRegistry
	RegisterTransport        = transportpkg.Register
	BuildTransport           = transportpkg.Build
	GetCapabilities          = transportpkg.GetCapabilities

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal
	Encode        = jsoncodec.Encode
	Decode        = jsoncodec.Decode

	ErrPipelineRequired     = errspkg.ErrPipelineRequired
	ErrPipelineClosed       = errspkg.ErrPipelineClosed
	ErrMessageRequired      = errspkg.ErrMessageRequired
	ErrHandlerRequired      = errspkg.ErrHandlerRequired
	ErrSubscriberRequired   = errspkg.ErrSubscriberRequired
	ErrNameRequired         = errspkg.ErrNameRequired
	ErrConcreteTypeRequired = errspkg.ErrConcreteTypeRequired
	ErrRegistrarUnavailable = errspkg.ErrRegistrarUnavailable
	ErrAmbiguousHandler     = errspkg.ErrAmbiguousHandler
	ErrResultType           = errspkg.ErrResultType
	ErrUnknownChainKind     = errspkg.ErrUnknownChainKind
	ErrMiddlewareRequired   = errspkg.ErrMiddlewareRequired
	ErrPublisherRequired    = errspkg.ErrPublisherRequired
	ErrTopicRequired        = errspkg.ErrTopicRequired
	ErrPayloadTooLarge      = errspkg.ErrPayloadTooLarge
	ErrUnknownCodec         = errspkg.ErrUnknownCodec
	ErrConfigRequired       = errspkg.ErrConfigRequired
	ErrLoggerRequired       = errspkg.ErrLoggerRequired

	NewUnprocessableMessageError = errspkg.NewUnprocessableMessageError

	NewSlogServiceLogger      = loggingpkg.NewSlogServiceLogger
	NewWatermillServiceLogger = loggingpkg.NewWatermillServiceLogger
	NewNopServiceLogger       = loggingpkg.NewNopServiceLogger
	ParseLogLevel             = loggingpkg.ParseLevel

	NewMetadata = metadatapkg.New

	CreateULID          = idspkg.CreateULID
	WithCorrelationID   = idspkg.WithCorrelationID
	CorrelationID       = idspkg.CorrelationID
	EnsureCorrelationID = idspkg.EnsureCorrelationID
)

func RegisterHandler[T any](p *Pipeline, reg HandlerRegistration[T]) error {
	return runtimepkg.RegisterHandler(p, reg)
}

func RegisterSubscriber[T any](p *Pipeline, reg SubscriberRegistration[T]) error {
	return runtimepkg.RegisterSubscriber(p, reg)
}

func RegisterForwarder[T any](p *Pipeline, opts ForwardOptions) error {
	return runtimepkg.RegisterForwarder[T](p, opts)
}

func ProcessAs[R any](ctx context.Context, p *Pipeline, msg any) (R, error) {
	return runtimepkg.ProcessAs[R](ctx, p, msg)
}
