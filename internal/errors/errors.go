// Package errors provides unified error handling with stable error codes.
// Codes are reported to the host process in "error" messages and mapped to gRPC status
// codes when talking to the inference server.
package errors

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Code identifies a class of failure.
type Code string

const (
	Unknown           Code = "UNKNOWN"
	Internal          Code = "INTERNAL"
	InvalidArgument   Code = "INVALID_ARGUMENT"
	Unavailable       Code = "UNAVAILABLE"
	Timeout           Code = "TIMEOUT"
	Cancelled         Code = "CANCELLED"
	SetupFailed       Code = "SETUP_FAILED"
	ModelLoadFailed   Code = "MODEL_LOAD_FAILED"
	AudioFault        Code = "AUDIO_FAULT"
	AudioInvalid      Code = "AUDIO_INVALID_FORMAT"
	RecognitionFailed Code = "RECOGNITION_FAILED"
	ConditionFailed   Code = "CONDITION_FAILED"
	ChannelFailed     Code = "CHANNEL_FAILED"
	ConfigInvalid     Code = "CONFIG_INVALID"
)

var grpcCodeMap = map[Code]codes.Code{
	Unknown:           codes.Unknown,
	Internal:          codes.Internal,
	InvalidArgument:   codes.InvalidArgument,
	Unavailable:       codes.Unavailable,
	Timeout:           codes.DeadlineExceeded,
	Cancelled:         codes.Canceled,
	SetupFailed:       codes.FailedPrecondition,
	ModelLoadFailed:   codes.Unavailable,
	AudioFault:        codes.DataLoss,
	AudioInvalid:      codes.InvalidArgument,
	RecognitionFailed: codes.Internal,
	ConditionFailed:   codes.Internal,
	ChannelFailed:     codes.Unavailable,
	ConfigInvalid:     codes.InvalidArgument,
}

// AppError is the base error type with structured error code and metadata.
type AppError struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

// Error renders "CODE: message (k=v, ...): cause". Metadata keys are sorted.
func (e *AppError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if len(e.Metadata) > 0 {
		b.WriteString(" (")
		for i, k := range slices.Sorted(maps.Keys(e.Metadata)) {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(k + "=" + e.Metadata[k])
		}
		b.WriteString(")")
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *AppError) Unwrap() error { return e.Cause }

// GRPCCode returns the corresponding gRPC status code.
func (e *AppError) GRPCCode() codes.Code {
	if c, ok := grpcCodeMap[e.Code]; ok {
		return c
	}
	return codes.Unknown
}

// GRPCStatus lets status.FromError recognise an AppError.
func (e *AppError) GRPCStatus() *status.Status {
	return status.New(e.GRPCCode(), e.Error())
}

// New creates a new AppError with the given code and message.
func New(code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}

// Newf creates a new AppError with formatted message.
func Newf(code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with an AppError.
func Wrap(err error, code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg, Cause: err}
}

// Wrapf wraps an existing error with formatted message.
func Wrapf(err error, code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// WithMetadata adds metadata to an AppError.
func (e *AppError) WithMetadata(key, value string) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// FromGRPCError converts an error returned by a gRPC call into an AppError.
func FromGRPCError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	st, ok := status.FromError(err)
	if !ok {
		return &AppError{Code: Unknown, Message: err.Error(), Cause: err}
	}
	return &AppError{Code: grpcToCode(st.Code()), Message: st.Message(), Cause: err}
}

// grpcToCode maps the statuses the scorer server returns onto codes. Statuses that can mean
// several codes here collapse to the generic one.
func grpcToCode(c codes.Code) Code {
	switch c {
	case codes.InvalidArgument, codes.OutOfRange:
		return InvalidArgument
	case codes.Unavailable, codes.ResourceExhausted, codes.Aborted:
		return Unavailable
	case codes.DeadlineExceeded:
		return Timeout
	case codes.Canceled:
		return Cancelled
	case codes.FailedPrecondition:
		return SetupFailed
	case codes.DataLoss:
		return AudioFault
	case codes.Internal:
		return Internal
	}
	return Unknown
}

// CodeOf returns the code of the first AppError in err's chain, or Unknown.
func CodeOf(err error) Code {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return Unknown
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code Code) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// IsRetryable returns true if the error is potentially retryable.
func IsRetryable(err error) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	switch appErr.Code {
	case Unavailable, Timeout:
		return true
	default:
		return false
	}
}

// IsFatal reports whether the error must stop the process.
// Only setup failures are fatal; audio-path faults are recovered inside the loop.
func IsFatal(err error) bool {
	switch CodeOf(err) {
	case SetupFailed, ModelLoadFailed, ConfigInvalid:
		return true
	default:
		return false
	}
}
