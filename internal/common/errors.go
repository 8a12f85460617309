package common

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Error codes carried by AppError.
const (
	CodeUnsupportedFormat = "UNSUPPORTED_FORMAT"
	CodeExtraction        = "EXTRACTION_ERROR"
	CodeInvalidInput      = "INVALID_INPUT"
	CodeTimeout           = "TIMEOUT"
	CodeInternal          = "INTERNAL"
	CodeConfig            = "CONFIG_ERROR"
)

// ErrorDomain identifies this service in gRPC ErrorInfo details.
const ErrorDomain = "medreport.analyzer"

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrInternal          = errors.New("internal error")
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrExtraction        = errors.New("text extraction failed")
	ErrAnalysis          = errors.New("analysis failed")
	ErrTimeout           = errors.New("stage timed out")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// UnsupportedFormatError reports an input whose format could not be determined.
func UnsupportedFormatError(filename string) *AppError {
	return NewAppError(CodeUnsupportedFormat, fmt.Sprintf("cannot determine a supported format for %q", filename), ErrUnsupportedFormat)
}

// ExtractionError reports a document that yielded no text at all.
func ExtractionError(reason string, cause error) *AppError {
	if cause == nil {
		cause = ErrExtraction
	} else if !errors.Is(cause, ErrExtraction) {
		cause = fmt.Errorf("%w: %w", ErrExtraction, cause)
	}
	return NewAppError(CodeExtraction, reason, cause)
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// CodeOf returns the AppError code in err's chain, or CodeInternal.
func CodeOf(err error) string {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout
	}
	return CodeInternal
}

// gRPC error helpers
func InvalidArgumentError(message string) error {
	return status.Error(codes.InvalidArgument, message)
}

func InternalError(message string) error {
	return status.Error(codes.Internal, message)
}

func InvalidArgumentErrorf(format string, args ...interface{}) error {
	return InvalidArgumentError(fmt.Sprintf(format, args...))
}

// ToStatus maps an application error onto a gRPC status carrying an ErrorInfo detail.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	code := CodeOf(err)
	var c codes.Code
	switch code {
	case CodeUnsupportedFormat:
		c = codes.InvalidArgument
	case CodeExtraction:
		c = codes.FailedPrecondition
	case CodeInvalidInput:
		c = codes.InvalidArgument
	case CodeTimeout:
		c = codes.DeadlineExceeded
	default:
		c = codes.Internal
	}
	st := status.New(c, err.Error())
	detailed, derr := st.WithDetails(&errdetails.ErrorInfo{Reason: code, Domain: ErrorDomain})
	if derr != nil {
		return st.Err()
	}
	return detailed.Err()
}
