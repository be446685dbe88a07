// Package errors provides the standardized error type used across the
// support agent and its mapping to Zeebe job failures.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ErrorCode is a standardized internal error code.
type ErrorCode string

const (
	ErrCodeLLMTimeout           ErrorCode = "LLM_TIMEOUT"
	ErrCodeLLMDraftFailed       ErrorCode = "LLM_DRAFT_FAILED"
	ErrCodeEmbeddingFailed      ErrorCode = "EMBEDDING_FAILED"
	ErrCodeClassificationFailed ErrorCode = "CLASSIFICATION_FAILED"

	ErrCodeIndexUnavailable  ErrorCode = "INDEX_UNAVAILABLE"
	ErrCodeSearchQueryFailed ErrorCode = "SEARCH_QUERY_FAILED"
	ErrCodeSearchTimeout     ErrorCode = "SEARCH_TIMEOUT"

	ErrCodeCacheReadFailed  ErrorCode = "CACHE_READ_FAILED"
	ErrCodeCacheWriteFailed ErrorCode = "CACHE_WRITE_FAILED"

	ErrCodeCustomerLookupFailed ErrorCode = "CUSTOMER_LOOKUP_FAILED"
	ErrCodeAuditPublishFailed   ErrorCode = "AUDIT_PUBLISH_FAILED"

	ErrCodeBrokerUnavailable ErrorCode = "BROKER_UNAVAILABLE"
	ErrCodeBrokerTimeout     ErrorCode = "BROKER_TIMEOUT"

	ErrCodeInvalidTicket ErrorCode = "INVALID_TICKET"
	ErrCodeConfigInvalid ErrorCode = "CONFIG_INVALID"
	ErrCodePolicyInvalid ErrorCode = "POLICY_INVALID"
)

// StandardError is a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	cause     error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error { return e.cause }

func newError(code ErrorCode, message string, cause error, retryable bool) *StandardError {
	se := &StandardError{
		Code:      code,
		Message:   message,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
	if cause != nil {
		se.Details = cause.Error()
	}
	return se
}

// NewLLMTimeoutError is returned when a model call exceeds its deadline.
func NewLLMTimeoutError(provider string, err error) *StandardError {
	se := newError(ErrCodeLLMTimeout, fmt.Sprintf("model provider '%s' timeout", provider), err, true)
	se.Metadata = map[string]interface{}{"provider": provider}
	return se
}

// NewLLMDraftFailedError wraps a failed draft call.
func NewLLMDraftFailedError(provider string, err error) *StandardError {
	se := newError(ErrCodeLLMDraftFailed, "draft generation failed", err, true)
	se.Metadata = map[string]interface{}{"provider": provider}
	return se
}

// NewEmbeddingFailedError wraps a failed embedding call.
func NewEmbeddingFailedError(err error) *StandardError {
	return newError(ErrCodeEmbeddingFailed, "query embedding failed", err, true)
}

// NewClassificationFailedError wraps a failed classification call.
func NewClassificationFailedError(err error) *StandardError {
	return newError(ErrCodeClassificationFailed, "classification failed", err, true)
}

// NewIndexUnavailableError reports that the knowledge index cannot be reached.
func NewIndexUnavailableError(index string, err error) *StandardError {
	se := newError(ErrCodeIndexUnavailable, fmt.Sprintf("knowledge index '%s' unavailable", index), err, true)
	se.Metadata = map[string]interface{}{"index": index}
	return se
}

// NewSearchQueryFailedError wraps a failed search request.
func NewSearchQueryFailedError(kind string, err error) *StandardError {
	se := newError(ErrCodeSearchQueryFailed, fmt.Sprintf("%s search failed", kind), err, true)
	se.Metadata = map[string]interface{}{"searchKind": kind}
	return se
}

// NewCacheWriteFailedError wraps a failed cache write.
func NewCacheWriteFailedError(tier string, err error) *StandardError {
	se := newError(ErrCodeCacheWriteFailed, fmt.Sprintf("cache write to %s failed", tier), err, true)
	se.Metadata = map[string]interface{}{"tier": tier}
	return se
}

// NewCacheReadFailedError wraps a failed cache read.
func NewCacheReadFailedError(tier string, err error) *StandardError {
	se := newError(ErrCodeCacheReadFailed, fmt.Sprintf("cache read from %s failed", tier), err, true)
	se.Metadata = map[string]interface{}{"tier": tier}
	return se
}

// NewCustomerLookupFailedError wraps a failed customer lookup.
func NewCustomerLookupFailedError(customerID string, err error) *StandardError {
	se := newError(ErrCodeCustomerLookupFailed, "customer lookup failed", err, true)
	se.Metadata = map[string]interface{}{"customerId": customerID}
	return se
}

// NewAuditPublishFailedError wraps a failed audit delivery.
func NewAuditPublishFailedError(sink string, err error) *StandardError {
	se := newError(ErrCodeAuditPublishFailed, fmt.Sprintf("audit sink '%s' publish failed", sink), err, true)
	se.Metadata = map[string]interface{}{"sink": sink}
	return se
}

// NewBrokerUnavailableError wraps a Zeebe gateway that cannot be reached.
func NewBrokerUnavailableError(operation string, err error) *StandardError {
	se := newError(ErrCodeBrokerUnavailable, fmt.Sprintf("zeebe operation '%s' failed", operation), err, true)
	se.Metadata = map[string]interface{}{"operation": operation}
	return se
}

// NewBrokerTimeoutError wraps a Zeebe command that exceeded its deadline.
func NewBrokerTimeoutError(operation string, err error) *StandardError {
	se := newError(ErrCodeBrokerTimeout, fmt.Sprintf("zeebe operation '%s' timed out", operation), err, true)
	se.Metadata = map[string]interface{}{"operation": operation}
	return se
}

// NewInvalidTicketError rejects a malformed ticket payload.
func NewInvalidTicketError(details string) *StandardError {
	se := newError(ErrCodeInvalidTicket, "invalid ticket payload", nil, false)
	se.Details = details
	return se
}

// NewConfigInvalidError is fatal at startup.
func NewConfigInvalidError(details string) *StandardError {
	se := newError(ErrCodeConfigInvalid, "invalid configuration", nil, false)
	se.Details = details
	return se
}

// NewPolicyInvalidError is fatal at startup.
func NewPolicyInvalidError(details string) *StandardError {
	se := newError(ErrCodePolicyInvalid, "invalid policy rule set", nil, false)
	se.Details = details
	return se
}

// GetRetryCount returns the bounded retry budget for a code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeLLMTimeout,
		ErrCodeLLMDraftFailed,
		ErrCodeEmbeddingFailed,
		ErrCodeClassificationFailed,
		ErrCodeSearchQueryFailed,
		ErrCodeSearchTimeout,
		ErrCodeCustomerLookupFailed:
		return 1
	case ErrCodeBrokerUnavailable, ErrCodeBrokerTimeout:
		return 3
	case ErrCodeAuditPublishFailed:
		return 2
	default:
		return 0
	}
}

// GetErrorCategory groups codes for logging and metrics.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "LLM") || strings.Contains(codeStr, "EMBEDDING") || strings.Contains(codeStr, "CLASSIFICATION"):
		return "MODEL"
	case strings.Contains(codeStr, "INDEX") || strings.Contains(codeStr, "SEARCH"):
		return "SEARCH"
	case strings.HasPrefix(codeStr, "CACHE"):
		return "CACHE"
	case strings.Contains(codeStr, "CUSTOMER"):
		return "DATABASE"
	case strings.HasPrefix(codeStr, "BROKER"):
		return "WORKFLOW"
	case strings.HasPrefix(codeStr, "AUDIT"):
		return "AUDIT"
	case strings.Contains(codeStr, "INVALID"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}

// AsStandard extracts a StandardError from err's chain.
func AsStandard(err error) (*StandardError, bool) {
	var se *StandardError
	if stderrors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// IsRetryable reports whether err carries a retryable StandardError.
func IsRetryable(err error) bool {
	se, ok := AsStandard(err)
	return ok && se.Retryable && GetRetryCount(se.Code) > 0
}

// CodeOf returns the error code of err, or INTERNAL_ERROR.
func CodeOf(err error) ErrorCode {
	if se, ok := AsStandard(err); ok {
		return se.Code
	}
	return "INTERNAL_ERROR"
}
