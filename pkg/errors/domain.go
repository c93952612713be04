package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Category classifies a pipeline error by where it originated.
type Category string

const (
	// CategoryConfiguration marks a bad entity definition. These are
	// rejected at registration time and never surface mid-schedule.
	CategoryConfiguration Category = "configuration"

	// CategoryDataSource marks an invoker failure or timeout. Retried
	// only by the next scheduled tick, never inline.
	CategoryDataSource Category = "data_source"

	// CategoryAggregation marks malformed rows against the declared
	// schema. The entity's cache is left stale.
	CategoryAggregation Category = "aggregation"

	// CategoryTransport marks a dead subscriber channel. Never surfaced
	// to the publisher.
	CategoryTransport Category = "transport"
)

// DomainError is a categorized pipeline error.
type DomainError struct {
	Category Category
	Message  string
	Err      error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Category, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// StatusCode maps the category to an HTTP status.
func (e *DomainError) StatusCode() int {
	switch e.Category {
	case CategoryConfiguration:
		return http.StatusBadRequest
	case CategoryDataSource:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// NewConfigurationError creates a configuration error.
func NewConfigurationError(format string, args ...interface{}) *DomainError {
	return &DomainError{Category: CategoryConfiguration, Message: fmt.Sprintf(format, args...)}
}

// NewDataSourceError wraps an invoker failure.
func NewDataSourceError(err error, format string, args ...interface{}) *DomainError {
	return &DomainError{Category: CategoryDataSource, Message: fmt.Sprintf(format, args...), Err: err}
}

// NewAggregationError wraps an aggregation failure.
func NewAggregationError(err error, format string, args ...interface{}) *DomainError {
	return &DomainError{Category: CategoryAggregation, Message: fmt.Sprintf(format, args...), Err: err}
}

// IsCategory reports whether err (or anything it wraps) is a DomainError
// of the given category.
func IsCategory(err error, category Category) bool {
	var domErr *DomainError
	if stderrors.As(err, &domErr) {
		return domErr.Category == category
	}
	return false
}

// As is a convenience re-export of the standard errors.As.
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}

// Is is a convenience re-export of the standard errors.Is.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}
