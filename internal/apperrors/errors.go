// Package apperrors defines the error classifications shared by the stores,
// the order workflow and the HTTP layer.
package apperrors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotFound              = errors.New("not found")
	ErrInsufficientInventory = errors.New("insufficient inventory")
	ErrValidation            = errors.New("validation failed")
	ErrPublish               = errors.New("publish failed")
	ErrConflict              = errors.New("conflict")
)

// NotFoundError reports a missing product, order or other resource.
// Key, when set, replaces the numeric ID in the message.
type NotFoundError struct {
	Resource string
	ID       uint
	Key      string
}

func (e *NotFoundError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s %s not found", e.Resource, e.Key)
	}
	return fmt.Sprintf("%s with ID %d not found", e.Resource, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// NotFound is a shorthand for &NotFoundError{Resource: resource, ID: id}.
func NotFound(resource string, id uint) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// InsufficientInventoryError names the product whose stock could not cover the request.
type InsufficientInventoryError struct {
	ProductID   uint
	ProductName string
	Requested   int
	Available   int
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("insufficient inventory for product %s (requested: %d, available: %d)",
		e.ProductName, e.Requested, e.Available)
}

func (e *InsufficientInventoryError) Is(target error) bool { return target == ErrInsufficientInventory }

// ValidationError carries per-field messages for malformed input.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Invalid builds a ValidationError for a single field.
func Invalid(field, msg string) error {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

// ConflictError reports a unique value, such as a customer email, that is already taken.
type ConflictError struct {
	Resource string
	Field    string
	Value    string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s with %s %s already exists", e.Resource, e.Field, e.Value)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// PublishError wraps a broker failure.
type PublishError struct {
	Transport string
	Err       error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrPublish.Error(), e.Transport, e.Err)
}

func (e *PublishError) Is(target error) bool { return target == ErrPublish }

func (e *PublishError) Unwrap() error { return e.Err }
