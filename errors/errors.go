/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package errors

import (
	"errors"
	"fmt"
)

// Common sentinel errors
var (
	// ErrNotFound is returned when a named resource is not found
	ErrNotFound = errors.New("not found")

	// ErrCollectionNotFound is returned when an operation targets a collection that does not exist
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrAlreadyExists is returned when attempting to create something that already exists
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput is returned when input validation fails
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidFilter is returned when a filter expression is malformed
	ErrInvalidFilter = errors.New("invalid filter")

	// ErrInvalidUpdate is returned when an update expression is malformed or cannot be applied
	ErrInvalidUpdate = errors.New("invalid update")

	// ErrInvalidPipeline is returned when an aggregation pipeline is malformed
	ErrInvalidPipeline = errors.New("invalid pipeline")

	// ErrNoCollectionBinding is returned when no collection is bound to a Go type
	ErrNoCollectionBinding = errors.New("no collection bound for type")

	// ErrClosed is returned by a database after Close
	ErrClosed = errors.New("database closed")
)

// NotFoundError represents an error when a named resource is not found
type NotFoundError struct {
	Type string
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with key %q not found", e.Type, e.Key)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// CollectionNotFoundError is returned when the target collection does not exist.
// It matches both ErrCollectionNotFound and ErrNotFound.
type CollectionNotFoundError struct {
	Name string
}

func (e *CollectionNotFoundError) Error() string {
	return fmt.Sprintf("collection %q not found", e.Name)
}

func (e *CollectionNotFoundError) Is(target error) bool {
	return target == ErrCollectionNotFound || target == ErrNotFound
}

// AlreadyExistsError represents an error when an entity already exists
type AlreadyExistsError struct {
	Type string
	Key  string
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s with key %q already exists", e.Type, e.Key)
}

func (e *AlreadyExistsError) Is(target error) bool {
	return target == ErrAlreadyExists
}

// ValidationError represents an input validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field %q: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// InvalidFilterError represents a malformed predicate inside a filter expression
type InvalidFilterError struct {
	Path    string
	Message string
}

func (e *InvalidFilterError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("invalid filter at %q: %s", e.Path, e.Message)
	}
	return fmt.Sprintf("invalid filter: %s", e.Message)
}

func (e *InvalidFilterError) Is(target error) bool {
	return target == ErrInvalidFilter
}

// InvalidUpdateError represents an update expression that is malformed or
// cannot be applied to a record
type InvalidUpdateError struct {
	Op      string
	Message string
}

func (e *InvalidUpdateError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("invalid update %s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("invalid update: %s", e.Message)
}

func (e *InvalidUpdateError) Is(target error) bool {
	return target == ErrInvalidUpdate
}

// InvalidPipelineError represents a malformed or failing aggregation stage.
// Stage is the zero-based position of the stage, or -1 when unknown.
type InvalidPipelineError struct {
	Stage   int
	Op      string
	Message string
}

func (e *InvalidPipelineError) Error() string {
	switch {
	case e.Op != "" && e.Stage >= 0:
		return fmt.Sprintf("invalid pipeline stage %d (%s): %s", e.Stage, e.Op, e.Message)
	case e.Op != "":
		return fmt.Sprintf("invalid pipeline %s: %s", e.Op, e.Message)
	default:
		return fmt.Sprintf("invalid pipeline: %s", e.Message)
	}
}

func (e *InvalidPipelineError) Is(target error) bool {
	return target == ErrInvalidPipeline
}

// Helper functions for creating errors

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(entityType, key string) error {
	return &NotFoundError{Type: entityType, Key: key}
}

// NewCollectionNotFoundError creates a new CollectionNotFoundError
func NewCollectionNotFoundError(name string) error {
	return &CollectionNotFoundError{Name: name}
}

// NewAlreadyExistsError creates a new AlreadyExistsError
func NewAlreadyExistsError(entityType, key string) error {
	return &AlreadyExistsError{Type: entityType, Key: key}
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// NewInvalidFilterError creates a new InvalidFilterError
func NewInvalidFilterError(path, format string, args ...any) error {
	return &InvalidFilterError{Path: path, Message: fmt.Sprintf(format, args...)}
}

// NewInvalidUpdateError creates a new InvalidUpdateError
func NewInvalidUpdateError(op, format string, args ...any) error {
	return &InvalidUpdateError{Op: op, Message: fmt.Sprintf(format, args...)}
}

// NewInvalidPipelineError creates a new InvalidPipelineError for the stage at
// the given position
func NewInvalidPipelineError(stage int, op, format string, args ...any) error {
	return &InvalidPipelineError{Stage: stage, Op: op, Message: fmt.Sprintf(format, args...)}
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsCollectionNotFound checks if an error is a collection not found error
func IsCollectionNotFound(err error) bool {
	return errors.Is(err, ErrCollectionNotFound)
}

// IsAlreadyExists checks if an error is an already exists error
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsInvalidFilter checks if an error is an invalid filter error
func IsInvalidFilter(err error) bool {
	return errors.Is(err, ErrInvalidFilter)
}

// IsInvalidUpdate checks if an error is an invalid update error
func IsInvalidUpdate(err error) bool {
	return errors.Is(err, ErrInvalidUpdate)
}

// IsInvalidPipeline checks if an error is an invalid pipeline error
func IsInvalidPipeline(err error) bool {
	return errors.Is(err, ErrInvalidPipeline)
}
