// Package ormerr defines the error taxonomy shared by the query, relation and
// batch packages.
//
// Build-time errors (ValidationError, SchemaError, ConfigurationError,
// ArithmeticError) are returned before any statement reaches the database.
// Driver failures are wrapped in ExecError and keep the original error
// reachable through errors.Is / errors.As.
package ormerr

import (
	"errors"
	"fmt"
)

// ValidationError reports a malformed input value.
type ValidationError struct {
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %q", e.Reason, e.Value)
}

// SchemaError reports a reference to a column or relation the catalog does not know.
type SchemaError struct {
	Entity string
	Column string
	Reason string
}

func (e *SchemaError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "unknown column"
	}
	if e.Entity == "" {
		return fmt.Sprintf("schema: %s %q", reason, e.Column)
	}
	return fmt.Sprintf("schema: %s %q on %s", reason, e.Column, e.Entity)
}

// ConfigurationError reports an undefined relation or scope name.
type ConfigurationError struct {
	Kind   string // "relation", "scope", "entity", "derived"
	Name   string
	Entity string
}

func (e *ConfigurationError) Error() string {
	if e.Entity == "" {
		return fmt.Sprintf("configuration: undefined %s %q", e.Kind, e.Name)
	}
	return fmt.Sprintf("configuration: undefined %s %q on %s", e.Kind, e.Name, e.Entity)
}

// ArithmeticError reports an invalid numeric operation.
type ArithmeticError struct {
	Column string
	Reason string
}

func (e *ArithmeticError) Error() string {
	return fmt.Sprintf("arithmetic: %s on column %q", e.Reason, e.Column)
}

// NotFoundError reports that a required entity is absent.
type NotFoundError struct {
	Entity string
	Key    any
}

func (e *NotFoundError) Error() string {
	if e.Key == nil {
		return fmt.Sprintf("no query results for %s", e.Entity)
	}
	return fmt.Sprintf("no query results for %s %v", e.Entity, e.Key)
}

// ExecError wraps a storage driver failure with the operation context.
type ExecError struct {
	Op        string
	Entity    string
	Predicate string
	Err       error
}

func (e *ExecError) Error() string {
	msg := e.Op + " " + e.Entity
	if e.Predicate != "" {
		msg += " where " + e.Predicate
	}
	return msg + ": " + e.Err.Error()
}

func (e *ExecError) Unwrap() error { return e.Err }

// Validation returns a *ValidationError.
func Validation(value, format string, args ...any) error {
	return &ValidationError{Value: value, Reason: fmt.Sprintf(format, args...)}
}

// UnknownColumn returns a *SchemaError for a column missing from entity.
func UnknownColumn(entity, column string) error {
	return &SchemaError{Entity: entity, Column: column}
}

// UndefinedRelation returns a *ConfigurationError for a relation name.
func UndefinedRelation(entity, name string) error {
	return &ConfigurationError{Kind: "relation", Name: name, Entity: entity}
}

// IsNotFound reports whether err carries a *NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsBuildError reports whether err was raised before execution.
func IsBuildError(err error) bool {
	var (
		v *ValidationError
		s *SchemaError
		c *ConfigurationError
		a *ArithmeticError
	)
	return errors.As(err, &v) || errors.As(err, &s) || errors.As(err, &c) || errors.As(err, &a)
}
