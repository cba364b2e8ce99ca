package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/aidanlsb/relq/internal/batch"
	"github.com/aidanlsb/relq/internal/ormerr"
)

// Error codes for structured error responses.
// These codes are stable and can be relied upon by scripts.
const (
	ErrConfigInvalid  = "CONFIG_INVALID"
	ErrCatalogInvalid = "CATALOG_INVALID"

	ErrNotFound      = "NOT_FOUND"
	ErrValidation    = "VALIDATION_FAILED"
	ErrSchema        = "SCHEMA_ERROR"
	ErrConfiguration = "CONFIGURATION_ERROR"
	ErrArithmetic    = "ARITHMETIC_ERROR"

	ErrBatchChunk    = "BATCH_CHUNK_FAILED"
	ErrDatabaseError = "DATABASE_ERROR"

	ErrInvalidInput    = "INVALID_INPUT"
	ErrMissingArgument = "MISSING_ARGUMENT"
	ErrFileReadError   = "FILE_READ_ERROR"

	ErrInternal = "INTERNAL_ERROR"
)

// errorCode classifies err by the most specific type in its chain. A failed
// batch chunk is reported as such even though it wraps the driver error.
func errorCode(err error) string {
	var (
		notFound   *ormerr.NotFoundError
		validation *ormerr.ValidationError
		schemaErr  *ormerr.SchemaError
		confErr    *ormerr.ConfigurationError
		arith      *ormerr.ArithmeticError
		chunk      *batch.ChunkError
		execErr    *ormerr.ExecError
		inputErr   *inputError
	)
	switch {
	case errors.As(err, &inputErr):
		return inputErr.code
	case errors.As(err, &notFound):
		return ErrNotFound
	case errors.As(err, &chunk):
		return ErrBatchChunk
	case errors.As(err, &validation):
		return ErrValidation
	case errors.As(err, &schemaErr):
		return ErrSchema
	case errors.As(err, &confErr):
		return ErrConfiguration
	case errors.As(err, &arith):
		return ErrArithmetic
	case errors.As(err, &execErr):
		return ErrDatabaseError
	}
	return ErrInternal
}

// suggestionFor returns a hint for errors users commonly hit.
func suggestionFor(err error) string {
	var notFound *ormerr.NotFoundError
	if errors.As(err, &notFound) && notFound.Entity == "Post" {
		return "Posts are limited to the current month by default; retry with --unscoped"
	}
	var chunk *batch.ChunkError
	if errors.As(err, &chunk) && chunk.Index > 0 {
		return "Rows before the failed chunk were committed"
	}
	return ""
}

// inputError is a command-line usage problem.
type inputError struct {
	code string
	msg  string
}

func (e *inputError) Error() string { return e.msg }

func invalidInput(msg string) error {
	return &inputError{code: ErrInvalidInput, msg: msg}
}

// handleError handles an error appropriately based on output mode.
// In JSON mode, outputs a JSON error. In text mode, returns the error for Cobra.
func (a *app) handleError(cmd *cobra.Command, err error) error {
	if a.useJSON(cmd) {
		var details interface{}
		var chunk *batch.ChunkError
		if errors.As(err, &chunk) {
			details = map[string]int{"chunk": chunk.Index, "start": chunk.Start, "end": chunk.End}
		}
		outputError(cmd.OutOrStdout(), errorCode(err), err.Error(), details, suggestionFor(err))
		return nil // Don't let Cobra also print the error
	}
	if hint := suggestionFor(err); hint != "" {
		cmd.PrintErrln(hintLine(hint))
	}
	return err
}
