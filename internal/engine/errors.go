package engine

import (
	"errors"
	"fmt"

	"github.com/kurobon/revgraph/internal/repo"
)

// LoadError is the terminal failure of attaching to a workspace; the caller
// does not retry internally.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string { return fmt.Sprintf("failed to open workspace %q: %v", e.Path, e.Err) }
func (e *LoadError) Unwrap() error { return e.Err }

// InputRequiredError suspends a mutation pending externally supplied fields.
// It flows through error returns for convenience but is mapped to the
// InputRequired result, not to an error.
type InputRequiredError struct {
	Fields []string
}

func (e *InputRequiredError) Error() string {
	return fmt.Sprintf("input required: %v", e.Fields)
}

// resultFromError folds a mutation error into the closed result set.
// Anything outside the known taxonomy is an internal error: surfaced with
// its text, non-recoverable for this request only.
func resultFromError(err error) MutationResult {
	var notFound *repo.NotFoundError
	if errors.As(err, &notFound) {
		return MutationResult{Kind: ResultPrecondition, Message: notFound.Msg}
	}
	var precondition *repo.PreconditionError
	if errors.As(err, &precondition) {
		return MutationResult{Kind: ResultPrecondition, Message: precondition.Msg}
	}
	var input *InputRequiredError
	if errors.As(err, &input) {
		return MutationResult{Kind: ResultInputRequired, Request: input.Fields}
	}
	return MutationResult{Kind: ResultInternal, Message: err.Error()}
}
