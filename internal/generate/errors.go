package generate

import "fmt"

// GenerationError wraps any failure of the external generator, whether a
// network error, a non-JSON response, or a schema violation. These cannot
// be told apart reliably from the response alone, so callers treat every
// GenerationError the same way: abort the flow, persist nothing.
type GenerationError struct {
	Op  string
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed (%s): %v", e.Op, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

func genErr(op string, err error) error {
	return &GenerationError{Op: op, Err: err}
}

// ValidationError reports bad user input caught before any external call
// is made. Persisted state is never touched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
