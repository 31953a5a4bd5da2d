package llm

import (
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
)

// GenerationError wraps a failed generation call so callers can tell provider
// failures apart from their own persistence errors.
type GenerationError struct {
	Op  string
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed during %s: %v", e.Op, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// ToHTTPError converts the generation failure to the 502 the API surfaces
func (e *GenerationError) ToHTTPError() error {
	return httperror.NewHTTPErrorf(http.StatusBadGateway, "generation failed: %v", e.Err)
}
