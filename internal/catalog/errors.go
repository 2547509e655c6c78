package catalog

import (
	"errors"
	"fmt"
)

var (
	// ErrCatalogUnavailable means the top-level properties fetch failed.
	// No partial catalog accompanies it.
	ErrCatalogUnavailable = errors.New("catalog unavailable")

	// ErrImageFetchFailed marks a recoverable per-property failure. It is
	// logged and recorded in Catalog.Failures, never returned by LoadCatalog.
	ErrImageFetchFailed = errors.New("image fetch failed")

	// ErrValidationRejected means the backend refused a create request.
	ErrValidationRejected = errors.New("validation rejected")

	// ErrInvalidDraft means a draft failed local validation; nothing was sent.
	ErrInvalidDraft = errors.New("invalid draft")

	// ErrOwnersUnavailable means the owners collection could not be fetched.
	ErrOwnersUnavailable = errors.New("owners unavailable")

	// ErrSuperseded is returned by View.Refresh when a newer refresh (or
	// Invalidate) replaced the call before it finished.
	ErrSuperseded = errors.New("catalog refresh superseded")
)

// RejectedError carries the backend's explanation for a refused create.
// It matches ErrValidationRejected with errors.Is.
type RejectedError struct {
	Resource   string
	StatusCode int
	Message    string
	Err        error
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s: %s rejected with status %d: %s", ErrValidationRejected, e.Resource, e.StatusCode, e.Message)
}

func (e *RejectedError) Is(target error) bool {
	return target == ErrValidationRejected
}

func (e *RejectedError) Unwrap() error {
	return e.Err
}
