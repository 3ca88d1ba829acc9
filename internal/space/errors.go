package space

import (
	"errors"
	"fmt"

	"github.com/tOgg1/fedistream/internal/models"
)

// ErrActivationSuperseded is returned by an Activate that a newer Activate
// replaced before it finished.
var ErrActivationSuperseded = errors.New("activation superseded by a newer account switch")

// AccountLoadError means the local account could not be loaded.
type AccountLoadError struct {
	AccountID string
	Err       error
}

func (e *AccountLoadError) Error() string {
	return fmt.Sprintf("load account %s: %v", e.AccountID, e.Err)
}

func (e *AccountLoadError) Unwrap() error {
	return e.Err
}

// TimelineFetchError means the initial backfill of a view failed.
type TimelineFetchError struct {
	View models.View
	Err  error
}

func (e *TimelineFetchError) Error() string {
	return fmt.Sprintf("fetch %s timeline: %v", e.View, e.Err)
}

func (e *TimelineFetchError) Unwrap() error {
	return e.Err
}
