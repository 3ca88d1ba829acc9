package streaming

import (
	"errors"
	"fmt"

	"github.com/tOgg1/fedistream/internal/models"
)

var (
	// ErrRebindSuperseded is returned by a rebind cancelled by a newer one.
	ErrRebindSuperseded = errors.New("rebind superseded by a newer request")

	// ErrRebindTimeout is returned when the previous binding never released.
	ErrRebindTimeout = errors.New("previous binding did not release in time")

	// ErrBindingBusy is returned when another account still holds a binding.
	ErrBindingBusy = errors.New("another account is still bound")
)

// ChannelBindError reports a subscription the transport rejected.
type ChannelBindError struct {
	AccountID string
	Channel   models.Channel
	Err       error
}

func (e *ChannelBindError) Error() string {
	return fmt.Sprintf("bind %s channel for account %s: %v", e.Channel, e.AccountID, e.Err)
}

func (e *ChannelBindError) Unwrap() error {
	return e.Err
}
