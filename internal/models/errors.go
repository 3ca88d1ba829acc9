package models

import "errors"

// Validation sentinels.
var (
	ErrInvalidAccountID   = errors.New("account id is required")
	ErrInvalidBaseURL     = errors.New("base url must be an absolute http(s) url")
	ErrInvalidDomain      = errors.New("domain is required")
	ErrInvalidChannel     = errors.New("unknown channel")
	ErrInvalidView        = errors.New("unknown view")
	ErrInvalidEventKind   = errors.New("unknown event kind")
	ErrMissingEntryID     = errors.New("entry id is required")
	ErrMalformedPayload   = errors.New("malformed event payload")
	ErrAccountNotActive   = errors.New("account is not set")
	ErrMissingAccessToken = errors.New("account has no access token")
)
