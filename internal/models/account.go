package models

import (
	"net/url"
	"strings"
	"time"
)

// Account is a locally stored account on a federated server.
type Account struct {
	// ID is the local identifier.
	ID string `json:"id"`

	// BaseURL is the server endpoint, e.g. https://mastodon.social.
	BaseURL string `json:"base_url"`

	// Domain is the server host name.
	Domain string `json:"domain"`

	// Username is empty until the profile has been fetched from the server.
	Username string `json:"username"`

	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`

	// AccessToken and RefreshToken stay nil until authenticated.
	AccessToken  *string `json:"access_token,omitempty"`
	RefreshToken *string `json:"refresh_token,omitempty"`

	// AccountID is the remote account id on the server.
	AccountID *string `json:"account_id,omitempty"`

	Avatar *string `json:"avatar,omitempty"`

	// Order is the position in the account list.
	Order int `json:"order"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Blank returns the empty account installed when the active account is cleared.
func Blank() Account {
	return Account{}
}

// IsBlank reports whether no account is set.
func (a *Account) IsBlank() bool {
	return a == nil || a.ID == ""
}

// NeedsProfile reports whether the username must still be fetched.
func (a *Account) NeedsProfile() bool {
	return strings.TrimSpace(a.Username) == ""
}

// Token returns the access token or "".
func (a *Account) Token() string {
	if a == nil || a.AccessToken == nil {
		return ""
	}
	return *a.AccessToken
}

// Validate checks the fields required to talk to the server.
func (a *Account) Validate() error {
	validation := &ValidationErrors{}
	if strings.TrimSpace(a.BaseURL) == "" {
		validation.Add("base_url", ErrInvalidBaseURL)
	} else if u, err := url.Parse(a.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		validation.Add("base_url", ErrInvalidBaseURL)
	}
	if strings.TrimSpace(a.Domain) == "" {
		validation.Add("domain", ErrInvalidDomain)
	}
	return validation.Err()
}

// DomainFromBaseURL derives the domain for a base url.
func DomainFromBaseURL(baseURL string) string {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return ""
	}
	return u.Hostname()
}
