package models

import (
	"errors"
	"testing"
)

func TestValidationErrorsIs(t *testing.T) {
	validation := &ValidationErrors{}
	validation.Add("domain", ErrInvalidDomain)

	err := validation.Err()
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrInvalidDomain) {
		t.Fatalf("expected errors.Is to match ErrInvalidDomain, got %v", err)
	}
}

func TestValidationErrorsNestedFields(t *testing.T) {
	nested := &ValidationErrors{}
	nested.Add("base_url", ErrInvalidBaseURL)

	validation := &ValidationErrors{}
	validation.Add("account", nested)

	var list *ValidationErrors
	if !errors.As(validation.Err(), &list) {
		t.Fatalf("expected ValidationErrors")
	}
	if len(list.Errors) != 1 || list.Errors[0].Field != "account.base_url" {
		t.Fatalf("unexpected errors: %+v", list.Errors)
	}
}

func TestAccountValidate(t *testing.T) {
	ok := Account{BaseURL: "https://example.social", Domain: "example.social"}
	if err := ok.Validate(); err != nil {
		t.Fatalf("expected valid account, got %v", err)
	}

	bad := Account{BaseURL: "example.social"}
	err := bad.Validate()
	if !errors.Is(err, ErrInvalidBaseURL) || !errors.Is(err, ErrInvalidDomain) {
		t.Fatalf("expected base url and domain errors, got %v", err)
	}
}
