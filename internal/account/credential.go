// Package account resolves the credential references used when adding
// accounts from the command line.
package account

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrEmptyCredential is returned when a reference resolves to nothing.
var ErrEmptyCredential = errors.New("credential is empty")

// ResolveCredential turns a credential reference into its value. Supported
// forms are env:VAR, $VAR, ${VAR}, file:path and a literal token.
func ResolveCredential(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", ErrEmptyCredential
	}

	switch {
	case strings.HasPrefix(ref, "env:"):
		return lookupEnv(strings.TrimPrefix(ref, "env:"))
	case strings.HasPrefix(ref, "${") && strings.HasSuffix(ref, "}"):
		return lookupEnv(ref[2 : len(ref)-1])
	case strings.HasPrefix(ref, "$"):
		return lookupEnv(ref[1:])
	case strings.HasPrefix(ref, "file:"):
		path := strings.TrimSpace(strings.TrimPrefix(ref, "file:"))
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read credential file: %w", err)
		}
		value := strings.TrimSpace(string(data))
		if value == "" {
			return "", fmt.Errorf("%w: %s", ErrEmptyCredential, path)
		}
		return value, nil
	}
	return ref, nil
}

func lookupEnv(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("credential environment variable name is empty")
	}
	value, ok := os.LookupEnv(name)
	if !ok {
		return "", fmt.Errorf("environment variable %s is not set", name)
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("%w: $%s", ErrEmptyCredential, name)
	}
	return value, nil
}
