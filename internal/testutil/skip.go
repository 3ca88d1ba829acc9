// Package testutil holds helpers shared by package tests.
package testutil

import (
	"os"
	"testing"
)

// SkipIfNoNetwork skips the test if FEDISTREAM_TEST_SKIP_NETWORK is set.
// Use this for tests that listen on loopback, which sandboxed runners may
// not allow.
func SkipIfNoNetwork(t *testing.T) {
	t.Helper()
	if os.Getenv("FEDISTREAM_TEST_SKIP_NETWORK") != "" {
		t.Skip("skipping network test: FEDISTREAM_TEST_SKIP_NETWORK is set")
	}
}
