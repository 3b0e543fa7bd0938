// Package testutil provides shared test helpers.
package testutil

import "testing"

// Given, When, and Then annotate scenario phases in verbose test output, so
// multi-actor flows stay readable without a BDD framework.
func Given(t *testing.T, desc string) {
	t.Helper()
	t.Logf("GIVEN %s", desc)
}

func When(t *testing.T, desc string) {
	t.Helper()
	t.Logf("WHEN %s", desc)
}

func Then(t *testing.T, desc string) {
	t.Helper()
	t.Logf("THEN %s", desc)
}
