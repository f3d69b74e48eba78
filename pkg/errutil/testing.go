// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BoncaRobot Contributors

package errutil

import (
	"strings"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustOops(t *testing.T, err error) oops.OopsError {
	t.Helper()
	require.Error(t, err)
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "want an oops error, got %T: %v", err, err)
	return oopsErr
}

// AssertErrorCode checks the code as Code reads it. oops reports the
// innermost code of a chain.
func AssertErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	mustOops(t, err)
	assert.Equal(t, code, Code(err), "error: %v", err)
}

// AssertErrorContext checks one key of the merged error context.
func AssertErrorContext(t *testing.T, err error, key string, value any) {
	t.Helper()
	got, ok := mustOops(t, err).Context()[key]
	require.True(t, ok, "error context has no %q: %v", key, err)
	assert.Equal(t, value, got)
}

// AssertErrorHint checks that the operator hint mentions want.
func AssertErrorHint(t *testing.T, err error, want string) {
	t.Helper()
	mustOops(t, err)
	hint := Hint(err)
	assert.True(t, strings.Contains(hint, want), "hint %q does not mention %q", hint, want)
}
