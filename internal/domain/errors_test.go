package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchError_Unwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewFetchError("abc123", true, cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "abc123")
	assert.Contains(t, err.Error(), "retryable")
}

func TestIsTerminalFetchError(t *testing.T) {
	terminal := NewFetchError("abc123", false, errors.New("authentication rejected"))
	retryable := NewFetchError("abc123", true, errors.New("timeout"))

	assert.True(t, IsTerminalFetchError(terminal))
	assert.False(t, IsTerminalFetchError(retryable))
	assert.False(t, IsTerminalFetchError(errors.New("plain error")))
	assert.False(t, IsTerminalFetchError(nil))

	wrapped := fmt.Errorf("search failed: %w", terminal)
	assert.True(t, IsTerminalFetchError(wrapped), "detection must survive wrapping")
}

func TestIsConfigurationError(t *testing.T) {
	err := NewConfigurationError("criterion %q specifies no checks", "nightly")

	assert.True(t, IsConfigurationError(err))
	assert.Contains(t, err.Error(), `criterion "nightly" specifies no checks`)
	assert.False(t, IsConfigurationError(errors.New("plain error")))

	wrapped := fmt.Errorf("rejected: %w", err)
	assert.True(t, IsConfigurationError(wrapped))
}

func TestParseGitAction(t *testing.T) {
	for _, valid := range []string{"none", "checkout", "rebase", "merge"} {
		action, err := ParseGitAction(valid)
		require.NoError(t, err)
		assert.Equal(t, GitAction(valid), action)
	}

	_, err := ParseGitAction("bisect")
	require.Error(t, err)
	_, err = ParseGitAction("")
	require.Error(t, err)
}
