package enginepipe

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncInfoSuccessHasNoMessage(t *testing.T) {
	var info SyncInfo
	require.NoError(t, json.Unmarshal([]byte(`{"pid":4242}`), &info))
	assert.Equal(t, 4242, info.Pid)
	assert.False(t, info.IsFailure())
}

func TestSyncInfoFailureCarriesMessage(t *testing.T) {
	var info SyncInfo
	require.NoError(t, json.Unmarshal([]byte(`{"pid":0,"message":"exec failed: no such file"}`), &info))
	assert.True(t, info.IsFailure())
	assert.Equal(t, "exec failed: no such file", info.Message)
}

func TestHandshakeErrorMessageVariants(t *testing.T) {
	t.Run("sync failure message", func(t *testing.T) {
		e := &HandshakeError{Stage: "sync", Pid: 7, Message: "bad bundle"}
		assert.Contains(t, e.Error(), "bad bundle")
		assert.Contains(t, e.Error(), "sync")
	})

	t.Run("stderr capture", func(t *testing.T) {
		e := &HandshakeError{Stage: "setup", Err: errors.New("exit status 1"), Stderr: "monitor: fatal"}
		assert.Contains(t, e.Error(), "monitor: fatal")
	})

	t.Run("bare error", func(t *testing.T) {
		wrapped := errors.New("boom")
		e := &HandshakeError{Stage: "start", Err: wrapped}
		assert.Contains(t, e.Error(), "boom")
		assert.ErrorIs(t, e, wrapped)
	})
}

func TestBoolFlag(t *testing.T) {
	assert.Equal(t, "true", boolFlag(true))
	assert.Equal(t, "false", boolFlag(false))
}
