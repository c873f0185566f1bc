package container

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRuntimeStateRunning(t *testing.T) {
	var s State
	err := parseRuntimeState([]byte(`{"id":"c1","status":"running","pid":42,"bundle":"/b/c1"}`), &s)
	require.NoError(t, err)
	assert.Equal(t, Running, s.Status.Kind)
	assert.Equal(t, 42, s.Status.Pid)
	assert.Equal(t, "/b/c1", s.Bundle)
}

func TestParseRuntimeStateStoppedHasNoExitCode(t *testing.T) {
	var s State
	err := parseRuntimeState([]byte(`{"id":"c1","status":"stopped","bundle":"/b/c1"}`), &s)
	require.NoError(t, err)
	assert.Equal(t, Stopped, s.Status.Kind)
	assert.Equal(t, 0, s.Status.ExitCode)
}

func TestParseRuntimeStateUnknownStatus(t *testing.T) {
	var s State
	err := parseRuntimeState([]byte(`{"id":"c1","status":"bogus","bundle":"/b/c1"}`), &s)
	assert.Error(t, err)
}

func TestParseRuntimeStateMalformedJSON(t *testing.T) {
	var s State
	err := parseRuntimeState([]byte(`not json`), &s)
	assert.Error(t, err)
}
