package container

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateRoundTripAllKinds(t *testing.T) {
	cases := []State{
		{ID: "a", Status: Status{Kind: Creating}, Bundle: "/b/a"},
		{ID: "b", Status: Status{Kind: Created, Pid: 100}, Bundle: "/b/b"},
		{ID: "c", Status: Status{Kind: Running, Pid: 101}, Bundle: "/b/c"},
		{ID: "d", Status: Status{Kind: Paused, Pid: 102}, Bundle: "/b/d"},
		{ID: "e", Status: Status{Kind: Stopped, ExitCode: 137}, Bundle: "/b/e"},
	}

	for _, want := range cases {
		data, err := json.Marshal(want)
		require.NoError(t, err)

		var got State
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, want, got)
	}
}

func TestParseCreating(t *testing.T) {
	var s State
	err := json.Unmarshal([]byte(`{"id":"c1","status":"creating","bundle":"/b/c1"}`), &s)
	require.NoError(t, err)
	assert.Equal(t, Creating, s.Status.Kind)
}

func TestParseRunning(t *testing.T) {
	var s State
	err := json.Unmarshal([]byte(`{"id":"c1","status":"running","pid":555,"bundle":"/b/c1"}`), &s)
	require.NoError(t, err)
	assert.Equal(t, Running, s.Status.Kind)
	assert.Equal(t, 555, s.Status.Pid)
}

func TestParseStoppedWithExtraPidIgnored(t *testing.T) {
	var s State
	err := json.Unmarshal([]byte(`{"id":"c1","status":"stopped","pid":999,"exit_code":0,"bundle":"/b/c1"}`), &s)
	require.NoError(t, err)
	assert.Equal(t, Stopped, s.Status.Kind)
	assert.Equal(t, 0, s.Status.Pid, "pid alongside a stopped status must be ignored")
	assert.Equal(t, 0, s.Status.ExitCode)
}

func TestUnmarshalMissingPidIsError(t *testing.T) {
	var s State
	err := json.Unmarshal([]byte(`{"id":"c1","status":"running","bundle":"/b/c1"}`), &s)
	assert.Error(t, err)
}

func TestUnmarshalMissingExitCodeIsError(t *testing.T) {
	var s State
	err := json.Unmarshal([]byte(`{"id":"c1","status":"stopped","bundle":"/b/c1"}`), &s)
	assert.Error(t, err)
}

func TestUnmarshalUnknownStatusIsError(t *testing.T) {
	var s State
	err := json.Unmarshal([]byte(`{"id":"c1","status":"zombie","bundle":"/b/c1"}`), &s)
	assert.Error(t, err)
}
