package container

import (
	"encoding/json"
	"fmt"
)

// ociRuntimeState mirrors the JSON emitted by `<runtime> state <id>`,
// following the OCI runtime-spec state shape: {"id","status","pid","bundle"}.
// This is distinct from this engine's own wire State; it is
// translated into one immediately after parsing.
type ociRuntimeState struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Pid    int    `json:"pid"`
	Bundle string `json:"bundle"`
}

// parseRuntimeState decodes a `<runtime> state` reply and maps its
// status vocabulary onto this engine's Status tagged union.
func parseRuntimeState(data []byte, out *State) error {
	var rs ociRuntimeState
	if err := json.Unmarshal(data, &rs); err != nil {
		return err
	}

	var status Status
	switch rs.Status {
	case "creating":
		status = Status{Kind: Creating}
	case "created":
		status = Status{Kind: Created, Pid: rs.Pid}
	case "running":
		status = Status{Kind: Running, Pid: rs.Pid}
	case "paused":
		status = Status{Kind: Paused, Pid: rs.Pid}
	case "stopped":
		// The runtime doesn't report an exit code in its state reply;
		// callers needing one should rely on the exits-dir fallback.
		status = Status{Kind: Stopped}
	default:
		return fmt.Errorf("unrecognized runtime status %q", rs.Status)
	}

	out.ID = rs.ID
	out.Status = status
	out.Bundle = rs.Bundle
	return nil
}
