package container

import (
	"encoding/json"
	"fmt"
)

// Kind is the discriminator of a container's Status.
type Kind string

const (
	Creating Kind = "creating"
	Created  Kind = "created"
	Running  Kind = "running"
	Paused   Kind = "paused"
	Stopped  Kind = "stopped"
)

// Status is the tagged union of a container's lifecycle position:
// Creating | Created{pid} | Running{pid} | Paused{pid} | Stopped{exit_code}.
type Status struct {
	Kind     Kind
	Pid      int
	ExitCode int
}

// State is the full externally-visible state of a container: its id,
// status, and the bundle path it was created from.
type State struct {
	ID     string
	Status Status
	Bundle string
}

// wireState mirrors the flattened JSON shape used on the wire:
//
//	{"id":..., "status":"creating|created|running|paused|stopped",
//	 "pid":<int, if created/running/paused>,
//	 "exit_code":<int, if stopped>, "bundle":...}
type wireState struct {
	ID       string `json:"id"`
	Status   Kind   `json:"status"`
	Pid      *int   `json:"pid,omitempty"`
	ExitCode *int   `json:"exit_code,omitempty"`
	Bundle   string `json:"bundle"`
}

// MarshalJSON flattens Status into the wire shape.
func (s State) MarshalJSON() ([]byte, error) {
	w := wireState{ID: s.ID, Status: s.Status.Kind, Bundle: s.Bundle}
	switch s.Status.Kind {
	case Created, Running, Paused:
		pid := s.Status.Pid
		w.Pid = &pid
	case Stopped:
		code := s.Status.ExitCode
		w.ExitCode = &code
	}
	return json.Marshal(w)
}

// UnmarshalJSON is a two-pass parser: detect the status discriminator,
// then decode only the fields that apply to it. Any pid present
// alongside a stopped status is ignored rather than rejected.
func (s *State) UnmarshalJSON(data []byte) error {
	var w wireState
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	status := Status{Kind: w.Status}
	switch w.Status {
	case Creating:
		// no payload
	case Created, Running, Paused:
		if w.Pid == nil {
			return fmt.Errorf("status %q requires a pid", w.Status)
		}
		status.Pid = *w.Pid
	case Stopped:
		if w.ExitCode == nil {
			return fmt.Errorf("status %q requires an exit_code", w.Status)
		}
		status.ExitCode = *w.ExitCode
	default:
		return fmt.Errorf("unknown container status %q", w.Status)
	}

	s.ID = w.ID
	s.Status = status
	s.Bundle = w.Bundle
	return nil
}
