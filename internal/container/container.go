// Package container implements the container handle: the owner of an
// OCI bundle, a monitor-attached console socket, and the lifecycle verbs
// (start/pause/resume/delete/state) that drive the runtime binary.
package container

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/drachenfels-de/ocie/internal/enginepipe"
	"github.com/drachenfels-de/ocie/internal/ociimage"
)

// RuntimeError wraps a non-zero exit from the low-level OCI runtime
// binary, carrying the invoked argv and captured stderr.
type RuntimeError struct {
	Argv   []string
	Stderr string
	Err    error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("%s: %s: %s", strings.Join(e.Argv, " "), e.Err, strings.TrimSpace(e.Stderr))
}

func (e *RuntimeError) Unwrap() error { return e.Err }

// ErrNotExist is the error value for a container the runtime does not
// know. Handle.State does not return it: when the runtime query fails and
// the exit file is absent, State returns the runtime's own error.
var ErrNotExist = errors.New("container does not exist")

// Config collects everything needed to create a container.
type Config struct {
	ID            string
	RuntimeBin    string
	ConmonBin     string
	Bundle        *ociimage.Bundle
	SystemdCgroup bool
	Terminal      bool
	Log           zerolog.Logger
}

// Handle owns a running (or exited) container: its bundle, its monitor's
// console socket, and the PID reported at creation time. A Handle's
// existence implies the runtime knows about ID; Release runs a
// best-effort `delete --force` to guarantee that invariant doesn't
// outlive the handle.
type Handle struct {
	ID          string
	consoleUUID uuid.UUID
	Pid         int
	Console     *net.UnixConn
	Bundle      *ociimage.Bundle

	runtimeBin string
	log        zerolog.Logger
}

// Create runs the supervisor handshake to launch the monitor and
// the container it supervises, returning a Handle once the monitor has
// reported the container PID and the console socket is connected.
func Create(ctx context.Context, cfg Config) (*Handle, error) {
	consoleUUID := uuid.New()

	res, err := enginepipe.Launch(ctx, enginepipe.MonitorConfig{
		ConmonPath:    cfg.ConmonBin,
		RuntimePath:   cfg.RuntimeBin,
		ContainerID:   cfg.ID,
		ConsoleUUID:   consoleUUID.String(),
		BundleDir:     cfg.Bundle.BundleDir,
		ExitsDir:      cfg.Bundle.ExitsDir,
		LogFile:       cfg.Bundle.LogFile,
		PidFile:       cfg.Bundle.PidFile,
		SocketDirPath: cfg.Bundle.BaseDir,
		SystemdCgroup: cfg.SystemdCgroup,
		Terminal:      cfg.Terminal,
		Log:           cfg.Log,
	})
	if err != nil {
		return nil, err
	}

	return &Handle{
		ID:          cfg.ID,
		consoleUUID: consoleUUID,
		Pid:         res.Pid,
		Console:     res.Console,
		Bundle:      cfg.Bundle,
		runtimeBin:  cfg.RuntimeBin,
		log:         cfg.Log,
	}, nil
}

// runtime invokes the low-level OCI runtime binary with the given
// arguments, returning captured stdout. A non-zero exit is reported as
// a *RuntimeError carrying argv and stderr.
func (h *Handle) runtime(ctx context.Context, args ...string) ([]byte, error) {
	// #nosec G204 -- runtimeBin/args are engine-controlled.
	cmd := exec.CommandContext(ctx, h.runtimeBin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, &RuntimeError{Argv: append([]string{h.runtimeBin}, args...), Stderr: stderr.String(), Err: err}
	}
	return stdout.Bytes(), nil
}

// Start invokes `<runtime> start <id>`. Idempotent against an
// already-running container per the runtime's own behavior.
func (h *Handle) Start(ctx context.Context) error {
	h.log.Debug().Str("id", h.ID).Msg("starting container")
	_, err := h.runtime(ctx, "start", h.ID)
	return err
}

// Pause invokes `<runtime> pause <id>`.
func (h *Handle) Pause(ctx context.Context) error {
	h.log.Debug().Str("id", h.ID).Msg("pausing container")
	_, err := h.runtime(ctx, "pause", h.ID)
	return err
}

// Resume invokes `<runtime> resume <id>`.
func (h *Handle) Resume(ctx context.Context) error {
	h.log.Debug().Str("id", h.ID).Msg("resuming container")
	_, err := h.runtime(ctx, "resume", h.ID)
	return err
}

// State returns the current state of the container. It first asks the
// runtime directly; if that fails (e.g. the container exited and was
// reaped), it falls back to the bundle's exit file, synthesizing a
// Stopped state. If the exit file is also absent, the original runtime
// error is surfaced.
func (h *Handle) State(ctx context.Context) (*State, error) {
	out, err := h.runtime(ctx, "state", h.ID)
	if err == nil {
		var s State
		if jsonErr := parseRuntimeState(out, &s); jsonErr != nil {
			return nil, fmt.Errorf("parse runtime state: %w", jsonErr)
		}
		return &s, nil
	}

	exitCode, exitErr := readExitFile(h.Bundle.ExitsDir)
	if exitErr != nil {
		return nil, err
	}

	return &State{
		ID:     h.ID,
		Status: Status{Kind: Stopped, ExitCode: exitCode},
		Bundle: h.Bundle.BundleDir,
	}, nil
}

// Release runs a best-effort `delete --force` against the runtime and
// removes the bundle's temporary directory. It is deliberately
// synchronous: the delete must complete before the directory is
// removed, or the runtime will leak namespaces/cgroups.
func (h *Handle) Release() error {
	ctx := context.Background()
	if _, err := h.runtime(ctx, "delete", "--force", h.ID); err != nil {
		h.log.Warn().Err(err).Str("id", h.ID).Msg("best-effort delete failed")
	}
	if h.Console != nil {
		h.Console.Close()
	}
	if h.Bundle != nil {
		return h.Bundle.Remove()
	}
	return nil
}

// Delete consumes the handle, invoking the runtime's delete verb and
// releasing the handle's resources. Use this instead of Release when
// the deletion is the primary operation being performed, so callers
// observe the runtime error rather than just a log line.
func (h *Handle) Delete(ctx context.Context) error {
	_, err := h.runtime(ctx, "delete", "--force", h.ID)
	if h.Console != nil {
		h.Console.Close()
	}
	var bundleErr error
	if h.Bundle != nil {
		bundleErr = h.Bundle.Remove()
	}
	if err != nil {
		return err
	}
	return bundleErr
}

func readExitFile(exitsDir string) (int, error) {
	data, err := os.ReadFile(filepath.Join(exitsDir, "exit"))
	if err != nil {
		return 0, err
	}
	code, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse exit file: %w", err)
	}
	return code, nil
}
