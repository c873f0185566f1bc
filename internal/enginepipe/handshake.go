package enginepipe

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// These are the fixed descriptor numbers the monitor process expects to
// find open on exec. They are communicated to the monitor twice: once
// positionally (Cmd.ExtraFiles dup's them into exactly these slots) and
// once via environment variable, since the monitor has no other way to
// learn which descriptors to read/write.
const (
	StartPipeFD = 3
	SyncPipeFD  = 4
)

// MonitorConfig describes how to invoke the monitor process (conmon) for
// a single container creation.
type MonitorConfig struct {
	ConmonPath    string
	RuntimePath   string
	ContainerID   string
	ConsoleUUID   string
	BundleDir     string
	ExitsDir      string
	LogFile       string
	PidFile       string
	SocketDirPath string
	SystemdCgroup bool
	Terminal      bool
	Log           zerolog.Logger
}

// SyncInfo is the JSON object read from the sync pipe. Discrimination
// between success and failure is purely by presence of Message.
type SyncInfo struct {
	Pid     int    `json:"pid"`
	Message string `json:"message,omitempty"`
}

// IsFailure reports whether this SyncInfo represents a failed setup.
func (s SyncInfo) IsFailure() bool {
	return s.Message != ""
}

// HandshakeError wraps a failure at one stage of the handshake ("start",
// "setup", "sync" or "attach"): a failed start-pipe write, a non-zero
// monitor exit (with captured stderr), an unreadable or unparsable sync
// message, a sync-pipe failure message reported by the monitor, or a
// failed console connect.
type HandshakeError struct {
	Stage   string
	Stderr  string
	Pid     int
	Message string
	Err     error
}

func (e *HandshakeError) Error() string {
	switch {
	case e.Message != "":
		return fmt.Sprintf("handshake failed at %s: pid %d reported: %s", e.Stage, e.Pid, e.Message)
	case e.Stderr != "":
		return fmt.Sprintf("handshake failed at %s: %s: %s", e.Stage, e.Err, e.Stderr)
	default:
		return fmt.Sprintf("handshake failed at %s: %s", e.Stage, e.Err)
	}
}

func (e *HandshakeError) Unwrap() error { return e.Err }

// Result is the successful outcome of a handshake: the container PID as
// reported by the monitor, and a connected console socket.
type Result struct {
	Pid     int
	Console *net.UnixConn
}

// Launch drives the two-phase supervisor handshake:
// spawn the monitor with both pipes inherited, signal it to begin setup,
// wait for it to fork the container and exit, read back the container PID
// (or failure) from the sync pipe, then attach to the console socket the
// monitor is expected to have created.
func Launch(ctx context.Context, cfg MonitorConfig) (*Result, error) {
	startPipe, err := New(ReaderInheritable)
	if err != nil {
		return nil, fmt.Errorf("create start pipe: %w", err)
	}
	defer startPipe.Close()

	syncPipe, err := New(WriterInheritable)
	if err != nil {
		return nil, fmt.Errorf("create sync pipe: %w", err)
	}
	defer syncPipe.Close()

	args := []string{
		"--log-level=debug",
		"--systemd-cgroup=" + boolFlag(cfg.SystemdCgroup),
		"--cid", cfg.ContainerID,
		"--cuuid", cfg.ConsoleUUID,
		"--name", cfg.ContainerID,
		"--runtime", cfg.RuntimePath,
		"--bundle", cfg.BundleDir,
		"--exit-dir", cfg.ExitsDir,
		"--log-path", cfg.LogFile,
		"--container-pidfile", cfg.PidFile,
		"--socket-dir-path", cfg.SocketDirPath,
	}
	if cfg.Terminal {
		args = append(args, "--terminal")
	}

	// #nosec G204 -- cfg.* are engine-controlled paths/ids, not user input.
	cmd := exec.Command(cfg.ConmonPath, args...)
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("_OCI_STARTPIPE=%d", StartPipeFD),
		fmt.Sprintf("_OCI_SYNCPIPE=%d", SyncPipeFD),
	)
	// ExtraFiles[0] lands on fd 3 in the child, ExtraFiles[1] on fd 4:
	// os/exec dup2's these into place before exec, so no pre-exec hook
	// is needed to hand the monitor its two pipes.
	cmd.ExtraFiles = []*os.File{startPipe.ChildFile(), syncPipe.ChildFile()}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	cfg.Log.Debug().Str("cid", cfg.ContainerID).Msg("spawning monitor process")
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn monitor: %w", err)
	}

	// The parent no longer needs the child-facing descriptors; os/exec
	// already dup'd them into the child's fd table.
	startPipe.CloseChild()
	syncPipe.CloseChild()

	cfg.Log.Debug().Msg("writing start signal")
	if _, werr := startPipe.Parent.Write([]byte{0}); werr != nil {
		state, waitErr := cmd.Process.Wait()
		if waitErr == nil && state.Success() {
			return nil, &HandshakeError{Stage: "start", Err: werr}
		}
		return nil, &HandshakeError{Stage: "start", Err: werr, Stderr: stderr.String()}
	}
	startPipe.Parent.Close()

	cfg.Log.Debug().Msg("waiting for monitor to fork and exit")
	if err := cmd.Wait(); err != nil {
		return nil, &HandshakeError{Stage: "setup", Err: err, Stderr: stderr.String()}
	}

	cfg.Log.Debug().Msg("reading container pid from sync pipe")
	reader := bufio.NewReader(syncPipe.Parent)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return nil, &HandshakeError{Stage: "sync", Err: fmt.Errorf("read sync pipe: %w", err)}
	}

	var info SyncInfo
	if err := json.Unmarshal([]byte(line), &info); err != nil {
		return nil, &HandshakeError{Stage: "sync", Err: fmt.Errorf("parse sync message %q: %w", line, err)}
	}
	if info.IsFailure() {
		return nil, &HandshakeError{Stage: "sync", Pid: info.Pid, Message: info.Message}
	}

	cfg.Log.Info().Int("pid", info.Pid).Msg("received container pid, connecting console")
	socketPath := filepath.Join(cfg.SocketDirPath, cfg.ConsoleUUID, "attach")
	console, err := dialConsole(ctx, socketPath)
	if err != nil {
		return nil, &HandshakeError{Stage: "attach", Err: err}
	}

	return &Result{Pid: info.Pid, Console: console}, nil
}

func dialConsole(ctx context.Context, path string) (*net.UnixConn, error) {
	var d net.Dialer
	deadline := time.Now().Add(10 * time.Second)
	if dctx, ok := ctx.Deadline(); ok && dctx.Before(deadline) {
		deadline = dctx
	}
	dialCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	conn, err := d.DialContext(dialCtx, "unixpacket", path)
	if err != nil {
		return nil, fmt.Errorf("connect console socket %s: %w", path, err)
	}
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("unexpected connection type %T for console socket", conn)
	}
	return unixConn, nil
}

func boolFlag(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
