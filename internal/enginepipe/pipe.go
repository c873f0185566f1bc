// Package enginepipe implements the inheritable-pipe primitive and the
// supervisor handshake used to launch the container monitor process.
package enginepipe

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Side selects which end of the pipe the child process inherits.
type Side int

const (
	// ReaderInheritable means the child inherits the read end; the
	// parent keeps the write end (streaming input to the child).
	ReaderInheritable Side = iota
	// WriterInheritable means the child inherits the write end; the
	// parent keeps the read end (streaming output from the child).
	WriterInheritable
)

// Pipe is a unidirectional OS pipe where exactly one end is inheritable
// across fork/exec and the other is close-on-exec. The parent end is
// wrapped as a regular *os.File for streaming I/O; the child end is
// exposed as a bare *os.File suitable for os/exec.Cmd.ExtraFiles.
type Pipe struct {
	// Parent is the end retained by this process.
	Parent *os.File
	// child is the end that will be duplicated into the spawned
	// process. It carries no close-on-exec flag.
	child *os.File
}

// New creates a pipe and marks exactly one end close-on-exec, per side.
func New(side Side) (*Pipe, error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return nil, fmt.Errorf("pipe: %w", err)
	}

	// raw pipe(2) does not set FD_CLOEXEC on either end: we must mark
	// the parent-retained end close-on-exec explicitly, and leave the
	// child-facing end untouched so it survives into the child.
	readFD, writeFD := fds[0], fds[1]

	var parentFD, childFD int
	switch side {
	case ReaderInheritable:
		parentFD, childFD = writeFD, readFD
	case WriterInheritable:
		parentFD, childFD = readFD, writeFD
	default:
		unix.Close(readFD)
		unix.Close(writeFD)
		return nil, fmt.Errorf("enginepipe: invalid side %d", side)
	}

	if err := setCloseOnExec(parentFD); err != nil {
		unix.Close(readFD)
		unix.Close(writeFD)
		return nil, err
	}

	p := &Pipe{
		Parent: os.NewFile(uintptr(parentFD), "oci-pipe-parent"),
		child:  os.NewFile(uintptr(childFD), "oci-pipe-child"),
	}
	return p, nil
}

func setCloseOnExec(fd int) error {
	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0)
	if err != nil {
		return fmt.Errorf("fcntl(F_GETFD): %w", err)
	}
	_, err = unix.FcntlInt(uintptr(fd), unix.F_SETFD, flags|unix.FD_CLOEXEC)
	if err != nil {
		return fmt.Errorf("fcntl(F_SETFD): %w", err)
	}
	return nil
}

// IsCloseOnExec reports whether fd currently carries FD_CLOEXEC. Exported
// for tests that verify the inheritability invariant.
func IsCloseOnExec(fd uintptr) (bool, error) {
	flags, err := unix.FcntlInt(fd, unix.F_GETFD, 0)
	if err != nil {
		return false, err
	}
	return flags&unix.FD_CLOEXEC != 0, nil
}

// ChildFile returns the end of the pipe meant to be inherited by the
// spawned process, for use in exec.Cmd.ExtraFiles.
func (p *Pipe) ChildFile() *os.File {
	return p.child
}

// CloseChild closes the child-facing descriptor in this process. Safe to
// call after the monitor has been spawned; holding it open longer is
// harmless since nothing reads it, but releasing it promptly avoids
// leaking descriptors across many container creations.
func (p *Pipe) CloseChild() error {
	return p.child.Close()
}

// Close releases both ends held by this process.
func (p *Pipe) Close() error {
	errParent := p.Parent.Close()
	errChild := p.child.Close()
	if errParent != nil {
		return errParent
	}
	return errChild
}
