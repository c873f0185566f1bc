// Package ociimage fetches container images via an external transport
// tool and unpacks them into OCI bundles via an external unpack tool.
package ociimage

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// SubprocessError wraps a non-zero exit from an external collaborator
// tool, carrying the invoked argv and captured stderr for diagnostics.
type SubprocessError struct {
	Argv   []string
	Stderr string
	Err    error
}

func (e *SubprocessError) Error() string {
	return fmt.Sprintf("%s: %s: %s", strings.Join(e.Argv, " "), e.Err, e.Stderr)
}

func (e *SubprocessError) Unwrap() error { return e.Err }

func run(ctx context.Context, bin string, args ...string) ([]byte, error) {
	// #nosec G204 -- bin/args are engine-configured tool invocations.
	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, &SubprocessError{Argv: append([]string{bin}, args...), Stderr: stderr.String(), Err: err}
	}
	return stdout.Bytes(), nil
}

// Fetch invokes the copy tool to materialize an image spec of the form
// "name" or "name:tag" into a temporary OCI image layout directory.
// Empty input is rejected. The default tag is "latest".
func Fetch(ctx context.Context, copyBin, spec string) (srcDir string, err error) {
	if spec == "" {
		return "", fmt.Errorf("image specification cannot be empty")
	}

	name, tag := spec, "latest"
	if idx := strings.IndexByte(spec, ':'); idx >= 0 {
		name, tag = spec[:idx], spec[idx+1:]
	}
	if name == "" {
		return "", fmt.Errorf("image specification cannot be empty")
	}

	dir, err := os.MkdirTemp("", "ocie-image-")
	if err != nil {
		return "", fmt.Errorf("create temp image dir: %w", err)
	}

	imageSrc := fmt.Sprintf("docker://docker.io/%s:%s", name, tag)
	imageDst := fmt.Sprintf("oci:%s:%s", dir, tag)

	if _, err := run(ctx, copyBin, "copy", imageSrc, imageDst); err != nil {
		os.RemoveAll(dir)
		return "", fmt.Errorf("fetch image %q: %w", spec, err)
	}
	return dir, nil
}

// Bundle is the directory layout produced by Unpack: a runnable `bundle`
// subdirectory, a pre-created `exits` subdirectory for the monitor to
// drop exit files into, and paths for the container log and pidfile.
type Bundle struct {
	BaseDir   string
	BundleDir string
	ExitsDir  string
	LogFile   string
	PidFile   string
}

// Remove deletes the bundle's base directory and everything beneath it.
func (b *Bundle) Remove() error {
	return os.RemoveAll(b.BaseDir)
}

// Unpack invokes the unpack tool against the image directory produced by
// Fetch, producing a fresh Bundle. The caller may remove srcDir once
// Unpack returns.
func Unpack(ctx context.Context, unpackBin, srcDir string) (*Bundle, error) {
	baseDir, err := os.MkdirTemp("", "ocie-bundle-")
	if err != nil {
		return nil, fmt.Errorf("create temp bundle dir: %w", err)
	}

	b := &Bundle{
		BaseDir:   baseDir,
		BundleDir: filepath.Join(baseDir, "bundle"),
		ExitsDir:  filepath.Join(baseDir, "exits"),
		LogFile:   filepath.Join(baseDir, "container.log"),
		PidFile:   filepath.Join(baseDir, "container.pid"),
	}

	imageFlag := fmt.Sprintf("--image=%s:latest", srcDir)
	if _, err := run(ctx, unpackBin, "unpack", "--rootless", imageFlag, b.BundleDir); err != nil {
		os.RemoveAll(baseDir)
		return nil, fmt.Errorf("unpack image: %w", err)
	}

	if err := os.Mkdir(b.ExitsDir, 0o755); err != nil {
		os.RemoveAll(baseDir)
		return nil, fmt.Errorf("create exits dir: %w", err)
	}

	return b, nil
}
