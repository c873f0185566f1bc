// Package registry implements the engine's concurrent container
// registry: idempotent create, lookup-or-not-found lifecycle verbs, and
// interrupt-driven teardown.
package registry

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/drachenfels-de/ocie/internal/container"
	"github.com/drachenfels-de/ocie/internal/metrics"
	"github.com/drachenfels-de/ocie/internal/ociimage"
)

// NotFoundError is returned when a lifecycle verb targets a container
// name the registry has no entry for.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("container %q does not exist", e.Name)
}

// Config collects the external collaborator binaries and settings used
// to create containers.
type Config struct {
	SkopeoBin     string
	UmociBin      string
	RuntimeBin    string
	ConmonBin     string
	SystemdCgroup bool
	Log           zerolog.Logger
}

// inflight tracks a create() already in progress for a given name, so a
// second concurrent create for the same name waits on the first rather
// than racing it.
type inflight struct {
	done chan struct{}
	err  error
}

// Registry is a concurrent mapping from container name to container
// handle, with idempotent create and atomic remove-then-delete.
type Registry struct {
	cfg        Config
	containers sync.Map // string -> *container.Handle
	creating   sync.Map // string -> *inflight
}

// New creates an empty registry and installs a background interrupt
// handler that clears all containers and exits the process with code
// 130 once the signal fires.
func New(cfg Config) *Registry {
	r := &Registry{cfg: cfg}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		r.cfg.Log.Info().Msg("interrupt received, clearing container registry")
		r.Clear()
		os.Exit(130)
	}()

	return r
}

// Create fetches and unpacks the image for name, creates a container
// handle, starts it, and inserts it into the registry. It is idempotent:
// if name already exists (or another goroutine is already creating it),
// Create returns the outcome of that in-progress or prior call instead
// of spawning a duplicate container.
func (r *Registry) Create(ctx context.Context, name string) error {
	if _, ok := r.containers.Load(name); ok {
		r.cfg.Log.Debug().Str("name", name).Msg("container already exists, skipping")
		return nil
	}

	inf := &inflight{done: make(chan struct{})}
	actual, loaded := r.creating.LoadOrStore(name, inf)
	if loaded {
		existing := actual.(*inflight)
		<-existing.done
		return existing.err
	}

	err := r.createOnce(ctx, name)
	inf.err = err
	close(inf.done)
	r.creating.Delete(name)
	return err
}

func (r *Registry) createOnce(ctx context.Context, name string) (err error) {
	// Re-check under the in-flight guard: another create may have
	// inserted the entry between our initial Load and winning the
	// LoadOrStore race.
	if _, ok := r.containers.Load(name); ok {
		return nil
	}

	start := time.Now()
	defer func() {
		metrics.HandshakeDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.ContainersTotal.WithLabelValues("failed").Inc()
		} else {
			metrics.ContainersTotal.WithLabelValues("created").Inc()
			metrics.ContainersActive.Inc()
		}
	}()

	srcDir, err := ociimage.Fetch(ctx, r.cfg.SkopeoBin, name)
	if err != nil {
		metrics.SubprocessFailures.WithLabelValues("skopeo").Inc()
		return err
	}
	defer os.RemoveAll(srcDir)

	bundle, err := ociimage.Unpack(ctx, r.cfg.UmociBin, srcDir)
	if err != nil {
		metrics.SubprocessFailures.WithLabelValues("umoci").Inc()
		return err
	}

	handshakeStart := time.Now()
	handle, err := container.Create(ctx, container.Config{
		ID:            name,
		RuntimeBin:    r.cfg.RuntimeBin,
		ConmonBin:     r.cfg.ConmonBin,
		Bundle:        bundle,
		SystemdCgroup: r.cfg.SystemdCgroup,
		Log:           r.cfg.Log,
	})
	metrics.HandshakeDuration.Observe(time.Since(handshakeStart).Seconds())
	if err != nil {
		metrics.SubprocessFailures.WithLabelValues("conmon").Inc()
		bundle.Remove()
		return err
	}

	if err := handle.Start(ctx); err != nil {
		metrics.SubprocessFailures.WithLabelValues("runtime").Inc()
		handle.Release()
		return err
	}

	r.containers.Store(name, handle)
	return nil
}

func (r *Registry) lookup(name string) (*container.Handle, error) {
	v, ok := r.containers.Load(name)
	if !ok {
		return nil, &NotFoundError{Name: name}
	}
	return v.(*container.Handle), nil
}

// State returns the current state of the named container.
func (r *Registry) State(ctx context.Context, name string) (*container.State, error) {
	h, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	return h.State(ctx)
}

// Pause pauses the named container.
func (r *Registry) Pause(ctx context.Context, name string) error {
	h, err := r.lookup(name)
	if err != nil {
		return err
	}
	return h.Pause(ctx)
}

// Resume resumes the named container.
func (r *Registry) Resume(ctx context.Context, name string) error {
	h, err := r.lookup(name)
	if err != nil {
		return err
	}
	return h.Resume(ctx)
}

// Console returns the handle of the named container, whose Console field
// is its connected console socket, for use by the attach transport.
func (r *Registry) Console(name string) (*container.Handle, error) {
	return r.lookup(name)
}

// Delete atomically removes name from the registry, transferring
// ownership of its handle to this call, then invokes the handle's
// consuming delete.
func (r *Registry) Delete(ctx context.Context, name string) error {
	v, ok := r.containers.LoadAndDelete(name)
	if !ok {
		return &NotFoundError{Name: name}
	}
	metrics.ContainersActive.Dec()
	return v.(*container.Handle).Delete(ctx)
}

// Clear releases every container currently in the registry. Used by the
// interrupt handler and by callers shutting the engine down.
func (r *Registry) Clear() {
	r.containers.Range(func(key, value interface{}) bool {
		r.containers.Delete(key)
		metrics.ContainersActive.Dec()
		value.(*container.Handle).Release()
		return true
	})
}
