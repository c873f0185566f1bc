package registry

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drachenfels-de/ocie/internal/container"
)

func testConfig() Config {
	return Config{
		SkopeoBin:  "/nonexistent/skopeo",
		UmociBin:   "/nonexistent/umoci",
		RuntimeBin: "/nonexistent/runtime",
		ConmonBin:  "/nonexistent/conmon",
		Log:        zerolog.New(io.Discard),
	}
}

func TestNotFoundErrorMessage(t *testing.T) {
	err := &NotFoundError{Name: "ghost"}
	assert.Equal(t, `container "ghost" does not exist`, err.Error())
}

func TestLifecycleVerbsOnMissingContainerReturnNotFound(t *testing.T) {
	r := &Registry{cfg: testConfig()}

	_, err := r.State(context.Background(), "ghost")
	assert.ErrorAs(t, err, new(*NotFoundError))

	err = r.Pause(context.Background(), "ghost")
	assert.ErrorAs(t, err, new(*NotFoundError))

	err = r.Resume(context.Background(), "ghost")
	assert.ErrorAs(t, err, new(*NotFoundError))

	err = r.Delete(context.Background(), "ghost")
	assert.ErrorAs(t, err, new(*NotFoundError))

	_, err = r.Console("ghost")
	assert.ErrorAs(t, err, new(*NotFoundError))
}

func TestConcurrentCreateSharesSingleInFlightAttempt(t *testing.T) {
	r := &Registry{cfg: testConfig()}

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			errs[i] = r.Create(context.Background(), "same-name")
		}()
	}
	wg.Wait()

	require.Error(t, errs[0])
	for i := 1; i < n; i++ {
		require.Error(t, errs[i])
		assert.Equal(t, errs[0].Error(), errs[i].Error(),
			"every concurrent Create for the same name must observe the same outcome")
	}

	// The in-flight guard must be cleared once createOnce returns, so a
	// later Create for the same name is free to attempt again rather
	// than hanging on a stale entry.
	_, stillInFlight := r.creating.Load("same-name")
	assert.False(t, stillInFlight)
}

func TestCreateIsIdempotentOnceStored(t *testing.T) {
	r := &Registry{cfg: testConfig()}
	r.containers.Store("already-here", (*container.Handle)(nil))

	err := r.Create(context.Background(), "already-here")
	assert.NoError(t, err)
}
