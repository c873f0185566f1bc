package enginepipe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReaderInheritable(t *testing.T) {
	p, err := New(ReaderInheritable)
	require.NoError(t, err)
	defer p.Close()

	parentCloExec, err := IsCloseOnExec(p.Parent.Fd())
	require.NoError(t, err)
	assert.True(t, parentCloExec, "parent end of a ReaderInheritable pipe must be close-on-exec")

	childCloExec, err := IsCloseOnExec(p.ChildFile().Fd())
	require.NoError(t, err)
	assert.False(t, childCloExec, "child end must survive exec")
}

func TestNewWriterInheritable(t *testing.T) {
	p, err := New(WriterInheritable)
	require.NoError(t, err)
	defer p.Close()

	parentCloExec, err := IsCloseOnExec(p.Parent.Fd())
	require.NoError(t, err)
	assert.True(t, parentCloExec)

	childCloExec, err := IsCloseOnExec(p.ChildFile().Fd())
	require.NoError(t, err)
	assert.False(t, childCloExec)
}

func TestNewInvalidSide(t *testing.T) {
	_, err := New(Side(99))
	assert.Error(t, err)
}

func TestPipeRoundTrip(t *testing.T) {
	// ReaderInheritable: the parent end is the writer, the child end is
	// the reader, matching the start-pipe's parent-writes/child-reads use.
	p, err := New(ReaderInheritable)
	require.NoError(t, err)
	defer p.Close()

	go func() {
		p.Parent.Write([]byte("hello"))
	}()

	buf := make([]byte, 5)
	n, err := p.ChildFile().Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))
}

func TestCloseChildLeavesParentClosable(t *testing.T) {
	p, err := New(ReaderInheritable)
	require.NoError(t, err)
	require.NoError(t, p.CloseChild())
	assert.NoError(t, p.Parent.Close())
}
