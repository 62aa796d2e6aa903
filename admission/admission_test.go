package admission

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCounter struct {
	count int
	err   error
}

func (f *fakeCounter) CountActive(ctx context.Context) (int, error) {
	return f.count, f.err
}

func TestController_CanAdmit(t *testing.T) {
	counter := &fakeCounter{}
	gate := NewController(counter, 2)
	ctx := context.Background()

	counter.count = 0
	ok, err := gate.CanAdmit(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	counter.count = 1
	ok, err = gate.CanAdmit(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	counter.count = 2
	ok, err = gate.CanAdmit(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	counter.count = 3
	ok, err = gate.CanAdmit(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestController_CanProceed(t *testing.T) {
	counter := &fakeCounter{}
	gate := NewController(counter, 2)
	ctx := context.Background()

	// The caller's own active record is in the count, so a count equal to the
	// ceiling still means a free slot.
	counter.count = 1
	ok, err := gate.CanProceed(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	counter.count = 2
	ok, err = gate.CanProceed(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	counter.count = 3
	ok, err = gate.CanProceed(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	counter.err = errors.New("store down")
	ok, err = gate.CanProceed(ctx)
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestController_CountError(t *testing.T) {
	counter := &fakeCounter{err: errors.New("store down")}
	gate := NewController(counter, 2)

	ok, err := gate.CanAdmit(context.Background())
	assert.Error(t, err)
	assert.False(t, ok)
}
