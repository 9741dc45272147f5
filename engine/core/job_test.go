package core

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJobSystemValidatesArguments(t *testing.T) {
	_, err := NewJobSystem(0, 1)
	assert.ErrorIs(t, err, ErrNoWorkers)
	_, err = NewJobSystem(1, -1)
	assert.ErrorIs(t, err, ErrNegativeChannelSize)
}

func TestJobSystemRunsCallbacks(t *testing.T) {
	js, err := NewJobSystem(4, 2)
	require.NoError(t, err)
	assert.Equal(t, 4, js.Workers())

	var ok, failed, done atomic.Int32
	boom := errors.New("boom")
	for i := 0; i < 20; i++ {
		i := i
		require.NoError(t, js.Submit(Job{
			Run: func() error {
				if i%2 == 0 {
					return boom
				}
				return nil
			},
			OnSuccess: func() { ok.Add(1) },
			OnFailure: func(err error) {
				assert.ErrorIs(t, err, boom)
				failed.Add(1)
			},
			OnDone: func() { done.Add(1) },
		}))
	}
	require.NoError(t, js.Shutdown())
	assert.EqualValues(t, 10, ok.Load())
	assert.EqualValues(t, 10, failed.Load())
	assert.EqualValues(t, 20, done.Load())

	assert.ErrorIs(t, js.Submit(Job{Run: func() error { return nil }}), ErrJobSystemClosed)
	assert.NoError(t, js.Shutdown())
}

func TestRunAllKeepsErrorsInOrder(t *testing.T) {
	js, err := NewJobSystem(3, 0)
	require.NoError(t, err)
	defer js.Shutdown()

	var ran atomic.Int32
	fns := make([]func() error, 8)
	for i := range fns {
		i := i
		fns[i] = func() error {
			ran.Add(1)
			if i == 5 {
				return errors.New("five")
			}
			return nil
		}
	}
	errs := js.RunAll(fns...)
	require.Len(t, errs, 8)
	assert.EqualValues(t, 8, ran.Load())
	for i, err := range errs {
		if i == 5 {
			assert.EqualError(t, err, "five")
		} else {
			assert.NoError(t, err)
		}
	}
}
