package sched

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAfterFires(t *testing.T) {
	s := New()
	defer s.Stop()

	done := make(chan struct{})
	ok := s.After(5*time.Millisecond, func() { close(done) })
	require.True(t, ok)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timer never fired")
	}
	assert.Equal(t, 0, s.Pending())
}

func TestStopCancelsPending(t *testing.T) {
	s := New()

	var fired atomic.Int32
	s.After(50*time.Millisecond, func() { fired.Add(1) })
	require.Equal(t, 1, s.Pending())

	s.Stop()
	assert.Equal(t, 0, s.Pending())
	assert.False(t, s.After(time.Millisecond, func() { fired.Add(1) }))

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}

func TestRescheduleAfterCompletion(t *testing.T) {
	s := New()
	defer s.Stop()

	var runs atomic.Int32
	done := make(chan struct{})
	var loop func()
	loop = func() {
		if runs.Add(1) >= 3 {
			close(done)
			return
		}
		s.After(time.Millisecond, loop)
	}
	s.After(time.Millisecond, loop)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop never reached three runs")
	}
	assert.GreaterOrEqual(t, runs.Load(), int32(3))
}
