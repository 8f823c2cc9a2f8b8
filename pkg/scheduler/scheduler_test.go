package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The shortest interval cron honors is one second, so the firing tests sleep
// in whole-second windows.

func TestScheduler_RunsJob(t *testing.T) {
	s := New(zerolog.Nop())

	var runs int32
	require.NoError(t, s.Add("tick", "@every 1s", func() {
		atomic.AddInt32(&runs, 1)
	}))

	s.Start()
	time.Sleep(2200 * time.Millisecond)
	s.Stop()

	assert.GreaterOrEqual(t, atomic.LoadInt32(&runs), int32(2))
}

func TestScheduler_InvalidSpec(t *testing.T) {
	s := New(zerolog.Nop())

	err := s.Add("broken", "not a schedule", func() {})
	assert.Error(t, err)
}

func TestScheduler_AcceptsCronAndDescriptors(t *testing.T) {
	s := New(zerolog.Nop())

	assert.NoError(t, s.Add("five-field", "*/5 * * * *", func() {}))
	assert.NoError(t, s.Add("descriptor", "@hourly", func() {}))
	assert.NoError(t, s.Add("interval", "@every 5m", func() {}))
}

func TestScheduler_StopWaitsForInflightRun(t *testing.T) {
	s := New(zerolog.Nop())

	var done int32
	require.NoError(t, s.Add("slow", "@every 1s", func() {
		time.Sleep(500 * time.Millisecond)
		atomic.StoreInt32(&done, 1)
	}))

	s.Start()
	// The first fire lands within the first second; stop while it may still
	// be sleeping
	time.Sleep(1100 * time.Millisecond)
	s.Stop()

	assert.Equal(t, int32(1), atomic.LoadInt32(&done), "Stop must not return before the running job finishes")
}

func TestScheduler_RecoversFromPanic(t *testing.T) {
	s := New(zerolog.Nop())

	var after int32
	require.NoError(t, s.Add("panics", "@every 1s", func() {
		if atomic.AddInt32(&after, 1) == 1 {
			panic("job blew up")
		}
	}))

	s.Start()
	time.Sleep(2200 * time.Millisecond)
	s.Stop()

	assert.GreaterOrEqual(t, atomic.LoadInt32(&after), int32(2), "a panicking run must not kill the schedule")
}
