package safety

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHeartbeatStatusTracksBeats(t *testing.T) {
	hb := NewHeartbeat(time.Minute, nil)

	st := hb.Status()
	assert.False(t, st.Running)
	assert.Zero(t, st.BeatCount)
	assert.True(t, st.Healthy)

	hb.Beat()
	hb.Beat()
	st = hb.Status()
	assert.Equal(t, int64(2), st.BeatCount)
	assert.True(t, st.Healthy)
}

func TestStalledHeartbeatFiresOncePerStall(t *testing.T) {
	var stalls atomic.Int64
	hb := NewHeartbeat(50*time.Millisecond, func(time.Duration) {
		stalls.Add(1)
	})
	hb.Start()
	defer hb.Stop()

	// Two watch intervals with no beat: the alert fires once, not per check.
	time.Sleep(2200 * time.Millisecond)
	assert.Equal(t, int64(1), stalls.Load())
	assert.False(t, hb.Status().Healthy)

	// A fresh beat re-arms the alert.
	hb.Beat()
	assert.True(t, hb.Status().Healthy)
	time.Sleep(1200 * time.Millisecond)
	assert.Equal(t, int64(2), stalls.Load())
}

func TestSessionHeartbeatsAreIndependent(t *testing.T) {
	var frozenStalls, busyStalls atomic.Int64
	frozen := NewHeartbeat(50*time.Millisecond, func(time.Duration) { frozenStalls.Add(1) })
	busy := NewHeartbeat(50*time.Millisecond, func(time.Duration) { busyStalls.Add(1) })
	frozen.Start()
	busy.Start()
	defer frozen.Stop()
	defer busy.Stop()

	// One session keeps beating while the other freezes. The busy session
	// must not mask the frozen one.
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				busy.Beat()
			}
		}
	}()

	time.Sleep(1200 * time.Millisecond)
	close(done)

	assert.Equal(t, int64(1), frozenStalls.Load())
	assert.Zero(t, busyStalls.Load())
}
