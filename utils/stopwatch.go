package utils

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Watch times a run and its phases.
type Watch struct {
	mu        sync.RWMutex
	startTime time.Time
	lapTime   time.Time
}

func (w *Watch) Start() {
	w.mu.Lock()
	w.startTime = time.Now()
	w.lapTime = w.startTime
	w.mu.Unlock()
}

func (w *Watch) Elapsed() time.Duration {
	w.mu.RLock()
	mStart := w.startTime
	w.mu.RUnlock()
	return time.Since(mStart)
}

// Time since the previous lap (or start), logged at debug level under the given phase name.
func (w *Watch) Lap(phase string) time.Duration {
	w.mu.Lock()
	now := time.Now()
	d := now.Sub(w.lapTime)
	w.lapTime = now
	w.mu.Unlock()
	log.Debug().Msg(phase + " took " + V(d.Milliseconds()) + " ms")
	return d
}
