// Package registry tracks in-flight calls. It is the join point between an
// outbound-call request and the inbound media stream that later names the
// same call SID.
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/Foundasion/appointment-confirmation-bot/internal/directory"
)

type entry struct {
	appointment *directory.AppointmentDetails
	lastSeen    time.Time
}

// Registry is safe for concurrent use. Entries are dropped explicitly when a
// stream ends, and a janitor evicts entries whose call never produced a
// stream within the idle TTL.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	idleTTL time.Duration
}

func New(idleTTL time.Duration) *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		idleTTL: idleTTL,
	}
}

// Register attaches appointment context to a call SID. The context may be
// nil for calls with no known appointment.
func (r *Registry) Register(callSID string, appt *directory.AppointmentDetails) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[callSID] = &entry{appointment: appt, lastSeen: time.Now()}
}

// Lookup returns the appointment context for a call, refreshing its idle
// timer. The second return is false when the call SID is unknown.
func (r *Registry) Lookup(callSID string) (*directory.AppointmentDetails, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[callSID]
	if !ok {
		return nil, false
	}
	e.lastSeen = time.Now()
	return e.appointment, true
}

func (r *Registry) Drop(callSID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, callSID)
}

// Len reports the number of tracked calls.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Run evicts idle entries until ctx is cancelled.
func (r *Registry) Run(ctx context.Context) {
	interval := r.idleTTL / 4
	if interval < time.Second {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.evictIdle(time.Now())
		}
	}
}

func (r *Registry) evictIdle(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for sid, e := range r.entries {
		if now.Sub(e.lastSeen) > r.idleTTL {
			delete(r.entries, sid)
			evicted++
		}
	}
	return evicted
}
