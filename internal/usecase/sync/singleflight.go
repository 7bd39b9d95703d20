package sync

import "sync"

// flightRegistry is the process-local single-flight guard: at most one sync in
// flight per connection id. It does not coordinate across service instances;
// multi-instance deployments need a database-level lock instead.
type flightRegistry struct {
	mu       sync.Mutex
	inFlight map[string]struct{}
}

func newFlightRegistry() *flightRegistry {
	return &flightRegistry{
		inFlight: make(map[string]struct{}),
	}
}

// TryAcquire returns false when a sync for the connection is already running.
func (r *flightRegistry) TryAcquire(connectionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, busy := r.inFlight[connectionID]; busy {
		return false
	}
	r.inFlight[connectionID] = struct{}{}
	return true
}

func (r *flightRegistry) Release(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.inFlight, connectionID)
}
