package depot

import "sync"

type bulkOp int

const (
	opNone bulkOp = iota
	opStartAll
	opStopAll
	opHaltAll
)

// Registry holds every configured depot and offers bulk lifecycle
// operations over them. Bulk operations are mutually exclusive: requesting
// the operation already in flight is a no-op, while requesting a different
// one waits for the current operation to finish and then runs.
type Registry struct {
	mu       sync.Mutex
	depots   []*Depot
	inFlight bulkOp
	done     chan struct{}
}

func NewRegistry(depots ...*Depot) *Registry {
	return &Registry{depots: depots}
}

func (r *Registry) Add(d *Depot) {
	r.mu.Lock()
	r.depots = append(r.depots, d)
	r.mu.Unlock()
}

// Depots returns a snapshot of the registered depots.
func (r *Registry) Depots() []*Depot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Depot, len(r.depots))
	copy(out, r.depots)
	return out
}

// Find returns the depot with the given name, or nil.
func (r *Registry) Find(name string) *Depot {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.depots {
		if d.Name() == name {
			return d
		}
	}
	return nil
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.depots)
}

// Busy reports whether a bulk operation is in flight.
func (r *Registry) Busy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inFlight != opNone
}

// Wait blocks until the in-flight bulk operation, if any, has finished.
func (r *Registry) Wait() {
	for {
		r.mu.Lock()
		done := r.done
		r.mu.Unlock()
		if done == nil {
			return
		}
		<-done
	}
}

// StartAllPollingAsync brings up every depot's gateways and sets them
// polling.
func (r *Registry) StartAllPollingAsync() {
	r.launch(opStartAll, func(d *Depot) {
		if d.StartGateways() {
			d.StartPollingAsync()
		}
	})
}

// StopAllPollingAsync pauses polling everywhere; gateways stay connected.
func (r *Registry) StopAllPollingAsync() {
	r.launch(opStopAll, func(d *Depot) {
		d.StopPolling()
	})
}

// HaltAllAsync pauses polling and releases every gateway.
func (r *Registry) HaltAllAsync() {
	r.launch(opHaltAll, func(d *Depot) {
		d.StopPolling()
		d.StopGateways()
	})
}

// launch runs fn over every valid depot on a background goroutine, holding
// the bulk-operation slot for the duration.
func (r *Registry) launch(op bulkOp, fn func(*Depot)) {
	for {
		r.mu.Lock()
		if r.inFlight == op {
			r.mu.Unlock()
			return
		}
		if r.inFlight == opNone {
			done := make(chan struct{})
			r.inFlight = op
			r.done = done
			depots := make([]*Depot, len(r.depots))
			copy(depots, r.depots)
			r.mu.Unlock()

			go func() {
				defer func() {
					r.mu.Lock()
					r.inFlight = opNone
					r.done = nil
					r.mu.Unlock()
					close(done)
				}()
				for _, d := range depots {
					if d.State() == InvalidConfiguration {
						continue
					}
					fn(d)
				}
			}()
			return
		}
		done := r.done
		r.mu.Unlock()
		<-done
	}
}

// AnyInvalid reports whether any depot is permanently misconfigured.
func (r *Registry) AnyInvalid() bool {
	return r.any(func(d *Depot) bool { return d.State() == InvalidConfiguration })
}

// AllInvalid reports whether every depot is permanently misconfigured.
func (r *Registry) AllInvalid() bool {
	depots := r.Depots()
	if len(depots) == 0 {
		return false
	}
	for _, d := range depots {
		if d.State() != InvalidConfiguration {
			return false
		}
	}
	return true
}

// AnyStarted reports whether any depot has reached Started.
func (r *Registry) AnyStarted() bool {
	return r.any(func(d *Depot) bool { return d.State() == Started })
}

// AnyStopped reports whether any depot has reached Stopped.
func (r *Registry) AnyStopped() bool {
	return r.any(func(d *Depot) bool { return d.State() == Stopped })
}

// AnyPolling reports whether any depot has an actively polling gateway.
func (r *Registry) AnyPolling() bool {
	return r.any(func(d *Depot) bool { return d.Polling() })
}

// AllPolling reports whether every valid depot is polling.
func (r *Registry) AllPolling() bool {
	return r.allValid(func(d *Depot) bool { return d.Polling() })
}

// AllStarted reports whether every valid depot has reached Started.
func (r *Registry) AllStarted() bool {
	return r.allValid(func(d *Depot) bool { return d.State() == Started })
}

// AllStopped reports whether every valid depot has reached Stopped.
func (r *Registry) AllStopped() bool {
	return r.allValid(func(d *Depot) bool { return d.State() == Stopped })
}

// StillStarting reports whether any valid depot has not yet reached Started.
func (r *Registry) StillStarting() bool {
	return r.any(func(d *Depot) bool {
		return d.State() != InvalidConfiguration && d.State() != Started
	})
}

// StillStopping reports whether any valid depot has not yet reached Stopped.
func (r *Registry) StillStopping() bool {
	return r.any(func(d *Depot) bool {
		return d.State() != InvalidConfiguration && d.State() != Stopped
	})
}

func (r *Registry) any(pred func(*Depot) bool) bool {
	for _, d := range r.Depots() {
		if pred(d) {
			return true
		}
	}
	return false
}

func (r *Registry) allValid(pred func(*Depot) bool) bool {
	any := false
	for _, d := range r.Depots() {
		if d.State() == InvalidConfiguration {
			continue
		}
		any = true
		if !pred(d) {
			return false
		}
	}
	return any
}
