// Package selector routes backup-engine operations (push a task's info,
// push a file's info, upload a chunk) to one of the zone's remote service
// endpoints. Unlike the teacher's scheduler, which bin-packs containers
// onto the least-loaded node, routing here must be deterministic: the
// same task/file/chunk key must always select the same endpoint so retries
// and idempotent replay land on the service that already has the
// bookkeeping for that item.
package selector

import (
	"fmt"
	"hash/fnv"
)

// Endpoint is one remote service instance capable of serving a given
// role (task manager, file server, chunk server).
type Endpoint struct {
	ID      string
	Address string
	Ready   bool
}

// Selector deterministically maps a routing key to one ready endpoint.
type Selector struct {
	endpoints []Endpoint
}

// New creates a Selector over the given endpoint set.
func New(endpoints []Endpoint) *Selector {
	return &Selector{endpoints: endpoints}
}

// Select deterministically picks a ready endpoint for key (a task id,
// "task id + file seq", or "task id + file seq + chunk seq"). Equal keys
// always select the same endpoint for a given ready set, so repeated
// calls during a retry land on the same remote service.
func (s *Selector) Select(key string) (Endpoint, error) {
	ready := s.readyEndpoints()
	if len(ready) == 0 {
		return Endpoint{}, fmt.Errorf("selector: no ready endpoints")
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	idx := h.Sum64() % uint64(len(ready))
	return ready[idx], nil
}

func (s *Selector) readyEndpoints() []Endpoint {
	var ready []Endpoint
	for _, e := range s.endpoints {
		if e.Ready {
			ready = append(ready, e)
		}
	}
	return ready
}

// SetEndpoints replaces the endpoint set, e.g. after a health-check sweep
// changes which remote services are reachable.
func (s *Selector) SetEndpoints(endpoints []Endpoint) {
	s.endpoints = endpoints
}
