package services

import (
	"context"
	"sort"
	"sync"
)

// MemoryDirectory matches service identifiers against an in-memory list of
// registered services in evaluation order.
type MemoryDirectory struct {
	mu       sync.RWMutex
	services []*RegisteredService
}

// NewMemoryDirectory compiles and stores the given services
func NewMemoryDirectory(svcs ...*RegisteredService) (*MemoryDirectory, error) {
	d := &MemoryDirectory{}
	if err := d.Replace(svcs); err != nil {
		return nil, err
	}
	return d, nil
}

// Replace swaps the whole service list. On error the previous list is kept.
func (d *MemoryDirectory) Replace(svcs []*RegisteredService) error {
	compiled := make([]*RegisteredService, 0, len(svcs))
	for _, svc := range svcs {
		if err := svc.Compile(); err != nil {
			return err
		}
		compiled = append(compiled, svc)
	}
	sort.SliceStable(compiled, func(i, j int) bool {
		return compiled[i].EvaluationOrder < compiled[j].EvaluationOrder
	})

	d.mu.Lock()
	d.services = compiled
	d.mu.Unlock()
	return nil
}

// FindByService returns the first service, by evaluation order, whose
// pattern matches serviceID.
func (d *MemoryDirectory) FindByService(ctx context.Context, serviceID string) (*RegisteredService, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, svc := range d.services {
		if svc.Matches(serviceID) {
			return svc, nil
		}
	}
	return nil, ErrServiceNotFound
}

// All returns the registered services in evaluation order
func (d *MemoryDirectory) All() []*RegisteredService {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]*RegisteredService(nil), d.services...)
}
