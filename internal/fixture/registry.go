// Package fixture tracks entities that tests create against a live backend
// so each test worker can remove its own leftovers.
package fixture

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

type Entity struct {
	Kind string
	ID   string
}

func (e Entity) String() string {
	return e.Kind + "[" + e.ID + "]"
}

type CleanupFunc func(ctx context.Context) error

type tracked struct {
	entity  Entity
	cleanup CleanupFunc
}

type Registry struct {
	prefix string

	mu      sync.Mutex
	workers map[int][]tracked
}

// NewRegistry builds a registry whose names start with prefix, e.g. "e2e".
func NewRegistry(prefix string) (*Registry, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return nil, errors.New("prefix is empty")
	}

	return &Registry{
		prefix:  prefix,
		workers: make(map[int][]tracked),
	}, nil
}

// Name returns a name for a new entity of kind that no other worker will produce.
func (r *Registry) Name(worker int, kind string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("%s-w%d-%s-%s", r.prefix, worker, kind, suffix)
}

// Owns reports whether name was produced by this registry for worker.
func (r *Registry) Owns(worker int, name string) bool {
	return strings.HasPrefix(name, fmt.Sprintf("%s-w%d-", r.prefix, worker))
}

func (r *Registry) Track(worker int, entity Entity, cleanup CleanupFunc) error {
	if entity.Kind == "" || entity.ID == "" {
		return fmt.Errorf("entity %s: kind and id are required", entity)
	}
	if cleanup == nil {
		return errors.New("cleanup is nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.workers[worker] = append(r.workers[worker], tracked{entity: entity, cleanup: cleanup})
	return nil
}

func (r *Registry) Tracked(worker int) []Entity {
	r.mu.Lock()
	defer r.mu.Unlock()

	return lo.Map(r.workers[worker], func(t tracked, _ int) Entity {
		return t.entity
	})
}

// Cleanup removes the entities of worker, newest first. Every cleanup runs
// even when an earlier one fails; the failures are joined.
func (r *Registry) Cleanup(ctx context.Context, worker int) error {
	r.mu.Lock()
	items := r.workers[worker]
	delete(r.workers, worker)
	r.mu.Unlock()

	var errs []error
	for _, t := range slices.Backward(items) {
		if err := t.cleanup(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.entity, err))
		}
	}

	return errors.Join(errs...)
}

// CleanupAll runs Cleanup for every worker in ascending order.
func (r *Registry) CleanupAll(ctx context.Context) error {
	r.mu.Lock()
	workers := lo.Keys(r.workers)
	r.mu.Unlock()

	slices.SortFunc(workers, cmp.Compare[int])

	var errs []error
	for _, w := range workers {
		if err := r.Cleanup(ctx, w); err != nil {
			errs = append(errs, fmt.Errorf("worker[%d]: %w", w, err))
		}
	}

	return errors.Join(errs...)
}
