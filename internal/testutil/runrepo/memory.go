// Package runrepo provides an in-memory run ledger for tests.
package runrepo

import (
	"context"
	"sort"
	"sync"

	"github.com/turtacn/KeyIP-Protonate/internal/domain/protonation"
	"github.com/turtacn/KeyIP-Protonate/pkg/errors"
)

// Memory is an in-memory protonation.RunRepository.
type Memory struct {
	mu   sync.Mutex
	runs map[string]*protonation.Run
	// Err, when set, is returned by every method.
	Err error
}

// New returns a repository holding runs.
func New(runs ...*protonation.Run) *Memory {
	r := &Memory{runs: make(map[string]*protonation.Run)}
	for _, run := range runs {
		r.runs[run.ID] = run
	}
	return r
}

func (r *Memory) Save(_ context.Context, run *protonation.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	cp := *run
	r.runs[run.ID] = &cp
	return nil
}

func (r *Memory) FindByID(_ context.Context, id string) (*protonation.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	run, ok := r.runs[id]
	if !ok {
		return nil, errors.NotFound("run not found").WithDetail(id)
	}
	cp := *run
	return &cp, nil
}

func (r *Memory) ListByBatch(_ context.Context, batchID string) ([]*protonation.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	var out []*protonation.Run
	for _, run := range r.runs {
		if run.BatchID == batchID {
			cp := *run
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (r *Memory) ListRecent(_ context.Context, limit int) ([]*protonation.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	out := make([]*protonation.Run, 0, len(r.runs))
	for _, run := range r.runs {
		cp := *run
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Len returns the number of stored runs.
func (r *Memory) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs)
}

var _ protonation.RunRepository = (*Memory)(nil)

//Personal.AI order the ending
