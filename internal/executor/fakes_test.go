package executor

import (
	"context"
	"sync"
	"time"

	"taskmesh/internal/model"
	"taskmesh/internal/retrieval"
	"taskmesh/internal/router"
)

// fakeTaskStore is an in-memory databases.TaskStore double for exercising
// Attempt/AssignPending/SweepStuck without a live Postgres instance.
type fakeTaskStore struct {
	mu          sync.Mutex
	tasks       map[string]model.Task
	heartbeats  map[string]time.Time
	transitions map[string][]model.TaskTransition
}

func newFakeTaskStore(tasks ...model.Task) *fakeTaskStore {
	s := &fakeTaskStore{
		tasks:       map[string]model.Task{},
		heartbeats:  map[string]time.Time{},
		transitions: map[string][]model.TaskTransition{},
	}
	for _, t := range tasks {
		s.tasks[t.ID] = t
	}
	return s
}

func (s *fakeTaskStore) Enqueue(ctx context.Context, t model.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = t
	return nil
}

func (s *fakeTaskStore) PullReady(ctx context.Context, limit int) ([]model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Task
	now := time.Now().UTC()
	for _, t := range s.tasks {
		if t.ReadyForPull(now) {
			out = append(out, t)
		}
		if len(out) >= limit && limit > 0 {
			break
		}
	}
	return out, nil
}

func (s *fakeTaskStore) Get(ctx context.Context, id string) (model.Task, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	return t, ok, nil
}

func (s *fakeTaskStore) CompareAndTransition(ctx context.Context, id string, expectFrom model.Status, tr model.TaskTransition, mutate func(*model.Task)) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok || t.Status != expectFrom {
		return false, nil
	}
	mutate(&t)
	t.UpdatedAt = time.Now().UTC()
	s.tasks[id] = t
	s.transitions[id] = append(s.transitions[id], tr)
	return true, nil
}

func (s *fakeTaskStore) Heartbeat(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heartbeats[id] = at
	return nil
}

func (s *fakeTaskStore) Stuck(ctx context.Context, stuckAfter time.Duration) ([]model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Task
	now := time.Now().UTC()
	for _, t := range s.tasks {
		if t.Stuck(now, stuckAfter) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *fakeTaskStore) Transitions(ctx context.Context, taskID string) ([]model.TaskTransition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitions[taskID], nil
}

func (s *fakeTaskStore) Close() {}

// fakeExpertStore is an in-memory databases.ExpertStore double.
type fakeExpertStore struct {
	mu      sync.Mutex
	experts map[string]model.Expert
}

func newFakeExpertStore(experts ...model.Expert) *fakeExpertStore {
	s := &fakeExpertStore{experts: map[string]model.Expert{}}
	for _, e := range experts {
		s.experts[e.Name] = e
	}
	return s
}

func (s *fakeExpertStore) List(ctx context.Context) ([]model.Expert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Expert, 0, len(s.experts))
	for _, e := range s.experts {
		out = append(out, e)
	}
	return out, nil
}

func (s *fakeExpertStore) Get(ctx context.Context, id string) (model.Expert, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.experts[id]
	return e, ok, nil
}

func (s *fakeExpertStore) UpsertWorkload(ctx context.Context, id string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.experts[id]
	e.Name = id
	e.Workload += delta
	s.experts[id] = e
	return nil
}

func (s *fakeExpertStore) RecordOutcome(ctx context.Context, id string, success bool) error {
	return nil
}

func (s *fakeExpertStore) SyncSeed(ctx context.Context, experts []model.Expert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range experts {
		s.experts[e.Name] = e
	}
	return nil
}

func (s *fakeExpertStore) Close() {}

// stubDispatcher always returns a fixed response or error, regardless of
// the request, so Attempt tests can drive the happy/failure paths without
// a live Router.
type stubDispatcher struct {
	resp router.Response
	err  error
}

func (d stubDispatcher) Dispatch(ctx context.Context, req router.Request) (router.Response, error) {
	return d.resp, d.err
}

// stubRetriever returns a fixed context block, or nothing when unset.
type stubRetriever struct {
	block retrieval.ContextBlock
	err   error
}

func (r stubRetriever) Context(ctx context.Context, goal, domain string, precomputed []float32) (retrieval.ContextBlock, error) {
	return r.block, r.err
}
