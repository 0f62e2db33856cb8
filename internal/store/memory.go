package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-process Store used by tests and single-process
// deployments that do not need durability. Returned records are copies.
type MemoryStore struct {
	mu           sync.RWMutex
	instances    map[string]*Instance
	bookmarks    map[string]*Bookmark
	queue        map[string]*BookmarkQueueItem
	triggers     map[string][]*Trigger
	jobs         map[string]*ScheduledJob
	eventsByInst map[string][]*Event
	nextEventID  int64
	clock        func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		instances:    make(map[string]*Instance),
		bookmarks:    make(map[string]*Bookmark),
		queue:        make(map[string]*BookmarkQueueItem),
		triggers:     make(map[string][]*Trigger),
		jobs:         make(map[string]*ScheduledJob),
		eventsByInst: make(map[string][]*Event),
		nextEventID:  1,
		clock:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) now(t time.Time) time.Time {
	if t.IsZero() {
		return s.clock()
	}
	return t
}

func (s *MemoryStore) Migrate(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

// --- Instances ---

func (s *MemoryStore) SaveInstance(_ context.Context, inst *Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *inst
	cp.CreatedAt = s.now(cp.CreatedAt)
	cp.UpdatedAt = s.now(cp.UpdatedAt)
	if prev, ok := s.instances[inst.ID]; ok {
		cp.CreatedAt = prev.CreatedAt
	}
	s.instances[inst.ID] = &cp
	return nil
}

func (s *MemoryStore) GetInstance(_ context.Context, id string) (*Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, ok := s.instances[id]
	if !ok {
		return nil, storeNotFound("instance", id)
	}
	cp := *inst
	return &cp, nil
}

func (s *MemoryStore) ListInstances(_ context.Context, filter InstanceFilter) ([]*Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Instance
	for _, inst := range s.instances {
		if filter.WorkflowID != "" && inst.WorkflowID != filter.WorkflowID {
			continue
		}
		if filter.Status != nil && inst.Status != *filter.Status {
			continue
		}
		if filter.CorrelationID != "" && inst.CorrelationID != filter.CorrelationID {
			continue
		}
		cp := *inst
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return paginate(out, filter.Offset, filter.Limit), nil
}

func (s *MemoryStore) DeleteInstance(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.instances[id]; !ok {
		return storeNotFound("instance", id)
	}
	delete(s.instances, id)
	for bid, b := range s.bookmarks {
		if b.InstanceID == id {
			delete(s.bookmarks, bid)
		}
	}
	delete(s.eventsByInst, id)
	return nil
}

// --- Bookmarks ---

func (s *MemoryStore) ReplaceBookmarks(_ context.Context, instanceID string, bookmarks []*Bookmark) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, b := range s.bookmarks {
		if b.InstanceID == instanceID {
			delete(s.bookmarks, id)
		}
	}
	for _, b := range bookmarks {
		cp := *b
		cp.InstanceID = instanceID
		cp.CreatedAt = s.now(cp.CreatedAt)
		s.bookmarks[cp.ID] = &cp
	}
	return nil
}

func (s *MemoryStore) FindBookmarks(_ context.Context, filter BookmarkFilter) ([]*Bookmark, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Bookmark
	for _, b := range s.bookmarks {
		if filter.Matches(b) {
			cp := *b
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return paginate(out, 0, filter.Limit), nil
}

func (s *MemoryStore) DeleteBookmark(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bookmarks[id]; !ok {
		return false, nil
	}
	delete(s.bookmarks, id)
	return true, nil
}

// --- Bookmark queue ---

func (s *MemoryStore) EnqueueBookmarkQueueItem(_ context.Context, item *BookmarkQueueItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *item
	cp.CreatedAt = s.now(cp.CreatedAt)
	s.queue[cp.ID] = &cp
	return nil
}

func (s *MemoryStore) FindBookmarkQueueItems(_ context.Context, filter BookmarkQueueFilter) ([]*BookmarkQueueItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*BookmarkQueueItem
	for _, item := range s.queue {
		if filter.Matches(item) {
			cp := *item
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return paginate(out, 0, filter.Limit), nil
}

func (s *MemoryStore) DeleteBookmarkQueueItems(_ context.Context, filter BookmarkQueueFilter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, item := range s.queue {
		if filter.Matches(item) {
			delete(s.queue, id)
			n++
		}
	}
	return n, nil
}

// --- Triggers ---

func (s *MemoryStore) ReplaceTriggers(_ context.Context, workflowID string, triggers []*Trigger) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cps := make([]*Trigger, 0, len(triggers))
	for _, t := range triggers {
		cp := *t
		cp.WorkflowID = workflowID
		cp.CreatedAt = s.now(cp.CreatedAt)
		cps = append(cps, &cp)
	}
	if len(cps) == 0 {
		delete(s.triggers, workflowID)
		return nil
	}
	s.triggers[workflowID] = cps
	return nil
}

func (s *MemoryStore) FindTriggers(_ context.Context, filter TriggerFilter) ([]*Trigger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	workflows := make([]string, 0, len(s.triggers))
	for wf := range s.triggers {
		workflows = append(workflows, wf)
	}
	sort.Strings(workflows)

	var out []*Trigger
	for _, wf := range workflows {
		for _, t := range s.triggers[wf] {
			if filter.Matches(t) {
				cp := *t
				out = append(out, &cp)
			}
		}
	}
	return out, nil
}

// --- Scheduled Jobs ---

func (s *MemoryStore) CreateScheduledJob(_ context.Context, job *ScheduledJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; ok {
		return storeConflict("scheduled job", job.ID)
	}
	cp := *job
	cp.CreatedAt = s.now(cp.CreatedAt)
	s.jobs[cp.ID] = &cp
	return nil
}

func (s *MemoryStore) GetScheduledJob(_ context.Context, id string) (*ScheduledJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, storeNotFound("scheduled job", id)
	}
	cp := *job
	return &cp, nil
}

func (s *MemoryStore) UpdateScheduledJob(_ context.Context, id string, update ScheduledJobUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return storeNotFound("scheduled job", id)
	}
	if update.Enabled != nil {
		job.Enabled = *update.Enabled
	}
	if update.Payload != nil {
		job.Payload = update.Payload
	}
	if update.LastRunAt != nil {
		t := *update.LastRunAt
		job.LastRunAt = &t
	}
	if update.NextRunAt != nil {
		t := *update.NextRunAt
		job.NextRunAt = &t
	}
	if update.LastRunStatus != "" {
		job.LastRunStatus = update.LastRunStatus
	}
	return nil
}

func (s *MemoryStore) ListScheduledJobs(_ context.Context, filter ScheduledJobFilter) ([]*ScheduledJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*ScheduledJob
	for _, job := range s.jobs {
		if filter.Matches(job) {
			cp := *job
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].NextRunAt, out[j].NextRunAt
		switch {
		case a == nil && b == nil:
			return out[i].ID < out[j].ID
		case a == nil:
			return true
		case b == nil:
			return false
		case a.Equal(*b):
			return out[i].ID < out[j].ID
		}
		return a.Before(*b)
	})
	return paginate(out, 0, filter.Limit), nil
}

func (s *MemoryStore) DeleteScheduledJobs(_ context.Context, filter ScheduledJobFilter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, job := range s.jobs {
		if filter.Matches(job) {
			delete(s.jobs, id)
			n++
		}
	}
	return n, nil
}

// --- Events ---

func (s *MemoryStore) AppendEvents(_ context.Context, instanceID string, events []*Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.eventsByInst[instanceID]
	var seq int64
	if n := len(existing); n > 0 {
		seq = existing[n-1].Sequence
	}
	for _, e := range events {
		seq++
		e.ID = s.nextEventID
		s.nextEventID++
		e.InstanceID = instanceID
		e.Sequence = seq
		e.Timestamp = s.now(e.Timestamp)
		cp := *e
		existing = append(existing, &cp)
	}
	s.eventsByInst[instanceID] = existing
	return nil
}

func (s *MemoryStore) GetEvents(_ context.Context, instanceID string, since int64) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Event
	for _, e := range s.eventsByInst[instanceID] {
		if e.Sequence > since {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
