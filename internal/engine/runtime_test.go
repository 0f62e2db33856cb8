package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/waypoint/internal/clock"
	"github.com/rendis/waypoint/internal/store"
	"github.com/rendis/waypoint/pkg/schema"
)

// recordingObserver keeps every bookmark change it is notified about.
type recordingObserver struct {
	mu      sync.Mutex
	changes []BookmarkChange
}

func (o *recordingObserver) BookmarksChanged(_ context.Context, change BookmarkChange) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.changes = append(o.changes, change)
	return nil
}

func (o *recordingObserver) all() []BookmarkChange {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]BookmarkChange(nil), o.changes...)
}

func newTestRuntime(t *testing.T, wfs ...*Workflow) (*Runtime, *store.MemoryStore, *recordingObserver) {
	t.Helper()
	s := store.NewMemoryStore()
	obs := &recordingObserver{}
	rt, err := NewRuntime(s, RuntimeConfig{Clock: clock.NewFixed(testEpoch), PoolSize: 4, Observers: []BookmarkObserver{obs}})
	require.NoError(t, err)
	t.Cleanup(rt.Close)
	for _, wf := range wfs {
		require.NoError(t, rt.Register(wf))
	}
	return rt, s, obs
}

func waitingWorkflow(tr *trace) *Workflow {
	return newWorkflow("approval", newSeq("root", newStep("before", tr), newWaiter("approve", "approved", tr), newStep("after", tr)))
}

func TestRuntime_StartPersistsSuspendedInstance(t *testing.T) {
	tr := &trace{}
	rt, s, obs := newTestRuntime(t, waitingWorkflow(tr))

	snap, err := rt.Start(t.Context(), "approval", StartOptions{CorrelationID: "req-1"})
	require.NoError(t, err)
	assert.Equal(t, schema.InstanceStatusSuspended, snap.Status)

	rec, err := s.GetInstance(t.Context(), snap.InstanceID)
	require.NoError(t, err)
	assert.Equal(t, schema.InstanceStatusSuspended, rec.Status)
	assert.Equal(t, "req-1", rec.CorrelationID)

	rows, err := s.FindBookmarks(t.Context(), store.BookmarkFilter{InstanceID: snap.InstanceID})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, waitType, rows[0].ActivityTypeName)
	assert.Equal(t, "req-1", rows[0].CorrelationID)

	events, err := s.GetEvents(t.Context(), snap.InstanceID, 0)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, schema.EventInstanceStarted, events[0].Type)

	changes := obs.all()
	require.Len(t, changes, 1)
	assert.Len(t, changes[0].Added, 1)
	assert.Empty(t, changes[0].Removed)
}

func TestRuntime_ResumeByBookmarkID(t *testing.T) {
	tr := &trace{}
	rt, s, obs := newTestRuntime(t, waitingWorkflow(tr))
	started, err := rt.Start(t.Context(), "approval", StartOptions{})
	require.NoError(t, err)
	bookmarkID := started.Bookmarks[0].ID

	snap, err := rt.Resume(t.Context(), ResumeRequest{InstanceID: started.InstanceID, BookmarkID: bookmarkID})
	require.NoError(t, err)

	assert.Equal(t, schema.InstanceStatusCompleted, snap.Status)
	assert.Equal(t, []string{"before", "resumed:approve", "after"}, tr.entries())
	rows, err := s.FindBookmarks(t.Context(), store.BookmarkFilter{InstanceID: started.InstanceID})
	require.NoError(t, err)
	assert.Empty(t, rows)

	changes := obs.all()
	require.Len(t, changes, 2)
	require.Len(t, changes[1].Removed, 1)
	assert.Equal(t, bookmarkID, changes[1].Removed[0].ID)

	_, err = rt.Resume(t.Context(), ResumeRequest{InstanceID: started.InstanceID, BookmarkID: bookmarkID})
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound), "completed instances hold no bookmarks")
}

func TestRuntime_ConcurrentResumeDeliversOnce(t *testing.T) {
	tr := &trace{}
	rt, _, _ := newTestRuntime(t, waitingWorkflow(tr))
	started, err := rt.Start(t.Context(), "approval", StartOptions{})
	require.NoError(t, err)
	req := ResumeRequest{InstanceID: started.InstanceID, StimulusHash: started.Bookmarks[0].Hash}

	const resumers = 8
	var wg sync.WaitGroup
	errs := make([]error, resumers)
	for i := range resumers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = rt.Resume(context.Background(), req)
		}()
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound), err.Error())
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, []string{"before", "resumed:approve", "after"}, tr.entries())
}

// failingSaveStore fails the next n instance writes.
type failingSaveStore struct {
	*store.MemoryStore
	mu    sync.Mutex
	fails int
}

func (s *failingSaveStore) failNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fails = n
}

func (s *failingSaveStore) SaveInstance(ctx context.Context, inst *store.Instance) error {
	s.mu.Lock()
	if s.fails > 0 {
		s.fails--
		s.mu.Unlock()
		return schema.NewError(schema.ErrCodeStore, "disk full")
	}
	s.mu.Unlock()
	return s.MemoryStore.SaveInstance(ctx, inst)
}

func TestRuntime_ResumeRestoresClaimWhenPersistFails(t *testing.T) {
	tr := &trace{}
	s := &failingSaveStore{MemoryStore: store.NewMemoryStore()}
	rt, err := NewRuntime(s, RuntimeConfig{Clock: clock.NewFixed(testEpoch), PoolSize: 2})
	require.NoError(t, err)
	t.Cleanup(rt.Close)
	require.NoError(t, rt.Register(waitingWorkflow(tr)))

	started, err := rt.Start(t.Context(), "approval", StartOptions{})
	require.NoError(t, err)
	bookmarkID := started.Bookmarks[0].ID

	s.failNext(1)
	_, err = rt.Resume(t.Context(), ResumeRequest{InstanceID: started.InstanceID, BookmarkID: bookmarkID})
	require.True(t, schema.IsCode(err, schema.ErrCodeStore), "got %v", err)

	rows, err := s.FindBookmarks(t.Context(), store.BookmarkFilter{InstanceID: started.InstanceID})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, bookmarkID, rows[0].ID)

	snap, err := rt.Resume(t.Context(), ResumeRequest{InstanceID: started.InstanceID, BookmarkID: bookmarkID})
	require.NoError(t, err)
	assert.Equal(t, schema.InstanceStatusCompleted, snap.Status)
	rows, err = s.FindBookmarks(t.Context(), store.BookmarkFilter{InstanceID: started.InstanceID})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRuntime_ResumeFinishesAfterCallerCancels(t *testing.T) {
	tr := &trace{}
	rt, s, _ := newTestRuntime(t, waitingWorkflow(tr))
	started, err := rt.Start(t.Context(), "approval", StartOptions{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	snap, err := rt.Resume(ctx, ResumeRequest{InstanceID: started.InstanceID, BookmarkID: started.Bookmarks[0].ID})
	require.NoError(t, err)
	assert.Equal(t, schema.InstanceStatusCompleted, snap.Status)
	assert.Equal(t, []string{"before", "resumed:approve", "after"}, tr.entries())

	rec, err := s.GetInstance(t.Context(), started.InstanceID)
	require.NoError(t, err)
	assert.Equal(t, schema.InstanceStatusCompleted, rec.Status)
}

func TestRuntime_ResumeStimulusFansOutByHash(t *testing.T) {
	tr := &trace{}
	rt, _, _ := newTestRuntime(t, waitingWorkflow(tr))
	for _, corr := range []string{"a", "b", "c"} {
		_, err := rt.Start(t.Context(), "approval", StartOptions{CorrelationID: corr})
		require.NoError(t, err)
	}

	n, err := rt.ResumeStimulus(t.Context(), Stimulus{
		ActivityTypeName: waitType,
		Payload:          map[string]any{"name": "approved"},
		CorrelationID:    "b",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = rt.ResumeStimulus(t.Context(), Stimulus{
		ActivityTypeName: waitType,
		Payload:          schema.EventPayload{Name: "approved"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = rt.ResumeStimulus(t.Context(), Stimulus{ActivityTypeName: waitType, Payload: map[string]any{"name": "approved"}})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRuntime_ResumeValidation(t *testing.T) {
	rt, _, _ := newTestRuntime(t, waitingWorkflow(&trace{}))

	_, err := rt.Resume(t.Context(), ResumeRequest{BookmarkID: "b"})
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
	_, err = rt.Resume(t.Context(), ResumeRequest{InstanceID: "i"})
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
	_, err = rt.Resume(t.Context(), ResumeRequest{InstanceID: "missing", BookmarkID: "b"})
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}

func TestRuntime_Cancel(t *testing.T) {
	tr := &trace{}
	rt, s, obs := newTestRuntime(t, waitingWorkflow(tr))
	started, err := rt.Start(t.Context(), "approval", StartOptions{})
	require.NoError(t, err)

	snap, err := rt.Cancel(t.Context(), started.InstanceID)
	require.NoError(t, err)
	assert.Equal(t, schema.InstanceStatusCancelled, snap.Status)
	assert.Empty(t, snap.Bookmarks)

	rows, err := s.FindBookmarks(t.Context(), store.BookmarkFilter{InstanceID: started.InstanceID})
	require.NoError(t, err)
	assert.Empty(t, rows)
	changes := obs.all()
	assert.Len(t, changes[len(changes)-1].Removed, 1)

	_, err = rt.Cancel(t.Context(), started.InstanceID)
	assert.True(t, schema.IsCode(err, schema.ErrCodeConflict))
}

func TestRuntime_FaultedInstancePersistsFault(t *testing.T) {
	rt, s, _ := newTestRuntime(t, newWorkflow("broken", newSeq("root", newFailer("boom"))))

	snap, err := rt.Start(t.Context(), "broken", StartOptions{})
	require.NoError(t, err)
	assert.Equal(t, schema.InstanceStatusFaulted, snap.Status)

	rec, err := s.GetInstance(t.Context(), snap.InstanceID)
	require.NoError(t, err)
	assert.Contains(t, string(rec.Fault), "boom")
	require.NotNil(t, rec.CompletedAt)
}

func TestRuntime_Registry(t *testing.T) {
	rt, _, _ := newTestRuntime(t, waitingWorkflow(&trace{}))

	_, err := rt.Start(t.Context(), "nope", StartOptions{})
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))

	err = rt.Register(&Workflow{ID: "bad"})
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	require.NoError(t, rt.Register(newWorkflow("another", newSeq("r"))))
	ids := []string{}
	for _, wf := range rt.Workflows() {
		ids = append(ids, wf.ID)
	}
	assert.Equal(t, []string{"another", "approval"}, ids)
}

func TestRuntime_InstanceReadsSnapshot(t *testing.T) {
	rt, _, _ := newTestRuntime(t, waitingWorkflow(&trace{}))
	started, err := rt.Start(t.Context(), "approval", StartOptions{Input: map[string]any{"amount": 10}})
	require.NoError(t, err)

	snap, err := rt.Instance(t.Context(), started.InstanceID)
	require.NoError(t, err)
	assert.Equal(t, started.InstanceID, snap.InstanceID)
	assert.EqualValues(t, 10, snap.Input["amount"])

	_, err = rt.Instance(t.Context(), "missing")
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}

func TestDiffBookmarks(t *testing.T) {
	a := []Bookmark{{ID: "1", Hash: "h1"}, {ID: "2", Hash: "h2"}}
	b := []Bookmark{{ID: "2", Hash: "h2"}, {ID: "3", Hash: "h3"}}
	assert.Equal(t, []Bookmark{{ID: "1", Hash: "h1"}}, diffBookmarks(a, b))
	assert.Equal(t, []Bookmark{{ID: "3", Hash: "h3"}}, diffBookmarks(b, a))
	assert.Empty(t, diffBookmarks(a, a))
}
