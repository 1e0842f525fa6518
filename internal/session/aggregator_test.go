package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muurk/proxiscan/internal/device"
	"github.com/muurk/proxiscan/internal/scanerr"
)

// memStore is an in-memory Store.
type memStore struct {
	mu       sync.Mutex
	sessions map[string]ScanSession
	saves    int
	failWith error
	closed   bool
}

func newMemStore() *memStore {
	return &memStore{sessions: make(map[string]ScanSession)}
}

func (m *memStore) Save(_ context.Context, s ScanSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.failWith != nil {
		return m.failWith
	}
	m.sessions[s.ID] = s.Clone()
	return nil
}

func (m *memStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	if _, ok := m.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(m.sessions, id)
	return nil
}

func (m *memStore) LoadAll(context.Context) ([]ScanSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ScanSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Clone())
	}
	SortNewestFirst(out)
	return out, nil
}

func (m *memStore) ClearAll(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	m.sessions = make(map[string]ScanSession)
	return nil
}

func (m *memStore) Close() error {
	m.closed = true
	return nil
}

type fixedCapturer struct {
	cp Capture
	ok bool
}

func (f fixedCapturer) Capture() (Capture, bool) { return f.cp, f.ok }

var start = time.Date(2026, 2, 5, 10, 0, 0, 0, time.UTC)

func radioCapture(runID string, ids ...string) Capture {
	cp := Capture{
		RunID:     runID,
		Channel:   "radio",
		StartTime: start,
		EndTime:   start.Add(15 * time.Second),
		Duration:  15 * time.Second,
	}
	for _, id := range ids {
		cp.Radio = append(cp.Radio, device.RadioDevice{PeripheralID: id, Services: []string{"180F"}})
	}
	return cp
}

func TestAggregator_EmptyRunSavesNothing(t *testing.T) {
	store := newMemStore()
	agg := NewAggregator(store)

	s, err := agg.FinalizeCapture(context.Background(), radioCapture("run-1"))

	require.NoError(t, err)
	assert.Nil(t, s)
	assert.Zero(t, store.saves)
	_, ok := agg.LastSaved()
	assert.False(t, ok)
}

func TestAggregator_NoStoppedRun(t *testing.T) {
	store := newMemStore()
	agg := NewAggregator(store)

	s, err := agg.Finalize(context.Background(), fixedCapturer{})
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestAggregator_FinalizeTwiceSavesOnce(t *testing.T) {
	store := newMemStore()
	agg := NewAggregator(store)
	c := fixedCapturer{cp: radioCapture("run-1", "A", "B"), ok: true}

	first, err := agg.Finalize(context.Background(), c)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := agg.Finalize(context.Background(), c)
	require.NoError(t, err)
	require.NotNil(t, second)

	assert.Equal(t, 1, store.saves)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, TypeRadio, first.Type)
	assert.Equal(t, 15*time.Second, first.Duration)
	assert.Len(t, first.RadioDevices, 2)
}

func TestAggregator_ConcurrentFinalizeSavesOnce(t *testing.T) {
	store := newMemStore()
	agg := NewAggregator(store)
	cp := radioCapture("run-1", "A")

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = agg.FinalizeCapture(context.Background(), cp)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, store.saves)
}

func TestAggregator_SessionCopiesDevices(t *testing.T) {
	store := newMemStore()
	agg := NewAggregator(store)
	cp := radioCapture("run-1", "A")

	s, err := agg.FinalizeCapture(context.Background(), cp)
	require.NoError(t, err)

	cp.Radio[0].Services[0] = "mutated"
	assert.Equal(t, "180F", s.RadioDevices[0].Services[0])
	assert.Equal(t, "180F", store.sessions[s.ID].RadioDevices[0].Services[0])
}

func TestAggregator_DistinctRunsSaveSeparately(t *testing.T) {
	store := newMemStore()
	agg := NewAggregator(store)

	a, err := agg.FinalizeCapture(context.Background(), radioCapture("run-1", "A"))
	require.NoError(t, err)
	b, err := agg.FinalizeCapture(context.Background(), radioCapture("run-2", "A"))
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 2, store.saves)

	last, ok := agg.LastSaved()
	require.True(t, ok)
	assert.Equal(t, b.ID, last.ID)

	agg.ClearLastSaved()
	_, ok = agg.LastSaved()
	assert.False(t, ok)
}

func TestAggregator_ForgetsOldRuns(t *testing.T) {
	store := newMemStore()
	agg := NewAggregator(store)
	ctx := context.Background()

	first, err := agg.FinalizeCapture(ctx, radioCapture("run-0", "A"))
	require.NoError(t, err)
	var last *ScanSession
	for i := 1; i <= rememberedRuns+8; i++ {
		last, err = agg.FinalizeCapture(ctx, radioCapture(fmt.Sprintf("run-%d", i), "A"))
		require.NoError(t, err)
	}

	agg.mu.Lock()
	assert.Len(t, agg.runs, rememberedRuns)
	assert.Len(t, agg.order, rememberedRuns)
	_, kept := agg.runs["run-0"]
	agg.mu.Unlock()
	assert.False(t, kept)

	// The latest run is still deduplicated.
	again, err := agg.FinalizeCapture(ctx, radioCapture(fmt.Sprintf("run-%d", rememberedRuns+8), "A"))
	require.NoError(t, err)
	assert.Equal(t, last.ID, again.ID)
	assert.Equal(t, rememberedRuns+9, store.saves)
	assert.NotEqual(t, first.ID, again.ID)
}

func TestAggregator_SaveFailureIsSurfacedNotRetried(t *testing.T) {
	store := newMemStore()
	store.failWith = errors.New("disk full")
	agg := NewAggregator(store)
	cp := radioCapture("run-1", "A")

	s, err := agg.FinalizeCapture(context.Background(), cp)
	assert.Nil(t, s)
	assert.ErrorIs(t, err, scanerr.ErrPersistenceFailed)

	s, err = agg.FinalizeCapture(context.Background(), cp)
	assert.Nil(t, s)
	assert.ErrorIs(t, err, scanerr.ErrPersistenceFailed)
	assert.Equal(t, 1, store.saves)
}

func TestAggregator_FinalizeCombined(t *testing.T) {
	store := newMemStore()
	agg := NewAggregator(store)

	radio := radioCapture("r-1", "A")
	network := Capture{
		RunID:     "n-1",
		Channel:   "network",
		StartTime: start.Add(-time.Second),
		EndTime:   start.Add(20 * time.Second),
		Network:   []device.NetworkDevice{{IPAddress: "10.0.0.2"}},
	}

	s, err := agg.FinalizeCombined(context.Background(), radio, network)
	require.NoError(t, err)
	require.NotNil(t, s)

	assert.Equal(t, TypeCombined, s.Type)
	assert.Equal(t, start.Add(-time.Second), s.StartTime)
	assert.Equal(t, start.Add(20*time.Second), s.EndTime)
	assert.Equal(t, 21*time.Second, s.Duration)
	assert.Equal(t, 2, s.TotalDevices())

	again, err := agg.FinalizeCombined(context.Background(), radio, network)
	require.NoError(t, err)
	assert.Equal(t, s.ID, again.ID)
	assert.Equal(t, 1, store.saves)
}

// notifier is a StopNotifier driven by the test.
type notifier struct {
	hooks []func(Capture)
}

func (n *notifier) OnStopped(fn func(Capture)) { n.hooks = append(n.hooks, fn) }

func (n *notifier) stop(cp Capture) {
	for _, h := range n.hooks {
		h(cp)
	}
}

func TestRecorder_FinalizesEveryStopOnce(t *testing.T) {
	store := newMemStore()
	rec := NewRecorder(context.Background(), NewAggregator(store))
	n := &notifier{}

	var results []Result
	rec.Watch(n, func(r Result) { results = append(results, r) })

	n.stop(radioCapture("run-1", "A"))
	n.stop(radioCapture("run-1", "A"))
	n.stop(radioCapture("run-2"))

	require.Len(t, results, 3)
	assert.NotNil(t, results[0].Session)
	assert.Equal(t, results[0].Session.ID, results[1].Session.ID)
	assert.Nil(t, results[2].Session, "empty run saves nothing")
	assert.Equal(t, 1, store.saves)
}
