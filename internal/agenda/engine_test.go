package agenda

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Makepad-fr/agenda/internal/model"
	"github.com/Makepad-fr/agenda/internal/remote"
	"github.com/Makepad-fr/agenda/internal/store"
)

var errBackend = errors.New("backend unavailable")

// fakeEvents is an in-memory EventSource.
type fakeEvents struct {
	mu      sync.Mutex
	events  []remote.Event
	nextID  int
	deleted []int

	ListErr   error
	CreateErr error
	DeleteErr error
	// When set, calls block until the channel yields.
	listGate   chan struct{}
	createGate chan struct{}
}

func newFakeEvents(evs ...remote.Event) *fakeEvents {
	f := &fakeEvents{nextID: 100}
	f.events = append(f.events, evs...)
	return f
}

func (f *fakeEvents) Events(ctx context.Context) ([]remote.Event, error) {
	f.mu.Lock()
	out := append([]remote.Event(nil), f.events...)
	err := f.ListErr
	gate := f.listGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (f *fakeEvents) CreateEvent(ctx context.Context, in remote.NewEvent) (remote.Event, error) {
	if f.createGate != nil {
		<-f.createGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return remote.Event{}, f.CreateErr
	}
	f.nextID++
	ev := remote.Event{ID: f.nextID, Title: in.Title, Date: in.Date, Description: in.Description}
	f.events = append(f.events, ev)
	return ev, nil
}

func (f *fakeEvents) DeleteEvent(ctx context.Context, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	f.deleted = append(f.deleted, id)
	for i, ev := range f.events {
		if ev.ID == id {
			f.events = append(f.events[:i], f.events[i+1:]...)
			break
		}
	}
	return nil
}

// flakyStore fails reads or writes of chosen keys.
type flakyStore struct {
	*store.Memory
	getErr map[string]error
	setErr map[string]error
}

func newFlakyStore() *flakyStore {
	return &flakyStore{Memory: store.NewMemory(), getErr: map[string]error{}, setErr: map[string]error{}}
}

func (f *flakyStore) Get(key string) ([]byte, bool, error) {
	if err := f.getErr[key]; err != nil {
		return nil, false, err
	}
	return f.Memory.Get(key)
}

func (f *flakyStore) Set(key string, value []byte) error {
	if err := f.setErr[key]; err != nil {
		return err
	}
	return f.Memory.Set(key, value)
}

var fixedNow = time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, s store.Store, src EventSource) *Engine {
	t.Helper()
	e, err := New(Options{Store: s, Events: src, Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	return e
}

func storedTasks(t *testing.T, s store.Store) []model.Item {
	t.Helper()
	raw, ok, err := s.Get(TasksKey)
	require.NoError(t, err)
	require.True(t, ok)
	var items []model.Item
	require.NoError(t, json.Unmarshal(raw, &items))
	return items
}

func TestEmptyStorageWithOneRemoteEvent(t *testing.T) {
	src := newFakeEvents(remote.Event{ID: 5, Title: "Exam", Date: "2025-01-01", Description: "Midterm"})
	e := newTestEngine(t, store.NewMemory(), src)

	require.NoError(t, e.LoadTasks())
	require.NoError(t, e.LoadEvents(t.Context()))

	assert.Equal(t, model.FilterAll, e.Filter())
	assert.Equal(t, []model.Item{
		{Kind: model.KindEvent, ID: 5, Name: "Exam - 2025-01-01 - Midterm", Completed: false},
	}, e.Items())
}

func TestStoredTaskFilters(t *testing.T) {
	mem := store.NewMemory()
	require.NoError(t, mem.Set(TasksKey, []byte(`[{"id":1,"name":"Buy milk","state":false,"type":"task"}]`)))
	e := newTestEngine(t, mem, newFakeEvents())
	require.NoError(t, e.LoadTasks())
	require.NoError(t, e.LoadEvents(t.Context()))

	want := model.Item{ID: 1, Name: "Buy milk", Kind: model.KindTask}
	e.SetFilter(model.FilterPending)
	assert.Equal(t, []model.Item{want}, e.Items())
	done, pending := e.Stats()
	assert.Equal(t, [2]int{0, 1}, [2]int{done, pending})
	e.SetFilter(model.FilterCompleted)
	assert.Empty(t, e.Items())
}

func TestToggleTaskIsPersisted(t *testing.T) {
	mem := store.NewMemory()
	require.NoError(t, mem.Set(TasksKey, []byte(`[{"id":1,"name":"Buy milk","state":false,"type":"task"}]`)))
	e := newTestEngine(t, mem, newFakeEvents())
	require.NoError(t, e.LoadTasks())

	it, err := e.ToggleCompletion(model.Ref{Kind: model.KindTask, ID: 1})
	require.NoError(t, err)
	assert.True(t, it.Completed)
	assert.True(t, storedTasks(t, mem)[0].Completed, "write must land before ToggleCompletion returns")

	reloaded := newTestEngine(t, mem, newFakeEvents())
	require.NoError(t, reloaded.LoadTasks())
	reloaded.SetFilter(model.FilterCompleted)
	require.Len(t, reloaded.Items(), 1)
	assert.True(t, reloaded.Items()[0].Completed)
}

func TestToggleEventIsViewOnly(t *testing.T) {
	mem := store.NewMemory()
	src := newFakeEvents(remote.Event{ID: 5, Title: "Exam"})
	e := newTestEngine(t, mem, src)
	require.NoError(t, e.LoadEvents(t.Context()))

	it, err := e.ToggleCompletion(model.Ref{Kind: model.KindEvent, ID: 5})
	require.NoError(t, err)
	assert.True(t, it.Completed)
	assert.Empty(t, mem.Keys(), "event completion is never persisted")

	require.NoError(t, e.LoadEvents(t.Context()))
	assert.False(t, e.Items()[0].Completed, "reload resets view-only completion")
}

func TestDeleteEventFailureKeepsEvent(t *testing.T) {
	src := newFakeEvents(remote.Event{ID: 5, Title: "Exam", Date: "2025-01-01", Description: "Midterm"})
	e := newTestEngine(t, store.NewMemory(), src)
	require.NoError(t, e.LoadEvents(t.Context()))
	before := e.Items()

	src.DeleteErr = errBackend
	err := e.DeleteItem(t.Context(), 5)
	assert.ErrorIs(t, err, errBackend)
	assert.Equal(t, before, e.Items())

	src.DeleteErr = nil
	require.NoError(t, e.DeleteItem(t.Context(), 5))
	assert.Empty(t, e.Items())
	assert.Equal(t, []int{5}, src.deleted)
}

func TestDeleteItemPrefersTaskOnIDCollision(t *testing.T) {
	mem := store.NewMemory()
	src := newFakeEvents(remote.Event{ID: 1, Title: "Exam"})
	e := newTestEngine(t, mem, src)
	_, err := e.AddTask("Read", fixedNow, model.PriorityLow)
	require.NoError(t, err)
	require.NoError(t, e.LoadEvents(t.Context()))

	require.NoError(t, e.DeleteItem(t.Context(), 1))
	assert.Empty(t, src.deleted, "a task with the id exists, so no remote call")
	assert.Equal(t, []model.Item{{ID: 1, Name: "Exam -  - ", Kind: model.KindEvent}}, e.Items())
	assert.Empty(t, storedTasks(t, mem))

	require.NoError(t, e.Delete(t.Context(), model.Ref{Kind: model.KindEvent, ID: 1}))
	assert.Equal(t, []int{1}, src.deleted)
	assert.Empty(t, e.Items())
}

func TestAddTaskIDsAreMonotonic(t *testing.T) {
	mem := store.NewMemory()
	e := newTestEngine(t, mem, newFakeEvents())
	require.NoError(t, e.LoadTasks())

	var ids []int
	for _, name := range []string{"a", "b", "c"} {
		it, err := e.AddTask(name, fixedNow, model.PriorityMedium)
		require.NoError(t, err)
		ids = append(ids, it.ID)
	}
	assert.Equal(t, []int{1, 2, 3}, ids)

	// Deleting the last task must not let its id be handed out again.
	require.NoError(t, e.Delete(t.Context(), model.Ref{Kind: model.KindTask, ID: 3}))
	require.NoError(t, e.Delete(t.Context(), model.Ref{Kind: model.KindTask, ID: 1}))
	assert.Equal(t, []int{2}, idsOf(storedTasks(t, mem)), "remaining ids are not renumbered")

	reloaded := newTestEngine(t, mem, newFakeEvents())
	require.NoError(t, reloaded.LoadTasks())
	it, err := reloaded.AddTask("d", fixedNow, model.PriorityHigh)
	require.NoError(t, err)
	assert.Equal(t, 4, it.ID)
	assert.Equal(t, "d - 2025-01-01 08:00 (Priority: High)", it.Name)
}

func TestCounterNeverBelowHighestID(t *testing.T) {
	mem := store.NewMemory()
	require.NoError(t, mem.Set(TasksKey, []byte(`[{"id":7,"name":"x","state":true,"type":"task"}]`)))
	require.NoError(t, mem.Set(TasksCounterKey, []byte("2")))
	e := newTestEngine(t, mem, newFakeEvents())
	require.NoError(t, e.LoadTasks())

	it, err := e.AddTask("y", fixedNow, model.PriorityLow)
	require.NoError(t, err)
	assert.Equal(t, 8, it.ID)
}

func TestTaskRoundTrip(t *testing.T) {
	mem := store.NewMemory()
	want := []model.Item{
		{ID: 3, Name: "c", Completed: true, Kind: model.KindTask},
		{ID: 1, Name: "a", Kind: model.KindTask},
		{ID: 9, Name: "b", Kind: model.KindTask},
	}
	require.NoError(t, writeTasks(mem, want))

	e := newTestEngine(t, mem, newFakeEvents())
	require.NoError(t, e.LoadTasks())
	assert.ElementsMatch(t, want, e.Snapshot().Tasks)
}

func TestMalformedTasksAreKeptAside(t *testing.T) {
	mem := store.NewMemory()
	require.NoError(t, mem.Set(TasksKey, []byte(`[{"id":1,"name":`)))
	e := newTestEngine(t, mem, newFakeEvents())

	err := e.LoadTasks()
	var sre *StorageReadError
	require.ErrorAs(t, err, &sre)
	assert.Equal(t, TasksCorruptKey, sre.Backup)
	assert.Empty(t, e.Items())

	backup, ok, gerr := mem.Get(TasksCorruptKey)
	require.NoError(t, gerr)
	require.True(t, ok)
	assert.Equal(t, `[{"id":1,"name":`, string(backup))
}

func TestFailingStoreDoesNotOverwriteTasks(t *testing.T) {
	fs := newFlakyStore()
	orig := []model.Item{
		{ID: 1, Name: "Buy milk", Kind: model.KindTask},
		{ID: 2, Name: "Call mom", Kind: model.KindTask},
	}
	require.NoError(t, writeTasks(fs, orig))
	fs.getErr[TasksKey] = errBackend
	e := newTestEngine(t, fs, newFakeEvents())

	err := e.LoadTasks()
	require.ErrorIs(t, err, errBackend)
	var sre *StorageReadError
	assert.False(t, errors.As(err, &sre))

	_, err = e.AddTask("new", fixedNow, model.PriorityLow)
	require.ErrorIs(t, err, ErrTasksReadOnly)
	_, ok, _ := fs.Memory.Get(TasksCorruptKey)
	assert.False(t, ok)
	assert.Equal(t, orig, storedTasks(t, fs.Memory))

	delete(fs.getErr, TasksKey)
	require.NoError(t, e.LoadTasks())
	it, err := e.AddTask("new", fixedNow, model.PriorityLow)
	require.NoError(t, err)
	assert.Equal(t, 3, it.ID)
	assert.Len(t, storedTasks(t, fs), 3)
}

func TestMalformedTasksWithoutBackupAreReadOnly(t *testing.T) {
	fs := newFlakyStore()
	require.NoError(t, fs.Set(TasksKey, []byte("{not json")))
	fs.setErr[TasksCorruptKey] = errBackend
	e := newTestEngine(t, fs, newFakeEvents())

	var sre *StorageReadError
	require.ErrorAs(t, e.LoadTasks(), &sre)
	assert.Empty(t, sre.Backup)

	_, err := e.AddTask("new", fixedNow, model.PriorityLow)
	require.ErrorIs(t, err, ErrTasksReadOnly)
	raw, _, _ := fs.Get(TasksKey)
	assert.Equal(t, "{not json", string(raw))
}

func TestLoadEventsFailureKeepsPreviousEvents(t *testing.T) {
	src := newFakeEvents(remote.Event{ID: 5, Title: "Exam"})
	e := newTestEngine(t, store.NewMemory(), src)
	require.NoError(t, e.LoadEvents(t.Context()))

	src.ListErr = errBackend
	assert.ErrorIs(t, e.LoadEvents(t.Context()), errBackend)
	assert.Len(t, e.Items(), 1)
}

func TestAddEventOnlyAfterSuccess(t *testing.T) {
	src := newFakeEvents()
	e := newTestEngine(t, store.NewMemory(), src)

	src.CreateErr = errBackend
	_, err := e.AddEvent(t.Context(), "Exam", fixedNow, "Midterm")
	assert.ErrorIs(t, err, errBackend)
	assert.Empty(t, e.Items())

	src.CreateErr = nil
	it, err := e.AddEvent(t.Context(), "Exam", fixedNow, "Midterm")
	require.NoError(t, err)
	assert.Equal(t, "Exam - 2025-01-01 08:00 - Midterm", it.Name)
	assert.Equal(t, []model.Item{it}, e.Items())

	_, err = e.AddEvent(t.Context(), "Exam", fixedNow, " ")
	assert.Error(t, err)
}

func TestResultsAfterCloseOrCancelAreDropped(t *testing.T) {
	src := newFakeEvents(remote.Event{ID: 5, Title: "Exam"})
	e := newTestEngine(t, store.NewMemory(), src)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	assert.ErrorIs(t, e.LoadEvents(ctx), context.Canceled)
	assert.Empty(t, e.Items())

	e.Close()
	assert.ErrorIs(t, e.LoadEvents(t.Context()), ErrClosed)
	_, err := e.AddEvent(t.Context(), "Lab", fixedNow, "Room 2")
	assert.ErrorIs(t, err, ErrClosed)
	assert.Empty(t, e.Items())
}

func TestConcurrentAddEventsAreAllKept(t *testing.T) {
	src := newFakeEvents()
	e := newTestEngine(t, store.NewMemory(), src)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.AddEvent(context.Background(), "Exam", fixedNow, "Midterm")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Len(t, e.Items(), 20)
}

func TestAddDuringLoadIsNotLost(t *testing.T) {
	src := newFakeEvents(remote.Event{ID: 5, Title: "Exam"})
	gate := make(chan struct{})
	src.listGate = gate
	e := newTestEngine(t, store.NewMemory(), src)

	loaded := make(chan error, 1)
	go func() { loaded <- e.LoadEvents(context.Background()) }()

	require.Eventually(t, func() bool {
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.loading == 1
	}, time.Second, time.Millisecond)

	added, err := e.AddEvent(context.Background(), "Lab", fixedNow, "Room 2")
	require.NoError(t, err)

	close(gate)
	require.NoError(t, <-loaded)
	assert.ElementsMatch(t, []int{5, added.ID}, idsOf(e.Items()))
}

func idsOf(items []model.Item) []int {
	out := make([]int, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}
