// Package agenda merges the locally stored tasks with the events held by
// the remote store into one filterable list.
package agenda

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/samber/mo"
	"go.uber.org/zap"

	"github.com/Makepad-fr/agenda/internal/model"
	"github.com/Makepad-fr/agenda/internal/remote"
	"github.com/Makepad-fr/agenda/internal/store"
)

// EventSource is the part of the remote client the agenda needs.
type EventSource interface {
	Events(ctx context.Context) ([]remote.Event, error)
	CreateEvent(ctx context.Context, ev remote.NewEvent) (remote.Event, error)
	DeleteEvent(ctx context.Context, id int) error
}

type Options struct {
	Store  store.Store
	Events EventSource
	Logger *zap.Logger
}

// Engine owns the task and event collections and the filtered view.
//
// It is safe for concurrent use. Remote calls run without holding the
// lock; their results are applied under it, one at a time. Results that
// arrive after Close, or after the caller's context is done, are dropped.
type Engine struct {
	store  store.Store
	remote EventSource
	log    *zap.Logger

	mu      sync.Mutex
	tasks   []model.Item
	nextID  int
	events  []model.Item
	records map[int]remote.Event
	filter  model.Filter
	view    []model.Item
	closed  bool

	// tasksErr is set while the stored list is neither loaded nor kept
	// aside; task writes are refused until a later load succeeds.
	tasksErr error

	// Event edits applied while a LoadEvents call is in flight are replayed
	// on top of its result so they are not lost.
	eventRev int
	loading  int
	journal  []eventEdit
}

type eventEdit struct {
	rev    int
	add    *remote.Event
	remove int
}

func New(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, errors.New("agenda: store is required")
	}
	if opts.Events == nil {
		return nil, errors.New("agenda: event source is required")
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		store:   opts.Store,
		remote:  opts.Events,
		log:     log.Named("agenda"),
		tasks:   []model.Item{},
		nextID:  1,
		events:  []model.Item{},
		records: make(map[int]remote.Event),
		view:    []model.Item{},
	}, nil
}

// Close ends the engine's lifetime. Pending remote results are dropped.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
}

// LoadTasks replaces the task list with what the store holds. Missing or
// unparseable data gives an empty list; the latter is logged and returned
// as a *StorageReadError for the caller to surface if it wants to. When
// the store itself fails the current list is kept and task edits return
// ErrTasksReadOnly until a load succeeds, so nothing overwrites the
// stored list. The same holds when unparseable data could not be backed up.
func (e *Engine) LoadTasks() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	tasks, next, err := readTasks(e.store, e.log)
	var sre *StorageReadError
	if err != nil && !errors.As(err, &sre) {
		e.tasksErr = err
		e.log.Error("tasks not loaded", zap.Error(err))
		return err
	}
	e.tasks, e.nextID = tasks, next
	e.tasksErr = nil
	if sre != nil && sre.Backup == "" {
		e.tasksErr = err
	}
	e.recomputeLocked()
	if err != nil {
		e.log.Warn("tasks not loaded", zap.Error(err))
		return err
	}
	e.log.Debug("tasks loaded", zap.Int("count", len(tasks)), zap.Int("next_id", next))
	return nil
}

// LoadEvents fetches the caller's events. On failure the current event
// list is kept.
func (e *Engine) LoadEvents(ctx context.Context) error {
	e.mu.Lock()
	startRev := e.eventRev
	e.loading++
	e.mu.Unlock()

	evs, err := e.remote.Events(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.loading--
	defer e.trimJournalLocked()
	if err != nil {
		e.log.Error("load events failed", zap.Error(err))
		return fmt.Errorf("load events: %w", err)
	}
	if err := e.acceptLocked(ctx); err != nil {
		return err
	}

	records := make(map[int]remote.Event, len(evs))
	items := make([]model.Item, 0, len(evs))
	for _, ev := range evs {
		records[ev.ID] = ev
		items = append(items, EventItem(ev))
	}
	e.events, e.records = items, records
	for _, ed := range e.journal {
		if ed.rev <= startRev {
			continue
		}
		if ed.add != nil {
			e.putEventLocked(*ed.add)
		} else {
			e.dropEventLocked(ed.remove)
		}
	}
	e.recomputeLocked()
	e.log.Debug("events loaded", zap.Int("count", len(items)))
	return nil
}

// SetFilter changes the active filter and recomputes the view.
func (e *Engine) SetFilter(f model.Filter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.filter = f
	e.recomputeLocked()
}

func (e *Engine) Filter() model.Filter {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.filter
}

// Items returns a copy of the filtered view.
func (e *Engine) Items() []model.Item {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.view)
}

// Stats counts completed and pending items in the filtered view.
func (e *Engine) Stats() (done, pending int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats(e.view)
}

// Snapshot is a copy of the unfiltered agenda.
type Snapshot struct {
	Tasks  []model.Item
	Events []model.Item
	// Records holds the remote event behind each event item, in the same order.
	Records []remote.Event
}

func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := Snapshot{
		Tasks:   slices.Clone(e.tasks),
		Events:  slices.Clone(e.events),
		Records: make([]remote.Event, 0, len(e.events)),
	}
	for _, it := range e.events {
		s.Records = append(s.Records, e.records[it.ID])
	}
	return s
}

// ToggleCompletion flips an item's completed flag. Tasks are persisted
// before it returns; if that fails the flip is undone. Events only change
// in this view: the server has no field for it and a reload resets it.
func (e *Engine) ToggleCompletion(ref model.Ref) (model.Item, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ref = e.resolveLocked(ref)

	switch ref.Kind {
	case model.KindTask:
		i, ok := e.taskIndexLocked(ref.ID).Get()
		if !ok {
			return model.Item{}, fmt.Errorf("task %d: %w", ref.ID, ErrNotFound)
		}
		if err := e.writableLocked(); err != nil {
			return model.Item{}, err
		}
		e.tasks[i].Completed = !e.tasks[i].Completed
		if err := writeTasks(e.store, e.tasks); err != nil {
			e.tasks[i].Completed = !e.tasks[i].Completed
			e.log.Error("persist toggle failed", zap.Int("task_id", ref.ID), zap.Error(err))
			return model.Item{}, err
		}
		e.recomputeLocked()
		return e.tasks[i], nil
	case model.KindEvent:
		i, ok := e.eventIndexLocked(ref.ID).Get()
		if !ok {
			return model.Item{}, fmt.Errorf("event %d: %w", ref.ID, ErrNotFound)
		}
		e.events[i].Completed = !e.events[i].Completed
		e.recomputeLocked()
		return e.events[i], nil
	}
	return model.Item{}, fmt.Errorf("%s: %w", ref, ErrNotFound)
}

// DeleteItem removes the task with that id if there is one. Otherwise it
// asks the server to delete the event with that id and drops it from the
// list once the server confirms. A failed delete leaves the event in
// place; there is no retry.
func (e *Engine) DeleteItem(ctx context.Context, id int) error {
	e.mu.Lock()
	if _, ok := e.taskIndexLocked(id).Get(); ok {
		defer e.mu.Unlock()
		return e.deleteTaskLocked(id)
	}
	e.mu.Unlock()
	return e.deleteEvent(ctx, id)
}

// Delete is DeleteItem with the kind spelled out, for ids that exist as
// both a task and an event.
func (e *Engine) Delete(ctx context.Context, ref model.Ref) error {
	switch ref.Kind {
	case model.KindTask:
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.deleteTaskLocked(ref.ID)
	case model.KindEvent:
		return e.deleteEvent(ctx, ref.ID)
	}
	return e.DeleteItem(ctx, ref.ID)
}

func (e *Engine) deleteTaskLocked(id int) error {
	i, ok := e.taskIndexLocked(id).Get()
	if !ok {
		return fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	if err := e.writableLocked(); err != nil {
		return err
	}
	removed := e.tasks[i]
	e.tasks = slices.Delete(e.tasks, i, i+1)
	if err := writeTasks(e.store, e.tasks); err != nil {
		e.tasks = slices.Insert(e.tasks, i, removed)
		e.log.Error("persist delete failed", zap.Int("task_id", id), zap.Error(err))
		return err
	}
	e.recomputeLocked()
	return nil
}

func (e *Engine) deleteEvent(ctx context.Context, id int) error {
	if err := e.remote.DeleteEvent(ctx, id); err != nil {
		e.log.Error("delete event failed", zap.Int("event_id", id), zap.Error(err))
		return fmt.Errorf("delete event %d: %w", id, err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.acceptLocked(ctx); err != nil {
		return err
	}
	e.dropEventLocked(id)
	e.recordLocked(eventEdit{remove: id})
	e.recomputeLocked()
	return nil
}

// AddTask appends a task with the next id from the counter and persists
// the whole list before returning.
func (e *Engine) AddTask(name string, when time.Time, p model.Priority) (model.Item, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Item{}, errors.New("task name is empty")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.writableLocked(); err != nil {
		return model.Item{}, err
	}

	it := model.Item{
		ID:   e.nextID,
		Name: TaskName(name, when, p),
		Kind: model.KindTask,
	}
	e.tasks = append(e.tasks, it)
	if err := writeTasks(e.store, e.tasks); err != nil {
		e.tasks = e.tasks[:len(e.tasks)-1]
		e.log.Error("persist new task failed", zap.Error(err))
		return model.Item{}, err
	}
	e.nextID++
	if err := writeCounter(e.store, e.nextID); err != nil {
		// The next load derives the counter from the highest id.
		e.log.Warn("task counter not saved", zap.Error(err))
	}
	e.recomputeLocked()
	return it, nil
}

// AddEvent creates the event on the server and adds it to the list only
// once the server has answered.
func (e *Engine) AddEvent(ctx context.Context, name string, when time.Time, description string) (model.Item, error) {
	name = strings.TrimSpace(name)
	description = strings.TrimSpace(description)
	if name == "" {
		return model.Item{}, errors.New("event name is empty")
	}
	if description == "" {
		return model.Item{}, errors.New("event description is empty")
	}
	created, err := e.remote.CreateEvent(ctx, remote.NewEvent{
		Title:       name,
		Date:        when.Format(DateLayout),
		Description: description,
	})
	if err != nil {
		e.log.Error("create event failed", zap.String("title", name), zap.Error(err))
		return model.Item{}, fmt.Errorf("create event: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.acceptLocked(ctx); err != nil {
		return model.Item{}, err
	}
	e.putEventLocked(created)
	e.recordLocked(eventEdit{add: &created})
	e.recomputeLocked()
	return EventItem(created), nil
}

// acceptLocked decides whether a remote result may still be applied.
func (e *Engine) acceptLocked(ctx context.Context) error {
	if e.closed {
		e.log.Debug("dropping remote result after close")
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		e.log.Debug("dropping remote result after cancel", zap.Error(err))
		return err
	}
	return nil
}

func (e *Engine) writableLocked() error {
	if e.tasksErr != nil {
		return fmt.Errorf("%w: %v", ErrTasksReadOnly, e.tasksErr)
	}
	return nil
}

func (e *Engine) putEventLocked(ev remote.Event) {
	e.records[ev.ID] = ev
	if i, ok := e.eventIndexLocked(ev.ID).Get(); ok {
		e.events[i] = EventItem(ev)
		return
	}
	e.events = append(e.events, EventItem(ev))
}

func (e *Engine) dropEventLocked(id int) {
	delete(e.records, id)
	e.events = slices.DeleteFunc(e.events, func(it model.Item) bool { return it.ID == id })
}

func (e *Engine) recordLocked(ed eventEdit) {
	e.eventRev++
	if e.loading == 0 {
		return
	}
	ed.rev = e.eventRev
	e.journal = append(e.journal, ed)
}

func (e *Engine) trimJournalLocked() {
	if e.loading == 0 {
		e.journal = nil
	}
}

// resolveLocked fills in the kind of a bare id: a task wins over an event.
func (e *Engine) resolveLocked(ref model.Ref) model.Ref {
	if ref.Kind != "" {
		return ref
	}
	if e.taskIndexLocked(ref.ID).IsPresent() {
		return model.Ref{Kind: model.KindTask, ID: ref.ID}
	}
	if e.eventIndexLocked(ref.ID).IsPresent() {
		return model.Ref{Kind: model.KindEvent, ID: ref.ID}
	}
	return ref
}

func (e *Engine) taskIndexLocked(id int) mo.Option[int] {
	return indexOf(e.tasks, id)
}

func (e *Engine) eventIndexLocked(id int) mo.Option[int] {
	return indexOf(e.events, id)
}

func indexOf(items []model.Item, id int) mo.Option[int] {
	if i := slices.IndexFunc(items, func(it model.Item) bool { return it.ID == id }); i >= 0 {
		return mo.Some(i)
	}
	return mo.None[int]()
}

func (e *Engine) recomputeLocked() {
	e.view = RecomputeView(e.tasks, e.events, e.filter)
}
