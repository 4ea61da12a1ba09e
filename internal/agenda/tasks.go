package agenda

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/Makepad-fr/agenda/internal/model"
	"github.com/Makepad-fr/agenda/internal/store"
)

// Keys used in the local store.
const (
	TasksKey        = "tasks"
	TasksCounterKey = "tasks.next_id"
	TasksCorruptKey = "tasks.corrupt"
)

// readTasks loads the task list and the id counter. A missing key is an
// empty list. Unparseable data is copied to TasksCorruptKey and reported
// as a *StorageReadError next to an empty list. A failing store is a
// plain error and no list.
func readTasks(s store.Store, log *zap.Logger) (tasks []model.Item, next int, err error) {
	raw, ok, gerr := s.Get(TasksKey)
	if gerr != nil {
		return nil, 0, fmt.Errorf("read %q: %w", TasksKey, gerr)
	}
	if ok && len(strings.TrimSpace(string(raw))) > 0 {
		var items []model.Item
		if jerr := json.Unmarshal(raw, &items); jerr != nil {
			sre := &StorageReadError{Key: TasksKey, Backup: TasksCorruptKey, Err: jerr}
			if berr := s.Set(TasksCorruptKey, raw); berr != nil {
				log.Error("backup of unreadable tasks failed", zap.Error(berr))
				sre.Backup = ""
			}
			log.Warn("stored tasks are unreadable; starting with an empty list",
				zap.Error(jerr), zap.String("backup_key", sre.Backup), zap.Int("bytes", len(raw)))
			return []model.Item{}, readCounter(s, log, 1), sre
		}
		tasks = items
	}
	if tasks == nil {
		tasks = []model.Item{}
	}

	maxID := 0
	for i := range tasks {
		tasks[i].Kind = model.KindTask
		if tasks[i].ID > maxID {
			maxID = tasks[i].ID
		}
	}
	return tasks, readCounter(s, log, maxID+1), nil
}

// readCounter never returns less than floor, so a counter lost or rolled
// back by hand cannot hand out an id that is still in use.
func readCounter(s store.Store, log *zap.Logger, floor int) int {
	raw, ok, err := s.Get(TasksCounterKey)
	if err != nil || !ok {
		return floor
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		log.Warn("ignoring unreadable task counter", zap.Error(err))
		return floor
	}
	return max(n, floor)
}

func writeTasks(s store.Store, tasks []model.Item) error {
	b, err := json.Marshal(tasks)
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}
	if err := s.Set(TasksKey, b); err != nil {
		return fmt.Errorf("save tasks: %w", err)
	}
	return nil
}

func writeCounter(s store.Store, next int) error {
	if err := s.Set(TasksCounterKey, []byte(strconv.Itoa(next))); err != nil {
		return fmt.Errorf("save task counter: %w", err)
	}
	return nil
}
