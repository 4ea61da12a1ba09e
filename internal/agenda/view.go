package agenda

import (
	"fmt"
	"strings"
	"time"

	"github.com/Makepad-fr/agenda/internal/model"
	"github.com/Makepad-fr/agenda/internal/remote"
)

// DateLayout is how task timestamps are written into their names and
// how new event dates are sent to the server.
const DateLayout = "2006-01-02 15:04"

// ParseWhen reads a user supplied timestamp in DateLayout or a bare
// YYYY-MM-DD day, in now's location. Blank means now.
func ParseWhen(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return now, nil
	}
	if t, err := time.ParseInLocation(DateLayout, s, now.Location()); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", s, now.Location()); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("date %q: want YYYY-MM-DD HH:MM", s)
}

// RecomputeView merges tasks then events and keeps the items matching f.
// It does not modify its inputs.
func RecomputeView(tasks, events []model.Item, f model.Filter) []model.Item {
	out := make([]model.Item, 0, len(tasks)+len(events))
	for _, src := range [][]model.Item{tasks, events} {
		for _, it := range src {
			if f.Match(it) {
				out = append(out, it)
			}
		}
	}
	return out
}

// EventItem maps a remote record to its agenda row. Completion is not
// stored server side, so events always start pending.
func EventItem(ev remote.Event) model.Item {
	return model.Item{
		ID:        ev.ID,
		Name:      fmt.Sprintf("%s - %s - %s", ev.Title, ev.Date, ev.Description),
		Completed: false,
		Kind:      model.KindEvent,
	}
}

// TaskName is the display name stored for a new task.
func TaskName(name string, when time.Time, p model.Priority) string {
	return fmt.Sprintf("%s - %s (Priority: %s)", name, when.Format(DateLayout), p.Label())
}

// Stats counts completed and pending items.
func Stats(items []model.Item) (done, pending int) {
	for _, it := range items {
		if it.Completed {
			done++
		} else {
			pending++
		}
	}
	return
}
