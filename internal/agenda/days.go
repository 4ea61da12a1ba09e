package agenda

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/Makepad-fr/agenda/internal/model"
	"github.com/Makepad-fr/agenda/internal/remote"
)

// Day holds the items that fall on one calendar day. A zero Date collects
// the items whose date could not be read.
type Day struct {
	Date  time.Time
	Items []model.Item
}

var eventDateLayouts = []string{
	DateLayout,
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

// ParseEventDate reads the date of a remote event. A bare day is all-day.
// Times without an offset are taken in loc.
func ParseEventDate(s string, loc *time.Location) (t time.Time, allDay bool, err error) {
	s = strings.TrimSpace(s)
	if t, err := time.ParseInLocation("2006-01-02", s, loc); err == nil {
		return t, true, nil
	}
	for _, layout := range eventDateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, false, nil
		}
	}
	return time.Time{}, false, fmt.Errorf("unrecognised date %q", s)
}

// TaskDate reads back the timestamp TaskName wrote into a task name.
func TaskDate(name string, loc *time.Location) (time.Time, bool) {
	i := strings.LastIndex(name, " - ")
	if i < 0 {
		return time.Time{}, false
	}
	rest := name[i+len(" - "):]
	if len(rest) < len(DateLayout) {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(DateLayout, rest[:len(DateLayout)], loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Days groups the filtered view by calendar day in loc, earliest first.
func (e *Engine) Days(loc *time.Location) []Day {
	e.mu.Lock()
	defer e.mu.Unlock()
	return GroupByDay(e.view, e.records, loc)
}

// GroupByDay buckets items by the day they fall on, ordered by time.
// Items without a readable date come last, in their original order.
func GroupByDay(items []model.Item, records map[int]remote.Event, loc *time.Location) []Day {
	type dated struct {
		at time.Time
		it model.Item
	}
	var (
		ds      []dated
		undated []model.Item
	)
	for _, it := range items {
		at, ok := itemDate(it, records, loc)
		if !ok {
			undated = append(undated, it)
			continue
		}
		ds = append(ds, dated{at: at.In(loc), it: it})
	}
	slices.SortStableFunc(ds, func(a, b dated) int { return a.at.Compare(b.at) })

	var days []Day
	for _, d := range ds {
		day := time.Date(d.at.Year(), d.at.Month(), d.at.Day(), 0, 0, 0, 0, loc)
		if n := len(days); n == 0 || !days[n-1].Date.Equal(day) {
			days = append(days, Day{Date: day})
		}
		days[len(days)-1].Items = append(days[len(days)-1].Items, d.it)
	}
	if len(undated) > 0 {
		days = append(days, Day{Items: undated})
	}
	return days
}

func itemDate(it model.Item, records map[int]remote.Event, loc *time.Location) (time.Time, bool) {
	switch it.Kind {
	case model.KindEvent:
		rec, ok := records[it.ID]
		if !ok {
			return time.Time{}, false
		}
		t, _, err := ParseEventDate(rec.Date, loc)
		return t, err == nil
	case model.KindTask:
		return TaskDate(it.Name, loc)
	}
	return time.Time{}, false
}
