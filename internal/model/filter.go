package model

import (
	"fmt"
	"strings"
)

// Filter is the predicate applied to the merged agenda.
type Filter int

const (
	FilterAll Filter = iota
	FilterCompleted
	FilterPending
)

// Filters lists every filter in display order.
var Filters = []Filter{FilterAll, FilterCompleted, FilterPending}

func (f Filter) String() string {
	switch f {
	case FilterCompleted:
		return "completed"
	case FilterPending:
		return "pending"
	default:
		return "all"
	}
}

// Title is the heading shown above a filtered list.
func (f Filter) Title() string {
	switch f {
	case FilterCompleted:
		return "Completed"
	case FilterPending:
		return "Pending"
	default:
		return "All"
	}
}

// Match reports whether it belongs in the filtered view.
func (f Filter) Match(it Item) bool {
	switch f {
	case FilterCompleted:
		return it.Completed
	case FilterPending:
		return !it.Completed
	default:
		return true
	}
}

// Next cycles all -> completed -> pending -> all.
func (f Filter) Next() Filter { return Filters[(int(f)+1)%len(Filters)] }

func ParseFilter(s string) (Filter, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return FilterAll, nil
	case "completed", "done":
		return FilterCompleted, nil
	case "pending", "todo":
		return FilterPending, nil
	}
	return FilterAll, fmt.Errorf("unknown filter %q (want all, completed or pending)", s)
}

// Priority is attached to a task's display name when it is created.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high", "alta", "h":
		return PriorityHigh, nil
	case "medium", "media", "m", "":
		return PriorityMedium, nil
	case "low", "baja", "l":
		return PriorityLow, nil
	}
	return "", fmt.Errorf("unknown priority %q (want high, medium or low)", s)
}

func (p Priority) Label() string {
	switch p {
	case PriorityHigh:
		return "High"
	case PriorityLow:
		return "Low"
	default:
		return "Medium"
	}
}
