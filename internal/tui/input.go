package tui

import (
	"errors"
	"strings"
	"time"

	"github.com/Makepad-fr/agenda/internal/agenda"
	"github.com/Makepad-fr/agenda/internal/model"
)

// taskInput is "name | YYYY-MM-DD HH:MM | priority"; date and priority
// are optional.
type taskInput struct {
	name     string
	when     time.Time
	priority model.Priority
}

// eventInput is "title | YYYY-MM-DD HH:MM | description"; the date is
// optional, the description is not.
type eventInput struct {
	title       string
	when        time.Time
	description string
}

func splitFields(s string, n int) []string {
	parts := strings.SplitN(s, "|", n)
	for len(parts) < n {
		parts = append(parts, "")
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseTaskInput(s string, now time.Time) (taskInput, error) {
	f := splitFields(s, 3)
	if f[0] == "" {
		return taskInput{}, errors.New("name cannot be empty")
	}
	when, err := agenda.ParseWhen(f[1], now)
	if err != nil {
		return taskInput{}, err
	}
	p, err := model.ParsePriority(f[2])
	if err != nil {
		return taskInput{}, err
	}
	return taskInput{name: f[0], when: when, priority: p}, nil
}

func parseEventInput(s string, now time.Time) (eventInput, error) {
	f := splitFields(s, 3)
	if f[0] == "" {
		return eventInput{}, errors.New("title cannot be empty")
	}
	when, err := agenda.ParseWhen(f[1], now)
	if err != nil {
		return eventInput{}, err
	}
	if f[2] == "" {
		return eventInput{}, errors.New("description cannot be empty")
	}
	return eventInput{title: f[0], when: when, description: f[2]}, nil
}
