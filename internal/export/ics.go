// Package export writes the agenda as an iCalendar file.
package export

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	ics "github.com/arran4/golang-ical"
	"go.uber.org/zap"

	"github.com/Makepad-fr/agenda/internal/agenda"
	"github.com/Makepad-fr/agenda/internal/model"
)

const productID = "-//Makepad//agenda//EN"

// eventLength is used for events with a time of day but no end.
const eventLength = time.Hour

// Result counts what went into the calendar.
type Result struct {
	Events  int
	Todos   int
	Skipped int
}

// Calendar builds the iCalendar document. Events whose date cannot be
// parsed are skipped and counted. now stamps DTSTAMP.
func Calendar(snap agenda.Snapshot, now time.Time, log *zap.Logger) (*ics.Calendar, Result) {
	if log == nil {
		log = zap.NewNop()
	}
	var res Result

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(productID)
	cal.SetXWRCalName("agenda")

	for _, rec := range snap.Records {
		start, allDay, err := ParseDate(rec.Date)
		if err != nil {
			log.Warn("event skipped", zap.Int("event_id", rec.ID), zap.String("date", rec.Date), zap.Error(err))
			res.Skipped++
			continue
		}
		ev := cal.AddEvent(uid(model.KindEvent, rec.ID))
		ev.SetDtStampTime(now)
		ev.SetSummary(rec.Title)
		if rec.Description != "" {
			ev.SetDescription(rec.Description)
		}
		if allDay {
			ev.SetAllDayStartAt(start)
			ev.SetAllDayEndAt(start.AddDate(0, 0, 1))
		} else {
			ev.SetStartAt(start)
			ev.SetEndAt(start.Add(eventLength))
		}
		res.Events++
	}

	for _, t := range snap.Tasks {
		todo := cal.AddTodo(uid(model.KindTask, t.ID))
		todo.SetDtStampTime(now)
		todo.SetSummary(t.Name)
		if t.Completed {
			todo.SetStatus(ics.ObjectStatusCompleted)
		} else {
			todo.SetStatus(ics.ObjectStatusNeedsAction)
		}
		res.Todos++
	}
	return cal, res
}

// Write serialises the calendar to w.
func Write(w io.Writer, snap agenda.Snapshot, now time.Time, log *zap.Logger) (Result, error) {
	cal, res := Calendar(snap, now, log)
	if _, err := io.WriteString(w, cal.Serialize()); err != nil {
		return res, fmt.Errorf("write calendar: %w", err)
	}
	return res, nil
}

// WriteFile replaces path atomically.
func WriteFile(path string, snap agenda.Snapshot, now time.Time, log *zap.Logger) (Result, error) {
	if path == "" {
		return Result{}, errors.New("export path is empty")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return Result{}, fmt.Errorf("mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".agenda-*.ics.tmp")
	if err != nil {
		return Result{}, err
	}
	defer os.Remove(tmp.Name())

	res, err := Write(tmp, snap, now, log)
	if err != nil {
		tmp.Close()
		return res, err
	}
	if err := tmp.Close(); err != nil {
		return res, err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return res, err
	}
	return res, os.Rename(tmp.Name(), path)
}

// ParseDate reads the date of a remote event. A bare day is all-day.
// Times without an offset are local.
func ParseDate(s string) (t time.Time, allDay bool, err error) {
	return agenda.ParseEventDate(s, time.Local)
}

func uid(k model.Kind, id int) string {
	return fmt.Sprintf("%s-%d@agenda", k, id)
}
