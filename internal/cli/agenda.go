package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Makepad-fr/agenda/internal/agenda"
	"github.com/Makepad-fr/agenda/internal/export"
	"github.com/Makepad-fr/agenda/internal/model"
	"github.com/Makepad-fr/agenda/internal/ui"
)

func (a *App) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet("agenda "+name, flag.ContinueOnError)
	fs.SetOutput(a.Stderr)
	return fs
}

// parse returns -1 when parsing succeeded, else the exit code to use.
func parse(fs *flag.FlagSet, args []string) int {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return ExitOK
		}
		return ExitUsage
	}
	return -1
}

// openAgenda builds an engine over the local tasks. Unparseable task data
// is reported but not fatal; a store that cannot be read is.
func (a *App) openAgenda() (*agenda.Engine, int) {
	e, err := agenda.New(agenda.Options{Store: a.Store, Events: a.Remote, Logger: a.Log})
	if err != nil {
		return nil, a.failErr("open agenda", err)
	}
	if err := e.LoadTasks(); err != nil {
		var sre *agenda.StorageReadError
		if !errors.As(err, &sre) {
			e.Close()
			return nil, a.failErr("load tasks", err)
		}
		ui.Fail(a.Stderr, "stored tasks are unreadable; starting from an empty list")
		if sre.Backup != "" {
			ui.Hint(a.Stderr, "The previous data was kept under the "+sre.Backup+" key")
		} else {
			ui.Hint(a.Stderr, "The previous data could not be kept aside; task changes are disabled")
		}
	}
	return e, ExitOK
}

func (a *App) list(ctx context.Context, args []string) int {
	fs := a.flags("ls")
	filter := fs.String("filter", "all", "all, completed or pending")
	group := fs.Bool("group", false, "group output by pending/completed")
	byDay := fs.Bool("by-day", false, "group output by calendar day")
	if code := parse(fs, args); code >= 0 {
		return code
	}
	if fs.NArg() != 0 || (*group && *byDay) {
		return a.usage("ls [-filter all|completed|pending] [-group|-by-day]")
	}
	f, err := model.ParseFilter(*filter)
	if err != nil {
		ui.Fail(a.Stderr, "ls: "+err.Error())
		return ExitUsage
	}
	if code := a.requireSession(); code != ExitOK {
		return code
	}
	e, code := a.openAgenda()
	if code != ExitOK {
		return code
	}
	defer e.Close()

	if err := e.LoadEvents(ctx); err != nil {
		code = a.failErr("load events", err)
	}
	e.SetFilter(f)
	items := e.Items()
	done, pending := e.Stats()

	t := ui.Current()
	lines := []string{
		ui.Header(f.Title(), done, pending),
		t.Muted.Render(ui.ProgressBar(done, done+pending, 28)),
		"",
	}
	switch {
	case *byDay:
		days := e.Days(a.Now().Location())
		if len(days) == 0 {
			lines = append(lines, ui.FlatLines(nil)...)
		}
		for i, d := range days {
			if i > 0 {
				lines = append(lines, "")
			}
			lines = append(lines, ui.DayHeading(d.Date))
			lines = append(lines, ui.FlatLines(d.Items)...)
		}
	case *group:
		lines = append(lines, ui.GroupLines(items)...)
	default:
		lines = append(lines, ui.FlatLines(items)...)
	}
	lines = append(lines, "", t.Muted.Render("Tip: add with `agenda add task <name>`"))
	ui.Panel(a.Stdout, lines)
	return code
}

func (a *App) add(ctx context.Context, args []string) int {
	if len(args) > 0 {
		switch args[0] {
		case "task":
			return a.addTask(args[1:])
		case "event":
			return a.addEvent(ctx, args[1:])
		}
	}
	return a.usage("add task|event [flags] <name...>")
}

func (a *App) addTask(args []string) int {
	fs := a.flags("add task")
	at := fs.String("at", "", `when, "YYYY-MM-DD HH:MM" (default now)`)
	prio := fs.String("priority", "medium", "high, medium or low")
	if code := parse(fs, args); code >= 0 {
		return code
	}
	name := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if name == "" {
		return a.usage(`add task [-at "YYYY-MM-DD HH:MM"] [-priority p] <name...>`)
	}
	when, err := agenda.ParseWhen(*at, a.Now())
	if err != nil {
		ui.Fail(a.Stderr, "add task: "+err.Error())
		return ExitUsage
	}
	p, err := model.ParsePriority(*prio)
	if err != nil {
		ui.Fail(a.Stderr, "add task: "+err.Error())
		return ExitUsage
	}

	e, code := a.openAgenda()
	if code != ExitOK {
		return code
	}
	defer e.Close()
	it, err := e.AddTask(name, when, p)
	if err != nil {
		return a.failErr("add task", err)
	}
	ui.OK(a.Stdout, fmt.Sprintf("added %s %s", it.Ref(), it.Name))
	return ExitOK
}

func (a *App) addEvent(ctx context.Context, args []string) int {
	fs := a.flags("add event")
	at := fs.String("at", "", `when, "YYYY-MM-DD HH:MM" (default now)`)
	desc := fs.String("desc", "", "description (required)")
	if code := parse(fs, args); code >= 0 {
		return code
	}
	title := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if title == "" || strings.TrimSpace(*desc) == "" {
		return a.usage(`add event [-at "YYYY-MM-DD HH:MM"] -desc <description> <title...>`)
	}
	when, err := agenda.ParseWhen(*at, a.Now())
	if err != nil {
		ui.Fail(a.Stderr, "add event: "+err.Error())
		return ExitUsage
	}
	if code := a.requireSession(); code != ExitOK {
		return code
	}

	e, code := a.openAgenda()
	if code != ExitOK {
		return code
	}
	defer e.Close()
	it, err := e.AddEvent(ctx, title, when, *desc)
	if err != nil {
		return a.failErr("add event", err)
	}
	ui.OK(a.Stdout, fmt.Sprintf("added %s %s", it.Ref(), it.Name))
	return ExitOK
}

// refArg parses "<id>" plus the -event/-task flags into a Ref. An empty
// Kind means "infer it".
func (a *App) refArg(cmd string, args []string) (model.Ref, int) {
	fs := a.flags(cmd)
	isEvent := fs.Bool("event", false, "the id is an event")
	isTask := fs.Bool("task", false, "the id is a task")
	if code := parse(fs, args); code >= 0 {
		return model.Ref{}, code
	}
	if fs.NArg() != 1 || (*isEvent && *isTask) {
		return model.Ref{}, a.usage(cmd + " [-event|-task] <id>")
	}
	ref, err := model.ParseRef(fs.Arg(0))
	if err != nil {
		ui.Fail(a.Stderr, cmd+": "+err.Error())
		return model.Ref{}, ExitUsage
	}
	switch {
	case *isEvent:
		ref.Kind = model.KindEvent
	case *isTask:
		ref.Kind = model.KindTask
	}
	return ref, -1
}

func (a *App) done(ctx context.Context, args []string) int {
	ref, code := a.refArg("done", args)
	if code >= 0 {
		return code
	}
	if ref.Kind == model.KindEvent {
		if code := a.requireSession(); code != ExitOK {
			return code
		}
	}
	e, code := a.openAgenda()
	if code != ExitOK {
		return code
	}
	defer e.Close()

	if ref.Kind != model.KindTask && a.Session.Authenticated() {
		if err := e.LoadEvents(ctx); err != nil {
			return a.failErr("load events", err)
		}
	}
	it, err := e.ToggleCompletion(ref)
	if err != nil {
		return a.failErr("done", err)
	}
	state := "pending"
	if it.Completed {
		state = "completed"
	}
	ui.OK(a.Stdout, fmt.Sprintf("%s marked %s", it.Ref(), state))
	if it.Kind == model.KindEvent {
		ui.Hint(a.Stdout, ui.EventCompletionNote)
	}
	return ExitOK
}

func (a *App) remove(ctx context.Context, args []string) int {
	ref, code := a.refArg("rm", args)
	if code >= 0 {
		return code
	}
	if ref.Kind == model.KindEvent {
		if code := a.requireSession(); code != ExitOK {
			return code
		}
	}
	e, code := a.openAgenda()
	if code != ExitOK {
		return code
	}
	defer e.Close()

	if err := e.Delete(ctx, ref); err != nil {
		return a.failErr("rm", err)
	}
	if ref.Kind == "" {
		ui.OK(a.Stdout, fmt.Sprintf("removed %d", ref.ID))
	} else {
		ui.OK(a.Stdout, "removed "+ref.String())
	}
	return ExitOK
}

func (a *App) export(ctx context.Context, args []string) int {
	fs := a.flags("export")
	out := fs.String("out", a.Config.ExportPath, "iCalendar file to write")
	watch := fs.Bool("watch", false, "keep exporting on the configured refresh schedule")
	if code := parse(fs, args); code >= 0 {
		return code
	}
	if fs.NArg() != 0 {
		return a.usage("export [-out file.ics] [-watch]")
	}
	if code := a.requireSession(); code != ExitOK {
		return code
	}
	e, code := a.openAgenda()
	if code != ExitOK {
		return code
	}
	defer e.Close()

	refresh := func(ctx context.Context) (export.Result, error) {
		if err := e.LoadTasks(); err != nil {
			a.Log.Warn("export with unreadable tasks", zap.Error(err))
		}
		if err := e.LoadEvents(ctx); err != nil {
			return export.Result{}, err
		}
		return export.WriteFile(*out, e.Snapshot(), a.Now(), a.Log)
	}

	res, err := refresh(ctx)
	if err != nil {
		return a.failErr("export", err)
	}
	ui.OK(a.Stdout, fmt.Sprintf("exported %d events and %d tasks to %s", res.Events, res.Todos, *out))
	if res.Skipped > 0 {
		ui.Hint(a.Stdout, fmt.Sprintf("%d events with unrecognised dates were skipped", res.Skipped))
	}
	if !*watch {
		return ExitOK
	}

	ui.Hint(a.Stdout, "watching on schedule "+a.Config.Refresh+" (Ctrl-C to stop)")
	err = export.Watch(ctx, a.Config.Refresh, func(ctx context.Context) error {
		res, err := refresh(ctx)
		if err == nil {
			a.Log.Info("agenda exported", zap.String("path", *out),
				zap.Int("events", res.Events), zap.Int("tasks", res.Todos))
		}
		return err
	}, a.Log)
	if err != nil {
		return a.failErr("export watch", err)
	}
	return ExitOK
}

func (a *App) interactive(ctx context.Context) int {
	if code := a.requireSession(); code != ExitOK {
		return code
	}
	e, code := a.openAgenda()
	if code != ExitOK {
		return code
	}
	defer e.Close()
	if err := a.RunTUI(ctx, e); err != nil {
		return a.failErr("tui", err)
	}
	return ExitOK
}
