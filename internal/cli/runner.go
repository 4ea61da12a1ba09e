package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/x/term"
	"go.uber.org/zap"

	"github.com/Makepad-fr/agenda/internal/agenda"
	"github.com/Makepad-fr/agenda/internal/auth"
	"github.com/Makepad-fr/agenda/internal/config"
	"github.com/Makepad-fr/agenda/internal/remote"
	"github.com/Makepad-fr/agenda/internal/store"
	"github.com/Makepad-fr/agenda/internal/tui"
	"github.com/Makepad-fr/agenda/internal/ui"
)

// Exit codes.
const (
	ExitOK    = 0
	ExitFail  = 1
	ExitUsage = 2
)

// App holds what the subcommands share.
type App struct {
	Config  *config.Config
	Store   store.Store
	Session *auth.Session
	Remote  *remote.Client
	Log     *zap.Logger

	Stdin          io.Reader
	Stdout, Stderr io.Writer

	Now func() time.Time
	// RunTUI replaces the interactive agenda, e.g. in tests.
	RunTUI func(ctx context.Context, e *agenda.Engine) error

	stdin *bufio.Reader
}

func (a *App) init() {
	if a.Log == nil {
		a.Log = zap.NewNop()
	}
	if a.Stdin == nil {
		a.Stdin = os.Stdin
	}
	if a.Stdout == nil {
		a.Stdout = os.Stdout
	}
	if a.Stderr == nil {
		a.Stderr = os.Stderr
	}
	if a.Now == nil {
		a.Now = time.Now
	}
	if a.RunTUI == nil {
		a.RunTUI = func(ctx context.Context, e *agenda.Engine) error {
			return tui.Run(ctx, e, tui.Options{Logger: a.Log, Now: a.Now})
		}
	}
	if a.stdin == nil {
		a.stdin = bufio.NewReader(a.Stdin)
	}
}

// Run dispatches a subcommand and returns its exit code
// (0 ok, 1 failure, 2 usage or missing session).
func (a *App) Run(ctx context.Context, args []string) int {
	a.init()
	if len(args) == 0 {
		a.PrintHelp(a.Stderr)
		return ExitUsage
	}
	cmd, rest := args[0], args[1:]
	a.Log.Debug("command", zap.String("name", cmd))

	switch cmd {
	case "help", "-h", "--help":
		a.PrintHelp(a.Stdout)
		return ExitOK
	case "login":
		return a.login(ctx, rest)
	case "register":
		return a.register(ctx, rest)
	case "logout":
		return a.logout()
	case "status":
		return a.status()
	case "whoami":
		return a.whoami(ctx)
	case "ls":
		return a.list(ctx, rest)
	case "add":
		return a.add(ctx, rest)
	case "done":
		return a.done(ctx, rest)
	case "rm":
		return a.remove(ctx, rest)
	case "export":
		return a.export(ctx, rest)
	case "tui":
		return a.interactive(ctx)
	}

	ui.Fail(a.Stderr, "unknown subcommand: "+cmd)
	fmt.Fprintln(a.Stderr)
	a.PrintHelp(a.Stderr)
	return ExitUsage
}

func (a *App) PrintHelp(w io.Writer) {
	fmt.Fprint(w, `agenda - tasks and events from the terminal

Usage:
  agenda [-config path] [-theme name] <subcommand> [args]

Session:
  login <username>                      Sign in (password read from stdin)
  register <username> <role>            Create an account
  logout                                Forget the session
  status                                Show where the session comes from
  whoami                                Show the signed-in user

Agenda:
  ls [-filter all|completed|pending] [-group|-by-day]
  add task [-at "YYYY-MM-DD HH:MM"] [-priority high|medium|low] <name...>
  add event [-at "YYYY-MM-DD HH:MM"] -desc <description> <title...>
  done [-event|-task] <id>              Toggle completion
  rm [-event|-task] <id>                Delete an item
  export [-out file.ics] [-watch]       Write the agenda as iCalendar
  tui                                   Interactive agenda

Ids may carry their kind: task:3, event:5.

Examples:
  agenda login alice
  agenda add task -priority high "Buy milk"
  agenda ls -filter pending
  agenda rm event:5
`)
}

// usage prints a usage error.
func (a *App) usage(msg string) int {
	ui.Fail(a.Stderr, "usage: agenda "+msg)
	return ExitUsage
}

// failErr logs err and prints a short message for the user.
func (a *App) failErr(op string, err error) int {
	a.Log.Error(op+" failed", zap.Error(err))
	var reqErr *remote.RequestError
	switch {
	case errors.Is(err, auth.ErrMissingToken):
		ui.Fail(a.Stderr, op+": not logged in")
		ui.Hint(a.Stderr, "Run `agenda login <username>` or set "+auth.TokenEnv)
		return ExitUsage
	case errors.As(err, &reqErr) && reqErr.Unauthorized():
		ui.Fail(a.Stderr, op+": the server rejected the session")
		ui.Hint(a.Stderr, "Run `agenda login <username>`")
		return ExitFail
	case errors.Is(err, agenda.ErrNotFound):
		ui.Fail(a.Stderr, op+": "+err.Error())
		ui.Hint(a.Stderr, "Hint: run `agenda ls` to see valid ids")
		return ExitFail
	}
	ui.Fail(a.Stderr, op+": "+err.Error())
	return ExitFail
}

// requireSession is the route guard for commands that talk to the
// remote store.
func (a *App) requireSession() int {
	if a.Session.Authenticated() {
		return ExitOK
	}
	ui.Fail(a.Stderr, "not logged in")
	ui.Hint(a.Stderr, "Run `agenda login <username>` or set "+auth.TokenEnv)
	return ExitUsage
}

// readSecret reads one line, without echo when stdin is a terminal.
func (a *App) readSecret(prompt string) (string, error) {
	if f, ok := a.Stdin.(*os.File); ok && term.IsTerminal(f.Fd()) {
		fmt.Fprint(a.Stderr, prompt)
		b, err := term.ReadPassword(f.Fd())
		fmt.Fprintln(a.Stderr)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := a.stdin.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
