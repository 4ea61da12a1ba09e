package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Makepad-fr/agenda/internal/ui"
)

const (
	minUsername = 3
	minPassword = 6
)

func (a *App) login(ctx context.Context, args []string) int {
	if len(args) != 1 {
		return a.usage("login <username>")
	}
	username := args[0]
	password, err := a.readSecret("Password: ")
	if err != nil {
		return a.failErr("read password", err)
	}
	if password == "" {
		ui.Fail(a.Stderr, "login: empty password")
		return ExitUsage
	}

	res, err := a.Remote.Login(ctx, username, password)
	if err != nil {
		return a.failErr("login", err)
	}
	if err := a.Session.Save(res.Token, res.User); err != nil {
		return a.failErr("save session", err)
	}
	ui.OK(a.Stdout, "logged in as "+res.User.Username)
	return ExitOK
}

func (a *App) register(ctx context.Context, args []string) int {
	if len(args) != 2 {
		return a.usage("register <username> <role>")
	}
	username, role := args[0], args[1]
	if len([]rune(username)) < minUsername {
		ui.Fail(a.Stderr, fmt.Sprintf("register: username must be at least %d characters", minUsername))
		return ExitUsage
	}
	password, err := a.readSecret("Password: ")
	if err != nil {
		return a.failErr("read password", err)
	}
	if len([]rune(password)) < minPassword {
		ui.Fail(a.Stderr, fmt.Sprintf("register: password must be at least %d characters", minPassword))
		return ExitUsage
	}

	u, err := a.Remote.Register(ctx, username, password, role)
	if err != nil {
		return a.failErr("register", err)
	}
	ui.OK(a.Stdout, "registered "+u.Username)
	ui.Hint(a.Stdout, "Next: agenda login "+u.Username)
	return ExitOK
}

func (a *App) logout() int {
	ti, err := a.Session.Info()
	if err != nil {
		// The stored keys are removed regardless.
		a.Log.Warn("logout could not read the session", zap.Error(err))
		ui.Hint(a.Stderr, "session unreadable: "+err.Error())
	}
	if ti != nil && ti.Source == "env" {
		ui.OK(a.Stdout, "token is provided by the AGENDA_TOKEN env var (nothing to delete)")
		return ExitOK
	}
	if err := a.Session.Logout(); err != nil {
		return a.failErr("logout", err)
	}
	ui.OK(a.Stdout, "logged out")
	return ExitOK
}

func (a *App) status() int {
	ti, err := a.Session.Info()
	if err != nil {
		return a.failErr("status", err)
	}
	if ti == nil {
		ui.Hint(a.Stdout, "not logged in")
		fmt.Fprintln(a.Stdout, "Run: agenda login <username>")
		return ExitOK
	}
	fmt.Fprintf(a.Stdout, "source:  %s\n", ti.Source)
	if ti.ExpiresAt != nil {
		state := "valid"
		if !ti.ExpiresAt.After(a.Now()) {
			state = "expired"
		}
		fmt.Fprintf(a.Stdout, "expires: %s (%s)\n", ti.ExpiresAt.UTC().Format(time.RFC3339), state)
	} else {
		fmt.Fprintln(a.Stdout, "expires: (unknown)")
	}
	if u, err := a.Session.User(); err == nil && u != nil {
		fmt.Fprintf(a.Stdout, "user:    %s\n", u.Username)
	}
	fmt.Fprintf(a.Stdout, "server:  %s\n", a.Config.APIURL)
	return ExitOK
}

// whoami asks the server; when it cannot be reached the stored user and
// the token's own claims are shown instead.
func (a *App) whoami(ctx context.Context) int {
	if code := a.requireSession(); code != ExitOK {
		return code
	}
	u, err := a.Remote.CurrentUser(ctx)
	if err == nil {
		a.printUser(u.Username, u.Role, u.ID)
		return ExitOK
	}
	a.Log.Warn("whoami falling back to local session", zap.Error(err))

	stored, serr := a.Session.User()
	if serr != nil {
		a.Log.Warn("whoami could not read the stored user", zap.Error(serr))
	}
	if stored != nil {
		a.printUser(stored.Username, stored.Role, stored.ID)
		ui.Hint(a.Stdout, "(from the local session; server said: "+err.Error()+")")
		return ExitOK
	}
	ti, ierr := a.Session.Info()
	if ierr != nil {
		a.Log.Warn("whoami could not read the session", zap.Error(ierr))
	}
	if ti != nil && ti.Claims != nil {
		b, _ := json.MarshalIndent(ti.Claims, "", "  ")
		fmt.Fprintln(a.Stdout, "JWT payload:")
		fmt.Fprintln(a.Stdout, string(b))
		return ExitOK
	}
	return a.failErr("whoami", err)
}

func (a *App) printUser(name, role string, id int) {
	fmt.Fprintf(a.Stdout, "username: %s\n", name)
	if role != "" {
		fmt.Fprintf(a.Stdout, "role:     %s\n", role)
	}
	if id != 0 {
		fmt.Fprintf(a.Stdout, "id:       %d\n", id)
	}
}
