package remote

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/Makepad-fr/agenda/internal/auth"
)

// Event is a validated calendar event from the server.
type Event struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	Date        string `json:"date"`
	Description string `json:"description"`
}

// NewEvent is the body of POST /events.
type NewEvent struct {
	Title       string `json:"title"`
	Date        string `json:"date"`
	Description string `json:"description"`
}

// LoginResponse is the body returned by POST /auth/login.
type LoginResponse struct {
	Token string
	User  auth.User
}

// Wire shapes. Pointers tell a missing field from a zero one.

type wireEvent struct {
	ID          *flexID `json:"id"`
	Title       *string `json:"title"`
	Date        *string `json:"date"`
	Description *string `json:"description"`
}

type wireUser struct {
	ID       *flexID `json:"id"`
	Username *string `json:"username"`
	Role     *string `json:"role"`
}

type wireLogin struct {
	Token *string   `json:"token"`
	User  *wireUser `json:"user"`
}

// flexID accepts 5 and "5"; some backends serialise ids as strings.
type flexID int

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return fmt.Errorf("id %q is not numeric", s)
		}
		*f = flexID(n)
		return nil
	}
	var n int
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id %s is not an integer", b)
	}
	*f = flexID(n)
	return nil
}

func (w wireEvent) validate() (Event, error) {
	if w.ID == nil {
		return Event{}, fmt.Errorf("missing id")
	}
	if w.Title == nil {
		return Event{}, fmt.Errorf("event %d: missing title", *w.ID)
	}
	ev := Event{ID: int(*w.ID), Title: *w.Title}
	if w.Date != nil {
		ev.Date = *w.Date
	}
	if w.Description != nil {
		ev.Description = *w.Description
	}
	return ev, nil
}

func (w *wireUser) validate() (auth.User, error) {
	if w == nil {
		return auth.User{}, fmt.Errorf("missing user")
	}
	if w.Username == nil || *w.Username == "" {
		return auth.User{}, fmt.Errorf("missing username")
	}
	u := auth.User{Username: *w.Username}
	if w.ID != nil {
		u.ID = int(*w.ID)
	}
	if w.Role != nil {
		u.Role = *w.Role
	}
	return u, nil
}
