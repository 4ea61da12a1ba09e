package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind tells where an item lives: tasks stay on this machine,
// events belong to the remote store.
type Kind string

const (
	KindTask  Kind = "task"
	KindEvent Kind = "event"
)

// Item is one row of the agenda. The JSON form is also the persisted
// task format: {id, name, state, type}.
type Item struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Completed bool   `json:"state"`
	Kind      Kind   `json:"type"`
}

// Ref identifies an item. Task and event ids may collide, so an id alone
// is not enough.
type Ref struct {
	Kind Kind
	ID   int
}

func (i Item) Ref() Ref { return Ref{Kind: i.Kind, ID: i.ID} }

func (r Ref) String() string { return string(r.Kind) + ":" + strconv.Itoa(r.ID) }

// ParseRef accepts "task:3", "event:5" or a bare id (kind left empty).
func ParseRef(s string) (Ref, error) {
	s = strings.TrimSpace(s)
	kind, num, found := strings.Cut(s, ":")
	if !found {
		num, kind = kind, ""
	}
	id, err := strconv.Atoi(num)
	if err != nil {
		return Ref{}, fmt.Errorf("not a number: %s", num)
	}
	switch Kind(strings.ToLower(kind)) {
	case "":
		return Ref{ID: id}, nil
	case KindTask, "t":
		return Ref{Kind: KindTask, ID: id}, nil
	case KindEvent, "e":
		return Ref{Kind: KindEvent, ID: id}, nil
	}
	return Ref{}, fmt.Errorf("unknown kind: %s", kind)
}
