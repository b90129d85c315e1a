// Package todo holds the value types shared by the list store, both
// persistence backends and the UI.
package todo

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// DefaultTextLimit caps item text, in runes.
const DefaultTextLimit = 30

type Item struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// NewID returns a fresh opaque item id.
func NewID() string {
	return uuid.NewString()
}

type ListName string

const (
	Active    ListName = "active"
	Completed ListName = "completed"
)

func ParseListName(s string) (ListName, error) {
	switch ListName(strings.ToLower(strings.TrimSpace(s))) {
	case Active:
		return Active, nil
	case Completed:
		return Completed, nil
	}
	return "", fmt.Errorf("unknown list %q (want active or completed)", s)
}

// Other returns the list a toggle moves items into.
func (n ListName) Other() ListName {
	if n == Completed {
		return Active
	}
	return Completed
}

// StorageKey is both the local key and the remote document field name.
func (n ListName) StorageKey() string {
	if n == Completed {
		return "completedTodos"
	}
	return "activeTodos"
}

func (n ListName) String() string { return string(n) }

type List []Item

func (l List) Clone() List {
	out := make(List, len(l))
	copy(out, l)
	return out
}

// IndexOf returns the index of the first item with id, or -1.
func (l List) IndexOf(id string) int {
	for i, it := range l {
		if it.ID == id {
			return i
		}
	}
	return -1
}

func (l List) IDs() []string {
	ids := make([]string, len(l))
	for i, it := range l {
		ids[i] = it.ID
	}
	return ids
}

// Record is the persisted shape of both lists.
type Record struct {
	Active    List `json:"activeTodos"`
	Completed List `json:"completedTodos"`
}

func (r Record) List(name ListName) List {
	if name == Completed {
		return r.Completed
	}
	return r.Active
}

// Fields is the unit of a save: one list, or both for a toggle.
type Fields map[ListName]List

// ClampText truncates text to limit runes. A limit <= 0 disables the cap.
func ClampText(text string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	r := []rune(text)
	return string(r[:limit])
}
