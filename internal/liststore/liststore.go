// Package liststore keeps the in-memory active and completed lists and the
// currently selected view. It does no I/O; callers persist what changes.
package liststore

import (
	"errors"
	"strings"

	"duo/internal/todo"
)

var (
	ErrEmptyText      = errors.New("text is empty")
	ErrNotPermutation = errors.New("new order is not a permutation of the list")
)

type Store struct {
	active    todo.List
	completed todo.List
	view      todo.ListName
	limit     int
	newID     func() string
}

type Option func(*Store)

// WithTextLimit caps item text at n runes; n <= 0 disables the cap.
func WithTextLimit(n int) Option {
	return func(s *Store) { s.limit = n }
}

func WithIDFunc(f func() string) Option {
	return func(s *Store) { s.newID = f }
}

func New(opts ...Option) *Store {
	s := &Store{
		view:  todo.Active,
		limit: todo.DefaultTextLimit,
		newID: todo.NewID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) View() todo.ListName { return s.view }

func (s *Store) TextLimit() int { return s.limit }

// SelectView switches which list single-list operations target.
func (s *Store) SelectView(name todo.ListName) {
	if name != todo.Completed {
		name = todo.Active
	}
	s.view = name
}

func (s *Store) List(name todo.ListName) todo.List {
	return s.ref(name).Clone()
}

func (s *Store) Selected() todo.List {
	return s.List(s.view)
}

func (s *Store) Len(name todo.ListName) int {
	return len(*s.ref(name))
}

func (s *Store) Record() todo.Record {
	return todo.Record{Active: s.active.Clone(), Completed: s.completed.Clone()}
}

// Create appends a new item to the selected list.
func (s *Store) Create(text string) (todo.Item, error) {
	if strings.TrimSpace(text) == "" {
		return todo.Item{}, ErrEmptyText
	}
	it := todo.Item{ID: s.newID(), Text: todo.ClampText(text, s.limit)}
	l := s.ref(s.view)
	*l = append(*l, it)
	return it, nil
}

// Remove deletes the first item with id from the selected list.
func (s *Store) Remove(id string) bool {
	l := s.ref(s.view)
	i := l.IndexOf(id)
	if i < 0 {
		return false
	}
	*l = append((*l)[:i:i], (*l)[i+1:]...)
	return true
}

func (s *Store) Edit(id, text string) bool {
	l := s.ref(s.view)
	i := l.IndexOf(id)
	if i < 0 {
		return false
	}
	(*l)[i].Text = todo.ClampText(text, s.limit)
	return true
}

// Reorder replaces the selected list's order. The new order must hold exactly
// the ids already present; text is taken from the stored items.
func (s *Store) Reorder(order todo.List) error {
	l := s.ref(s.view)
	if len(order) != len(*l) {
		return ErrNotPermutation
	}
	byID := make(map[string]todo.Item, len(*l))
	for _, it := range *l {
		byID[it.ID] = it
	}
	next := make(todo.List, 0, len(order))
	for _, o := range order {
		it, ok := byID[o.ID]
		if !ok {
			return ErrNotPermutation
		}
		delete(byID, o.ID)
		next = append(next, todo.Item{ID: it.ID, Text: it.Text})
	}
	*l = next
	return nil
}

// Toggle moves the first item with id from the selected list to the end of
// the other list.
func (s *Store) Toggle(id string) (todo.Item, bool) {
	src := s.ref(s.view)
	i := src.IndexOf(id)
	if i < 0 {
		return todo.Item{}, false
	}
	it := (*src)[i]
	*src = append((*src)[:i:i], (*src)[i+1:]...)
	dst := s.ref(s.view.Other())
	*dst = append(*dst, todo.Item{ID: it.ID, Text: it.Text})
	return it, true
}

// Apply replaces both lists with a snapshot. Applying the same snapshot
// twice leaves the same state.
func (s *Store) Apply(rec todo.Record) {
	s.active = rec.Active.Clone()
	s.completed = rec.Completed.Clone()
}

func (s *Store) Reset() {
	s.active = nil
	s.completed = nil
}

func (s *Store) ref(name todo.ListName) *todo.List {
	if name == todo.Completed {
		return &s.completed
	}
	return &s.active
}
