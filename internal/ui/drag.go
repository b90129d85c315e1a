package ui

import "duo/internal/todo"

// dragSession tracks a keyboard move gesture. It lives beside the items, not
// on them, so nothing UI-only ever reaches storage.
type dragSession struct {
	id     string
	origin int
	pos    int
	order  todo.List
}

func startDrag(items todo.List, at int) *dragSession {
	return &dragSession{
		id:     items[at].ID,
		origin: at,
		pos:    at,
		order:  items.Clone(),
	}
}

func (d *dragSession) move(delta int) {
	next := d.pos + delta
	if next < 0 || next >= len(d.order) {
		return
	}
	d.order[d.pos], d.order[next] = d.order[next], d.order[d.pos]
	d.pos = next
}
