package liststore

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"testing"

	"duo/internal/todo"
)

func seqIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func TestCreateThenToggle_BuyMilk(t *testing.T) {
	s := New(WithIDFunc(seqIDs()))

	it, err := s.Create("Buy milk")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	want := todo.List{{ID: it.ID, Text: "Buy milk"}}
	if got := s.List(todo.Active); !reflect.DeepEqual(got, want) {
		t.Fatalf("active = %#v, want %#v", got, want)
	}

	if _, ok := s.Toggle(it.ID); !ok {
		t.Fatalf("toggle should find %q", it.ID)
	}
	if n := s.Len(todo.Active); n != 0 {
		t.Fatalf("expected empty active list, got %d", n)
	}
	if got := s.List(todo.Completed); !reflect.DeepEqual(got, want) {
		t.Fatalf("completed = %#v, want %#v", got, want)
	}
}

func TestCreateRejectsBlankText(t *testing.T) {
	s := New()
	for _, in := range []string{"", "   ", "\t\n"} {
		if _, err := s.Create(in); !errors.Is(err, ErrEmptyText) {
			t.Fatalf("create(%q): expected ErrEmptyText, got %v", in, err)
		}
	}
	if s.Len(todo.Active) != 0 {
		t.Fatalf("blank creates must not add items")
	}
}

func TestCreateKeepsTextAsTyped(t *testing.T) {
	s := New()
	it, err := s.Create("  indented ")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if it.Text != "  indented " || s.Selected()[0].Text != "  indented " {
		t.Fatalf("text should be stored as typed, got %q", it.Text)
	}
}

func TestEditChangesOnlyTarget(t *testing.T) {
	s := New(WithIDFunc(seqIDs()))
	a, _ := s.Create("Buy milk")
	b, _ := s.Create("Walk dog")

	if !s.Edit(a.ID, "Buy oat milk") {
		t.Fatalf("edit should find item")
	}
	got := s.List(todo.Active)
	if got[0].ID != a.ID || got[0].Text != "Buy oat milk" {
		t.Fatalf("unexpected edited item: %#v", got[0])
	}
	if got[1] != b {
		t.Fatalf("other item changed: %#v", got[1])
	}
}

func TestEditCapsText(t *testing.T) {
	s := New(WithIDFunc(seqIDs()))
	it, _ := s.Create("x")
	s.Edit(it.ID, strings.Repeat("a", 45))
	if n := len([]rune(s.List(todo.Active)[0].Text)); n != 30 {
		t.Fatalf("expected text capped at 30, got %d", n)
	}

	long, _ := s.Create(strings.Repeat("b", 31))
	if n := len(long.Text); n != 30 {
		t.Fatalf("create should cap too, got %d", n)
	}

	un := New(WithTextLimit(0))
	it, _ = un.Create(strings.Repeat("c", 40))
	if len(it.Text) != 40 {
		t.Fatalf("uncapped store truncated text")
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	s := New(WithIDFunc(seqIDs()))
	it, _ := s.Create("one")
	if !s.Remove(it.ID) {
		t.Fatalf("first remove should succeed")
	}
	if s.Remove(it.ID) {
		t.Fatalf("second remove should be a no-op")
	}
	if s.Remove("missing") {
		t.Fatalf("remove on empty list should be a no-op")
	}
}

func TestOperationsOnEmptyListAreNoOps(t *testing.T) {
	s := New()
	if s.Edit("x", "y") {
		t.Fatalf("edit on empty list")
	}
	if _, ok := s.Toggle("x"); ok {
		t.Fatalf("toggle on empty list")
	}
	if err := s.Reorder(nil); err != nil {
		t.Fatalf("reorder of empty list: %v", err)
	}
}

func TestOnlyFirstDuplicateAffected(t *testing.T) {
	s := New()
	s.Apply(todo.Record{Active: todo.List{{ID: "d", Text: "first"}, {ID: "d", Text: "second"}}})

	s.Edit("d", "changed")
	got := s.List(todo.Active)
	if got[0].Text != "changed" || got[1].Text != "second" {
		t.Fatalf("edit touched more than the first match: %#v", got)
	}

	s.Toggle("d")
	if s.Len(todo.Active) != 1 || s.Len(todo.Completed) != 1 {
		t.Fatalf("toggle moved more than one item")
	}
}

func TestIDsStayUniqueAcrossMutations(t *testing.T) {
	s := New()
	var ids []string
	for i := 0; i < 50; i++ {
		it, err := s.Create(fmt.Sprintf("item %d", i))
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		ids = append(ids, it.ID)
		if i%3 == 0 {
			s.Remove(ids[i/2])
		}
		if i%5 == 0 {
			s.Edit(ids[i], "edited")
		}
		if i%7 == 0 {
			s.Toggle(ids[i])
		}
	}
	seen := map[string]bool{}
	rec := s.Record()
	for _, it := range append(rec.Active.Clone(), rec.Completed...) {
		if seen[it.ID] {
			t.Fatalf("duplicate id %q", it.ID)
		}
		seen[it.ID] = true
	}
}

func TestToggleConservesCount(t *testing.T) {
	s := New(WithIDFunc(seqIDs()))
	for _, txt := range []string{"a", "b", "c"} {
		s.Create(txt)
	}
	s.SelectView(todo.Completed)
	s.Create("done already")
	s.SelectView(todo.Active)

	before := s.Len(todo.Active) + s.Len(todo.Completed)
	moved, ok := s.Toggle("id-2")
	if !ok {
		t.Fatalf("toggle id-2")
	}
	if s.Len(todo.Active) != 2 || s.Len(todo.Completed) != 2 {
		t.Fatalf("unexpected lengths %d/%d", s.Len(todo.Active), s.Len(todo.Completed))
	}
	if s.Len(todo.Active)+s.Len(todo.Completed) != before {
		t.Fatalf("total count changed")
	}
	last := s.List(todo.Completed)[1]
	if last.ID != "id-2" || last.Text != moved.Text || moved.Text != "b" {
		t.Fatalf("moved item not appended unchanged: %#v", last)
	}

	s.SelectView(todo.Completed)
	s.Toggle("id-2")
	active := s.List(todo.Active)
	if active[len(active)-1].ID != "id-2" {
		t.Fatalf("restore should append to active")
	}
}

func TestReorderIsPermutation(t *testing.T) {
	s := New(WithIDFunc(seqIDs()))
	for _, txt := range []string{"a", "b", "c", "d"} {
		s.Create(txt)
	}
	cur := s.Selected()
	order := todo.List{cur[3], cur[0], cur[2], cur[1]}
	if err := s.Reorder(order); err != nil {
		t.Fatalf("reorder: %v", err)
	}
	got := s.Selected()
	if !reflect.DeepEqual(got.IDs(), []string{"id-4", "id-1", "id-3", "id-2"}) {
		t.Fatalf("unexpected order %v", got.IDs())
	}
	before, after := cur.IDs(), got.IDs()
	sort.Strings(before)
	sort.Strings(after)
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("reorder changed the id set")
	}
}

func TestReorderRejectsForeignOrMissingIDs(t *testing.T) {
	s := New(WithIDFunc(seqIDs()))
	s.Create("a")
	s.Create("b")
	cases := []todo.List{
		{{ID: "id-1"}},
		{{ID: "id-1"}, {ID: "id-9"}},
		{{ID: "id-1"}, {ID: "id-1"}},
	}
	for _, order := range cases {
		if err := s.Reorder(order); !errors.Is(err, ErrNotPermutation) {
			t.Fatalf("reorder %v: expected ErrNotPermutation, got %v", order.IDs(), err)
		}
	}
	if !reflect.DeepEqual(s.Selected().IDs(), []string{"id-1", "id-2"}) {
		t.Fatalf("failed reorder must not change the list")
	}
}

func TestReorderKeepsStoredText(t *testing.T) {
	s := New(WithIDFunc(seqIDs()))
	s.Create("a")
	s.Create("b")
	if err := s.Reorder(todo.List{{ID: "id-2", Text: "stale"}, {ID: "id-1"}}); err != nil {
		t.Fatalf("reorder: %v", err)
	}
	got := s.Selected()
	if got[0].Text != "b" || got[1].Text != "a" {
		t.Fatalf("reorder should keep stored text, got %#v", got)
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	rec := todo.Record{
		Active:    todo.List{{ID: "1", Text: "a"}},
		Completed: todo.List{{ID: "2", Text: "b"}},
	}
	s := New()
	s.Apply(rec)
	once := s.Record()
	s.Apply(rec)
	if !reflect.DeepEqual(once, s.Record()) {
		t.Fatalf("second apply changed state")
	}
}

func TestSelectViewDoesNotMutate(t *testing.T) {
	s := New(WithIDFunc(seqIDs()))
	s.Create("a")
	before := s.Record()
	s.SelectView(todo.Completed)
	if s.View() != todo.Completed {
		t.Fatalf("view not switched")
	}
	if !reflect.DeepEqual(before, s.Record()) {
		t.Fatalf("select view mutated lists")
	}
	if len(s.Selected()) != 0 {
		t.Fatalf("completed list should be selected and empty")
	}
}

func TestReturnedListsAreCopies(t *testing.T) {
	s := New(WithIDFunc(seqIDs()))
	s.Create("a")
	l := s.Selected()
	l[0].Text = "mutated"
	if s.Selected()[0].Text != "a" {
		t.Fatalf("caller mutation leaked into store")
	}
}
