package ui

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"duo/internal/app"
	"duo/internal/auth"
	"duo/internal/config"
	"duo/internal/liststore"
	"duo/internal/remote"
	"duo/internal/storage"
	"duo/internal/todo"
)

func testConfig() config.Config {
	return config.Config{
		TextLimit: todo.DefaultTextLimit,
		StartView: "active",
		Keys: config.Keymap{
			Quit: "q", Add: "a", Up: "k", Down: "j", Toggle: " ", Delete: "d", Edit: "e",
			Grab: "g", SwitchView: "tab", Clear: "C", Login: "L", Logout: "O",
			Confirm: "enter", Cancel: "esc",
		},
	}
}

func newTestModel(t *testing.T, opts ...app.Option) (Model, *app.Controller, *storage.Store) {
	t.Helper()
	local, err := storage.Open(filepath.Join(t.TempDir(), "todo.db"))
	if err != nil {
		t.Fatalf("open local: %v", err)
	}
	t.Cleanup(func() { _ = local.Close() })
	ctrl := app.New(liststore.New(), local, opts...)
	t.Cleanup(ctrl.Close)
	return New(ctrl, nil, testConfig(), nil), ctrl, local
}

func runes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

var (
	enter = tea.KeyMsg{Type: tea.KeyEnter}
	esc   = tea.KeyMsg{Type: tea.KeyEsc}
	tab   = tea.KeyMsg{Type: tea.KeyTab}
	space = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	down  = tea.KeyMsg{Type: tea.KeyDown}
)

func send(m Model, msgs ...tea.Msg) Model {
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		m = next.(Model)
	}
	return m
}

func texts(l todo.List) []string {
	out := make([]string, len(l))
	for i, it := range l {
		out[i] = it.Text
	}
	return out
}

func TestAddToggleAndSwitchView(t *testing.T) {
	m, ctrl, local := newTestModel(t)

	m = send(m, runes("a"), runes("Buy milk"), enter, runes("Walk dog"), enter, esc)
	if got := texts(ctrl.Selected()); !reflect.DeepEqual(got, []string{"Buy milk", "Walk dog"}) {
		t.Fatalf("unexpected active list %v", got)
	}
	if m.mode != modeList {
		t.Fatalf("esc should leave add mode")
	}

	m.cursor = 0
	m = send(m, space)
	if ctrl.Len(todo.Active) != 1 || ctrl.Len(todo.Completed) != 1 {
		t.Fatalf("toggle did not move item: %d/%d", ctrl.Len(todo.Active), ctrl.Len(todo.Completed))
	}
	completed, ok, _ := local.Load(context.Background(), todo.Completed)
	if !ok || completed[0].Text != "Buy milk" {
		t.Fatalf("completed list not persisted: %#v", completed)
	}

	m = send(m, tab)
	if ctrl.View() != todo.Completed {
		t.Fatalf("tab should switch to completed view")
	}
	if !strings.Contains(m.View(), "Buy milk") {
		t.Fatalf("completed view should render the item:\n%s", m.View())
	}
}

func TestAddRejectsEmptyAndCapsLength(t *testing.T) {
	m, ctrl, _ := newTestModel(t)
	m = send(m, runes("a"), enter)
	if !strings.Contains(m.Status(), "cannot be empty") {
		t.Fatalf("expected empty warning, got %q", m.Status())
	}
	m = send(m, runes(strings.Repeat("x", 45)), enter)
	items := ctrl.Selected()
	if len(items) != 1 || len(items[0].Text) != todo.DefaultTextLimit {
		t.Fatalf("expected one item capped at %d, got %#v", todo.DefaultTextLimit, items)
	}
}

func TestInlineEdit(t *testing.T) {
	m, ctrl, _ := newTestModel(t)
	m = send(m, runes("a"), runes("Buy milk"), enter, esc)
	id := ctrl.Selected()[0].ID

	m = send(m, runes("e"))
	if m.mode != modeEdit || m.editID != id {
		t.Fatalf("expected edit mode on %q", id)
	}
	// Replace the text: clear with ctrl+u then type.
	m = send(m, tea.KeyMsg{Type: tea.KeyCtrlU}, runes("Buy oat milk"), enter)
	got := ctrl.Selected()[0]
	if got.ID != id || got.Text != "Buy oat milk" {
		t.Fatalf("unexpected item after edit %#v", got)
	}

	m = send(m, runes("e"), tea.KeyMsg{Type: tea.KeyCtrlU}, runes("discarded"), esc)
	if ctrl.Selected()[0].Text != "Buy oat milk" {
		t.Fatalf("esc should discard the edit")
	}
}

func TestGrabMoveDrop(t *testing.T) {
	m, ctrl, local := newTestModel(t)
	m = send(m, runes("a"), runes("a"), enter, runes("b"), enter, runes("c"), enter, esc)
	m.cursor = 0

	m = send(m, runes("g"), down, down)
	if got := texts(m.Items()); !reflect.DeepEqual(got, []string{"b", "c", "a"}) {
		t.Fatalf("preview order %v", got)
	}
	if got := texts(ctrl.Selected()); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("store changed before drop: %v", got)
	}
	m = send(m, enter)
	if got := texts(ctrl.Selected()); !reflect.DeepEqual(got, []string{"b", "c", "a"}) {
		t.Fatalf("order after drop %v", got)
	}
	stored, _, _ := local.Load(context.Background(), todo.Active)
	if got := texts(stored); !reflect.DeepEqual(got, []string{"b", "c", "a"}) {
		t.Fatalf("persisted order %v", got)
	}

	m = send(m, runes("g"), runes("k"), esc)
	if got := texts(ctrl.Selected()); !reflect.DeepEqual(got, []string{"b", "c", "a"}) {
		t.Fatalf("cancelled move changed order: %v", got)
	}
	if m.drag != nil {
		t.Fatalf("drag session should be cleared")
	}
}

func TestDeleteAndClear(t *testing.T) {
	m, ctrl, local := newTestModel(t)
	m = send(m, runes("a"), runes("one"), enter, runes("two"), enter, esc)
	m.cursor = 0
	m = send(m, runes("d"))
	if got := texts(ctrl.Selected()); !reflect.DeepEqual(got, []string{"two"}) {
		t.Fatalf("after delete %v", got)
	}

	m = send(m, runes("C"), runes("n"))
	if ctrl.Len(todo.Active) != 1 {
		t.Fatalf("declined clear removed items")
	}
	m = send(m, runes("C"), runes("y"))
	if ctrl.Len(todo.Active) != 0 {
		t.Fatalf("clear should empty memory")
	}
	if _, ok, _ := local.Load(context.Background(), todo.Active); ok {
		t.Fatalf("clear should remove local key")
	}
	_ = m
}

func TestLoginUnavailableWithoutRemote(t *testing.T) {
	m, _, _ := newTestModel(t)
	m = send(m, runes("L"))
	if m.mode != modeList || !strings.Contains(m.Status(), "unavailable") {
		t.Fatalf("expected unavailable status, got mode=%v %q", m.mode, m.Status())
	}
	if !strings.Contains(m.View(), "SQLite") {
		t.Fatalf("footer should show local storage")
	}
}

type stubAuth struct {
	id  auth.Identity
	err error
}

func (s stubAuth) SignIn(ctx context.Context, email, password string) (auth.Identity, error) {
	if s.err != nil {
		return auth.Identity{}, s.err
	}
	if password != "secret" {
		return auth.Identity{}, auth.ErrInvalidCredentials
	}
	return s.id, nil
}
func (s stubAuth) SignOut(context.Context) error                { return nil }
func (s stubAuth) Current(context.Context) (auth.Identity, bool) { return auth.Identity{}, false }

type memFeed struct {
	events chan remote.Snapshot
	once   sync.Once
}

func (f *memFeed) Events() <-chan remote.Snapshot { return f.events }
func (f *memFeed) Errors() <-chan error           { return nil }
func (f *memFeed) Close()                         { f.once.Do(func() { close(f.events) }) }

type memBackend struct {
	mu      sync.Mutex
	docs    map[string]todo.Record
	version int64
}

func (b *memBackend) Get(ctx context.Context, uid string) (remote.Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.docs[uid]
	if !ok {
		return remote.Snapshot{}, remote.ErrNotFound
	}
	return remote.Snapshot{Record: rec, Version: b.version}, nil
}

func (b *memBackend) Set(ctx context.Context, uid string, rec todo.Record) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.docs[uid] = rec
	b.version++
	return b.version, nil
}

func (b *memBackend) Save(ctx context.Context, uid string, fields todo.Fields) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec := b.docs[uid]
	for n, l := range fields {
		if n == todo.Completed {
			rec.Completed = l
		} else {
			rec.Active = l
		}
	}
	b.docs[uid] = rec
	b.version++
	return b.version, nil
}

func (b *memBackend) Subscribe(ctx context.Context, uid string) (remote.Feed, error) {
	return &memFeed{events: make(chan remote.Snapshot, 1)}, nil
}

func TestLoginFlowAndLogout(t *testing.T) {
	backend := &memBackend{docs: map[string]todo.Record{
		"u1": {Active: todo.List{{ID: "r1", Text: "cloud task"}}},
	}, version: 1}
	m, ctrl, _ := newTestModel(t, app.WithRemote(backend))
	m.authn = stubAuth{id: auth.Identity{UID: "u1", Email: "me@example.com"}}

	m = send(m, runes("L"), runes("me@example.com"), enter, runes("secret"))
	if m.input.EchoMode == 0 {
		t.Fatalf("password should not be echoed")
	}
	next, cmd := m.Update(enter)
	m = next.(Model)
	if cmd == nil {
		t.Fatalf("expected a sign-in command")
	}
	m = send(m, cmd())
	if ctrl.Backend() != app.BackendRemote {
		t.Fatalf("expected remote backend, status %q", m.Status())
	}
	if got := texts(ctrl.Selected()); !reflect.DeepEqual(got, []string{"cloud task"}) {
		t.Fatalf("remote record not loaded: %v", got)
	}
	if !strings.Contains(m.View(), "me@example.com") {
		t.Fatalf("footer should show the signed-in email")
	}

	m = send(m, changeMsg(app.Change{UID: "u1", Record: todo.Record{Active: todo.List{{ID: "r2", Text: "other device"}}}, Version: 2}))
	if got := texts(ctrl.Selected()); !reflect.DeepEqual(got, []string{"other device"}) {
		t.Fatalf("remote change not applied: %v", got)
	}

	m = send(m, runes("O"))
	if ctrl.Backend() != app.BackendLocal || ctrl.Len(todo.Active) != 0 {
		t.Fatalf("logout should reset lists and revert to local")
	}
}

func TestLoginFailureStaysSignedOut(t *testing.T) {
	backend := &memBackend{docs: map[string]todo.Record{}}
	m, ctrl, _ := newTestModel(t, app.WithRemote(backend))
	m.authn = stubAuth{err: errors.New("popup blocked")}

	m = send(m, runes("L"), runes("me@example.com"), enter, runes("x"))
	next, cmd := m.Update(enter)
	m = send(next.(Model), cmd())
	if ctrl.Backend() != app.BackendLocal {
		t.Fatalf("failed sign-in must stay local")
	}
	if !strings.Contains(m.Status(), "sign-in failed") {
		t.Fatalf("expected failure status, got %q", m.Status())
	}
}

func TestStaleChangeIgnoredWhenSignedOut(t *testing.T) {
	m, ctrl, _ := newTestModel(t)
	m = send(m, changeMsg(app.Change{UID: "u1", Record: todo.Record{Active: todo.List{{ID: "x", Text: "ghost"}}}}))
	if ctrl.Len(todo.Active) != 0 {
		t.Fatalf("change applied while signed out")
	}
}
