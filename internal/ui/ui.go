package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"duo/internal/app"
	"duo/internal/auth"
	"duo/internal/config"
	"duo/internal/liststore"
	"duo/internal/logging"
	"duo/internal/todo"
)

type mode int

const (
	modeList mode = iota
	modeAdd
	modeEdit
	modeGrab
	modeLogin
	modeConfirmClear
)

const authTimeout = 20 * time.Second

type (
	changeMsg    app.Change
	noticeMsg    struct{ err error }
	linkMsg      struct {
		link *app.Link
		err  error
	}
	signedOutMsg struct{ err error }
)

type loginState struct {
	email string
	step  int
}

type Model struct {
	ctrl   *app.Controller
	authn  auth.Authenticator
	cfg    config.Config
	log    *log.Logger
	cursor int
	mode   mode
	input  textinput.Model
	status string

	editID string
	drag   *dragSession
	login  *loginState
	busy   bool
}

func New(ctrl *app.Controller, authn auth.Authenticator, cfg config.Config, logger *log.Logger) Model {
	if authn == nil {
		authn = auth.Offline()
	}
	if logger == nil {
		logger = logging.Discard()
	}
	ti := textinput.New()
	ti.Placeholder = "Enter a task..."
	ti.CharLimit = ctrl.TextLimit()
	ti.Width = 40

	return Model{
		ctrl:   ctrl,
		authn:  authn,
		cfg:    cfg,
		log:    logger,
		input:  ti,
		mode:   modeList,
		cursor: clampCursor(0, len(ctrl.Selected())),
		status: fmt.Sprintf("Press '%s' to add, space to complete, '%s' to delete.", cfg.Keys.Add, cfg.Keys.Delete),
	}
}

func Run(ctrl *app.Controller, authn auth.Authenticator, cfg config.Config, logger *log.Logger) error {
	program := tea.NewProgram(New(ctrl, authn, cfg, logger))
	_, err := program.Run()
	return err
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		waitForChange(m.ctrl.Changes()),
		waitForNotice(m.ctrl.Notices()),
		m.restoreSession(),
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.input.Width = msg.Width - 10
	case changeMsg:
		if m.ctrl.ApplyRemote(app.Change(msg)) {
			if m.drag != nil {
				m.drag = nil
				m.mode = modeList
				m.status = "List changed elsewhere; move cancelled"
			}
			m.cursor = clampCursor(m.cursor, len(m.ctrl.Selected()))
		}
		return m, waitForChange(m.ctrl.Changes())
	case noticeMsg:
		m.status = fmt.Sprintf("sync failed: %v", msg.err)
		return m, waitForNotice(m.ctrl.Notices())
	case linkMsg:
		m.busy = false
		if msg.err != nil {
			if !errors.Is(msg.err, auth.ErrNotSignedIn) {
				m.log.Error("sign-in failed", "err", msg.err)
				m.status = fmt.Sprintf("sign-in failed: %v", msg.err)
			}
			return m, nil
		}
		m.ctrl.Attach(msg.link)
		m.cursor = clampCursor(m.cursor, len(m.ctrl.Selected()))
		m.status = "Signed in as " + msg.link.Identity.Email
	case signedOutMsg:
		if msg.err != nil {
			m.log.Warn("sign-out", "err", msg.err)
		}
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" {
		return m, tea.Quit
	}
	switch m.mode {
	case modeAdd:
		return m.updateAddMode(key, msg)
	case modeEdit:
		return m.updateEditMode(key, msg)
	case modeGrab:
		return m.updateGrabMode(key)
	case modeLogin:
		return m.updateLoginMode(key, msg)
	case modeConfirmClear:
		return m.updateClearConfirm(key)
	}
	return m.updateListMode(key)
}

func (m Model) updateAddMode(key string, msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key {
	case m.cfg.Keys.Cancel:
		m.mode = modeList
		m.input.SetValue("")
		m.input.Blur()
		m.status = "Cancelled"
		return m, nil
	case m.cfg.Keys.Confirm:
		if _, err := m.ctrl.Submit(m.input.Value()); err != nil {
			if errors.Is(err, liststore.ErrEmptyText) {
				m.status = "Task cannot be empty"
			} else {
				m.status = fmt.Sprintf("add failed: %v", err)
			}
			return m, nil
		}
		m.cursor = clampCursor(len(m.ctrl.Selected())-1, len(m.ctrl.Selected()))
		m.status = "Added task"
		m.input.SetValue("")
		return m, nil
	default:
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
}

func (m Model) updateEditMode(key string, msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key {
	case m.cfg.Keys.Cancel:
		m.leaveInput()
		m.status = "Edit cancelled"
		return m, nil
	case m.cfg.Keys.Confirm, "tab", "up", "down":
		if m.ctrl.CommitEdit(m.editID, m.input.Value()) {
			m.status = "Saved"
		}
		m.leaveInput()
		return m, nil
	default:
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
}

func (m *Model) leaveInput() {
	m.mode = modeList
	m.editID = ""
	m.input.SetValue("")
	m.input.Blur()
	m.input.EchoMode = textinput.EchoNormal
	m.input.CharLimit = m.ctrl.TextLimit()
	m.input.Placeholder = "Enter a task..."
}

func (m Model) updateListMode(key string) (tea.Model, tea.Cmd) {
	items := m.ctrl.Selected()
	switch key {
	case m.cfg.Keys.Quit:
		return m, tea.Quit
	case m.cfg.Keys.Down, "down":
		m.cursor = clampCursor(m.cursor+1, len(items))
	case m.cfg.Keys.Up, "up":
		m.cursor = clampCursor(m.cursor-1, len(items))
	case m.cfg.Keys.Add:
		m.mode = modeAdd
		m.input.Focus()
		m.status = "Type a task and press Enter (esc to stop adding)"
	case m.cfg.Keys.Toggle:
		if len(items) == 0 {
			return m, nil
		}
		it := items[m.cursor]
		if m.ctrl.Toggle(it.ID) {
			m.status = fmt.Sprintf("Moved %q to %s", it.Text, m.ctrl.View().Other())
		}
		m.cursor = clampCursor(m.cursor, len(m.ctrl.Selected()))
	case m.cfg.Keys.Delete:
		if len(items) == 0 {
			return m, nil
		}
		it := items[m.cursor]
		if m.ctrl.Delete(it.ID) {
			m.status = fmt.Sprintf("Deleted %q", it.Text)
		}
		m.cursor = clampCursor(m.cursor, len(m.ctrl.Selected()))
	case m.cfg.Keys.Edit:
		if len(items) == 0 {
			m.status = "No tasks to edit"
			return m, nil
		}
		it := items[m.cursor]
		m.mode = modeEdit
		m.editID = it.ID
		m.input.SetValue(it.Text)
		m.input.CursorEnd()
		m.input.Focus()
		m.status = "Editing: enter to save, esc to cancel"
	case m.cfg.Keys.Grab:
		if len(items) == 0 {
			return m, nil
		}
		m.drag = startDrag(items, m.cursor)
		m.mode = modeGrab
		m.status = "Moving: up/down to move, enter or g to drop, esc to cancel"
	case m.cfg.Keys.SwitchView:
		m.ctrl.SelectView(m.ctrl.View().Other())
		m.cursor = clampCursor(0, len(m.ctrl.Selected()))
		m.status = "Showing " + string(m.ctrl.View())
	case m.cfg.Keys.Clear:
		m.mode = modeConfirmClear
		m.status = "Clear local storage? y/n"
	case m.cfg.Keys.Login:
		return m.startLogin()
	case m.cfg.Keys.Logout:
		if _, ok := m.ctrl.Identity(); !ok {
			m.status = "Not signed in"
			return m, nil
		}
		m.ctrl.SignOut()
		m.cursor = 0
		m.status = "Signed out; using local storage"
		return m, m.signOutCmd()
	}
	return m, nil
}

func (m Model) updateGrabMode(key string) (tea.Model, tea.Cmd) {
	switch key {
	case m.cfg.Keys.Up, "up":
		m.drag.move(-1)
		m.cursor = m.drag.pos
	case m.cfg.Keys.Down, "down":
		m.drag.move(1)
		m.cursor = m.drag.pos
	case m.cfg.Keys.Cancel:
		m.cursor = m.drag.origin
		m.drag = nil
		m.mode = modeList
		m.status = "Move cancelled"
	case m.cfg.Keys.Confirm, m.cfg.Keys.Grab:
		order := m.drag.order
		m.drag = nil
		m.mode = modeList
		if err := m.ctrl.Reorder(order); err != nil {
			m.status = fmt.Sprintf("reorder failed: %v", err)
			return m, nil
		}
		m.status = "Moved"
	}
	return m, nil
}

func (m Model) updateClearConfirm(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "y", "Y":
		if err := m.ctrl.ClearStorage(context.Background()); err != nil {
			m.status = fmt.Sprintf("clear failed: %v", err)
		} else {
			m.status = "Local storage cleared"
		}
		m.cursor = 0
		m.mode = modeList
	case "n", "N", m.cfg.Keys.Cancel:
		m.status = "Clear cancelled"
		m.mode = modeList
	}
	return m, nil
}

func (m Model) startLogin() (tea.Model, tea.Cmd) {
	if !m.ctrl.RemoteAvailable() {
		m.status = "Sign-in unavailable: no remote_dsn configured"
		return m, nil
	}
	if id, ok := m.ctrl.Identity(); ok {
		m.status = "Already signed in as " + id.Email
		return m, nil
	}
	if m.busy {
		m.status = "Signing in..."
		return m, nil
	}
	m.login = &loginState{}
	m.mode = modeLogin
	m.input.SetValue("")
	m.input.CharLimit = 0
	m.input.Placeholder = "email"
	m.input.Focus()
	m.status = "Sign in: email, then password (esc to cancel)"
	return m, nil
}

func (m Model) updateLoginMode(key string, msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key {
	case m.cfg.Keys.Cancel:
		m.login = nil
		m.leaveInput()
		m.status = "Sign-in cancelled"
		return m, nil
	case m.cfg.Keys.Confirm:
		if m.login.step == 0 {
			m.login.email = strings.TrimSpace(m.input.Value())
			m.login.step = 1
			m.input.SetValue("")
			m.input.Placeholder = "password"
			m.input.EchoMode = textinput.EchoPassword
			return m, nil
		}
		email, password := m.login.email, m.input.Value()
		m.login = nil
		m.leaveInput()
		m.busy = true
		m.status = "Signing in..."
		return m, m.signInCmd(email, password)
	default:
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
}

// signInCmd runs the network part of sign-in off the event loop. The seed is
// captured now, on the loop.
func (m Model) signInCmd(email, password string) tea.Cmd {
	authn, ctrl, seed := m.authn, m.ctrl, m.ctrl.Record()
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), authTimeout)
		defer cancel()
		id, err := authn.SignIn(ctx, email, password)
		if err != nil {
			return linkMsg{err: err}
		}
		link, err := ctrl.Connect(ctx, id, seed)
		return linkMsg{link: link, err: err}
	}
}

// restoreSession picks up an identity left signed in by a previous run.
func (m Model) restoreSession() tea.Cmd {
	if !m.ctrl.RemoteAvailable() {
		return nil
	}
	authn, ctrl, seed := m.authn, m.ctrl, m.ctrl.Record()
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), authTimeout)
		defer cancel()
		id, ok := authn.Current(ctx)
		if !ok {
			return linkMsg{err: auth.ErrNotSignedIn}
		}
		link, err := ctrl.Connect(ctx, id, seed)
		return linkMsg{link: link, err: err}
	}
}

func (m Model) signOutCmd() tea.Cmd {
	authn := m.authn
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), authTimeout)
		defer cancel()
		return signedOutMsg{err: authn.SignOut(ctx)}
	}
}

func waitForChange(ch <-chan app.Change) tea.Cmd {
	return func() tea.Msg {
		c, ok := <-ch
		if !ok {
			return nil
		}
		return changeMsg(c)
	}
}

func waitForNotice(ch <-chan error) tea.Cmd {
	return func() tea.Msg {
		err, ok := <-ch
		if !ok {
			return nil
		}
		return noticeMsg{err: err}
	}
}

func clampCursor(cur, n int) int {
	if n <= 0 {
		return 0
	}
	if cur < 0 {
		return 0
	}
	if cur >= n {
		return n - 1
	}
	return cur
}

// Items returns what the list area currently shows, including an in-progress move.
func (m Model) Items() todo.List {
	if m.drag != nil {
		return m.drag.order.Clone()
	}
	return m.ctrl.Selected()
}

func (m Model) Status() string { return m.status }
