// Package app is the view controller: it turns user actions into list store
// mutations, persists what changed through the backend chosen by the current
// session, and feeds remote changes back into memory.
//
// Controller methods are meant to be called from a single goroutine (the UI
// event loop). Remote snapshots arrive on Changes and are applied with
// ApplyRemote on that same goroutine, so they never interleave with a local
// mutation.
package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"duo/internal/auth"
	"duo/internal/liststore"
	"duo/internal/logging"
	"duo/internal/remote"
	"duo/internal/storage"
	"duo/internal/todo"
)

const (
	BackendLocal  = "local"
	BackendRemote = "remote"
)

// Change is a remote snapshot for the identity UID, read at Version.
type Change struct {
	UID     string
	Record  todo.Record
	Version int64
}

type Controller struct {
	store  *liststore.Store
	local  *storage.Store
	remote remote.Backend
	log    *log.Logger
	wopts  []remote.WriterOption

	session auth.Session
	writer  *remote.Writer
	applied int64
	feed    remote.Feed
	stop    chan struct{}
	fwd     sync.WaitGroup
	pending sync.WaitGroup

	changes chan Change
	notices chan error
}

type Option func(*Controller)

// WithRemote enables signing in. Without it the controller is local-only.
func WithRemote(b remote.Backend) Option {
	return func(c *Controller) { c.remote = b }
}

func WithLogger(l *log.Logger) Option {
	return func(c *Controller) { c.log = l }
}

func WithWriterOptions(opts ...remote.WriterOption) Option {
	return func(c *Controller) { c.wopts = opts }
}

func New(store *liststore.Store, local *storage.Store, opts ...Option) *Controller {
	if local == nil {
		local = storage.Disabled()
	}
	c := &Controller{
		store:   store,
		local:   local,
		log:     logging.Discard(),
		changes: make(chan Change, 8),
		notices: make(chan error, 16),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Changes delivers remote snapshots; pass them to ApplyRemote.
func (c *Controller) Changes() <-chan Change { return c.changes }

// Notices delivers non-fatal errors worth showing to the user.
func (c *Controller) Notices() <-chan error { return c.notices }

func (c *Controller) View() todo.ListName { return c.store.View() }

func (c *Controller) Selected() todo.List { return c.store.Selected() }

func (c *Controller) Len(name todo.ListName) int { return c.store.Len(name) }

func (c *Controller) Record() todo.Record { return c.store.Record() }

func (c *Controller) TextLimit() int { return c.store.TextLimit() }

func (c *Controller) RemoteAvailable() bool { return c.remote != nil }

func (c *Controller) Identity() (auth.Identity, bool) { return c.session.Current() }

func (c *Controller) Backend() string {
	if _, ok := c.session.Current(); ok {
		return BackendRemote
	}
	return BackendLocal
}

// Load fills memory from local storage. It does nothing while signed in.
func (c *Controller) Load(ctx context.Context) error {
	if _, ok := c.session.Current(); ok {
		return nil
	}
	rec, err := c.local.LoadRecord(ctx)
	if err != nil {
		c.log.Warn("local storage unreadable", "err", err)
		return nil
	}
	c.store.Apply(rec)
	return nil
}

func (c *Controller) Submit(text string) (todo.Item, error) {
	it, err := c.store.Create(text)
	if err != nil {
		return it, err
	}
	c.persist(c.store.View())
	return it, nil
}

func (c *Controller) Delete(id string) bool {
	if !c.store.Remove(id) {
		return false
	}
	c.persist(c.store.View())
	return true
}

func (c *Controller) CommitEdit(id, text string) bool {
	if !c.store.Edit(id, text) {
		return false
	}
	c.persist(c.store.View())
	return true
}

func (c *Controller) Reorder(order todo.List) error {
	if err := c.store.Reorder(order); err != nil {
		return err
	}
	c.persist(c.store.View())
	return nil
}

// Toggle moves an item to the other list and writes both lists in one save.
func (c *Controller) Toggle(id string) bool {
	if _, ok := c.store.Toggle(id); !ok {
		return false
	}
	c.persist(todo.Active, todo.Completed)
	return true
}

func (c *Controller) SelectView(name todo.ListName) {
	c.store.SelectView(name)
}

// ClearStorage wipes local storage and memory. The remote record is untouched.
func (c *Controller) ClearStorage(ctx context.Context) error {
	if err := c.local.Clear(ctx); err != nil {
		c.log.Warn("local clear failed", "err", err)
	}
	c.store.Reset()
	c.log.Info("storage cleared")
	return nil
}

func (c *Controller) persist(names ...todo.ListName) {
	fields := make(todo.Fields, len(names))
	for _, n := range names {
		fields[n] = c.store.List(n)
	}
	if id, ok := c.session.Current(); ok {
		if !c.writer.Enqueue(fields) {
			c.log.Warn("remote writer closed, save dropped", "uid", id.UID)
		}
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.local.Save(ctx, fields); err != nil {
		// Local storage being full or unavailable is not an error for the user.
		c.log.Warn("local save failed", "err", err)
	}
}

// Link is a prepared remote session, produced off the event loop by Connect
// and installed on it by Attach.
type Link struct {
	Identity auth.Identity
	Record   todo.Record
	Version  int64
	Seeded   bool
	feed     remote.Feed
}

// Connect reads the identity's document, seeding it from seed when none
// exists yet, and opens the change feed. It does not touch memory.
func (c *Controller) Connect(ctx context.Context, id auth.Identity, seed todo.Record) (*Link, error) {
	if c.remote == nil {
		return nil, auth.ErrRemoteUnavailable
	}
	l := &Link{Identity: id}
	snap, err := c.remote.Get(ctx, id.UID)
	switch {
	case errors.Is(err, remote.ErrNotFound):
		version, err := c.remote.Set(ctx, id.UID, seed)
		if err != nil {
			return nil, fmt.Errorf("seed remote record: %w", err)
		}
		l.Record, l.Version, l.Seeded = seed, version, true
	case err != nil:
		return nil, fmt.Errorf("read remote record: %w", err)
	default:
		l.Record, l.Version = snap.Record, snap.Version
	}
	feed, err := c.remote.Subscribe(ctx, id.UID)
	if err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	l.feed = feed
	return l, nil
}

// Attach switches persistence to the remote backend for l's identity.
func (c *Controller) Attach(l *Link) {
	if _, ok := c.session.Current(); ok {
		c.detach()
	}
	uid := l.Identity.UID
	c.session.Set(l.Identity)
	c.applied = l.Version
	c.writer = remote.NewWriter(c.remote, uid, c.reportRemote, c.wopts...)
	if l.Seeded {
		// Memory may have moved on while Connect ran; push what we have now.
		if cur := c.store.Record(); !sameRecord(cur, l.Record) {
			c.persist(todo.Active, todo.Completed)
		}
	} else {
		c.store.Apply(l.Record)
	}
	c.feed = l.feed
	c.stop = make(chan struct{})
	c.fwd.Add(1)
	go c.forward(l.feed, uid, c.stop)
	c.log.Info("signed in", "uid", uid, "email", l.Identity.Email, "seeded", l.Seeded)
}

// SignIn is Connect followed by Attach, for callers without an event loop.
func (c *Controller) SignIn(ctx context.Context, id auth.Identity) error {
	l, err := c.Connect(ctx, id, c.store.Record())
	if err != nil {
		return err
	}
	c.Attach(l)
	return nil
}

// SignOut drops the remote session, empties memory and reverts to local
// storage. Calling it while signed out does nothing.
func (c *Controller) SignOut() {
	id, ok := c.session.Current()
	if !ok {
		return
	}
	c.detach()
	c.store.Reset()
	c.log.Info("signed out", "uid", id.UID)
}

// ApplyRemote installs a snapshot from Changes. It is ignored when it belongs
// to an identity that is no longer signed in, while local saves are still in
// flight (memory is ahead of the remote), or when it is older than a version
// already applied or written by this controller.
func (c *Controller) ApplyRemote(ch Change) bool {
	id, ok := c.session.Current()
	if !ok || id.UID != ch.UID {
		return false
	}
	if c.writer.Pending() > 0 {
		c.log.Debug("remote snapshot skipped, saves in flight", "version", ch.Version)
		return false
	}
	if ch.Version < max(c.applied, c.writer.Acked()) {
		c.log.Debug("stale remote snapshot dropped", "version", ch.Version)
		return false
	}
	c.store.Apply(ch.Record)
	c.applied = ch.Version
	return true
}

// Close tears down remote resources and waits for queued remote saves.
func (c *Controller) Close() {
	if _, ok := c.session.Current(); ok {
		c.detach()
	}
	c.pending.Wait()
}

func (c *Controller) detach() {
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	if c.feed != nil {
		c.feed.Close()
		c.feed = nil
	}
	c.fwd.Wait()
	if w := c.writer; w != nil {
		c.writer = nil
		c.pending.Add(1)
		go func() {
			defer c.pending.Done()
			w.Close()
		}()
	}
	c.applied = 0
	c.session.Clear()
}

func (c *Controller) forward(feed remote.Feed, uid string, stop <-chan struct{}) {
	defer c.fwd.Done()
	for {
		select {
		case <-stop:
			return
		case snap, ok := <-feed.Events():
			if !ok {
				return
			}
			select {
			case c.changes <- Change{UID: uid, Record: snap.Record, Version: snap.Version}:
			case <-stop:
				return
			}
		case err := <-feed.Errors():
			c.reportRemote(err)
		}
	}
}

func sameRecord(a, b todo.Record) bool {
	return slices.Equal(a.Active, b.Active) && slices.Equal(a.Completed, b.Completed)
}

func (c *Controller) reportRemote(err error) {
	c.log.Error("remote sync failed", "err", err)
	select {
	case c.notices <- err:
	default:
	}
}
