// Package remote is the signed-in persistence backend: one JSON document per
// identity in Postgres, with a LISTEN/NOTIFY change feed.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"duo/internal/todo"
)

var ErrNotFound = errors.New("document not found")

const notifyChannel = "todo_documents"

// Snapshot is a document as read, with the write counter it was read at.
// Each successful Set or Save bumps Version by one.
type Snapshot struct {
	Record  todo.Record
	Version int64
}

// Backend is what the view controller needs from the document store.
type Backend interface {
	Get(ctx context.Context, uid string) (Snapshot, error)
	Set(ctx context.Context, uid string, rec todo.Record) (int64, error)
	Save(ctx context.Context, uid string, fields todo.Fields) (int64, error)
	Subscribe(ctx context.Context, uid string) (Feed, error)
}

type Client struct {
	pool *pgxpool.Pool
}

func Connect(ctx context.Context, dsn string) (*Client, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 4
	cfg.MaxConnLifetime = 30 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Client{pool: pool}, nil
}

// Pool exposes the connection pool to the auth tables' store.
func (c *Client) Pool() *pgxpool.Pool { return c.pool }

func (c *Client) Close() {
	c.pool.Close()
}

func (c *Client) Migrate(ctx context.Context) error {
	_, err := c.pool.Exec(ctx, schema)
	return err
}

// Get returns the identity's document, or ErrNotFound.
func (c *Client) Get(ctx context.Context, uid string) (Snapshot, error) {
	var raw []byte
	var version int64
	err := c.pool.QueryRow(ctx, `select doc, version from todo_documents where uid=$1`, uid).Scan(&raw, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, err
	}
	var rec todo.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Snapshot{}, fmt.Errorf("decode document: %w", err)
	}
	return Snapshot{Record: rec, Version: version}, nil
}

// Set replaces the whole document and returns its new version.
func (c *Client) Set(ctx context.Context, uid string, rec todo.Record) (int64, error) {
	if rec.Active == nil {
		rec.Active = todo.List{}
	}
	if rec.Completed == nil {
		rec.Completed = todo.List{}
	}
	doc, err := json.Marshal(rec)
	if err != nil {
		return 0, err
	}
	var version int64
	err = c.pool.QueryRow(ctx, `insert into todo_documents(uid, doc) values($1, $2::jsonb)
		on conflict(uid) do update set doc=excluded.doc, version=todo_documents.version+1, updated_at=now()
		returning version`, uid, string(doc)).Scan(&version)
	return version, err
}

// Save merges the given lists into the document, creating it if needed, and
// returns the new version.
func (c *Client) Save(ctx context.Context, uid string, fields todo.Fields) (int64, error) {
	if len(fields) == 0 {
		return 0, nil
	}
	patch := make(map[string]todo.List, len(fields))
	for name, list := range fields {
		if list == nil {
			list = todo.List{}
		}
		patch[name.StorageKey()] = list
	}
	doc, err := json.Marshal(patch)
	if err != nil {
		return 0, err
	}
	var version int64
	err = c.pool.QueryRow(ctx, `insert into todo_documents(uid, doc) values($1, $2::jsonb)
		on conflict(uid) do update set doc=todo_documents.doc || excluded.doc, version=todo_documents.version+1, updated_at=now()
		returning version`, uid, string(doc)).Scan(&version)
	return version, err
}

const schema = `
create table if not exists todo_documents(
  uid text primary key,
  doc jsonb not null default '{}'::jsonb,
  version bigint not null default 1,
  updated_at timestamptz not null default now()
);

alter table todo_documents add column if not exists version bigint not null default 1;

create or replace function todo_documents_notify() returns trigger as $$
begin
  perform pg_notify('todo_documents', new.uid);
  return new;
end;
$$ language plpgsql;

drop trigger if exists todo_documents_changed on todo_documents;
create trigger todo_documents_changed after insert or update on todo_documents
  for each row execute function todo_documents_notify();

create table if not exists todo_users(
  id text primary key,
  email text not null unique,
  password_hash text not null,
  created_at timestamptz not null default now()
);

create table if not exists todo_sessions(
  token text primary key,
  user_id text not null references todo_users(id) on delete cascade,
  expires_at timestamptz not null,
  created_at timestamptz not null default now()
);
`
