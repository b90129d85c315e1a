package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"duo/internal/todo"
)

const sessionTTL = 30 * 24 * time.Hour

var (
	placeholderOnce sync.Once
	placeholder     []byte
)

// placeholderHash is compared against when the email is unknown.
func placeholderHash() []byte {
	placeholderOnce.Do(func() {
		placeholder, _ = bcrypt.GenerateFromPassword([]byte("duo-placeholder-password"), bcrypt.DefaultCost)
	})
	return placeholder
}

// Manager signs identities in against the remote store's user table and
// keeps the resulting session token in a TokenFile.
type Manager struct {
	db     *pgxpool.Pool
	tokens TokenFile
}

func NewManager(db *pgxpool.Pool, tokens TokenFile) *Manager {
	return &Manager{db: db, tokens: tokens}
}

func (m *Manager) Register(ctx context.Context, email, password string) (Identity, error) {
	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return Identity{}, fmt.Errorf("invalid email %q", email)
	}
	if len(password) < 6 {
		return Identity{}, errors.New("password must be at least 6 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Identity{}, err
	}
	id := Identity{UID: todo.NewID(), Email: email}
	_, err = m.db.Exec(ctx, `insert into todo_users(id, email, password_hash) values($1,$2,$3)`, id.UID, id.Email, string(hash))
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return Identity{}, ErrEmailTaken
	}
	if err != nil {
		return Identity{}, err
	}
	return id, nil
}

func (m *Manager) SignIn(ctx context.Context, email, password string) (Identity, error) {
	email = normalizeEmail(email)
	var id Identity
	var hash string
	err := m.db.QueryRow(ctx, `select id, email, password_hash from todo_users where email=$1`, email).
		Scan(&id.UID, &id.Email, &hash)
	if errors.Is(err, pgx.ErrNoRows) {
		// Same bcrypt cost as a real mismatch.
		_ = bcrypt.CompareHashAndPassword(placeholderHash(), []byte(password))
		return Identity{}, ErrInvalidCredentials
	}
	if err != nil {
		return Identity{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return Identity{}, ErrInvalidCredentials
	}

	token, err := newToken()
	if err != nil {
		return Identity{}, err
	}
	expires := time.Now().Add(sessionTTL)
	if _, err := m.db.Exec(ctx, `insert into todo_sessions(token, user_id, expires_at) values($1,$2,$3)`, token, id.UID, expires); err != nil {
		return Identity{}, err
	}
	if err := m.tokens.Save(token); err != nil {
		return Identity{}, err
	}
	return id, nil
}

func (m *Manager) SignOut(ctx context.Context) error {
	token, err := m.tokens.Load()
	if err != nil {
		return err
	}
	if token == "" {
		return ErrNotSignedIn
	}
	if _, err := m.db.Exec(ctx, `delete from todo_sessions where token=$1`, token); err != nil {
		return err
	}
	return m.tokens.Delete()
}

func (m *Manager) Current(ctx context.Context) (Identity, bool) {
	token, err := m.tokens.Load()
	if err != nil || token == "" {
		return Identity{}, false
	}
	var id Identity
	err = m.db.QueryRow(ctx, `select u.id, u.email
		from todo_sessions s join todo_users u on u.id=s.user_id
		where s.token=$1 and s.expires_at > now()`, token).Scan(&id.UID, &id.Email)
	if err != nil {
		return Identity{}, false
	}
	return id, true
}

func newToken() (string, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b[:]), nil
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
