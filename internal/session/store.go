package session

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"

	"reconstudy/internal/models"
	"reconstudy/internal/redis"
)

// ErrSessionNotFound is returned when a token resolves to no live session.
var ErrSessionNotFound = errors.New("session not found")

const cacheKeyPrefix = "study_session:"

// Store persists sessions in the database with a redis cache in front. The
// database row is authoritative; the cache only cuts lookups on the hot path.
type Store struct {
	db    *sql.DB
	cache *redis.Client
	ttl   time.Duration
}

// NewStore constructs a session store. cache may be nil.
func NewStore(db *sql.DB, cache *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &Store{db: db, cache: cache, ttl: ttl}
}

// TTL reports the configured session lifetime.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Create mints a session for the user and persists it.
func (s *Store) Create(ctx context.Context, userID string) (*Session, error) {
	if userID == "" {
		return nil, errors.New("user id required")
	}
	now := time.Now().UTC()
	var lastErr error
	for i := 0; i < 5; i++ {
		token, err := generateToken()
		if err != nil {
			return nil, err
		}
		candidate := &Session{
			Token:     token,
			UserID:    userID,
			Completed: map[models.Level]int{},
			CreatedAt: now,
			UpdatedAt: now,
			ExpiresAt: now.Add(s.ttl),
		}
		state, err := json.Marshal(candidate)
		if err != nil {
			return nil, fmt.Errorf("encode session: %w", err)
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO study_sessions (token, user_id, state, created_at, updated_at, expires_at) VALUES (?, ?, ?, ?, ?, ?)`,
			token, userID, string(state), now, now, candidate.ExpiresAt,
		)
		if err == nil {
			s.prime(ctx, candidate, state)
			return candidate, nil
		}
		// Only a token collision is worth a retry with a fresh token.
		if !isDuplicateKey(err) {
			return nil, fmt.Errorf("insert session: %w", err)
		}
		lastErr = err
	}
	return nil, fmt.Errorf("create session: token collisions persisted: %w", lastErr)
}

// isDuplicateKey reports whether err is a primary-key/unique violation from
// one of the supported drivers.
func isDuplicateKey(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

// Get resolves a token to its session, consulting the cache first.
func (s *Store) Get(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrSessionNotFound
	}

	if raw, err := s.cache.Get(ctx, cacheKeyPrefix+token); err == nil {
		var sess Session
		if err := json.Unmarshal([]byte(raw), &sess); err == nil {
			if time.Now().UTC().After(sess.ExpiresAt) {
				_ = s.Delete(ctx, token)
				return nil, ErrSessionNotFound
			}
			return &sess, nil
		}
	}

	var state string
	var expires time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT state, expires_at FROM study_sessions WHERE token = ?`, token,
	).Scan(&state, &expires)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("lookup session: %w", err)
	}
	if time.Now().UTC().After(expires) {
		_ = s.Delete(ctx, token)
		return nil, ErrSessionNotFound
	}

	var sess Session
	if err := json.Unmarshal([]byte(state), &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	s.prime(ctx, &sess, []byte(state))
	return &sess, nil
}

// Save writes the session back, refreshing the update timestamp.
func (s *Store) Save(ctx context.Context, sess *Session) error {
	if sess == nil || sess.Token == "" {
		return errors.New("session token required")
	}
	sess.UpdatedAt = time.Now().UTC()
	state, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE study_sessions SET state = ?, updated_at = ? WHERE token = ?`,
		string(state), sess.UpdatedAt, sess.Token,
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrSessionNotFound
	}
	s.prime(ctx, sess, state)
	return nil
}

// Delete removes a session from both stores.
func (s *Store) Delete(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM study_sessions WHERE token = ?`, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	_ = s.cache.Del(ctx, cacheKeyPrefix+token)
	return nil
}

// PurgeExpired removes rows past their expiry. Called periodically from main.
func (s *Store) PurgeExpired(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM study_sessions WHERE expires_at < ?`, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("purge sessions: %w", err)
	}
	return nil
}

func (s *Store) prime(ctx context.Context, sess *Session, state []byte) {
	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		return
	}
	_ = s.cache.Set(ctx, cacheKeyPrefix+sess.Token, string(state), ttl)
}

// NewCSRFToken returns a random token for double-submit CSRF protection.
func (s *Store) NewCSRFToken() (string, error) {
	return generateToken()
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
