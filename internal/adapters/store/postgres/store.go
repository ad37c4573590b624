// Package postgres stores accounts in PostgreSQL and announces changes with NOTIFY.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bnema/license-sessions-cli/internal/domain"
	"github.com/bnema/license-sessions-cli/internal/logger"
	"github.com/bnema/license-sessions-cli/internal/ports"
	"github.com/bnema/license-sessions-cli/internal/stream"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

const (
	changesChannel = "lsc_account_changes"

	// SQLSTATE raised when a serializable transaction loses to a concurrent one.
	serializationFailure = "40001"
	maxSerializeRetries  = 5
)

// ErrWriteConflict reports that concurrent session writes kept invalidating each other.
var ErrWriteConflict = errors.New("session write kept conflicting with concurrent writers, try again")

type Options struct {
	// EnforceQuota counts the billing window inside a serializable transaction before every
	// session insert, so concurrent writers cannot exceed the quota.
	EnforceQuota bool
}

// listener is the part of *pq.Listener the store relies on.
type listener interface {
	Listen(channel string) error
	NotificationChannel() <-chan *pq.Notification
	Ping() error
	Close() error
}

type Store struct {
	db          *sql.DB
	dsn         string
	opts        Options
	logger      *zap.Logger
	newID       func() string
	newListener func(dsn string, onEvent pq.EventCallbackType) listener
	pingEvery   time.Duration
}

var _ ports.AccountStore = (*Store)(nil)

// Open connects, pings and migrates.
func Open(ctx context.Context, dsn string, opts Options, l *zap.Logger) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	store := NewStore(db, dsn, opts, l)
	if err := store.Migrate(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func NewStore(db *sql.DB, dsn string, opts Options, l *zap.Logger) *Store {
	return &Store{
		db:     db,
		dsn:    dsn,
		opts:   opts,
		logger: logger.OrNop(l),
		newID:  uuid.NewString,
		newListener: func(dsn string, onEvent pq.EventCallbackType) listener {
			return pq.NewListener(dsn, 10*time.Second, time.Minute, onEvent)
		},
		pingEvery: 90 * time.Second,
	}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL,
			price NUMERIC NOT NULL CHECK (price >= 0),
			start_date DATE NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		"CREATE INDEX IF NOT EXISTS idx_accounts_user_id ON accounts(user_id)",
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			user_id TEXT NOT NULL,
			start_time TIMESTAMPTZ NOT NULL,
			end_time TIMESTAMPTZ NOT NULL,
			time_zone TEXT NOT NULL DEFAULT ''
		)`,
		"CREATE INDEX IF NOT EXISTS idx_sessions_account_start ON sessions(account_id, start_time)",
		"CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id)",
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *Store) Snapshot(ctx context.Context, userID domain.UserID) (domain.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, price, start_date FROM accounts WHERE user_id = $1 ORDER BY created_at, id",
		string(userID),
	)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	index := map[domain.AccountID]int{}
	for rows.Next() {
		var account domain.Account
		if err := rows.Scan(&account.ID, &account.Name, &account.Price, &account.StartDate); err != nil {
			return domain.Snapshot{}, fmt.Errorf("scan account: %w", err)
		}
		account.Sessions = map[domain.SessionID]domain.Session{}
		index[account.ID] = len(accounts)
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return domain.Snapshot{}, fmt.Errorf("query accounts: %w", err)
	}

	sessionRows, err := s.db.QueryContext(ctx,
		"SELECT id, account_id, start_time, end_time, time_zone FROM sessions WHERE user_id = $1",
		string(userID),
	)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("query sessions: %w", err)
	}
	defer sessionRows.Close()

	zones := map[string]*time.Location{}
	for sessionRows.Next() {
		var (
			session   domain.Session
			accountID domain.AccountID
			zone      string
		)
		if err := sessionRows.Scan(&session.ID, &accountID, &session.StartTime, &session.EndTime, &zone); err != nil {
			return domain.Snapshot{}, fmt.Errorf("scan session: %w", err)
		}

		i, ok := index[accountID]
		if !ok {
			continue
		}
		if loc := s.location(zones, zone); loc != nil {
			session.StartTime = session.StartTime.In(loc)
			session.EndTime = session.EndTime.In(loc)
		}
		accounts[i].Sessions[session.ID] = session
	}
	if err := sessionRows.Err(); err != nil {
		return domain.Snapshot{}, fmt.Errorf("query sessions: %w", err)
	}

	return domain.NewSnapshot(userID, accounts), nil
}

func (s *Store) PushAccount(ctx context.Context, userID domain.UserID, account domain.Account) (domain.AccountID, error) {
	id := domain.AccountID(s.newID())

	err := s.inTx(ctx, nil, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO accounts (id, user_id, name, price, start_date) VALUES ($1, $2, $3, $4, $5)",
			string(id), string(userID), account.Name, account.Price, domain.FormatStartDate(account.StartDate),
		)
		if err != nil {
			return fmt.Errorf("insert account: %w", err)
		}
		return notify(ctx, tx, userID)
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) PushSession(ctx context.Context, userID domain.UserID, accountID domain.AccountID, session domain.Session) (domain.SessionID, error) {
	id := domain.SessionID(s.newID())

	var opts *sql.TxOptions
	if s.opts.EnforceQuota {
		opts = &sql.TxOptions{Isolation: sql.LevelSerializable}
	}

	write := func(tx *sql.Tx) error {
		if s.opts.EnforceQuota {
			if err := checkQuota(ctx, tx, userID, accountID, session.StartTime); err != nil {
				return err
			}
		}

		result, err := tx.ExecContext(ctx,
			`INSERT INTO sessions (id, account_id, user_id, start_time, end_time, time_zone)
			SELECT $1::text, $2::text, $3::text, $4::timestamptz, $5::timestamptz, $6::text
			WHERE EXISTS (SELECT 1 FROM accounts WHERE id = $2::text AND user_id = $3::text)`,
			string(id), string(accountID), string(userID), session.StartTime, session.EndTime, zoneName(session.StartTime),
		)
		if err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
		if affected == 0 {
			return domain.ErrAccountNotFound
		}
		return notify(ctx, tx, userID)
	}

	var err error
	for attempt := 1; attempt <= maxSerializeRetries; attempt++ {
		err = s.inTx(ctx, opts, write)
		if !isSerializationFailure(err) {
			break
		}
		s.logger.Debug("retry serializable session insert",
			zap.String("account_id", string(accountID)),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
	if isSerializationFailure(err) {
		return "", fmt.Errorf("%w: %w", ErrWriteConflict, err)
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

// RemoveSession deletes a session; nothing is announced when it did not exist.
func (s *Store) RemoveSession(ctx context.Context, userID domain.UserID, accountID domain.AccountID, sessionID domain.SessionID) error {
	return s.inTx(ctx, nil, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			"DELETE FROM sessions WHERE id = $1 AND account_id = $2 AND user_id = $3",
			string(sessionID), string(accountID), string(userID),
		)
		if err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
		if affected == 0 {
			return nil
		}
		return notify(ctx, tx, userID)
	})
}

// Subscribe listens for change notifications of userID on a dedicated connection. A
// reconnect also triggers a reload since notifications may have been missed meanwhile.
func (s *Store) Subscribe(ctx context.Context, userID domain.UserID) (<-chan domain.Snapshot, error) {
	l := s.newListener(s.dsn, func(event pq.ListenerEventType, err error) {
		if err != nil {
			s.logger.Warn("postgres listener event", zap.Int("event", int(event)), zap.Error(err))
		}
	})
	if err := l.Listen(changesChannel); err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("listen for account changes: %w", err)
	}

	initial, err := s.Snapshot(ctx, userID)
	if err != nil {
		_ = l.Close()
		return nil, err
	}

	out := make(chan domain.Snapshot, 1)
	out <- initial

	go s.watch(ctx, l, userID, out)
	return out, nil
}

func (s *Store) watch(ctx context.Context, l listener, userID domain.UserID, out chan domain.Snapshot) {
	defer close(out)
	defer func() { _ = l.Close() }()

	ticker := time.NewTicker(s.pingEvery)
	defer ticker.Stop()

	notifications := l.NotificationChannel()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := l.Ping(); err != nil {
				s.logger.Warn("ping postgres listener", zap.Error(err))
			}
		case n, ok := <-notifications:
			if !ok {
				return
			}
			// nil signals a re-established connection.
			if n != nil && n.Extra != string(userID) {
				continue
			}

			snapshot, err := s.Snapshot(ctx, userID)
			if err != nil {
				if ctx.Err() == nil {
					s.logger.Warn("reload accounts after change", zap.String("user_id", string(userID)), zap.Error(err))
				}
				continue
			}
			stream.Offer(out, snapshot)
		}
	}
}

func (s *Store) inTx(ctx context.Context, opts *sql.TxOptions, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("rollback: %w", rollbackErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *Store) location(cache map[string]*time.Location, name string) *time.Location {
	if name == "" {
		return nil
	}
	if loc, ok := cache[name]; ok {
		return loc
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		s.logger.Debug("unknown session time zone", zap.String("time_zone", name), zap.Error(err))
		loc = nil
	}
	cache[name] = loc
	return loc
}

func checkQuota(ctx context.Context, tx *sql.Tx, userID domain.UserID, accountID domain.AccountID, at time.Time) error {
	var startDate time.Time
	err := tx.QueryRowContext(ctx,
		"SELECT start_date FROM accounts WHERE id = $1 AND user_id = $2 FOR UPDATE",
		string(accountID), string(userID),
	).Scan(&startDate)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrAccountNotFound
	}
	if err != nil {
		return fmt.Errorf("lock account: %w", err)
	}

	window := domain.CurrentWindow(startDate, at)

	var used int
	err = tx.QueryRowContext(ctx,
		"SELECT count(*) FROM sessions WHERE account_id = $1 AND start_time > $2 AND start_time < $3",
		string(accountID), window.Start, window.End,
	).Scan(&used)
	if err != nil {
		return fmt.Errorf("count sessions: %w", err)
	}

	if !domain.CanStartSession(used) {
		return domain.ErrSessionQuotaReached
	}
	return nil
}

func isSerializationFailure(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == serializationFailure
}

func notify(ctx context.Context, tx *sql.Tx, userID domain.UserID) error {
	if _, err := tx.ExecContext(ctx, "SELECT pg_notify($1, $2)", changesChannel, string(userID)); err != nil {
		return fmt.Errorf("notify account change: %w", err)
	}
	return nil
}

// zoneName keeps the IANA name so sessions read back in the zone they were recorded in.
func zoneName(t time.Time) string {
	name := t.Location().String()
	if name == "Local" {
		return ""
	}
	return name
}
