// Package redis stores accounts as one hash per path and announces changes on a pub/sub
// channel named after the user's accounts path.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bnema/license-sessions-cli/internal/domain"
	"github.com/bnema/license-sessions-cli/internal/logger"
	"github.com/bnema/license-sessions-cli/internal/ports"
	"github.com/bnema/license-sessions-cli/internal/stream"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultKeyPrefix = "lsc:"
	maxWatchRetries  = 5
)

type Store struct {
	client *goredis.Client
	prefix string
	logger *zap.Logger
	newID  func() string
}

var _ ports.AccountStore = (*Store)(nil)

type accountRecord struct {
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	StartDate string          `json:"start_date"`
}

type sessionRecord struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// Open connects to rawURL and checks the server answers.
func Open(ctx context.Context, rawURL string, l *zap.Logger) (*Store, error) {
	opts, err := goredis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewStore(client, l), nil
}

func NewStore(client *goredis.Client, l *zap.Logger) *Store {
	return &Store{
		client: client,
		prefix: defaultKeyPrefix,
		logger: logger.OrNop(l),
		newID:  uuid.NewString,
	}
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) Snapshot(ctx context.Context, userID domain.UserID) (domain.Snapshot, error) {
	rawAccounts, err := s.client.HGetAll(ctx, s.key(domain.AccountsPath(userID))).Result()
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("read accounts: %w", err)
	}

	sessionCmds := make(map[domain.AccountID]*goredis.MapStringStringCmd, len(rawAccounts))
	if len(rawAccounts) > 0 {
		pipe := s.client.Pipeline()
		for id := range rawAccounts {
			accountID := domain.AccountID(id)
			sessionCmds[accountID] = pipe.HGetAll(ctx, s.key(domain.SessionsPath(userID, accountID)))
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return domain.Snapshot{}, fmt.Errorf("read sessions: %w", err)
		}
	}

	accounts := make([]domain.Account, 0, len(rawAccounts))
	for id, raw := range rawAccounts {
		accountID := domain.AccountID(id)
		account, err := decodeAccount(accountID, raw, sessionCmds[accountID].Val())
		if err != nil {
			return domain.Snapshot{}, err
		}
		accounts = append(accounts, account)
	}

	return domain.NewSnapshot(userID, accounts), nil
}

func (s *Store) PushAccount(ctx context.Context, userID domain.UserID, account domain.Account) (domain.AccountID, error) {
	payload, err := json.Marshal(accountRecord{
		Name:      account.Name,
		Price:     account.Price,
		StartDate: domain.FormatStartDate(account.StartDate),
	})
	if err != nil {
		return "", fmt.Errorf("encode account: %w", err)
	}

	id := domain.AccountID(s.newID())
	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, s.key(domain.AccountsPath(userID)), string(id), payload)
		pipe.Publish(ctx, s.channel(userID), string(id))
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("write account: %w", err)
	}

	return id, nil
}

// PushSession writes only while the account exists; the accounts hash is watched so a
// concurrent change retries the check.
func (s *Store) PushSession(ctx context.Context, userID domain.UserID, accountID domain.AccountID, session domain.Session) (domain.SessionID, error) {
	payload, err := json.Marshal(sessionRecord{
		StartTime: session.StartTime.Format(time.RFC3339Nano),
		EndTime:   session.EndTime.Format(time.RFC3339Nano),
	})
	if err != nil {
		return "", fmt.Errorf("encode session: %w", err)
	}

	id := domain.SessionID(s.newID())
	accountsKey := s.key(domain.AccountsPath(userID))

	write := func(tx *goredis.Tx) error {
		exists, err := tx.HExists(ctx, accountsKey, string(accountID)).Result()
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrAccountNotFound
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.HSet(ctx, s.key(domain.SessionsPath(userID, accountID)), string(id), payload)
			pipe.Publish(ctx, s.channel(userID), string(id))
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxWatchRetries; attempt++ {
		err = s.client.Watch(ctx, write, accountsKey)
		if !errors.Is(err, goredis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return "", err
		}
		return "", fmt.Errorf("write session: %w", err)
	}

	return id, nil
}

func (s *Store) RemoveSession(ctx context.Context, userID domain.UserID, accountID domain.AccountID, sessionID domain.SessionID) error {
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HDel(ctx, s.key(domain.SessionsPath(userID, accountID)), string(sessionID))
		pipe.Publish(ctx, s.channel(userID), string(sessionID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *Store) Subscribe(ctx context.Context, userID domain.UserID) (<-chan domain.Snapshot, error) {
	pubsub := s.client.Subscribe(ctx, s.channel(userID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe to account changes: %w", err)
	}

	initial, err := s.Snapshot(ctx, userID)
	if err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	out := make(chan domain.Snapshot, 1)
	out <- initial

	go func() {
		defer close(out)
		defer func() { _ = pubsub.Close() }()

		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-messages:
				if !ok {
					return
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
	}()

	return out, nil
}

func (s *Store) key(path string) string {
	return s.prefix + path
}

func (s *Store) channel(userID domain.UserID) string {
	return s.prefix + domain.AccountsPath(userID)
}

func decodeAccount(id domain.AccountID, raw string, rawSessions map[string]string) (domain.Account, error) {
	var record accountRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return domain.Account{}, fmt.Errorf("decode account %s: %w", id, err)
	}

	var startDate time.Time
	if record.StartDate != "" {
		parsed, err := domain.ParseStartDate(record.StartDate)
		if err != nil {
			return domain.Account{}, fmt.Errorf("decode account %s: %w", id, err)
		}
		startDate = parsed
	}

	sessions := make(map[domain.SessionID]domain.Session, len(rawSessions))
	for sessionID, rawSession := range rawSessions {
		var record sessionRecord
		if err := json.Unmarshal([]byte(rawSession), &record); err != nil {
			return domain.Account{}, fmt.Errorf("decode session %s: %w", sessionID, err)
		}

		start, err := time.Parse(time.RFC3339Nano, record.StartTime)
		if err != nil {
			return domain.Account{}, fmt.Errorf("decode session %s: %w", sessionID, err)
		}
		end, err := time.Parse(time.RFC3339Nano, record.EndTime)
		if err != nil {
			return domain.Account{}, fmt.Errorf("decode session %s: %w", sessionID, err)
		}

		sessions[domain.SessionID(sessionID)] = domain.Session{ID: domain.SessionID(sessionID), StartTime: start, EndTime: end}
	}

	return domain.Account{
		ID:        id,
		Name:      record.Name,
		Price:     record.Price,
		StartDate: startDate,
		Sessions:  sessions,
	}, nil
}
