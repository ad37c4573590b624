package toml

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bnema/license-sessions-cli/internal/domain"
	"github.com/bnema/license-sessions-cli/internal/logger"
	"github.com/bnema/license-sessions-cli/internal/ports"
	"github.com/bnema/license-sessions-cli/internal/stream"
	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	storePathKey     = "store.path"
	accountsFileMode = 0o600
	accountsDirMode  = 0o700
	defaultStoreDir  = ".lsc"
	defaultStoreFile = "accounts.toml"
	tempFilePattern  = ".accounts-*.toml.tmp"
)

// Store keeps every user's accounts in a single TOML file.
type Store struct {
	accountsPath string
	mu           *sync.RWMutex
	logger       *zap.Logger
	newID        func() string
}

var (
	lockRegistryMu sync.Mutex
	pathLockMap    = map[string]*sync.RWMutex{}
)

var _ ports.AccountStore = (*Store)(nil)

func NewStore(cfg *viper.Viper, l *zap.Logger) (*Store, error) {
	if cfg == nil {
		cfg = viper.New()
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}
	cfg.SetDefault(storePathKey, filepath.Join(homeDir, defaultStoreDir, defaultStoreFile))

	accountsPath := cfg.GetString(storePathKey)
	if accountsPath == "" {
		return nil, errors.New("accounts path is empty")
	}
	accountsPath, err = normalizeAccountsPath(accountsPath)
	if err != nil {
		return nil, err
	}

	return &Store{
		accountsPath: accountsPath,
		mu:           lockForPath(accountsPath),
		logger:       logger.OrNop(l),
		newID:        uuid.NewString,
	}, nil
}

func (s *Store) Path() string {
	return s.accountsPath
}

func (s *Store) Snapshot(ctx context.Context, userID domain.UserID) (domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return domain.Snapshot{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	file, err := s.readSchema()
	if err != nil {
		return domain.Snapshot{}, err
	}

	user := file.user(string(userID))
	if user == nil {
		return domain.NewSnapshot(userID, nil), nil
	}

	accounts := make([]domain.Account, 0, len(user.Accounts))
	for _, entry := range user.Accounts {
		account, err := fromSchema(entry)
		if err != nil {
			return domain.Snapshot{}, err
		}
		accounts = append(accounts, account)
	}

	return domain.NewSnapshot(userID, accounts), nil
}

func (s *Store) PushAccount(ctx context.Context, userID domain.UserID, account domain.Account) (domain.AccountID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.readSchema()
	if err != nil {
		return "", err
	}

	user := file.user(string(userID))
	if user == nil {
		file.Users = append(file.Users, userSchema{ID: string(userID)})
		user = &file.Users[len(file.Users)-1]
	}

	account.ID = domain.AccountID(s.newID())
	user.Accounts = append(user.Accounts, toSchema(account))

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := s.writeSchema(file); err != nil {
		return "", err
	}

	return account.ID, nil
}

func (s *Store) PushSession(ctx context.Context, userID domain.UserID, accountID domain.AccountID, session domain.Session) (domain.SessionID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.readSchema()
	if err != nil {
		return "", err
	}

	var account *accountSchema
	if user := file.user(string(userID)); user != nil {
		account = user.account(string(accountID))
	}
	if account == nil {
		return "", domain.ErrAccountNotFound
	}

	session.ID = domain.SessionID(s.newID())
	account.Sessions = append(account.Sessions, toSessionSchema(session))

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := s.writeSchema(file); err != nil {
		return "", err
	}

	return session.ID, nil
}

// RemoveSession deletes a session; unknown users, accounts and sessions are ignored.
func (s *Store) RemoveSession(ctx context.Context, userID domain.UserID, accountID domain.AccountID, sessionID domain.SessionID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.readSchema()
	if err != nil {
		return err
	}

	user := file.user(string(userID))
	if user == nil {
		return nil
	}
	account := user.account(string(accountID))
	if account == nil {
		return nil
	}

	kept := account.Sessions[:0]
	for _, session := range account.Sessions {
		if session.ID != string(sessionID) {
			kept = append(kept, session)
		}
	}
	if len(kept) == len(account.Sessions) {
		return nil
	}
	account.Sessions = kept

	if err := ctx.Err(); err != nil {
		return err
	}
	return s.writeSchema(file)
}

// Subscribe watches the accounts file and re-reads the user's subtree on every change to it,
// including writes made by other processes.
func (s *Store) Subscribe(ctx context.Context, userID domain.UserID) (<-chan domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dir := filepath.Dir(s.accountsPath)
	if err := os.MkdirAll(dir, accountsDirMode); err != nil {
		return nil, fmt.Errorf("create accounts directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create accounts watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watch accounts directory: %w", err)
	}

	initial, err := s.Snapshot(ctx, userID)
	if err != nil {
		_ = watcher.Close()
		return nil, err
	}

	out := make(chan domain.Snapshot, 1)
	out <- initial
	go s.watch(ctx, watcher, userID, out)

	return out, nil
}

func (s *Store) watch(ctx context.Context, watcher *fsnotify.Watcher, userID domain.UserID, out chan domain.Snapshot) {
	defer close(out)
	defer func() { _ = watcher.Close() }()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != s.accountsPath {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) {
				continue
			}

			snapshot, err := s.Snapshot(ctx, userID)
			if err != nil {
				if ctx.Err() == nil {
					s.logger.Warn("reload accounts file", zap.String("path", s.accountsPath), zap.Error(err))
				}
				continue
			}
			stream.Offer(out, snapshot)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("watch accounts file", zap.String("path", s.accountsPath), zap.Error(err))
		}
	}
}

func (s *Store) readSchema() (fileSchema, error) {
	data, err := os.ReadFile(s.accountsPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fileSchema{Version: currentSchemaVersion}, nil
		}
		return fileSchema{}, fmt.Errorf("read accounts file: %w", err)
	}

	var file fileSchema
	if err := toml.Unmarshal(data, &file); err != nil {
		return fileSchema{}, fmt.Errorf("decode accounts file: %w", err)
	}
	if err := file.validateVersion(); err != nil {
		return fileSchema{}, err
	}
	file.applyDefaults()

	return file, nil
}

func normalizeAccountsPath(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve accounts path: %w", err)
	}

	return filepath.Clean(absPath), nil
}

func lockForPath(path string) *sync.RWMutex {
	lockRegistryMu.Lock()
	defer lockRegistryMu.Unlock()

	if mu, ok := pathLockMap[path]; ok {
		return mu
	}

	mu := &sync.RWMutex{}
	pathLockMap[path] = mu
	return mu
}

// writeSchema replaces the file atomically so watchers never observe a partial write.
func (s *Store) writeSchema(file fileSchema) error {
	file.applyDefaults()

	if err := os.MkdirAll(filepath.Dir(s.accountsPath), accountsDirMode); err != nil {
		return fmt.Errorf("create accounts directory: %w", err)
	}

	data, err := toml.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode accounts file: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(s.accountsPath), tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp accounts file: %w", err)
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp accounts file: %w", err)
	}
	if err := tempFile.Chmod(accountsFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp accounts file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp accounts file: %w", err)
	}
	if err := os.Rename(tempName, s.accountsPath); err != nil {
		return fmt.Errorf("replace accounts file: %w", err)
	}
	cleanup = false

	return nil
}

func toSchema(account domain.Account) accountSchema {
	sessions := make([]sessionSchema, 0, len(account.Sessions))
	for _, session := range domain.SortSessionsForDisplay(account.SessionList()) {
		sessions = append(sessions, toSessionSchema(session))
	}

	return accountSchema{
		ID:        string(account.ID),
		Name:      account.Name,
		Price:     account.Price.String(),
		StartDate: domain.FormatStartDate(account.StartDate),
		Sessions:  sessions,
	}
}

func toSessionSchema(session domain.Session) sessionSchema {
	return sessionSchema{
		ID:        string(session.ID),
		StartTime: session.StartTime.Format(time.RFC3339Nano),
		EndTime:   session.EndTime.Format(time.RFC3339Nano),
	}
}

func fromSchema(entry accountSchema) (domain.Account, error) {
	price := decimal.Zero
	if entry.Price != "" {
		parsed, err := decimal.NewFromString(entry.Price)
		if err != nil {
			return domain.Account{}, fmt.Errorf("decode price of account %s: %w", entry.ID, err)
		}
		price = parsed
	}

	var startDate time.Time
	if entry.StartDate != "" {
		parsed, err := domain.ParseStartDate(entry.StartDate)
		if err != nil {
			return domain.Account{}, fmt.Errorf("decode account %s: %w", entry.ID, err)
		}
		startDate = parsed
	}

	sessions := make(map[domain.SessionID]domain.Session, len(entry.Sessions))
	for _, raw := range entry.Sessions {
		startTime, err := time.Parse(time.RFC3339Nano, raw.StartTime)
		if err != nil {
			return domain.Account{}, fmt.Errorf("decode session %s of account %s: %w", raw.ID, entry.ID, err)
		}
		endTime, err := time.Parse(time.RFC3339Nano, raw.EndTime)
		if err != nil {
			return domain.Account{}, fmt.Errorf("decode session %s of account %s: %w", raw.ID, entry.ID, err)
		}
		sessions[domain.SessionID(raw.ID)] = domain.Session{
			ID:        domain.SessionID(raw.ID),
			StartTime: startTime,
			EndTime:   endTime,
		}
	}

	return domain.Account{
		ID:        domain.AccountID(entry.ID),
		Name:      entry.Name,
		Price:     price,
		StartDate: startDate,
		Sessions:  sessions,
	}, nil
}
