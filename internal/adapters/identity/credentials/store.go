// Package credentials persists the signed-in user under the lsc config directory.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bnema/license-sessions-cli/internal/domain"
	"github.com/bnema/license-sessions-cli/internal/logger"
	"github.com/bnema/license-sessions-cli/internal/ports"
	"github.com/bnema/license-sessions-cli/internal/stream"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const (
	storeDirMode = 0o700
	fileMode     = 0o600
	fileName     = "identity.json"
)

type Store struct {
	root   string
	logger *zap.Logger
	mu     sync.RWMutex
}

var (
	_ ports.CredentialStore   = (*Store)(nil)
	_ ports.CredentialWatcher = (*Store)(nil)
)

type Option func(*Store)

func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		s.logger = logger.OrNop(l)
	}
}

func NewStore(root string, opts ...Option) *Store {
	s := &Store{root: filepath.Clean(root), logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Path() string {
	return filepath.Join(s.root, fileName)
}

func (s *Store) Load(ctx context.Context) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.Path())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	var user domain.User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("decode credentials %q: %w", s.Path(), err)
	}
	if strings.TrimSpace(string(user.ID)) == "" {
		return nil, nil
	}
	return &user, nil
}

func (s *Store) Save(ctx context.Context, user domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(string(user.ID)) == "" {
		return fmt.Errorf("save credentials: user %w", domain.ErrMissingIdentifier)
	}

	data, err := json.MarshalIndent(user, "", "  ")
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.root, storeDirMode); err != nil {
		return fmt.Errorf("create credentials directory: %w", err)
	}

	tmp, err := os.CreateTemp(s.root, fileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("create credentials temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if err := tmp.Chmod(fileMode); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod credentials temp file: %w", err)
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write credentials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close credentials temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.Path()); err != nil {
		return fmt.Errorf("replace credentials: %w", err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.Path()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete credentials: %w", err)
	}
	return nil
}

// Watch signals every create, write or removal of the identity file, whichever process made it.
// The channel is closed once ctx is done.
func (s *Store) Watch(ctx context.Context) (<-chan struct{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(s.root, storeDirMode); err != nil {
		return nil, fmt.Errorf("create credentials directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create credentials watcher: %w", err)
	}
	if err := watcher.Add(s.root); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watch credentials directory: %w", err)
	}

	out := make(chan struct{}, 1)
	go func() {
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
				if filepath.Clean(event.Name) != s.Path() {
					continue
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) {
					stream.Offer(out, struct{}{})
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("watch credentials", zap.String("path", s.Path()), zap.Error(err))
			}
		}
	}()

	return out, nil
}
