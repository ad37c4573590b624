package application

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bnema/license-sessions-cli/internal/domain"
	"github.com/bnema/license-sessions-cli/internal/logger"
	"github.com/bnema/license-sessions-cli/internal/ports"
	"github.com/bnema/license-sessions-cli/internal/stream"
	"go.uber.org/zap"
)

// AuthService owns the signed-in identity and fans auth-state changes out to subscribers.
type AuthService struct {
	provider ports.IdentityProvider
	creds    ports.CredentialStore
	logger   *zap.Logger

	mu          sync.Mutex
	subscribers map[int]chan *domain.User
	nextID      int
}

func NewAuthService(provider ports.IdentityProvider, creds ports.CredentialStore, l *zap.Logger) *AuthService {
	return &AuthService{
		provider:    provider,
		creds:       creds,
		logger:      logger.OrNop(l),
		subscribers: map[int]chan *domain.User{},
	}
}

func (s *AuthService) SignIn(ctx context.Context, req domain.SignInRequest) (domain.User, error) {
	user, err := s.provider.SignIn(ctx, req)
	if err != nil {
		return domain.User{}, fmt.Errorf("sign in: %w", err)
	}
	if user.ID == "" {
		return domain.User{}, fmt.Errorf("sign in: user %w", domain.ErrMissingIdentifier)
	}

	if err := s.creds.Save(ctx, user); err != nil {
		return domain.User{}, fmt.Errorf("save signed-in user: %w", err)
	}

	s.logger.Info("signed in", zap.String("user_id", string(user.ID)))
	s.publish(&user)
	return user, nil
}

func (s *AuthService) SignOut(ctx context.Context) error {
	if err := errors.Join(s.provider.SignOut(ctx), s.creds.Clear(ctx)); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}

	s.logger.Info("signed out")
	s.publish(nil)
	return nil
}

// CurrentUser returns nil when nobody is signed in.
func (s *AuthService) CurrentUser(ctx context.Context) (*domain.User, error) {
	user, err := s.creds.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load signed-in user: %w", err)
	}
	return user, nil
}

func (s *AuthService) RequireUser(ctx context.Context) (domain.User, error) {
	user, err := s.CurrentUser(ctx)
	if err != nil {
		return domain.User{}, err
	}
	if user == nil {
		return domain.User{}, domain.ErrNotAuthenticated
	}
	return *user, nil
}

// Subscribe yields the current user right away and again after every sign-in or sign-out,
// including those made by other processes when the credential store can be watched.
// A nil value means signed out. The channel closes when unsubscribe is called or ctx is done.
func (s *AuthService) Subscribe(ctx context.Context) (<-chan *domain.User, func(), error) {
	ctx, cancel := context.WithCancel(ctx)

	var changes <-chan struct{}
	if watcher, ok := s.creds.(ports.CredentialWatcher); ok {
		var err error
		changes, err = watcher.Watch(ctx)
		if err != nil {
			cancel()
			return nil, nil, fmt.Errorf("watch signed-in user: %w", err)
		}
	}

	current, err := s.CurrentUser(ctx)
	if err != nil {
		cancel()
		return nil, nil, err
	}

	ch := make(chan *domain.User, 1)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subscribers[id] = ch
	stream.Offer(ch, current)
	s.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			cancel()
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subscribers, id)
			close(ch)
		})
	}
	context.AfterFunc(ctx, unsubscribe)

	if changes != nil {
		go s.follow(ctx, id, changes)
	}

	return ch, unsubscribe, nil
}

// follow reloads the stored user on every change signal and hands it to one subscriber.
func (s *AuthService) follow(ctx context.Context, id int, changes <-chan struct{}) {
	for range changes {
		user, err := s.CurrentUser(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Warn("reload signed-in user", zap.Error(err))
			}
			continue
		}

		s.mu.Lock()
		if ch, ok := s.subscribers[id]; ok {
			stream.Offer(ch, user)
		}
		s.mu.Unlock()
	}
}

func (s *AuthService) publish(user *domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ch := range s.subscribers {
		var value *domain.User
		if user != nil {
			copied := *user
			value = &copied
		}
		stream.Offer(ch, value)
	}
}
