package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bnema/license-sessions-cli/internal/domain"
	"github.com/bnema/license-sessions-cli/internal/logger"
	"github.com/bnema/license-sessions-cli/internal/ports"
	"github.com/bnema/license-sessions-cli/internal/stream"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DataService computes usage over store snapshots and issues account and session writes.
type DataService struct {
	store    ports.AccountStore
	clock    ports.Clock
	location *time.Location
	recorder ports.UsageRecorder
	logger   *zap.Logger
	validate *validator.Validate
}

type Option func(*DataService)

func WithLogger(l *zap.Logger) Option {
	return func(s *DataService) {
		s.logger = logger.OrNop(l)
	}
}

func WithRecorder(r ports.UsageRecorder) Option {
	return func(s *DataService) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithLocation sets the zone billing days and session timestamps are computed in.
func WithLocation(loc *time.Location) Option {
	return func(s *DataService) {
		if loc != nil {
			s.location = loc
		}
	}
}

func NewDataService(store ports.AccountStore, clock ports.Clock, opts ...Option) *DataService {
	if clock == nil {
		clock = ports.SystemClock{}
	}

	s := &DataService{
		store:    store,
		clock:    clock,
		location: time.UTC,
		recorder: ports.NopRecorder{},
		logger:   zap.NewNop(),
		validate: newValidator(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *DataService) Dashboard(ctx context.Context, userID domain.UserID) ([]AccountUsage, error) {
	snapshot, err := s.store.Snapshot(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}
	return s.usageFor(snapshot), nil
}

// Watch delivers a fresh dashboard for every store change until ctx is done or the returned
// func is called. A dashboard the reader has not taken yet is replaced by the newer one.
func (s *DataService) Watch(ctx context.Context, userID domain.UserID) (<-chan []AccountUsage, func(), error) {
	ctx, cancel := context.WithCancel(ctx)

	snapshots, err := s.store.Subscribe(ctx, userID)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("subscribe to accounts: %w", err)
	}

	out := make(chan []AccountUsage, 1)
	go func() {
		defer close(out)
		for snapshot := range snapshots {
			stream.Offer(out, s.usageFor(snapshot))
		}
	}()

	return out, cancel, nil
}

func (s *DataService) AccountDetail(ctx context.Context, userID domain.UserID, accountID domain.AccountID) (AccountDetail, error) {
	snapshot, err := s.store.Snapshot(ctx, userID)
	if err != nil {
		return AccountDetail{}, fmt.Errorf("load account: %w", err)
	}

	account, ok := snapshot.Account(accountID)
	if !ok {
		return AccountDetail{}, domain.ErrAccountNotFound
	}

	return AccountDetail{
		Usage:    s.accountUsage(account, s.now()),
		Sessions: domain.SortSessionsForDisplay(account.SessionList()),
	}, nil
}

// ResolveAccountID matches selector against account IDs, then unique ID prefixes, then names.
func (s *DataService) ResolveAccountID(ctx context.Context, userID domain.UserID, selector string) (domain.AccountID, error) {
	trimmed := strings.TrimSpace(selector)
	if trimmed == "" {
		return "", fmt.Errorf("account %w", domain.ErrMissingIdentifier)
	}

	snapshot, err := s.store.Snapshot(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("load accounts: %w", err)
	}

	if account, ok := snapshot.Account(domain.AccountID(trimmed)); ok {
		return account.ID, nil
	}

	var matches []domain.AccountID
	for _, account := range snapshot.Accounts {
		if strings.HasPrefix(string(account.ID), trimmed) {
			matches = append(matches, account.ID)
		}
	}
	if len(matches) == 0 {
		for _, account := range snapshot.Accounts {
			if strings.EqualFold(account.Name, trimmed) {
				matches = append(matches, account.ID)
			}
		}
	}

	switch len(matches) {
	case 0:
		return "", domain.ErrAccountNotFound
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("account %q is ambiguous (%d matches)", selector, len(matches))
	}
}

func (s *DataService) AddAccount(ctx context.Context, userID domain.UserID, cmd AddAccountCommand) (domain.AccountID, error) {
	cmd = cmd.normalized()
	if err := s.validate.StructCtx(ctx, cmd); err != nil {
		return "", toValidationError(err)
	}

	price, err := decimal.NewFromString(cmd.Price)
	if err != nil {
		return "", &domain.ValidationError{Fields: []string{"price"}}
	}
	startDate, err := domain.ParseStartDate(cmd.StartDate)
	if err != nil {
		return "", &domain.ValidationError{Fields: []string{"start_date"}}
	}

	id, err := s.store.PushAccount(ctx, userID, domain.Account{
		Name:      cmd.Name,
		Price:     price,
		StartDate: startDate,
		Sessions:  map[domain.SessionID]domain.Session{},
	})
	s.recorder.RecordWrite("add_account", err)
	if err != nil {
		s.logger.Warn("create account failed", zap.String("user_id", string(userID)), zap.Error(err))
		return "", fmt.Errorf("create account: %w", err)
	}

	s.logger.Info("account created", zap.String("user_id", string(userID)), zap.String("account_id", string(id)))
	return id, nil
}

// StartSession re-reads the account and checks the quota right before writing. Concurrent
// writers can still both pass the check unless the store enforces the quota itself.
func (s *DataService) StartSession(ctx context.Context, userID domain.UserID, accountID domain.AccountID) (domain.Session, error) {
	if accountID == "" {
		return domain.Session{}, fmt.Errorf("start session: account %w", domain.ErrMissingIdentifier)
	}

	snapshot, err := s.store.Snapshot(ctx, userID)
	if err != nil {
		return domain.Session{}, fmt.Errorf("start session: %w", err)
	}
	account, ok := snapshot.Account(accountID)
	if !ok {
		return domain.Session{}, domain.ErrAccountNotFound
	}

	now := s.now()
	window := domain.CurrentWindow(account.StartDate, now)
	summary := domain.Summarize(window, account.SessionList())
	if !domain.CanStartSession(summary.Used) {
		return domain.Session{}, domain.ErrSessionQuotaReached
	}

	session := domain.NewSession(now, s.location)
	id, err := s.store.PushSession(ctx, userID, accountID, session)
	s.recorder.RecordWrite("start_session", err)
	if err != nil {
		s.logger.Warn("start session failed",
			zap.String("user_id", string(userID)),
			zap.String("account_id", string(accountID)),
			zap.Error(err),
		)
		return domain.Session{}, fmt.Errorf("start session: %w", err)
	}

	session.ID = id
	updated := account.WithSession(session)
	s.recorder.RecordUsage(updated, domain.Summarize(window, updated.SessionList()))

	s.logger.Info("session started",
		zap.String("user_id", string(userID)),
		zap.String("account_id", string(accountID)),
		zap.String("session_id", string(id)),
	)
	return session, nil
}

// DeleteSession removes a session. Deleting a session that does not exist succeeds.
func (s *DataService) DeleteSession(ctx context.Context, userID domain.UserID, accountID domain.AccountID, sessionID domain.SessionID) error {
	if accountID == "" || sessionID == "" {
		return fmt.Errorf("delete session: account and session %w", domain.ErrMissingIdentifier)
	}

	err := s.store.RemoveSession(ctx, userID, accountID, sessionID)
	s.recorder.RecordWrite("delete_session", err)
	if err != nil {
		s.logger.Warn("delete session failed",
			zap.String("user_id", string(userID)),
			zap.String("account_id", string(accountID)),
			zap.String("session_id", string(sessionID)),
			zap.Error(err),
		)
		return fmt.Errorf("delete session: %w", err)
	}

	s.logger.Info("session deleted",
		zap.String("user_id", string(userID)),
		zap.String("account_id", string(accountID)),
		zap.String("session_id", string(sessionID)),
	)
	return nil
}

func (s *DataService) usageFor(snapshot domain.Snapshot) []AccountUsage {
	now := s.now()
	usages := make([]AccountUsage, 0, len(snapshot.Accounts))
	for _, account := range snapshot.Accounts {
		usages = append(usages, s.accountUsage(account, now))
	}
	return usages
}

func (s *DataService) accountUsage(account domain.Account, now time.Time) AccountUsage {
	window := domain.CurrentWindow(account.StartDate, now)
	summary := domain.Summarize(window, account.SessionList())
	s.recorder.RecordUsage(account, summary)

	return AccountUsage{
		Account:         account,
		Window:          window,
		Summary:         summary,
		CanStartSession: domain.CanStartSession(summary.Used),
	}
}

func (s *DataService) now() time.Time {
	return s.clock.Now().In(s.location)
}
