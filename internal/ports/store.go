package ports

import (
	"context"

	"github.com/bnema/license-sessions-cli/internal/domain"
)

// AccountStore persists the account subtree of each user.
// Subscribe delivers a full snapshot immediately and again after every change; the channel is
// closed once ctx is done.
type AccountStore interface {
	Snapshot(ctx context.Context, userID domain.UserID) (domain.Snapshot, error)
	Subscribe(ctx context.Context, userID domain.UserID) (<-chan domain.Snapshot, error)
	PushAccount(ctx context.Context, userID domain.UserID, account domain.Account) (domain.AccountID, error)
	PushSession(ctx context.Context, userID domain.UserID, accountID domain.AccountID, session domain.Session) (domain.SessionID, error)
	RemoveSession(ctx context.Context, userID domain.UserID, accountID domain.AccountID, sessionID domain.SessionID) error
}
