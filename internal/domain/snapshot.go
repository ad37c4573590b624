package domain

import (
	"slices"
	"strings"
)

// Snapshot is the full account subtree of one user at a point in time.
// A newer snapshot always replaces an older one entirely.
type Snapshot struct {
	UserID   UserID
	Accounts []Account
}

// NewSnapshot orders accounts by name, then ID.
func NewSnapshot(userID UserID, accounts []Account) Snapshot {
	sorted := slices.Clone(accounts)
	slices.SortStableFunc(sorted, func(a, b Account) int {
		if c := strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
			return c
		}
		return strings.Compare(string(a.ID), string(b.ID))
	})

	return Snapshot{UserID: userID, Accounts: sorted}
}

func (s Snapshot) Account(id AccountID) (Account, bool) {
	for _, account := range s.Accounts {
		if account.ID == id {
			return account, true
		}
	}
	return Account{}, false
}
