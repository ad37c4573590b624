package application

import "github.com/bnema/license-sessions-cli/internal/domain"

// AccountUsage is one dashboard card.
type AccountUsage struct {
	Account         domain.Account       `json:"account"`
	Window          domain.BillingWindow `json:"window"`
	Summary         domain.UsageSummary  `json:"summary"`
	CanStartSession bool                 `json:"can_start_session"`
}

// AccountDetail is a card plus its sessions, most recent first.
type AccountDetail struct {
	Usage    AccountUsage     `json:"usage"`
	Sessions []domain.Session `json:"sessions"`
}
