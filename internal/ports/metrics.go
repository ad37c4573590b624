package ports

import "github.com/bnema/license-sessions-cli/internal/domain"

type UsageRecorder interface {
	RecordWrite(op string, err error)
	RecordUsage(account domain.Account, summary domain.UsageSummary)
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) RecordWrite(string, error) {}

func (NopRecorder) RecordUsage(domain.Account, domain.UsageSummary) {}
