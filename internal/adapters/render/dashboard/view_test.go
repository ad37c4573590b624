package dashboard

import (
	"strings"
	"testing"
	"time"

	"github.com/bnema/license-sessions-cli/internal/application"
	"github.com/bnema/license-sessions-cli/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func usageFixture(name string, used int) application.AccountUsage {
	window := domain.BillingWindow{
		Start: time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, time.February, 15, 0, 0, 0, 0, time.UTC),
	}
	summary := domain.UsageSummary{
		Used:       used,
		Remaining:  domain.SessionQuota - used,
		Percentage: float64(used) / domain.SessionQuota * 100,
	}

	return application.AccountUsage{
		Account: domain.Account{
			ID:        "0f1e2d3c-4b5a-6978-8796-a5b4c3d2e1f0",
			Name:      name,
			Price:     decimal.RequireFromString("15.5"),
			StartDate: time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC),
		},
		Window:          window,
		Summary:         summary,
		CanStartSession: domain.CanStartSession(used),
	}
}

func TestRenderDashboardCards(t *testing.T) {
	output, err := Render([]application.AccountUsage{
		usageFixture("Design Suite", 12),
		usageFixture("Audio Pro", 0),
	}, RenderOptions{})

	require.NoError(t, err)
	assert.Contains(t, output, "accounts: 2")
	assert.Contains(t, output, "Design Suite (0f1e2d3c)")
	assert.Contains(t, output, "Audio Pro")
	assert.Contains(t, output, "price: $15.50 USD | cycle: 15 Jan → 15 Feb")
	assert.Contains(t, output, "12 / 50 used")
	assert.Contains(t, output, "38 remaining")
	assert.Contains(t, output, "50 remaining")
	assert.NotContains(t, output, "[limit reached]")
}

func TestRenderDashboardFlagsLimitReached(t *testing.T) {
	output, err := Render([]application.AccountUsage{usageFixture("Design Suite", 53)}, RenderOptions{})

	require.NoError(t, err)
	assert.Contains(t, output, "53 / 50 used")
	assert.Contains(t, output, "-3 remaining")
	assert.Contains(t, output, "[limit reached]")
	assert.Contains(t, output, "["+strings.Repeat("=", barWidth)+"]")
}

func TestRenderDashboardEmptyState(t *testing.T) {
	output, err := Render(nil, RenderOptions{})

	require.NoError(t, err)
	assert.Contains(t, output, "accounts: 0")
	assert.Contains(t, output, "No accounts yet.")
}

func TestRenderDetailListsSessionsInReferenceZone(t *testing.T) {
	loc, err := domain.LoadReferenceLocation("")
	require.NoError(t, err)

	running := domain.NewSession(time.Date(2024, time.January, 20, 16, 0, 0, 0, time.UTC), loc)
	running.ID = "sess-running-1"
	finished := domain.NewSession(time.Date(2024, time.January, 18, 16, 0, 0, 0, time.UTC), time.UTC)
	finished.ID = "sess-finished-2"

	output, err := RenderDetail(application.AccountDetail{
		Usage:    usageFixture("Design Suite", 2),
		Sessions: []domain.Session{running, finished},
	}, RenderOptions{
		Now:      time.Date(2024, time.January, 20, 18, 0, 0, 0, time.UTC),
		Location: loc,
	})

	require.NoError(t, err)
	assert.Contains(t, output, "license start: 15 Jan 2024")
	assert.Contains(t, output, "sessions (2), newest first")
	assert.Contains(t, output, "sess-run  start: 20 Jan 2024, 10:00:00  end: 20 Jan 2024, 15:00:00 [active]")
	assert.Contains(t, output, "sess-fin  start: 18 Jan 2024, 10:00:00  end: 18 Jan 2024, 15:00:00")
	assert.Less(t, strings.Index(output, "sess-run"), strings.Index(output, "sess-fin"))
	assert.Equal(t, 1, strings.Count(output, "[active]"))
}

func TestRenderDetailWithoutSessions(t *testing.T) {
	output, err := RenderDetail(application.AccountDetail{Usage: usageFixture("Design Suite", 0)}, RenderOptions{})

	require.NoError(t, err)
	assert.Contains(t, output, "sessions (0), newest first")
	assert.Contains(t, output, "No sessions yet.")
}

func TestRenderProgressBarClampsFill(t *testing.T) {
	s := newStyles()

	assert.Equal(t, "["+strings.Repeat("-", 10)+"]", renderProgressBar(-5, 10, s))
	assert.Equal(t, "["+strings.Repeat("=", 5)+strings.Repeat("-", 5)+"]", renderProgressBar(50, 10, s))
	assert.Equal(t, "["+strings.Repeat("=", 10)+"]", renderProgressBar(250, 10, s))
	assert.Empty(t, renderProgressBar(50, 0, s))
}

func TestAccountTitleStripsControlCharacters(t *testing.T) {
	title := accountTitle(domain.Account{ID: "abc", Name: "Design\x1b[2J Suite"})

	assert.Equal(t, "Design[2J Suite (abc)", title)
}
