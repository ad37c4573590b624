package dashboard

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/bnema/license-sessions-cli/internal/application"
	"github.com/bnema/license-sessions-cli/internal/domain"
	"github.com/charmbracelet/lipgloss"
)

const (
	barWidth      = 24
	shortIDLength = 8
	cycleLayout   = "02 Jan"
	sessionLayout = "02 Jan 2006, 15:04:05"
)

type RenderOptions struct {
	// Now marks sessions still running. Zero disables the marker.
	Now time.Time
	// Location is the zone session times are shown in. Nil keeps each session's own zone.
	Location *time.Location
}

func renderDashboard(usages []application.AccountUsage, opts RenderOptions, s styles) string {
	lines := []string{
		s.title.Render("License Sessions"),
		s.header.Render(fmt.Sprintf("accounts: %d", len(usages))),
	}

	if len(usages) == 0 {
		lines = append(lines, s.empty.Render("No accounts yet. Add one with `lsc account add` to get started."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	for _, usage := range usages {
		lines = append(lines, s.section.Render(renderCard(usage, s)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderCard(usage application.AccountUsage, s styles) string {
	account := usage.Account
	summary := usage.Summary

	counter := fmt.Sprintf("%d / %d used", summary.Used, domain.SessionQuota)
	remaining := fmt.Sprintf("%d remaining", summary.Remaining)
	usageLine := lipgloss.JoinHorizontal(
		lipgloss.Top,
		renderProgressBar(summary.Percentage, barWidth, s),
		" ",
		s.detail.Render(counter),
		"  ",
		s.meta.Render(remaining),
	)
	if summary.LimitReached() {
		usageLine += " " + s.warning.Render("[limit reached]")
	}

	return lipgloss.JoinVertical(
		lipgloss.Left,
		s.account.Render(accountTitle(account)),
		s.detail.Render(fmt.Sprintf("price: %s | cycle: %s → %s",
			formatPrice(account), usage.Window.Start.Format(cycleLayout), usage.Window.End.Format(cycleLayout))),
		usageLine,
	)
}

func renderDetail(detail application.AccountDetail, opts RenderOptions, s styles) string {
	account := detail.Usage.Account

	lines := []string{
		renderCard(detail.Usage, s),
		s.meta.Render(fmt.Sprintf("license start: %s", account.StartDate.Format("02 Jan 2006"))),
		s.section.Render(s.title.Render(fmt.Sprintf("sessions (%d), newest first", len(detail.Sessions)))),
	}

	if len(detail.Sessions) == 0 {
		lines = append(lines, s.empty.Render("No sessions yet. Start one with `lsc session start`."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	for _, session := range detail.Sessions {
		lines = append(lines, sessionLine(session, opts, s))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func sessionLine(session domain.Session, opts RenderOptions, s styles) string {
	start, end := session.StartTime, session.EndTime
	if opts.Location != nil {
		start, end = start.In(opts.Location), end.In(opts.Location)
	}

	line := fmt.Sprintf("%s  start: %s  end: %s",
		s.meta.Render(shortID(string(session.ID))), start.Format(sessionLayout), end.Format(sessionLayout))

	if !opts.Now.IsZero() && !opts.Now.Before(session.StartTime) && opts.Now.Before(session.EndTime) {
		line += " " + s.active.Render("[active]")
	}
	return line
}

// renderProgressBar fills with usage. Over-quota values still draw a full bar.
func renderProgressBar(usedPercent float64, width int, s styles) string {
	if width <= 0 {
		return ""
	}

	used := clampPercent(usedPercent)
	filled := int(math.Round(float64(width) * used / 100.0))
	if filled > width {
		filled = width
	}

	fill := s.barFill
	if used >= 100 {
		fill = s.barFull
	}

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.barBracket.Render("["),
		fill.Render(strings.Repeat("=", filled)),
		s.barEmpty.Render(strings.Repeat("-", width-filled)),
		s.barBracket.Render("]"),
	)
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func accountTitle(account domain.Account) string {
	name := sanitizeForTerminal(strings.TrimSpace(account.Name))
	if name == "" {
		name = "(unnamed)"
	}
	return fmt.Sprintf("%s (%s)", name, shortID(string(account.ID)))
}

func formatPrice(account domain.Account) string {
	return "$" + account.Price.StringFixed(2) + " USD"
}

func shortID(id string) string {
	if len(id) <= shortIDLength {
		return id
	}
	return id[:shortIDLength]
}

// sanitizeForTerminal drops control characters so stored names cannot move the cursor.
func sanitizeForTerminal(value string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, value)
}
