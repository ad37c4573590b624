package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// StartDateLayout is the calendar-date form used for account start dates.
const StartDateLayout = "2006-01-02"

type AccountID string

// Account is a shared license whose sessions are counted per monthly cycle.
type Account struct {
	ID        AccountID             `json:"id"`
	Name      string                `json:"name"`
	Price     decimal.Decimal       `json:"price"`
	StartDate time.Time             `json:"start_date"`
	Sessions  map[SessionID]Session `json:"sessions,omitempty"`
}

// SessionList returns the sessions in no particular order.
func (a Account) SessionList() []Session {
	sessions := make([]Session, 0, len(a.Sessions))
	for id, session := range a.Sessions {
		if session.ID == "" {
			session.ID = id
		}
		sessions = append(sessions, session)
	}
	return sessions
}

// WithSession returns a copy of the account holding session in addition to the existing ones.
func (a Account) WithSession(session Session) Account {
	sessions := make(map[SessionID]Session, len(a.Sessions)+1)
	for id, existing := range a.Sessions {
		sessions[id] = existing
	}
	sessions[session.ID] = session
	a.Sessions = sessions
	return a
}

// ParseStartDate parses a YYYY-MM-DD calendar date.
func ParseStartDate(raw string) (time.Time, error) {
	parsed, err := time.Parse(StartDateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse start date %q: %w", raw, err)
	}
	return parsed, nil
}

// FormatStartDate renders only the calendar part of a start date.
func FormatStartDate(date time.Time) string {
	if date.IsZero() {
		return ""
	}
	return date.Format(StartDateLayout)
}
