package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"
	_ "time/tzdata"
)

const (
	// SessionDuration is the fixed length of every session.
	SessionDuration = 5 * time.Hour
	// ReferenceTimeZone is the zone session timestamps are recorded in.
	ReferenceTimeZone = "America/Mexico_City"
)

type SessionID string

// Session is an immutable timed use of an account.
type Session struct {
	ID        SessionID `json:"id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// NewSession builds a session starting at now, recorded in loc. The ID is left for storage to assign.
func NewSession(now time.Time, loc *time.Location) Session {
	if loc != nil {
		now = now.In(loc)
	}

	return Session{
		StartTime: now,
		EndTime:   now.Add(SessionDuration),
	}
}

// SortSessionsForDisplay orders sessions most recent first; equal starts fall back to ID order.
func SortSessionsForDisplay(sessions []Session) []Session {
	sorted := slices.Clone(sessions)
	slices.SortStableFunc(sorted, func(a, b Session) int {
		if c := b.StartTime.Compare(a.StartTime); c != 0 {
			return c
		}
		return strings.Compare(string(a.ID), string(b.ID))
	})
	return sorted
}

// LoadReferenceLocation resolves name, falling back to ReferenceTimeZone when empty.
func LoadReferenceLocation(name string) (*time.Location, error) {
	if strings.TrimSpace(name) == "" {
		name = ReferenceTimeZone
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", name, err)
	}
	return loc, nil
}
