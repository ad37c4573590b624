package domain

// SessionQuota is the number of sessions an account may start per billing cycle.
const SessionQuota = 50

// UsageSummary is the session count of one billing window.
// Remaining goes negative and Percentage exceeds 100 when an account is over quota.
type UsageSummary struct {
	Used       int     `json:"used"`
	Remaining  int     `json:"remaining"`
	Percentage float64 `json:"percentage"`
}

// Summarize counts the sessions that started strictly inside window.
func Summarize(window BillingWindow, sessions []Session) UsageSummary {
	used := 0
	for _, session := range sessions {
		if window.Contains(session.StartTime) {
			used++
		}
	}

	return UsageSummary{
		Used:       used,
		Remaining:  SessionQuota - used,
		Percentage: float64(used) / SessionQuota * 100,
	}
}

// CanStartSession reports whether another session fits in the quota.
func CanStartSession(used int) bool {
	return used < SessionQuota
}

func (u UsageSummary) LimitReached() bool {
	return !CanStartSession(u.Used)
}
