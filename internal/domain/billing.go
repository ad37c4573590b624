package domain

import "time"

// BillingWindow is the active monthly cycle of an account.
// Start is inclusive for display purposes; session counting treats both bounds as exclusive.
type BillingWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls strictly between Start and End.
func (w BillingWindow) Contains(t time.Time) bool {
	return t.After(w.Start) && t.Before(w.End)
}

// CurrentWindow computes the cycle that now falls in for an account that started on startDate.
//
// The cycle starts on the start date's day-of-month. When that day does not exist in a month
// (day 31 in April, day 30 in February) the cycle starts on the month's last day instead, and
// the following cycle goes back to the billing day as soon as the month allows it. Boundaries
// are midnight in now's location.
func CurrentWindow(startDate, now time.Time) BillingWindow {
	day := startDate.Day()
	loc := now.Location()

	year, month, today := now.Date()
	if today < clampDay(year, month, day) {
		year, month = shiftMonth(year, month, -1)
	}

	nextYear, nextMonth := shiftMonth(year, month, 1)

	return BillingWindow{
		Start: time.Date(year, month, clampDay(year, month, day), 0, 0, 0, 0, loc),
		End:   time.Date(nextYear, nextMonth, clampDay(nextYear, nextMonth, day), 0, 0, 0, 0, loc),
	}
}

func clampDay(year int, month time.Month, day int) int {
	if last := daysIn(year, month); day > last {
		return last
	}
	return day
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func shiftMonth(year int, month time.Month, delta int) (int, time.Month) {
	shifted := time.Date(year, month+time.Month(delta), 1, 0, 0, 0, 0, time.UTC)
	return shifted.Year(), shifted.Month()
}
