package core

import (
	"strings"
	"time"
)

// DayLayout is the calendar-day format used for activity dates.
const DayLayout = "2006-01-02"

type User struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	PasswordHash   string `json:"-"`
	HouseholdID    string `json:"householdId,omitempty"`
	StreakCount    int    `json:"streakCount"`
	LastActiveDate string `json:"lastActiveDate,omitempty"`
}

// NormalizeEmail lowercases and trims an address for lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Touch records activity on the given day. The streak grows by one the
// first time a new day is seen; it reports whether the user changed.
func (u *User) Touch(now time.Time) bool {
	today := now.UTC().Format(DayLayout)
	if u.LastActiveDate == today {
		return false
	}
	u.StreakCount++
	u.LastActiveDate = today
	return true
}
