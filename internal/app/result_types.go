package app

import (
	"boutique-credit/internal/authz"
	"boutique-credit/internal/core"
)

// UserSession is returned by AuthenticateUser.
type UserSession struct {
	UserID   int
	Login    string
	Role     authz.Role
	ClientID *int
}

// ReminderResult is returned by SendReminder.
type ReminderResult struct {
	Notification *core.Notification
	Tone         string
	Source       string // "ai" or "template"
}
