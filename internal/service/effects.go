package service

import (
	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// HistoryOutcome reports one attempted history append.
type HistoryOutcome struct {
	Kind  domain.ChangeKind
	Field string
	Err   error
}

// DispatchOutcome reports one notification decision. Skipped is set when
// there was nobody to notify; Err holds a delivery failure; LogErr a failure
// to write the email log.
type DispatchOutcome struct {
	Kind       domain.NotificationKind
	Recipients int
	Skipped    bool
	Err        error
	LogErr     error
	History    *HistoryOutcome
}

// Delivered reports whether the notification reached the sender successfully.
func (o DispatchOutcome) Delivered() bool {
	return !o.Skipped && o.Err == nil
}

// Effects collects the best-effort side effects of a committed mutation.
type Effects struct {
	History       []HistoryOutcome
	Notifications []DispatchOutcome
}

// Failed reports whether any side effect failed.
func (e Effects) Failed() bool {
	for _, h := range e.History {
		if h.Err != nil {
			return true
		}
	}
	for _, n := range e.Notifications {
		if n.Err != nil || n.LogErr != nil || (n.History != nil && n.History.Err != nil) {
			return true
		}
	}
	return false
}

func (e *Effects) addHistory(o HistoryOutcome) {
	e.History = append(e.History, o)
}

func (e *Effects) addNotification(o DispatchOutcome) {
	e.Notifications = append(e.Notifications, o)
}
