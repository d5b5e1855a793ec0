// Package notify delivers user-facing success and error notifications.
package notify

import (
	"context"
	"time"
)

// Level classifies a notice.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelWarning Level = "warning"
)

// String returns the string representation of Level.
func (l Level) String() string {
	return string(l)
}

// Topics used by the workbench.
const (
	TopicQuote      = "quote"
	TopicOrder      = "order"
	TopicCancel     = "cancel"
	TopicWithdrawal = "withdrawal"
	TopicTransfer   = "transfer"
	TopicExport     = "export"
)

// Notice is one notification shown to the operator.
type Notice struct {
	SessionID string    `json:"session_id,omitempty"`
	Level     Level     `json:"level"`
	Topic     string    `json:"topic"`
	Message   string    `json:"message"`
	Ref       string    `json:"ref,omitempty"` // order, execution or transfer id
	At        time.Time `json:"at"`
}

// Notifier accepts notices. Delivery failures are the sink's concern and
// never propagate to the action that raised the notice.
type Notifier interface {
	Notify(ctx context.Context, n Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notice)

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, n Notice) {
	f(ctx, n)
}

// Nop discards notices.
var Nop Notifier = NotifierFunc(func(context.Context, Notice) {})

type multi []Notifier

func (m multi) Notify(ctx context.Context, n Notice) {
	for _, s := range m {
		s.Notify(ctx, n)
	}
}

// Multi fans a notice out to every non-nil sink in order.
func Multi(sinks ...Notifier) Notifier {
	out := make(multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}
