package accounts

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventLoginSuccess              ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure              ActivityEventType = "auth.login.failure"
	ActivityEventLogout                    ActivityEventType = "auth.logout"
	ActivityEventSignupRequested           ActivityEventType = "account.signup.requested"
	ActivityEventSignupCompleted           ActivityEventType = "account.signup.completed"
	ActivityEventPasswordRecoveryRequested ActivityEventType = "account.password.recovery.requested"
	ActivityEventPasswordReset             ActivityEventType = "account.password.reset"
)

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	UserID     string
	Email      string
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing. Sinks are best
// effort, a failing sink never fails the request that emitted the event.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

// LogActivitySink writes every event to a Logger
func LogActivitySink(logger Logger) ActivitySink {
	lgr := resolveLogger(logger)
	return ActivitySinkFunc(func(_ context.Context, evt ActivityEvent) error {
		lgr.Info("activity",
			"event", string(evt.EventType),
			"user_id", evt.UserID,
			"email", evt.Email,
			"metadata", evt.Metadata,
		)
		return nil
	})
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

// emitActivity records evt on sink and logs sink failures
func emitActivity(ctx context.Context, sink ActivitySink, logger Logger, evt ActivityEvent) {
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}
	if err := normalizeActivitySink(sink).Record(ctx, evt); err != nil {
		resolveLogger(logger).Warn("activity sink failed", "event", string(evt.EventType), "error", err)
	}
}
