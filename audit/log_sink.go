package audit

import (
	"context"

	"github.com/rs/zerolog"
)

var _ Sink = LogSink{}

// LogSink writes each event as one structured log line
type LogSink struct {
	Logger zerolog.Logger
}

func (s LogSink) Append(_ context.Context, event Event) error {
	e := s.Logger.Info().
		Str("audit_id", event.ID).
		Str("action", string(event.Action)).
		Str("ip", event.IP).
		Str("user_agent", event.UserAgent).
		Time("timestamp", event.Timestamp)
	if event.AccountID != nil {
		e = e.Str("account_id", *event.AccountID)
	}
	if len(event.Details) > 0 {
		e = e.Interface("details", event.Details)
	}
	e.Msg("security event")
	return nil
}
