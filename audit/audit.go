// Package audit records security events. Recording never fails the request that caused it.
package audit

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/storefront-gatekeeper/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Action names a security event
type Action string

const (
	ActionRateLimitExceeded        Action = "RATE_LIMIT_EXCEEDED"
	ActionAutoTokenRefresh         Action = "AUTO_TOKEN_REFRESH"
	ActionUnauthorizedAdminAccess  Action = "UNAUTHORIZED_ADMIN_ACCESS"
	ActionUnauthorizedSellerAccess Action = "UNAUTHORIZED_SELLER_ACCESS"
	ActionLoginSuccess             Action = "LOGIN_SUCCESS"
	ActionLoginFailed              Action = "LOGIN_FAILED"
	ActionLoginLocked              Action = "LOGIN_LOCKED"
	ActionLogout                   Action = "LOGOUT"
	ActionTokenRefresh             Action = "TOKEN_REFRESH"
)

// Event is append-only once built
type Event struct {
	ID        string         `json:"id"`
	AccountID *string        `json:"account_id,omitempty"`
	Action    Action         `json:"action"`
	Details   map[string]any `json:"details,omitempty"`
	IP        string         `json:"ip"`
	UserAgent string         `json:"user_agent"`
	Timestamp time.Time      `json:"timestamp"`
}

// Sink persists events
type Sink interface {
	Append(ctx context.Context, event Event) error
}

// Logger builds events and hands them to the sink
type Logger struct {
	sink    Sink
	metrics *metrics.Metrics
	timeout time.Duration
	nowFunc func() time.Time
}

type LoggerOption func(*Logger)

func WithMetrics(m *metrics.Metrics) LoggerOption {
	return func(l *Logger) {
		l.metrics = m
	}
}

// WithTimeout bounds each sink call
func WithTimeout(timeout time.Duration) LoggerOption {
	return func(l *Logger) {
		l.timeout = timeout
	}
}

func WithNowFunc(now func() time.Time) LoggerOption {
	return func(l *Logger) {
		l.nowFunc = now
	}
}

func NewLogger(sink Sink, options ...LoggerOption) (*Logger, error) {
	if sink == nil {
		return nil, fmt.Errorf("[NewLogger] audit sink is required")
	}
	l := &Logger{sink: sink}
	for _, opt := range options {
		opt(l)
	}
	if l.timeout <= 0 {
		l.timeout = 2 * time.Second
	}
	if l.nowFunc == nil {
		l.nowFunc = time.Now
	}
	return l, nil
}

// Record appends an event. Sink errors and panics are logged and counted, never returned.
func (l *Logger) Record(ctx context.Context, accountID *string, action Action, details map[string]any, ip, userAgent string) {
	event := Event{
		ID:        uuid.New().String(),
		Action:    action,
		Details:   maps.Clone(details),
		IP:        ip,
		UserAgent: userAgent,
		Timestamp: l.nowFunc().UTC(),
	}
	if accountID != nil {
		id := *accountID
		event.AccountID = &id
	}

	defer func() {
		if r := recover(); r != nil {
			l.metrics.AuditFailure()
			log.Error().Interface("panic", r).Str("action", string(action)).Msg("audit sink panicked")
		}
	}()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
	defer cancel()
	if err := l.sink.Append(ctx, event); err != nil {
		l.metrics.AuditFailure()
		log.Err(err).Str("action", string(action)).Str("event_id", event.ID).Msg("failed to record audit event")
	}
}
