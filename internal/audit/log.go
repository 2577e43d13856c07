package audit

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit
// logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// Log records security-relevant events (logins, rotations, reuse detections,
// role changes) as structured entries on the shared logger.
type Log struct {
	z *zap.Logger
}

// New builds an audit log on top of the given logger. A nil logger yields a
// no-op log so callers never have to branch.
func New(z *zap.Logger) *Log {
	if z == nil {
		z = zap.NewNop()
	}
	return &Log{z: z.Named("audit")}
}

// Event writes one audit entry enriched with the request id when present.
// Field values must never contain credentials or raw tokens.
func (l *Log) Event(ctx context.Context, event string, fields ...zap.Field) {
	if l == nil || l.z == nil {
		return
	}
	event = strings.TrimSpace(event)
	if event == "" {
		return
	}
	entry := append([]zap.Field{zap.String("event", event)}, fields...)
	if rid := requestIDFromContext(ctx); rid != "" {
		entry = append(entry, zap.String("request_id", rid))
	}
	l.z.Info("audit", entry...)
}
