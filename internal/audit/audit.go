// Package audit writes security events to the append-only audit log.
// Writes are best effort: a failing sink is logged and counted but never
// reported to the caller.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"identity/internal/domain"
	"identity/internal/observability/metrics"
	"identity/internal/observability/middleware"
)

type Sink interface {
	Append(ctx context.Context, entry *domain.AuditLog) error
}

type Entry struct {
	UserID   *domain.UserID
	Action   domain.AuditAction
	Net      domain.NetworkIdentity
	Metadata any
}

type Recorder struct {
	sink Sink
	now  func() time.Time
}

func NewRecorder(sink Sink) *Recorder {
	return &Recorder{sink: sink, now: func() time.Time { return time.Now().UTC() }}
}

// Record persists e. The caller's context cancellation is ignored so an event
// raised at the end of a request still lands.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	log := middleware.Logger(ctx).With("action", string(e.Action))

	var meta []byte
	if e.Metadata != nil {
		b, err := json.Marshal(e.Metadata)
		if err != nil {
			log.Warn("audit metadata not encodable", "error", err)
		} else {
			meta = b
		}
	}
	entry := &domain.AuditLog{
		UserID:    e.UserID,
		Action:    e.Action,
		IPAddress: e.Net.IP,
		UserAgent: e.Net.UserAgent,
		Path:      e.Net.Path,
		Method:    e.Net.Method,
		Metadata:  meta,
		CreatedAt: r.now(),
	}
	if err := r.sink.Append(context.WithoutCancel(ctx), entry); err != nil {
		metrics.AuditWriteFailuresTotal.WithLabelValues(string(e.Action)).Inc()
		log.Error("audit write failed", "error", err)
	}
}
