package fulfillment

import (
	"context"
	"fmt"

	"github.com/fulfillment/backend/internal/domain/fulfillment"
	"github.com/fulfillment/backend/internal/domain/shared"
	"github.com/fulfillment/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// ActivityRecorder appends audit entries. Recording never fails the caller.
type ActivityRecorder struct {
	repo   fulfillment.ActivityRepository
	logger *zap.Logger
}

// NewActivityRecorder creates a recorder over repo
func NewActivityRecorder(repo fulfillment.ActivityRepository, log *zap.Logger) *ActivityRecorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &ActivityRecorder{repo: repo, logger: log.Named("activity")}
}

// Record appends entry
func (r *ActivityRecorder) Record(ctx context.Context, entry *fulfillment.ActivityEntry) error {
	if entry == nil {
		return nil
	}
	return r.repo.Append(ctx, entry)
}

// BestEffort runs fn and logs a failure instead of returning it
func (r *ActivityRecorder) BestEffort(ctx context.Context, op string, fn func(ctx context.Context) error) {
	if err := fn(ctx); err != nil {
		logger.WithLogger(ctx, r.logger).Warn("Best-effort operation failed",
			zap.String("op", op),
			zap.Error(err),
		)
	}
}

// RecordBestEffort appends entry through BestEffort. A nil recorder is a no-op
// so optional wiring stays simple.
func (r *ActivityRecorder) RecordBestEffort(ctx context.Context, entry *fulfillment.ActivityEntry) {
	if r == nil || entry == nil {
		return
	}
	r.BestEffort(ctx, "record "+string(entry.Kind), func(ctx context.Context) error {
		return r.Record(ctx, entry)
	})
}

// ActivityEventHandler writes one audit entry per fulfillment event.
// Wrap it in an idempotent handler so re-delivered events are recorded once.
type ActivityEventHandler struct {
	recorder *ActivityRecorder
}

// NewActivityEventHandler creates the bus handler for recorder
func NewActivityEventHandler(recorder *ActivityRecorder) *ActivityEventHandler {
	return &ActivityEventHandler{recorder: recorder}
}

// Name identifies the handler in logs and idempotency keys
func (h *ActivityEventHandler) Name() string {
	return "activity_recorder"
}

// EventTypes returns the event types this handler is interested in
func (h *ActivityEventHandler) EventTypes() []string {
	return []string{
		fulfillment.EventTypeStatusChanged,
		fulfillment.EventTypeLabelRequested,
		fulfillment.EventTypeLabelReady,
	}
}

// Handle records the event. Only a foreign event type is reported as an error.
func (h *ActivityEventHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	fe, ok := event.(fulfillment.Event)
	if !ok {
		return fmt.Errorf("unexpected event type %T for %s", event, event.EventType())
	}
	h.recorder.RecordBestEffort(ctx, fulfillment.ActivityFromEvent(fe))
	return nil
}

var _ shared.EventHandler = (*ActivityEventHandler)(nil)
