// Package audit forwards rendered decisions to the event bus. The trail is
// best-effort: a failed write is logged and dropped, never surfaced to the
// decide caller.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/bookwell/kestrel/internal/domain"
	"github.com/google/uuid"
)

// Writer publishes decision records to the bus.
type Writer struct {
	bus domain.EventBus
}

// NewWriter creates an audit writer.
func NewWriter(bus domain.EventBus) *Writer {
	return &Writer{bus: bus}
}

// Record envelopes a decision and publishes it fire-and-forget.
func (w *Writer) Record(ctx context.Context, orgID, family string, d *domain.Decision, inputs map[string]any) {
	if w.bus == nil {
		return
	}

	rec := &domain.DecisionRecord{
		ID:             uuid.New().String(),
		OrganizationID: orgID,
		Family:         family,
		Decision:       d,
		Inputs:         inputs,
		CreatedAt:      time.Now().UTC(),
	}

	data, err := json.Marshal(rec)
	if err != nil {
		slog.Error("failed to marshal decision record",
			"org_id", orgID,
			"family", family,
			"error", err,
		)
		return
	}

	if err := w.bus.Publish(ctx, orgID, domain.TopicDecisionRecorded, data); err != nil {
		slog.Error("failed to publish decision record",
			"org_id", orgID,
			"family", family,
			"record_id", rec.ID,
			"error", err,
		)
	}
}
