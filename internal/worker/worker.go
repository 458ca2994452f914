// Package worker runs the background consumers: persisting the decision
// audit trail and applying cross-node cache invalidation.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/bookwell/kestrel/internal/bus"
	"github.com/bookwell/kestrel/internal/domain"
	"github.com/bookwell/kestrel/internal/engine"
)

// Worker subscribes across organizations and reacts to bus events.
type Worker struct {
	bus      domain.EventBus
	store    domain.RuleStore
	resolver *engine.Resolver

	subs []domain.Subscription
}

// New creates a worker.
func New(eventBus domain.EventBus, store domain.RuleStore, resolver *engine.Resolver) *Worker {
	return &Worker{
		bus:      eventBus,
		store:    store,
		resolver: resolver,
	}
}

// Start subscribes to the decision and rule-update topics.
func (w *Worker) Start(ctx context.Context) error {
	sub, err := w.bus.Subscribe(ctx, bus.WildcardOrg, domain.TopicDecisionRecorded, w.handleDecision)
	if err != nil {
		return fmt.Errorf("failed to subscribe to decisions: %w", err)
	}
	w.subs = append(w.subs, sub)

	sub, err = w.bus.Subscribe(ctx, bus.WildcardOrg, domain.TopicRuleUpdated, w.handleRuleUpdate)
	if err != nil {
		return fmt.Errorf("failed to subscribe to rule updates: %w", err)
	}
	w.subs = append(w.subs, sub)

	slog.Info("worker started",
		"topics", []string{domain.TopicDecisionRecorded, domain.TopicRuleUpdated},
	)
	return nil
}

// Stop unsubscribes from all topics.
func (w *Worker) Stop() {
	for _, sub := range w.subs {
		if err := sub.Unsubscribe(); err != nil {
			slog.Warn("failed to unsubscribe", "topic", sub.Topic(), "error", err)
		}
	}
	w.subs = nil
	slog.Info("worker stopped")
}

func (w *Worker) handleDecision(ctx context.Context, msg *domain.Message) error {
	var rec domain.DecisionRecord
	if err := json.Unmarshal(msg.Payload, &rec); err != nil {
		slog.Error("failed to unmarshal decision record",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	if err := w.store.SaveDecisionRecord(ctx, rec.OrganizationID, &rec); err != nil {
		slog.Error("failed to persist decision record",
			"record_id", rec.ID,
			"org_id", rec.OrganizationID,
			"error", err,
		)
		return err
	}

	return nil
}

// handleRuleUpdate drops the family's cached candidate list. The publishing
// node already invalidated its own cache; this keeps the other nodes' local
// caches from serving the stale list for a full TTL.
func (w *Worker) handleRuleUpdate(ctx context.Context, msg *domain.Message) error {
	var update struct {
		RuleID string `json:"rule_id"`
		Family string `json:"family"`
	}
	if err := json.Unmarshal(msg.Payload, &update); err != nil {
		slog.Error("failed to unmarshal rule update",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	if err := w.resolver.InvalidateCache(ctx, msg.OrgID, update.Family); err != nil {
		slog.Warn("failed to invalidate cache for rule update",
			"org_id", msg.OrgID,
			"family", update.Family,
			"error", err,
		)
		return err
	}

	return nil
}
