package repository

import (
	"context"
	"fmt"
)

// WebhookEventRepository is the delivery log of payment gateway events.
type WebhookEventRepository struct {
	db DBTX
}

func NewWebhookEventRepository(db DBTX) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

// Record stores a processed event id. It reports false for an id seen before.
func (r *WebhookEventRepository) Record(ctx context.Context, eventID, eventType string) (bool, error) {
	const query = `INSERT IGNORE INTO webhook_events (event_id, event_type) VALUES (?, ?)`
	res, err := r.db.ExecContext(ctx, query, eventID, eventType)
	if err != nil {
		return false, fmt.Errorf("record webhook event: %w", err)
	}
	return affectedOne(res, "record webhook event")
}
