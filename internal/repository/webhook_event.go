package repository

import (
	"context"
	"fmt"

	"github.com/xenking/checkout-engine/internal/domain/payment"
)

// recordWebhookEventSQL makes the audit insert double as the idempotency
// check: a duplicate (provider, transaction, event type) affects zero rows.
const recordWebhookEventSQL = `INSERT INTO webhook_events (provider, transaction_id, event_type, payload)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (provider, transaction_id, event_type) DO NOTHING`

var _ payment.EventLog = (*WebhookEventRepository)(nil)

// WebhookEventRepository implements payment.EventLog backed by PostgreSQL.
type WebhookEventRepository struct {
	db querier
}

// NewWebhookEventRepository returns a WebhookEventRepository that uses the
// given connection or transaction.
func NewWebhookEventRepository(db querier) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

// Record stores the event payload and reports whether this delivery was the
// first of its kind.
func (r *WebhookEventRepository) Record(ctx context.Context, provider, transactionID, eventType string, payload []byte) (bool, error) {
	tag, err := r.db.Exec(ctx, recordWebhookEventSQL, provider, transactionID, eventType, payload)
	if err != nil {
		return false, fmt.Errorf("recording webhook event %s/%s/%s: %w", provider, transactionID, eventType, err)
	}
	return tag.RowsAffected() > 0, nil
}
