package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/georgysavva/scany/v2/pgxscan"

	"tallybook/internal/core/id"
	"tallybook/internal/domain/events"
	"tallybook/pkg/logger"
)

// OutboxStatus is the delivery state of an outbox message.
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusPublished OutboxStatus = "published"
	OutboxStatusFailed    OutboxStatus = "failed"
)

// MaxOutboxAttempts is the number of failed deliveries after which a message is parked as failed.
const MaxOutboxAttempts = 5

// OutboxMessage is a row of sys_outbox.
type OutboxMessage struct {
	ID            string       `db:"id"`
	AggregateType string       `db:"aggregate_type"`
	AggregateID   string       `db:"aggregate_id"`
	EventType     string       `db:"event_type"`
	Payload       []byte       `db:"payload"`
	Status        OutboxStatus `db:"status"`
	RetryCount    int          `db:"retry_count"`
	LastError     *string      `db:"last_error"`
	NextRetryAt   time.Time    `db:"next_retry_at"`
	CreatedAt     time.Time    `db:"created_at"`
	ProcessedAt   *time.Time   `db:"processed_at"`
}

const insertOutbox = `
	INSERT INTO sys_outbox (id, aggregate_type, aggregate_id, event_type, payload, status, next_retry_at, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
`

// OutboxPublisher writes events to sys_outbox. Inside a transaction the row
// commits together with the caller's writes; outside one it is written alone.
type OutboxPublisher struct {
	txManager *TxManager
	now       func() time.Time
}

var _ events.Publisher = (*OutboxPublisher)(nil)

// NewOutboxPublisher creates an outbox publisher.
func NewOutboxPublisher(txManager *TxManager) *OutboxPublisher {
	return &OutboxPublisher{txManager: txManager, now: time.Now}
}

// Publish implements events.Publisher.
func (p *OutboxPublisher) Publish(ctx context.Context, event events.Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	_, err = p.txManager.GetQuerier(ctx).Exec(ctx, insertOutbox,
		id.New(), event.AggregateType, event.AggregateID, event.Type, payload,
		OutboxStatusPending, p.now().UTC(),
	)
	if err != nil {
		return MapError(fmt.Errorf("insert outbox message: %w", err), "outbox message", event.AggregateID)
	}
	return nil
}

// Deliverer hands a message to the outside world.
type Deliverer interface {
	Deliver(ctx context.Context, eventType string, payload []byte) error
}

// OutboxRelay claims pending messages and delivers them, rescheduling failures.
type OutboxRelay struct {
	txManager *TxManager
	deliverer Deliverer
	batchSize int
	// retryPolicy yields the delay before the next attempt.
	retryPolicy func() backoff.BackOff
	now         func() time.Time
}

// NewOutboxRelay creates a relay that delivers at most batchSize messages per call.
func NewOutboxRelay(txManager *TxManager, deliverer Deliverer, batchSize int) *OutboxRelay {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &OutboxRelay{
		txManager: txManager,
		deliverer: deliverer,
		batchSize: batchSize,
		retryPolicy: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 30 * time.Second
			b.MaxInterval = 30 * time.Minute
			return b
		},
		now: time.Now,
	}
}

const claimOutbox = `
	SELECT id, aggregate_type, aggregate_id, event_type, payload, status,
	       retry_count, last_error, next_retry_at, created_at, processed_at
	FROM sys_outbox
	WHERE status = $1 AND next_retry_at <= $2
	ORDER BY created_at
	LIMIT $3
	FOR UPDATE SKIP LOCKED
`

// ProcessBatch delivers one batch and returns how many messages were published.
// Rows stay locked until the batch finishes so concurrent relays skip them.
func (r *OutboxRelay) ProcessBatch(ctx context.Context) (int, error) {
	processed := 0
	err := r.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var messages []*OutboxMessage
		if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &messages, claimOutbox,
			OutboxStatusPending, r.now().UTC(), r.batchSize); err != nil {
			return MapError(fmt.Errorf("claim outbox messages: %w", err), "outbox message", "")
		}

		for _, msg := range messages {
			ok, err := r.processMessage(ctx, msg)
			if err != nil {
				return err
			}
			if ok {
				processed++
			}
		}
		return nil
	})
	return processed, err
}

// processMessage reports whether msg was delivered. The error is non-nil only
// when the outcome could not be recorded.
func (r *OutboxRelay) processMessage(ctx context.Context, msg *OutboxMessage) (bool, error) {
	q := r.txManager.GetQuerier(ctx)
	now := r.now().UTC()

	if err := r.deliverer.Deliver(ctx, msg.EventType, msg.Payload); err != nil {
		attempts := msg.RetryCount + 1
		status := OutboxStatusPending
		if attempts >= MaxOutboxAttempts {
			status = OutboxStatusFailed
		}
		logger.Warn(ctx, "outbox delivery failed",
			"message_id", msg.ID,
			"event_type", msg.EventType,
			"attempt", attempts,
			"error", err,
		)

		_, updateErr := q.Exec(ctx, `
			UPDATE sys_outbox
			SET retry_count = $1, last_error = $2, next_retry_at = $3, status = $4
			WHERE id = $5
		`, attempts, err.Error(), now.Add(r.retryDelay(attempts)), status, msg.ID)
		if updateErr != nil {
			return false, fmt.Errorf("reschedule outbox message: %w", updateErr)
		}
		return false, nil
	}

	if _, err := q.Exec(ctx, `
		UPDATE sys_outbox SET status = $1, processed_at = $2 WHERE id = $3
	`, OutboxStatusPublished, now, msg.ID); err != nil {
		return false, fmt.Errorf("mark outbox message published: %w", err)
	}
	return true, nil
}

// retryDelay returns the delay before attempt number attempts+1.
func (r *OutboxRelay) retryDelay(attempts int) time.Duration {
	b := r.retryPolicy()
	b.Reset()
	d := b.NextBackOff()
	for i := 1; i < attempts; i++ {
		d = b.NextBackOff()
	}
	return d
}

// PurgePublished deletes published messages processed before olderThan.
func (r *OutboxRelay) PurgePublished(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, `
		DELETE FROM sys_outbox WHERE status = $1 AND processed_at < $2
	`, OutboxStatusPublished, olderThan)
	if err != nil {
		return 0, MapError(fmt.Errorf("purge outbox: %w", err), "outbox message", "")
	}
	return tag.RowsAffected(), nil
}
