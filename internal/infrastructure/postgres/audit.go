package postgres

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/andesalud/hiv-auth/internal/domain/cycle"
)

// EventCycleClassified is the event type written for each verdict.
const EventCycleClassified = "CycleClassified"

// AuditLog persists classification verdicts through the transactional
// outbox; cmd/audit-relay publishes them to the audit topic.
type AuditLog struct {
	pool   *pgxpool.Pool
	topic  string
	logger *zap.Logger
}

// NewAuditLog creates an audit trail writing to the given topic.
func NewAuditLog(pool *pgxpool.Pool, topic string, logger *zap.Logger) *AuditLog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditLog{pool: pool, topic: topic, logger: logger}
}

// RecordVerdict writes the verdict record and its outbox entry atomically.
func (a *AuditLog) RecordVerdict(ctx context.Context, rec *cycle.VerdictRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return retrievalError("marshal verdict record", err)
	}

	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return retrievalError("begin audit tx", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO cycle_verdicts (id, troquel, socio, ciclo, descripcion, request_id, classified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, rec.ID, rec.Troquel, rec.Socio, int(rec.Verdict), rec.Descripcion, rec.RequestID, rec.ClassifiedAt)
	if err != nil {
		return retrievalError("insert verdict", err)
	}

	entry := &OutboxEntry{
		VerdictID: rec.ID,
		EventType: EventCycleClassified,
		Payload:   payload,
		Topic:     a.topic,
		Key:       rec.Socio,
	}
	if err := WriteEntry(ctx, tx, entry); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return retrievalError("commit audit tx", err)
	}
	return nil
}
