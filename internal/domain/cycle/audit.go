package cycle

import (
	"context"
	"time"
)

// VerdictRecord is the audit entry emitted after each classification.
type VerdictRecord struct {
	ID           string    `json:"id"`
	Troquel      string    `json:"troquel"`
	Socio        string    `json:"socio"`
	Verdict      Verdict   `json:"ciclo"`
	Descripcion  string    `json:"descripcion"`
	RequestID    string    `json:"request_id,omitempty"`
	ClassifiedAt time.Time `json:"classified_at"`
}

// AuditTrail records classification verdicts for downstream consumers.
// Recording is best-effort from the caller's point of view: a failed audit
// write must never fail the classification itself.
type AuditTrail interface {
	RecordVerdict(ctx context.Context, rec *VerdictRecord) error
}
