package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/andesalud/hiv-auth/internal/domain/claims"
)

// DispensingHistory reads tickets and prior dispensing events.
type DispensingHistory struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewDispensingHistory creates a history store.
func NewDispensingHistory(pool *pgxpool.Pool, logger *zap.Logger) *DispensingHistory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DispensingHistory{pool: pool, logger: logger}
}

// FindTicket returns the ticket with the given ID.
func (h *DispensingHistory) FindTicket(ctx context.Context, id string) (*claims.Ticket, error) {
	query := `
		SELECT object_id, filial, socio, id, fecha_entrada
		FROM tickets
		WHERE id = $1
	`

	t := &claims.Ticket{}
	err := h.pool.QueryRow(ctx, query, id).Scan(
		&t.ObjectID, &t.Filial, &t.Socio, &t.ID, &t.FechaEntrada,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("ticket %s: %w", id, claims.ErrNotFound)
	}
	if err != nil {
		return nil, retrievalError("find ticket", err)
	}
	return t, nil
}

// FindRecipes returns the dispensing events recorded for a ticket after
// checking that the socio owns it. The ticket's socio field is a display
// string ("61134592601 - CAROLINA"), so ownership is a substring match on
// the member number, as in the upstream claims system.
func (h *DispensingHistory) FindRecipes(ctx context.Context, ticketID, socio string) ([]claims.DispensingEvent, error) {
	ticket, err := h.FindTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	if socio == "" || !strings.Contains(ticket.Socio, socio) {
		return nil, fmt.Errorf("socio %s does not match ticket %s: %w", socio, ticketID, claims.ErrValidation)
	}

	query := `
		SELECT ticket_id, socio, troquel, monodroga, descripcion, dispensed_at
		FROM recetas
		WHERE ticket_id = $1
		ORDER BY dispensed_at ASC, troquel ASC
	`

	rows, err := h.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, retrievalError("find recipes", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// MemberSnapshot returns the member record and all prior dispensing events
// in a single repeatable-read transaction, so one classification never
// observes a torn history.
func (h *DispensingHistory) MemberSnapshot(ctx context.Context, socio string) (*claims.MemberRecord, []claims.DispensingEvent, error) {
	tx, err := h.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return nil, nil, retrievalError("member snapshot", err)
	}
	defer tx.Rollback(ctx)

	member := &claims.MemberRecord{}
	err = tx.QueryRow(ctx,
		`SELECT socio, nombre FROM socios WHERE socio = $1`, socio,
	).Scan(&member.Socio, &member.Nombre)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, fmt.Errorf("socio %s: %w", socio, claims.ErrNotFound)
	}
	if err != nil {
		return nil, nil, retrievalError("member snapshot", err)
	}

	rows, err := tx.Query(ctx, `
		SELECT ticket_id, socio, troquel, monodroga, descripcion, dispensed_at
		FROM recetas
		WHERE socio = $1
		ORDER BY dispensed_at ASC, troquel ASC
	`, socio)
	if err != nil {
		return nil, nil, retrievalError("member snapshot", err)
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, retrievalError("member snapshot", err)
	}
	return member, events, nil
}

func scanEvents(rows pgx.Rows) ([]claims.DispensingEvent, error) {
	var events []claims.DispensingEvent
	for rows.Next() {
		var e claims.DispensingEvent
		err := rows.Scan(&e.TicketID, &e.Socio, &e.Troquel, &e.Monodroga, &e.Descripcion, &e.DispensedAt)
		if err != nil {
			return nil, retrievalError("scan recipe", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, retrievalError("read recipes", err)
	}
	return events, nil
}
