package cycle

import (
	"context"

	"github.com/andesalud/hiv-auth/internal/domain/claims"
)

// MedicationRegistry answers membership questions against the HIV medication
// catalog. Unknown codes are a legitimate negative answer, not an error;
// only backend failures surface as claims.ErrRetrieval.
type MedicationRegistry interface {
	// IsHIVMedication reports whether the troquel names an HIV medication.
	IsHIVMedication(ctx context.Context, troquel string) (bool, error)
	// ActiveIngredient returns the monodroga registered for the troquel,
	// or an empty string when the catalog has no entry for it.
	ActiveIngredient(ctx context.Context, troquel string) (string, error)
}

// DispensingHistory provides read access to tickets and prior dispensing
// events. Ordering of returned events is stable for a given stored state.
type DispensingHistory interface {
	// FindTicket returns the ticket with the given ID, or claims.ErrNotFound.
	FindTicket(ctx context.Context, id string) (*claims.Ticket, error)
	// FindRecipes returns the dispensing events recorded for a ticket.
	// It fails with claims.ErrNotFound when the ticket does not exist and
	// with claims.ErrValidation when the socio does not own the ticket.
	FindRecipes(ctx context.Context, ticketID, socio string) ([]claims.DispensingEvent, error)
	// MemberSnapshot returns the member record and all prior dispensing
	// events for the socio in one consistent read. Unknown members fail
	// with claims.ErrNotFound.
	MemberSnapshot(ctx context.Context, socio string) (*claims.MemberRecord, []claims.DispensingEvent, error)
}

// SubstitutionTable resolves substitution rules by exact troquel match.
// Absence of a rule is claims.ErrNotFound, never a defaulted rule.
type SubstitutionTable interface {
	Lookup(ctx context.Context, troquel string) (*claims.SubstitutionRule, error)
}
