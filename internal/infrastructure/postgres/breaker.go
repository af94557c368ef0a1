package postgres

import (
	"context"
	"fmt"

	"github.com/andesalud/hiv-auth/internal/domain/claims"
	"github.com/andesalud/hiv-auth/internal/domain/cycle"
	"github.com/andesalud/hiv-auth/pkg/circuitbreaker"
)

// Circuit-breaker decorators for the store ports. A rejected call surfaces
// as RetrievalError, keeping an open circuit distinct from a negative
// lookup; errors from the guarded call pass through with their kind intact.

// BreakerRegistry guards a MedicationRegistry.
type BreakerRegistry struct {
	next cycle.MedicationRegistry
	cb   *circuitbreaker.CircuitBreaker
}

// NewBreakerRegistry wraps a registry in a circuit breaker.
func NewBreakerRegistry(next cycle.MedicationRegistry, cb *circuitbreaker.CircuitBreaker) *BreakerRegistry {
	return &BreakerRegistry{next: next, cb: cb}
}

func (b *BreakerRegistry) IsHIVMedication(ctx context.Context, troquel string) (bool, error) {
	v, err := b.cb.Execute(ctx, func() (interface{}, error) {
		return b.next.IsHIVMedication(ctx, troquel)
	})
	if err != nil {
		return false, breakerErr("hiv registry", err)
	}
	return v.(bool), nil
}

func (b *BreakerRegistry) ActiveIngredient(ctx context.Context, troquel string) (string, error) {
	v, err := b.cb.Execute(ctx, func() (interface{}, error) {
		return b.next.ActiveIngredient(ctx, troquel)
	})
	if err != nil {
		return "", breakerErr("hiv registry", err)
	}
	return v.(string), nil
}

// BreakerHistory guards a DispensingHistory.
type BreakerHistory struct {
	next cycle.DispensingHistory
	cb   *circuitbreaker.CircuitBreaker
}

// NewBreakerHistory wraps a history store in a circuit breaker.
func NewBreakerHistory(next cycle.DispensingHistory, cb *circuitbreaker.CircuitBreaker) *BreakerHistory {
	return &BreakerHistory{next: next, cb: cb}
}

func (b *BreakerHistory) FindTicket(ctx context.Context, id string) (*claims.Ticket, error) {
	v, err := b.cb.Execute(ctx, func() (interface{}, error) {
		return b.next.FindTicket(ctx, id)
	})
	if err != nil {
		return nil, breakerErr("dispensing history", err)
	}
	return v.(*claims.Ticket), nil
}

func (b *BreakerHistory) FindRecipes(ctx context.Context, ticketID, socio string) ([]claims.DispensingEvent, error) {
	v, err := b.cb.Execute(ctx, func() (interface{}, error) {
		return b.next.FindRecipes(ctx, ticketID, socio)
	})
	if err != nil {
		return nil, breakerErr("dispensing history", err)
	}
	return v.([]claims.DispensingEvent), nil
}

func (b *BreakerHistory) MemberSnapshot(ctx context.Context, socio string) (*claims.MemberRecord, []claims.DispensingEvent, error) {
	type snapshot struct {
		member *claims.MemberRecord
		events []claims.DispensingEvent
	}
	v, err := b.cb.Execute(ctx, func() (interface{}, error) {
		member, events, err := b.next.MemberSnapshot(ctx, socio)
		if err != nil {
			return nil, err
		}
		return snapshot{member, events}, nil
	})
	if err != nil {
		return nil, nil, breakerErr("dispensing history", err)
	}
	s := v.(snapshot)
	return s.member, s.events, nil
}

// BreakerSubstitutionTable guards a SubstitutionTable.
type BreakerSubstitutionTable struct {
	next cycle.SubstitutionTable
	cb   *circuitbreaker.CircuitBreaker
}

// NewBreakerSubstitutionTable wraps a substitution table in a circuit breaker.
func NewBreakerSubstitutionTable(next cycle.SubstitutionTable, cb *circuitbreaker.CircuitBreaker) *BreakerSubstitutionTable {
	return &BreakerSubstitutionTable{next: next, cb: cb}
}

func (b *BreakerSubstitutionTable) Lookup(ctx context.Context, troquel string) (*claims.SubstitutionRule, error) {
	v, err := b.cb.Execute(ctx, func() (interface{}, error) {
		return b.next.Lookup(ctx, troquel)
	})
	if err != nil {
		return nil, breakerErr("substitution table", err)
	}
	return v.(*claims.SubstitutionRule), nil
}

func breakerErr(op string, err error) error {
	if circuitbreaker.IsCircuitError(err) {
		return fmt.Errorf("%s unavailable: %w: %w", op, claims.ErrRetrieval, err)
	}
	return err
}
