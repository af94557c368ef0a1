package cycle

import (
	"context"
	"strings"

	"github.com/andesalud/hiv-auth/internal/domain/claims"
)

// Snapshot is the per-request view a classification runs against. It is
// assembled once per Classify call so every rule sees the same state.
type Snapshot struct {
	Troquel string
	Socio   string
	// Ingredient is the monodroga registered for Troquel, empty when the
	// catalog does not know the code.
	Ingredient string
	// Member is nil when the socio is unknown to the plan.
	Member *claims.MemberRecord
	// Events are the member's prior dispensing events, oldest first.
	Events []claims.DispensingEvent
}

// Rule is one entry of the ordered decision table. Evaluation stops at the
// first rule that matches; a rule that does not match must not guess.
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, snap *Snapshot) (Verdict, bool, error)
}

// DefaultRules returns the decision table in evaluation order. Continuity
// rules run before the initiation rule: a troquel that both looks novel and
// continues an existing treatment must resolve to Renewal, since treating a
// continuation as a fresh initiation would trigger re-authorization.
func DefaultRules(table SubstitutionTable) []Rule {
	return []Rule{
		RenewalRule{},
		SubstitutionRenewalRule{Table: table},
		InitiationRule{},
	}
}

// RenewalRule matches when the member already received a clinically
// equivalent medication: the same troquel, or one sharing the monodroga.
type RenewalRule struct{}

func (RenewalRule) Name() string { return "renewal" }

func (RenewalRule) Evaluate(_ context.Context, snap *Snapshot) (Verdict, bool, error) {
	for _, e := range snap.Events {
		if equivalent(snap, e) {
			return VerdictRenewal, true, nil
		}
	}
	return 0, false, nil
}

// SubstitutionRenewalRule matches when the requested troquel is tied to the
// member's history through a registered substitution: either a previously
// dispensed troquel substitutes into the requested one, or the requested
// troquel's own rule points back at a previously dispensed code.
type SubstitutionRenewalRule struct {
	Table SubstitutionTable
}

func (SubstitutionRenewalRule) Name() string { return "renewal-with-substitution" }

func (r SubstitutionRenewalRule) Evaluate(ctx context.Context, snap *Snapshot) (Verdict, bool, error) {
	for _, e := range snap.Events {
		rule, err := r.Table.Lookup(ctx, e.Troquel)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return 0, false, err
		}
		if rule.Sustituye && rule.CodigoSustituible == snap.Troquel {
			return VerdictRenewal, true, nil
		}
	}

	rule, err := r.Table.Lookup(ctx, snap.Troquel)
	if err != nil {
		if isNotFound(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	if rule.Sustituye {
		for _, e := range snap.Events {
			if e.Troquel == rule.CodigoSustituible {
				return VerdictRenewal, true, nil
			}
		}
	}
	return 0, false, nil
}

// InitiationRule matches a first-dispense case: the member is known to the
// plan and has no equivalent prior dispensing. The equivalence re-check keeps
// the rule correct regardless of its position in the table.
type InitiationRule struct{}

func (InitiationRule) Name() string { return "initiation" }

func (InitiationRule) Evaluate(_ context.Context, snap *Snapshot) (Verdict, bool, error) {
	if snap.Member == nil {
		return 0, false, nil
	}
	for _, e := range snap.Events {
		if equivalent(snap, e) {
			return 0, false, nil
		}
	}
	return VerdictInitiation, true, nil
}

// equivalent reports whether a prior dispensing event continues the same
// treatment as the requested troquel.
func equivalent(snap *Snapshot, e claims.DispensingEvent) bool {
	if e.Troquel == snap.Troquel {
		return true
	}
	return snap.Ingredient != "" && strings.EqualFold(e.Monodroga, snap.Ingredient)
}
