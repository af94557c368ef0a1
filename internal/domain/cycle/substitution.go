package cycle

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// SubstitutionOutcome is the result of resolving a substitution rule.
// Field names follow the wire contract of the authorization workflow.
type SubstitutionOutcome struct {
	Sustituible bool   `json:"es_sustituible"`
	Troquel     string `json:"troquel"`
	Sustituto   string `json:"codigo_sustituto,omitempty"`
	Mensaje     string `json:"mensaje"`
}

// Resolver answers substitution queries against the substitution table.
type Resolver struct {
	table  SubstitutionTable
	logger *zap.Logger
}

// NewResolver creates a substitution resolver.
func NewResolver(table SubstitutionTable, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{table: table, logger: logger}
}

// Resolve looks up the single rule for a troquel. Absence of a rule is an
// explicit unknown: claims.ErrNotFound propagates to the caller rather than
// being defaulted to "not substitutable".
func (r *Resolver) Resolve(ctx context.Context, troquel string) (*SubstitutionOutcome, error) {
	rule, err := r.table.Lookup(ctx, troquel)
	if err != nil {
		return nil, err
	}

	if !rule.Sustituye {
		return &SubstitutionOutcome{
			Sustituible: false,
			Troquel:     troquel,
			Mensaje:     fmt.Sprintf("El troquel %s no es sustituible", troquel),
		}, nil
	}

	return &SubstitutionOutcome{
		Sustituible: true,
		Troquel:     troquel,
		Sustituto:   rule.CodigoSustituible,
		Mensaje:     fmt.Sprintf("El troquel %s puede sustituirse por %s", troquel, rule.CodigoSustituible),
	}, nil
}
