package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/andesalud/hiv-auth/internal/domain/claims"
)

// SubstitutionTable resolves substitution rules by exact troquel match.
type SubstitutionTable struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewSubstitutionTable creates a substitution store.
func NewSubstitutionTable(pool *pgxpool.Pool, logger *zap.Logger) *SubstitutionTable {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubstitutionTable{pool: pool, logger: logger}
}

// Lookup returns the single rule for a troquel or claims.ErrNotFound.
// Should the table carry duplicates upstream, the first row wins.
func (s *SubstitutionTable) Lookup(ctx context.Context, troquel string) (*claims.SubstitutionRule, error) {
	query := `
		SELECT troquel, sustituye, codigo_sustituible
		FROM sustituciones
		WHERE troquel = $1
		LIMIT 1
	`

	rule := &claims.SubstitutionRule{}
	var sustituye int
	var codigo *string
	err := s.pool.QueryRow(ctx, query, troquel).Scan(&rule.Troquel, &sustituye, &codigo)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("substitution rule for troquel %s: %w", troquel, claims.ErrNotFound)
	}
	if err != nil {
		return nil, retrievalError("substitution lookup", err)
	}

	rule.Sustituye = sustituye == 1
	if codigo != nil {
		rule.CodigoSustituible = *codigo
	}
	return rule, nil
}
