package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// MedicationRegistry answers HIV-catalog lookups. The table name and column
// casing come from the CSV load the catalog was seeded from.
type MedicationRegistry struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewMedicationRegistry creates a registry backed by the HIV catalog table.
func NewMedicationRegistry(pool *pgxpool.Pool, logger *zap.Logger) *MedicationRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MedicationRegistry{pool: pool, logger: logger}
}

// IsHIVMedication reports whether the presentation code appears in the HIV
// catalog. Unknown codes are false, not an error.
func (r *MedicationRegistry) IsHIVMedication(ctx context.Context, troquel string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM public."medicamentos_HIV.csv"
			WHERE "Presentacion" = $1
		)
	`

	var esHIV bool
	if err := r.pool.QueryRow(ctx, query, troquel).Scan(&esHIV); err != nil {
		return false, retrievalError("hiv check", err)
	}
	return esHIV, nil
}

// ActiveIngredient returns the monodroga registered for the presentation
// code, or an empty string when the catalog does not know it.
func (r *MedicationRegistry) ActiveIngredient(ctx context.Context, troquel string) (string, error) {
	query := `
		SELECT "Monodroga"
		FROM public."medicamentos_HIV.csv"
		WHERE "Presentacion" = $1
		LIMIT 1
	`

	var monodroga string
	err := r.pool.QueryRow(ctx, query, troquel).Scan(&monodroga)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", retrievalError("active ingredient", err)
	}
	return monodroga, nil
}
