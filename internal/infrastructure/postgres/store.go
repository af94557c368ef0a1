// Package postgres implements the claim-data ports against the IBM Cloud
// PostgreSQL instance the original service was provisioned with.
package postgres

import (
	"fmt"

	"github.com/andesalud/hiv-auth/internal/domain/claims"
)

// retrievalError tags a store failure with the RetrievalError kind while
// keeping the driver error in the chain for diagnostics.
func retrievalError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, claims.ErrRetrieval, err)
}
