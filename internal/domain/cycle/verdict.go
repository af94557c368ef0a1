// Package cycle implements the treatment-cycle classification and
// substitution-resolution core of the HIV authorization workflow.
package cycle

// Verdict is the treatment-cycle classification for a (troquel, socio) pair.
// The numeric values are part of the wire contract consumed by the
// authorization orchestrator.
type Verdict int

const (
	// VerdictInitiation marks a first-time therapy request.
	VerdictInitiation Verdict = 1
	// VerdictRenewal marks a continuing treatment, including continuation
	// through an approved substitute medication.
	VerdictRenewal Verdict = 2
	// VerdictIndeterminate means no relationship between the troquel and
	// the member's treatment history could be established.
	VerdictIndeterminate Verdict = 3
)

// String returns the Spanish label used by the authorization workflow.
func (v Verdict) String() string {
	switch v {
	case VerdictInitiation:
		return "INICIO"
	case VerdictRenewal:
		return "RENOVACION"
	case VerdictIndeterminate:
		return "INDETERMINADO"
	default:
		return "DESCONOCIDO"
	}
}
