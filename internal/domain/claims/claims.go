// Package claims defines the pharmacy-claim entities shared across the
// authorization service. All of them are read-only snapshots supplied by the
// upstream dispensing system; nothing in this service mutates them.
package claims

import "time"

// Ticket is a pharmacy-claim ticket as issued by the claims front end.
// Field names follow the published wire contract of the original service.
type Ticket struct {
	ObjectID     string    `json:"ObjectID"`
	Filial       string    `json:"Filial"`
	Socio        string    `json:"Socio"`
	ID           string    `json:"ID"`
	FechaEntrada time.Time `json:"FechaEntrada"`
}

// MemberRecord identifies a covered individual. Nombre is display-only.
type MemberRecord struct {
	Socio  string `json:"socio"`
	Nombre string `json:"nombre"`
}

// DispensingEvent is one historical prescription record for a member.
type DispensingEvent struct {
	TicketID    string    `json:"ticket_id"`
	Socio       string    `json:"socio"`
	Troquel     string    `json:"troquel"`
	Monodroga   string    `json:"monodroga"`
	Descripcion string    `json:"descripcion"`
	DispensedAt time.Time `json:"dispensed_at"`
}

// SubstitutionRule maps an original troquel to an approved substitute.
// At most one rule exists per troquel; the lookup is by exact code match.
type SubstitutionRule struct {
	Troquel           string `json:"troquel"`
	Sustituye         bool   `json:"sustituye"`
	CodigoSustituible string `json:"codigo_sustituible,omitempty"`
}
