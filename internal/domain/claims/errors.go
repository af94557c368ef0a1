package claims

import "errors"

// Error kinds surfaced by the collaborator stores. Callers match them with
// errors.Is; the HTTP layer maps each kind to a distinct status code.
var (
	// ErrNotFound indicates the requested entity (ticket, member,
	// substitution rule) does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates the supplied identifiers are mutually
	// inconsistent, e.g. the socio does not own the ticket.
	ErrValidation = errors.New("validation failed")

	// ErrRetrieval indicates a backing store could not be reached or
	// returned malformed data. It must never be collapsed into a negative
	// lookup result.
	ErrRetrieval = errors.New("retrieval failed")
)
