package similarity

import "errors"

var (
	// ErrPatientNotFound is returned when the reference patient id does not resolve.
	ErrPatientNotFound = errors.New("patient not found")
	// ErrInvalidSearchType is returned for a search type outside all|diagnosis|symptoms.
	ErrInvalidSearchType = errors.New("invalid search type")
)
