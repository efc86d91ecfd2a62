package similarity

import "context"

// Repository is the read-only view of the clinical store the engine needs.
// A limit of zero or less means no limit.
type Repository interface {
	// GetPatient returns ErrPatientNotFound when id does not resolve.
	GetPatient(ctx context.Context, id int64) (*Patient, error)
	ListVisitHistory(ctx context.Context, patientID int64, limit int) ([]*VisitRecord, error)
	ListLabHistory(ctx context.Context, patientID int64, limit int) ([]*LabResult, error)
	// ListCandidatePatients returns up to poolSize patients other than
	// excludeID with at least minRecords visits, most recent visit first.
	ListCandidatePatients(ctx context.Context, excludeID int64, minRecords, poolSize int) ([]*Candidate, error)
}
