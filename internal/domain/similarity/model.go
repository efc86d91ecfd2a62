package similarity

import (
	"fmt"
	"time"
)

// Patient maps to the patients table. Only the demographic columns the
// engine needs are read; contact fields never leave the repository.
type Patient struct {
	ID          int64      `db:"id" json:"id"`
	DateOfBirth *time.Time `db:"date_of_birth" json:"date_of_birth,omitempty"`
	Gender      *string    `db:"gender" json:"gender,omitempty"`
	BloodType   *string    `db:"blood_type" json:"blood_type,omitempty"`
	Allergies   *string    `db:"allergies" json:"allergies,omitempty"`
}

// Candidate is a patient from the candidate pool, annotated with the size
// and recency of its visit history.
type Candidate struct {
	Patient
	RecordCount     int        `db:"record_count" json:"record_count"`
	LatestVisitDate *time.Time `db:"latest_visit_date" json:"latest_visit_date,omitempty"`
}

// VisitRecord maps to the medical_records table. Vital columns hold the raw
// text captured at intake and may be empty or malformed.
type VisitRecord struct {
	ID                     int64     `db:"id" json:"id"`
	PatientID              int64     `db:"patient_id" json:"patient_id"`
	VisitDate              time.Time `db:"visit_date" json:"visit_date"`
	Diagnosis              *string   `db:"diagnosis" json:"diagnosis,omitempty"`
	ChiefComplaint         *string   `db:"chief_complaint" json:"chief_complaint,omitempty"`
	BloodPressureSystolic  *string   `db:"blood_pressure_systolic" json:"blood_pressure_systolic,omitempty"`
	BloodPressureDiastolic *string   `db:"blood_pressure_diastolic" json:"blood_pressure_diastolic,omitempty"`
	HeartRate              *string   `db:"heart_rate" json:"heart_rate,omitempty"`
	Temperature            *string   `db:"temperature" json:"temperature,omitempty"`
	Weight                 *string   `db:"weight" json:"weight,omitempty"`
	DoctorName             *string   `db:"doctor_name" json:"doctor_name,omitempty"`
	Prescription           *string   `db:"prescription" json:"prescription,omitempty"`
	Notes                  *string   `db:"notes" json:"notes,omitempty"`
}

// LabResult maps to the lab_results table.
type LabResult struct {
	ID             int64      `db:"id" json:"-"`
	PatientID      int64      `db:"patient_id" json:"-"`
	TestName       string     `db:"test_name" json:"test_name"`
	TestValue      *string    `db:"test_value" json:"test_value,omitempty"`
	TestUnit       *string    `db:"test_unit" json:"test_unit,omitempty"`
	TestDate       *time.Time `db:"test_date" json:"test_date,omitempty"`
	IsAbnormal     bool       `db:"is_abnormal" json:"is_abnormal"`
	ReferenceRange *string    `db:"reference_range" json:"reference_range,omitempty"`
}

// SearchType selects which term dimensions take part in scoring.
type SearchType string

const (
	SearchAll       SearchType = "all"
	SearchDiagnosis SearchType = "diagnosis"
	SearchSymptoms  SearchType = "symptoms"
)

// Valid reports whether t is one of the three search types.
func (t SearchType) Valid() bool {
	return t == SearchAll || t == SearchDiagnosis || t == SearchSymptoms
}

// ParseSearchType maps a query value to a SearchType. An empty value means
// SearchAll.
func ParseSearchType(s string) (SearchType, error) {
	switch SearchType(s) {
	case "", SearchAll:
		return SearchAll, nil
	case SearchDiagnosis:
		return SearchDiagnosis, nil
	case SearchSymptoms:
		return SearchSymptoms, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSearchType, s)
}

// TimelineEntry is one visit as shown in a similar case.
type TimelineEntry struct {
	Date         string `json:"date"`
	Diagnosis    string `json:"diagnosis,omitempty"`
	Complaint    string `json:"complaint,omitempty"`
	Prescription string `json:"prescription,omitempty"`
	Notes        string `json:"notes,omitempty"`
	Doctor       string `json:"doctor,omitempty"`
	VitalSigns   string `json:"vital_signs,omitempty"`
}

// SimilarityResult is one ranked similar case. It carries a case pseudonym
// instead of the patient's identity.
type SimilarityResult struct {
	CandidateID        int64           `json:"-"`
	CaseID             string          `json:"case_id"`
	Score              float64         `json:"similarity_score"`
	Percentage         float64         `json:"similarity_percentage"`
	Age                *int            `json:"age,omitempty"`
	Gender             string          `json:"gender,omitempty"`
	BloodType          string          `json:"blood_type,omitempty"`
	RecordCount        int             `json:"record_count"`
	LatestVisit        string          `json:"latest_visit,omitempty"`
	MatchingCategories []string        `json:"matching_categories"`
	Breakdown          Breakdown       `json:"breakdown"`
	Timeline           []TimelineEntry `json:"timeline"`
	Labs               []LabResult     `json:"labs"`
}

func stringVal(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
