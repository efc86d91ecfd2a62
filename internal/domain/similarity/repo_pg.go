package similarity

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type repoPG struct {
	db querier
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{db: pool}
}

const visitCols = `id, patient_id, visit_date, diagnosis, chief_complaint,
	blood_pressure_systolic, blood_pressure_diastolic, heart_rate, temperature, weight,
	doctor_name, prescription, notes`

const labCols = `id, patient_id, test_name, test_value, test_unit, test_date, is_abnormal, reference_range`

func (r *repoPG) GetPatient(ctx context.Context, id int64) (*Patient, error) {
	var p Patient
	err := r.db.QueryRow(ctx,
		`SELECT id, date_of_birth, gender, blood_type, allergies FROM patients WHERE id = $1`, id,
	).Scan(&p.ID, &p.DateOfBirth, &p.Gender, &p.BloodType, &p.Allergies)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPatientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get patient %d: %w", id, err)
	}
	return &p, nil
}

func (r *repoPG) ListVisitHistory(ctx context.Context, patientID int64, limit int) ([]*VisitRecord, error) {
	rows, err := r.db.Query(ctx, `SELECT `+visitCols+` FROM medical_records
		WHERE patient_id = $1
		ORDER BY visit_date DESC, id DESC
		LIMIT $2`, patientID, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list visits for patient %d: %w", patientID, err)
	}
	defer rows.Close()

	var visits []*VisitRecord
	for rows.Next() {
		var v VisitRecord
		if err := rows.Scan(
			&v.ID, &v.PatientID, &v.VisitDate, &v.Diagnosis, &v.ChiefComplaint,
			&v.BloodPressureSystolic, &v.BloodPressureDiastolic, &v.HeartRate, &v.Temperature, &v.Weight,
			&v.DoctorName, &v.Prescription, &v.Notes,
		); err != nil {
			return nil, fmt.Errorf("scan visit: %w", err)
		}
		visits = append(visits, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate visits: %w", err)
	}
	return visits, nil
}

func (r *repoPG) ListLabHistory(ctx context.Context, patientID int64, limit int) ([]*LabResult, error) {
	rows, err := r.db.Query(ctx, `SELECT `+labCols+` FROM lab_results
		WHERE patient_id = $1
		ORDER BY test_date DESC NULLS LAST, id DESC
		LIMIT $2`, patientID, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list labs for patient %d: %w", patientID, err)
	}
	defer rows.Close()

	var labs []*LabResult
	for rows.Next() {
		var l LabResult
		if err := rows.Scan(
			&l.ID, &l.PatientID, &l.TestName, &l.TestValue, &l.TestUnit, &l.TestDate, &l.IsAbnormal, &l.ReferenceRange,
		); err != nil {
			return nil, fmt.Errorf("scan lab result: %w", err)
		}
		labs = append(labs, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lab results: %w", err)
	}
	return labs, nil
}

func (r *repoPG) ListCandidatePatients(ctx context.Context, excludeID int64, minRecords, poolSize int) ([]*Candidate, error) {
	rows, err := r.db.Query(ctx, `
		SELECT p.id, p.date_of_birth, p.gender, p.blood_type, p.allergies,
			COUNT(mr.id) AS record_count, MAX(mr.visit_date) AS latest_visit_date
		FROM patients p
		JOIN medical_records mr ON mr.patient_id = p.id
		WHERE p.id <> $1
		GROUP BY p.id
		HAVING COUNT(mr.id) >= $2
		ORDER BY latest_visit_date DESC, p.id ASC
		LIMIT $3`, excludeID, minRecords, sqlLimit(poolSize))
	if err != nil {
		return nil, fmt.Errorf("list candidate patients: %w", err)
	}
	defer rows.Close()

	var out []*Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(
			&c.ID, &c.DateOfBirth, &c.Gender, &c.BloodType, &c.Allergies,
			&c.RecordCount, &c.LatestVisitDate,
		); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidates: %w", err)
	}
	return out, nil
}

// sqlLimit maps "no limit" to NULL, which Postgres treats as LIMIT ALL.
func sqlLimit(limit int) *int {
	if limit <= 0 {
		return nil
	}
	return &limit
}
