package similarity

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// VitalAverages holds per-field means. A nil field had no usable observation.
type VitalAverages struct {
	AvgSystolicBP  *float64 `json:"avg_systolic_bp,omitempty"`
	AvgHeartRate   *float64 `json:"avg_heart_rate,omitempty"`
	AvgTemperature *float64 `json:"avg_temperature,omitempty"`
	AvgWeight      *float64 `json:"avg_weight,omitempty"`
}

// PatientProfile is the comparable summary of one patient's history. It is
// built per request and never stored.
type PatientProfile struct {
	PatientID        int64          `json:"patient_id"`
	Age              *int           `json:"age,omitempty"`
	Gender           *string        `json:"gender,omitempty"`
	BloodType        *string        `json:"blood_type,omitempty"`
	Allergies        *string        `json:"allergies,omitempty"`
	DiagnosisTerms   []ClinicalTerm `json:"diagnosis_terms"`
	SymptomTerms     []ClinicalTerm `json:"symptom_terms"`
	Vitals           VitalAverages  `json:"vitals"`
	AbnormalLabNames []string       `json:"abnormal_lab_names"`
}

// ProfileBuilder aggregates histories into profiles.
type ProfileBuilder struct {
	extractor *TermExtractor
	now       func() time.Time
}

func NewProfileBuilder(extractor *TermExtractor, now func() time.Time) *ProfileBuilder {
	if now == nil {
		now = time.Now
	}
	return &ProfileBuilder{extractor: extractor, now: now}
}

// Build is a pure function of its inputs. visits and labs are expected most
// recent first, already bounded by the caller.
func (b *ProfileBuilder) Build(p *Patient, visits []*VisitRecord, labs []*LabResult) *PatientProfile {
	prof := &PatientProfile{
		PatientID: p.ID,
		Gender:    nonBlank(p.Gender),
		BloodType: nonBlank(p.BloodType),
		Allergies: nonBlank(p.Allergies),
	}
	if p.DateOfBirth != nil {
		age := ageAt(*p.DateOfBirth, b.now())
		prof.Age = &age
	}

	var systolic, heartRate, temperature, weight meanAcc
	for _, v := range visits {
		if v.Diagnosis != nil {
			prof.DiagnosisTerms = append(prof.DiagnosisTerms, b.extractor.Extract(*v.Diagnosis, TermDiagnosis)...)
		}
		if v.ChiefComplaint != nil {
			prof.SymptomTerms = append(prof.SymptomTerms, b.extractor.Extract(*v.ChiefComplaint, TermSymptom)...)
		}
		systolic.add(v.BloodPressureSystolic)
		heartRate.add(v.HeartRate)
		temperature.add(v.Temperature)
		weight.add(v.Weight)
	}
	prof.Vitals = VitalAverages{
		AvgSystolicBP:  systolic.mean(),
		AvgHeartRate:   heartRate.mean(),
		AvgTemperature: temperature.mean(),
		AvgWeight:      weight.mean(),
	}

	for _, l := range labs {
		if !l.IsAbnormal {
			continue
		}
		if name := strings.ToLower(strings.TrimSpace(l.TestName)); name != "" {
			prof.AbnormalLabNames = append(prof.AbnormalLabNames, name)
		}
	}
	return prof
}

type meanAcc struct {
	sum float64
	n   int
}

func (m *meanAcc) add(raw *string) {
	if v, ok := parseVital(raw); ok {
		m.sum += v
		m.n++
	}
}

func (m *meanAcc) mean() *float64 {
	if m.n == 0 {
		return nil
	}
	avg := m.sum / float64(m.n)
	return &avg
}

// parseVital accepts finite positive numbers only; anything else is absent.
func parseVital(raw *string) (float64, bool) {
	if raw == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(*raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0, false
	}
	return v, true
}

func ageAt(dob, now time.Time) int {
	age := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		age--
	}
	if age < 0 {
		return 0
	}
	return age
}

func nonBlank(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}
