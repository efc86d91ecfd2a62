package similarity

import (
	"testing"
	"time"
)

func strPtr(s string) *string { return &s }

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestAgeAt_Birthday(t *testing.T) {
	now := date(2024, time.June, 15)
	if got := ageAt(date(1980, time.June, 15), now); got != 44 {
		t.Errorf("expected 44 on the birthday, got %d", got)
	}
	if got := ageAt(date(1980, time.January, 1), now); got != 44 {
		t.Errorf("expected 44 after the birthday, got %d", got)
	}
}

func TestAgeAt_BeforeBirthday(t *testing.T) {
	now := date(2024, time.June, 15)
	if got := ageAt(date(1980, time.June, 16), now); got != 43 {
		t.Errorf("expected 43 the day before the birthday, got %d", got)
	}
	if got := ageAt(date(1980, time.December, 31), now); got != 43 {
		t.Errorf("expected 43 before a December birthday, got %d", got)
	}
}

func TestAgeAt_FutureBirthDate(t *testing.T) {
	if got := ageAt(date(2030, time.January, 1), date(2024, time.June, 15)); got != 0 {
		t.Errorf("expected 0 for a birth date in the future, got %d", got)
	}
}

func TestParseVital_Valid(t *testing.T) {
	if got, ok := parseVital(strPtr(" 98.6 ")); !ok || !approx(got, 98.6) {
		t.Errorf("expected 98.6, got %v, %v", got, ok)
	}
	if got, ok := parseVital(strPtr("120")); !ok || got != 120 {
		t.Errorf("expected 120, got %v, %v", got, ok)
	}
}

func TestParseVital_MissingIsAbsent(t *testing.T) {
	if _, ok := parseVital(nil); ok {
		t.Error("expected nil reading to be absent")
	}
	if _, ok := parseVital(strPtr("")); ok {
		t.Error("expected blank reading to be absent")
	}
}

func TestParseVital_MalformedIsAbsent(t *testing.T) {
	for _, raw := range []string{"abc", "NaN", "Inf", "120/80"} {
		if got, ok := parseVital(strPtr(raw)); ok {
			t.Errorf("expected %q to be absent, got %v", raw, got)
		}
	}
}

func TestParseVital_NonPositiveIsAbsent(t *testing.T) {
	for _, raw := range []string{"0", "-12"} {
		if got, ok := parseVital(strPtr(raw)); ok {
			t.Errorf("expected %q to be absent, got %v", raw, got)
		}
	}
}

func TestProfileBuilder_Build(t *testing.T) {
	now := date(2024, time.June, 15)
	b := NewProfileBuilder(NewTermExtractor(DefaultDictionary()), func() time.Time { return now })

	dob := date(1970, time.March, 1)
	p := &Patient{ID: 7, DateOfBirth: &dob, Gender: strPtr(" male "), BloodType: strPtr(""), Allergies: strPtr("penicillin")}
	visits := []*VisitRecord{
		{
			ID: 2, PatientID: 7, VisitDate: date(2024, time.May, 1),
			Diagnosis:             strPtr("hypertension"),
			ChiefComplaint:        strPtr("headache"),
			BloodPressureSystolic: strPtr("150"),
			HeartRate:             strPtr("n/a"),
			Weight:                strPtr("80"),
		},
		{
			ID: 1, PatientID: 7, VisitDate: date(2024, time.January, 1),
			BloodPressureSystolic: strPtr("130"),
			HeartRate:             strPtr("70"),
			Weight:                strPtr("0"),
		},
	}
	labs := []*LabResult{
		{TestName: " HbA1c ", IsAbnormal: true},
		{TestName: "Sodium", IsAbnormal: false},
		{TestName: "  ", IsAbnormal: true},
	}

	prof := b.Build(p, visits, labs)

	if prof.PatientID != 7 {
		t.Errorf("expected patient 7, got %d", prof.PatientID)
	}
	if prof.Age == nil || *prof.Age != 54 {
		t.Errorf("expected age 54, got %v", prof.Age)
	}
	if prof.Gender == nil || *prof.Gender != "male" {
		t.Errorf("expected trimmed gender, got %v", prof.Gender)
	}
	if prof.BloodType != nil {
		t.Errorf("expected blank blood type to be absent, got %q", *prof.BloodType)
	}
	if len(prof.DiagnosisTerms) != 2 || prof.DiagnosisTerms[0].Term != "hypertension" {
		t.Errorf("unexpected diagnosis terms %+v", prof.DiagnosisTerms)
	}
	if len(prof.SymptomTerms) != 2 || prof.SymptomTerms[0].Category != CategoryNeurological {
		t.Errorf("unexpected symptom terms %+v", prof.SymptomTerms)
	}

	v := prof.Vitals
	if v.AvgSystolicBP == nil || !approx(*v.AvgSystolicBP, 140) {
		t.Errorf("expected systolic 140, got %v", v.AvgSystolicBP)
	}
	if v.AvgHeartRate == nil || !approx(*v.AvgHeartRate, 70) {
		t.Errorf("expected heart rate 70 from the one valid reading, got %v", v.AvgHeartRate)
	}
	if v.AvgTemperature != nil {
		t.Errorf("expected no temperature, got %v", *v.AvgTemperature)
	}
	if v.AvgWeight == nil || !approx(*v.AvgWeight, 80) {
		t.Errorf("expected weight 80, got %v", v.AvgWeight)
	}

	if len(prof.AbnormalLabNames) != 1 || prof.AbnormalLabNames[0] != "hba1c" {
		t.Errorf("expected [hba1c], got %v", prof.AbnormalLabNames)
	}
}

func TestProfileBuilder_EmptyHistory(t *testing.T) {
	b := NewProfileBuilder(NewTermExtractor(DefaultDictionary()), nil)

	prof := b.Build(&Patient{ID: 1}, nil, nil)
	if prof.Age != nil || prof.Gender != nil {
		t.Error("expected no demographics")
	}
	if len(prof.DiagnosisTerms) != 0 || len(prof.SymptomTerms) != 0 {
		t.Error("expected no terms")
	}
	if prof.Vitals != (VitalAverages{}) {
		t.Errorf("expected empty vitals, got %+v", prof.Vitals)
	}
}
