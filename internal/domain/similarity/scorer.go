package similarity

import (
	"math"
	"sort"
	"strings"
)

const (
	minNormalizedScore = 0.01
	maxNormalizedScore = 0.99

	// neutralScore is used when a dimension has nothing to compare.
	neutralScore = 0.5

	exactMatchCredit     = 1.0
	categoryMatchCredit  = 0.7
	substringMatchCredit = 0.5

	ageSpanYears            = 20.0
	bloodTypeMismatchCredit = 0.3
)

// Weights sets the contribution of each sub-score to the final score.
type Weights struct {
	Diagnosis    float64
	Symptoms     float64
	Demographics float64
	Labs         float64
	Vitals       float64
}

// DefaultWeights returns the 0.35/0.30/0.15/0.10/0.10 split.
func DefaultWeights() Weights {
	return Weights{
		Diagnosis:    0.35,
		Symptoms:     0.30,
		Demographics: 0.15,
		Labs:         0.10,
		Vitals:       0.10,
	}
}

// Breakdown reports each sub-score. Term dimensions excluded by the search
// type are nil.
type Breakdown struct {
	Diagnosis    *float64 `json:"diagnosis,omitempty"`
	Symptoms     *float64 `json:"symptoms,omitempty"`
	Demographics float64  `json:"demographics"`
	Labs         float64  `json:"labs"`
	Vitals       float64  `json:"vitals"`
}

// Scorer compares two profiles.
type Scorer struct {
	weights Weights
}

func NewScorer(w Weights) *Scorer {
	return &Scorer{weights: w}
}

// Score returns the weighted, normalized similarity of cand to ref, clamped
// to [0.01, 0.99], together with the sub-scores it was built from.
func (s *Scorer) Score(ref, cand *PatientProfile, st SearchType) (float64, Breakdown) {
	var num, den float64
	var bd Breakdown

	if st == SearchDiagnosis || st == SearchAll {
		v := TermSimilarity(ref.DiagnosisTerms, cand.DiagnosisTerms)
		bd.Diagnosis = &v
		num += v * s.weights.Diagnosis
		den += s.weights.Diagnosis
	}
	if st == SearchSymptoms || st == SearchAll {
		v := TermSimilarity(ref.SymptomTerms, cand.SymptomTerms)
		bd.Symptoms = &v
		num += v * s.weights.Symptoms
		den += s.weights.Symptoms
	}

	bd.Demographics = DemographicSimilarity(ref, cand)
	num += bd.Demographics * s.weights.Demographics
	den += s.weights.Demographics

	bd.Labs = LabSimilarity(ref.AbnormalLabNames, cand.AbnormalLabNames)
	num += bd.Labs * s.weights.Labs
	den += s.weights.Labs

	bd.Vitals = VitalSimilarity(ref.Vitals, cand.Vitals)
	num += bd.Vitals * s.weights.Vitals
	den += s.weights.Vitals

	score := 0.0
	if den > 0 {
		score = num / den
	}
	return clampScore(score), bd
}

func clampScore(v float64) float64 {
	return math.Max(minNormalizedScore, math.Min(maxNormalizedScore, v))
}

// TermSimilarity credits every cross pair of terms: exact match first, then a
// shared non-general category, then substring containment. Every pair adds
// its averaged weight to the denominator whether it matched or not, so long
// term lists dilute a single strong match.
func TermSimilarity(a, b []ClinicalTerm) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var num, den float64
	for _, ta := range a {
		for _, tb := range b {
			avg := (ta.Weight + tb.Weight) / 2
			den += avg
			switch {
			case ta.Term == tb.Term:
				num += avg * exactMatchCredit
			case ta.Category == tb.Category && ta.Category != CategoryGeneral:
				num += avg * categoryMatchCredit
			case strings.Contains(ta.Term, tb.Term) || strings.Contains(tb.Term, ta.Term):
				num += avg * substringMatchCredit
			}
		}
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// DemographicSimilarity averages the age, gender and blood type factors that
// both sides carry. With nothing to compare it is neutral.
func DemographicSimilarity(a, b *PatientProfile) float64 {
	var sum float64
	var n int
	if a.Age != nil && b.Age != nil {
		diff := math.Abs(float64(*a.Age - *b.Age))
		sum += math.Max(0, 1-diff/ageSpanYears)
		n++
	}
	if a.Gender != nil && b.Gender != nil {
		if strings.EqualFold(*a.Gender, *b.Gender) {
			sum++
		}
		n++
	}
	if a.BloodType != nil && b.BloodType != nil {
		if strings.EqualFold(*a.BloodType, *b.BloodType) {
			sum++
		} else {
			sum += bloodTypeMismatchCredit
		}
		n++
	}
	if n == 0 {
		return neutralScore
	}
	return sum / float64(n)
}

// LabSimilarity is the Jaccard index of two abnormal-lab name sets. Two
// empty sets are identical; one empty set shares nothing.
func LabSimilarity(a, b []string) float64 {
	setA := toSet(a)
	setB := toSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 1
	}
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	inter := 0
	for k := range setA {
		if setB[k] {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}

// VitalSimilarity averages max(0, 1-2*relDiff) over the vitals present on
// both sides.
func VitalSimilarity(a, b VitalAverages) float64 {
	pairs := [][2]*float64{
		{a.AvgSystolicBP, b.AvgSystolicBP},
		{a.AvgHeartRate, b.AvgHeartRate},
		{a.AvgTemperature, b.AvgTemperature},
		{a.AvgWeight, b.AvgWeight},
	}
	var sum float64
	var n int
	for _, p := range pairs {
		if p[0] == nil || p[1] == nil {
			continue
		}
		v1, v2 := *p[0], *p[1]
		hi := math.Max(v1, v2)
		if hi <= 0 {
			continue
		}
		rel := math.Abs(v1-v2) / hi
		sum += math.Max(0, 1-2*rel)
		n++
	}
	if n == 0 {
		return neutralScore
	}
	return sum / float64(n)
}

// MatchingCategories lists the clinical categories shared by diagnosis or
// symptom terms of the two profiles, in display form and sorted. It does not
// affect the score.
func MatchingCategories(a, b *PatientProfile) []string {
	found := make(map[string]bool)
	collect := func(x, y []ClinicalTerm) {
		cats := make(map[Category]bool)
		for _, t := range y {
			if t.Category != CategoryGeneral {
				cats[t.Category] = true
			}
		}
		for _, t := range x {
			if t.Category != CategoryGeneral && cats[t.Category] {
				found[t.Category.DisplayName()] = true
			}
		}
	}
	collect(a.DiagnosisTerms, b.DiagnosisTerms)
	collect(a.SymptomTerms, b.SymptomTerms)

	out := make([]string, 0, len(found))
	for c := range found {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, it := range items {
		if it = strings.ToLower(strings.TrimSpace(it)); it != "" {
			set[it] = true
		}
	}
	return set
}
