package similarity

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

const dateLayout = "2006-01-02"

// RankOptions bounds the ranked output.
type RankOptions struct {
	// MinScore is exclusive: a case scoring exactly MinScore is dropped.
	MinScore float64
	Limit    int
}

// DefaultRankOptions keeps cases above 0.15, at most 15 of them.
func DefaultRankOptions() RankOptions {
	return RankOptions{MinScore: 0.15, Limit: 15}
}

// scoredCase is a candidate together with everything fetched and computed
// for it during one request.
type scoredCase struct {
	candidate  *Candidate
	visits     []*VisitRecord
	labs       []*LabResult
	profile    *PatientProfile
	score      float64
	breakdown  Breakdown
	categories []string
}

// rank filters, orders and truncates scored cases. Ties keep their input
// order, which is candidate pool order (most recent visit first).
func rank(cases []*scoredCase, opts RankOptions) []*scoredCase {
	kept := make([]*scoredCase, 0, len(cases))
	for _, c := range cases {
		if c != nil && c.score > opts.MinScore {
			kept = append(kept, c)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].score > kept[j].score
	})
	if opts.Limit > 0 && len(kept) > opts.Limit {
		kept = kept[:opts.Limit]
	}
	return kept
}

// shapeResult builds the de-identified view of a scored case.
func shapeResult(c *scoredCase) SimilarityResult {
	res := SimilarityResult{
		CandidateID:        c.candidate.ID,
		CaseID:             CaseID(c.candidate.ID),
		Score:              c.score,
		Percentage:         math.Round(c.score*1000) / 10,
		Age:                c.profile.Age,
		Gender:             stringVal(c.profile.Gender),
		BloodType:          stringVal(c.profile.BloodType),
		RecordCount:        c.candidate.RecordCount,
		MatchingCategories: c.categories,
		Breakdown:          c.breakdown,
		Timeline:           make([]TimelineEntry, 0, len(c.visits)),
		Labs:               make([]LabResult, 0, len(c.labs)),
	}
	if res.MatchingCategories == nil {
		res.MatchingCategories = []string{}
	}
	if c.candidate.LatestVisitDate != nil {
		res.LatestVisit = c.candidate.LatestVisitDate.Format(dateLayout)
	}
	for _, v := range c.visits {
		res.Timeline = append(res.Timeline, TimelineEntry{
			Date:         v.VisitDate.Format(dateLayout),
			Diagnosis:    stringVal(v.Diagnosis),
			Complaint:    stringVal(v.ChiefComplaint),
			Prescription: stringVal(v.Prescription),
			Notes:        stringVal(v.Notes),
			Doctor:       stringVal(v.DoctorName),
			VitalSigns:   vitalSummary(v),
		})
	}
	for _, l := range c.labs {
		res.Labs = append(res.Labs, *l)
	}
	return res
}

// CaseID is the pseudonym shown in place of a patient's identity.
func CaseID(patientID int64) string {
	return fmt.Sprintf("CASE-%04d", patientID)
}

// vitalSummary renders the vitals recorded at a visit, e.g.
// "BP 120/80, HR 72, Temp 98.6, Weight 70". Blank fields are omitted.
func vitalSummary(v *VisitRecord) string {
	var parts []string
	sys := strings.TrimSpace(stringVal(v.BloodPressureSystolic))
	dia := strings.TrimSpace(stringVal(v.BloodPressureDiastolic))
	switch {
	case sys != "" && dia != "":
		parts = append(parts, "BP "+sys+"/"+dia)
	case sys != "":
		parts = append(parts, "BP "+sys)
	}
	if hr := strings.TrimSpace(stringVal(v.HeartRate)); hr != "" {
		parts = append(parts, "HR "+hr)
	}
	if t := strings.TrimSpace(stringVal(v.Temperature)); t != "" {
		parts = append(parts, "Temp "+t)
	}
	if w := strings.TrimSpace(stringVal(v.Weight)); w != "" {
		parts = append(parts, "Weight "+w)
	}
	return strings.Join(parts, ", ")
}
