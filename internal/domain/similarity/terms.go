package similarity

import (
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// Category is a clinical grouping used to relate terms that are not
// textually identical.
type Category string

const (
	CategoryCardiovascular   Category = "cardiovascular"
	CategoryRespiratory      Category = "respiratory"
	CategoryEndocrine        Category = "endocrine"
	CategoryGastrointestinal Category = "gastrointestinal"
	CategoryNeurological     Category = "neurological"
	CategoryMusculoskeletal  Category = "musculoskeletal"
	CategoryInfectious       Category = "infectious"
	CategoryMentalHealth     Category = "mental_health"
	CategoryDermatological   Category = "dermatological"
	// CategoryGeneral marks a whole phrase kept verbatim. It never counts as
	// a shared category.
	CategoryGeneral Category = "general"
)

var clinicalCategories = map[Category]bool{
	CategoryCardiovascular:   true,
	CategoryRespiratory:      true,
	CategoryEndocrine:        true,
	CategoryGastrointestinal: true,
	CategoryNeurological:     true,
	CategoryMusculoskeletal:  true,
	CategoryInfectious:       true,
	CategoryMentalHealth:     true,
	CategoryDermatological:   true,
}

// DisplayName renders the category for people, e.g. "mental health".
func (c Category) DisplayName() string {
	return strings.ReplaceAll(string(c), "_", " ")
}

// TermType tells the extractor where a phrase came from.
type TermType int

const (
	TermDiagnosis TermType = iota
	TermSymptom
)

// BaseWeight is 1.0 for diagnoses and 0.8 for symptoms.
func (t TermType) BaseWeight() float64 {
	if t == TermSymptom {
		return 0.8
	}
	return 1.0
}

// ClinicalTerm is a categorized, weighted fragment of free clinical text.
type ClinicalTerm struct {
	Term     string   `json:"term"`
	Category Category `json:"category"`
	Weight   float64  `json:"weight"`
}

// CategoryKeywords lists the keywords of one category.
type CategoryKeywords struct {
	Category Category `yaml:"category"`
	Keywords []string `yaml:"keywords"`
}

// Dictionary is the immutable keyword table. Category order is fixed at
// construction so extraction output is deterministic.
type Dictionary struct {
	entries []CategoryKeywords
}

// NewDictionary validates and copies entries. Keywords are normalized the
// same way as extracted text.
func NewDictionary(entries []CategoryKeywords) (*Dictionary, error) {
	seen := make(map[Category]bool, len(entries))
	copied := make([]CategoryKeywords, 0, len(entries))
	for _, e := range entries {
		if !clinicalCategories[e.Category] {
			return nil, fmt.Errorf("unknown clinical category %q", e.Category)
		}
		if seen[e.Category] {
			return nil, fmt.Errorf("duplicate clinical category %q", e.Category)
		}
		seen[e.Category] = true

		kws := make([]string, 0, len(e.Keywords))
		for _, kw := range e.Keywords {
			kw = normalizeText(kw)
			if kw == "" {
				continue
			}
			kws = append(kws, kw)
		}
		copied = append(copied, CategoryKeywords{Category: e.Category, Keywords: kws})
	}
	return &Dictionary{entries: copied}, nil
}

// LoadDictionary reads a YAML keyword table of the form
//
//	categories:
//	  - category: cardiovascular
//	    keywords: [hypertension, chest pain]
func LoadDictionary(path string) (*Dictionary, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read term dictionary: %w", err)
	}
	var doc struct {
		Categories []CategoryKeywords `yaml:"categories"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse term dictionary %s: %w", path, err)
	}
	if len(doc.Categories) == 0 {
		return nil, fmt.Errorf("term dictionary %s has no categories", path)
	}
	return NewDictionary(doc.Categories)
}

// DefaultDictionary returns the built-in keyword table.
func DefaultDictionary() *Dictionary {
	d, err := NewDictionary([]CategoryKeywords{
		{CategoryCardiovascular, []string{
			"hypertension", "hypotension", "heart failure", "heart", "cardiac", "chest pain",
			"palpitation", "arrhythmia", "angina", "myocardial", "coronary", "tachycardia",
			"bradycardia", "blood pressure",
		}},
		{CategoryRespiratory, []string{
			"asthma", "copd", "pneumonia", "bronchitis", "cough", "shortness of breath",
			"dyspnea", "wheezing", "respiratory", "lung", "sinusitis", "sore throat",
		}},
		{CategoryEndocrine, []string{
			"diabetes", "thyroid", "hypothyroidism", "hyperthyroidism", "insulin", "glucose",
			"obesity", "metabolic", "hormone", "adrenal",
		}},
		{CategoryGastrointestinal, []string{
			"gastritis", "ulcer", "nausea", "vomiting", "diarrhea", "constipation",
			"abdominal pain", "reflux", "gerd", "liver", "bowel", "appendicitis", "pancreatitis",
		}},
		{CategoryNeurological, []string{
			"headache", "migraine", "seizure", "epilepsy", "stroke", "dizziness", "vertigo",
			"numbness", "neuropathy", "parkinson", "dementia", "tremor",
		}},
		{CategoryMusculoskeletal, []string{
			"arthritis", "back pain", "joint pain", "fracture", "osteoporosis", "sprain",
			"muscle", "tendinitis", "gout", "scoliosis",
		}},
		{CategoryInfectious, []string{
			"infection", "fever", "viral", "bacterial", "influenza", "covid", "sepsis",
			"tuberculosis", "hepatitis", "urinary tract infection",
		}},
		{CategoryMentalHealth, []string{
			"depression", "anxiety", "bipolar", "schizophrenia", "insomnia", "stress",
			"panic", "ptsd", "adhd",
		}},
		{CategoryDermatological, []string{
			"rash", "eczema", "psoriasis", "acne", "dermatitis", "itching", "hives",
			"urticaria", "skin", "lesion",
		}},
	})
	if err != nil {
		panic(err) // static table
	}
	return d
}

// TermExtractor turns free-text diagnoses and complaints into clinical terms.
type TermExtractor struct {
	dict *Dictionary
}

func NewTermExtractor(dict *Dictionary) *TermExtractor {
	return &TermExtractor{dict: dict}
}

// Extract splits text on , ; and . into phrases and emits one term per
// dictionary keyword found in a phrase, weighted by how much of the phrase
// the keyword covers, followed by one general term per phrase of at least
// four characters.
func (x *TermExtractor) Extract(text string, tt TermType) []ClinicalTerm {
	text = normalizeText(text)
	if text == "" {
		return nil
	}
	base := tt.BaseWeight()

	var matched, general []ClinicalTerm
	for _, phrase := range splitPhrases(text) {
		phraseLen := utf8.RuneCountInString(phrase)
		if phraseLen < 3 {
			continue
		}
		for _, entry := range x.dict.entries {
			for _, kw := range entry.Keywords {
				if !strings.Contains(phrase, kw) {
					continue
				}
				matched = append(matched, ClinicalTerm{
					Term:     kw,
					Category: entry.Category,
					Weight:   float64(utf8.RuneCountInString(kw)) / float64(phraseLen) * base,
				})
			}
		}
		if phraseLen >= 4 {
			general = append(general, ClinicalTerm{
				Term:     phrase,
				Category: CategoryGeneral,
				Weight:   0.5 * base,
			})
		}
	}
	return append(matched, general...)
}

func splitPhrases(text string) []string {
	parts := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == ';' || r == '.'
	})
	phrases := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			phrases = append(phrases, p)
		}
	}
	return phrases
}

func normalizeText(s string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFKC.String(s)))
}
