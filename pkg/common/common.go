package common

import "math"

// Document is a single thesis record as stored in the search engine.
// It is an immutable snapshot; optional fields are nil when the source
// record does not carry them.
type Document struct {
	UID                   string   `json:"uid"`
	Title                 string   `json:"title"`
	Abstract              string   `json:"abstract"`
	Author                string   `json:"author"`
	Degree                string   `json:"degree"`
	Institution           string   `json:"institution"`
	Department            string   `json:"department"`
	NarrowField           *string  `json:"narrow_field"`
	DetailedField         *string  `json:"detailed_field"`
	GraduatedAcademicYear int      `json:"graduated_academic_year"`
	URL                   string   `json:"url"`
	Keywords              []string `json:"keywords"`
	TypesOfPaper          string   `json:"types_of_paper"`
	Language              string   `json:"language"`
}

// Node is a document discovered while expanding a similarity network.
// Layer is the expansion step at which the uid was first discovered;
// the seed is layer 0.
type Node struct {
	UID   string `json:"uid"`
	Layer int    `json:"layer"`
}

// Edge records that the source document returned the target document as
// one of its nearest neighbours. Edges are directional and are never merged:
// the same pair may appear several times if it was found by several
// expansion steps.
type Edge struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Score  float64 `json:"score"`
}

// ScoredCandidate is a single hit of a vector top-k query.
type ScoredCandidate struct {
	UID   string  `json:"uid"`
	Title string  `json:"title"`
	Score float64 `json:"score"`
}

// EmbeddingRecord holds the precomputed embedding of a document.
type EmbeddingRecord struct {
	UID       string    `json:"uid"`
	Embedding []float32 `json:"embedding"`
}

// NetworkResult is the output of a similarity network build.
//
// Documents contains exactly one entry per distinct uid in Nodes.
type NetworkResult struct {
	Nodes     []Node              `json:"nodes"`
	Edges     []Edge              `json:"edges"`
	Documents map[string]Document `json:"documents"`
}

// FieldBucket is one bucket of a terms aggregation.
type FieldBucket struct {
	Key      string `json:"key"`
	DocCount int64  `json:"doc_count"`
}

// NestedBucket is an outer aggregation bucket together with the buckets of
// the inner aggregation computed over its documents.
type NestedBucket struct {
	FieldBucket
	Inner []FieldBucket `json:"inner"`
}

// InstitutionDepartmentRow is one row of the flattened institution and
// department statistics. Department is TotalDepartment for the row that
// carries the institution's overall count.
type InstitutionDepartmentRow struct {
	Institution string `json:"institution"`
	Department  string `json:"department"`
	Count       int64  `json:"count"`
}

// TotalDepartment is the department value of an institution's summary row.
const TotalDepartment = "Total"

const (
	MinRoundDecimal     = 1
	MaxRoundDecimal     = 7
	DefaultRoundDecimal = 3
)

// Fields that may be used in aggregation queries.
const (
	FieldDegree                = "degree"
	FieldInstitution           = "institution"
	FieldDepartment            = "department"
	FieldDetailedField         = "detailed_field"
	FieldNarrowField           = "narrow_field"
	FieldGraduatedAcademicYear = "graduated_academic_year"
	FieldTypesOfPaper          = "types_of_paper"
)

// AggregationFields lists the aggregatable fields in report order.
var AggregationFields = []string{
	FieldDegree,
	FieldInstitution,
	FieldDepartment,
	FieldDetailedField,
	FieldNarrowField,
	FieldGraduatedAcademicYear,
	FieldTypesOfPaper,
}

// IsAggregationField reports whether field is allowed in aggregation queries.
func IsAggregationField(field string) bool {
	for _, f := range AggregationFields {
		if f == field {
			return true
		}
	}
	return false
}

// ValidateRoundDecimal checks that n is an accepted score precision.
func ValidateRoundDecimal(n int) error {
	if n < MinRoundDecimal || n > MaxRoundDecimal {
		return NewValidationError("round_decimal", "round_decimal", "must be between 1 and 7")
	}
	return nil
}

// RoundScore rounds score to the given number of decimals.
func RoundScore(score float64, decimals int) float64 {
	p := math.Pow10(decimals)
	return math.Round(score*p) / p
}
