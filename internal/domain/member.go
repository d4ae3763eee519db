// Package domain holds the records that flow through the profiling pipeline:
// one MemberRecord per extracted source and one FamilyProfile per batch.
package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

type Relationship string

const (
	RelationshipMother   Relationship = "parent-mother"
	RelationshipFather   Relationship = "parent-father"
	RelationshipSon      Relationship = "child-son"
	RelationshipDaughter Relationship = "child-daughter"
	RelationshipUnknown  Relationship = "unknown"
)

func (r Relationship) IsParent() bool {
	return r == RelationshipMother || r == RelationshipFather
}

func (r Relationship) IsChild() bool {
	return r == RelationshipSon || r == RelationshipDaughter
}

func (r Relationship) Valid() bool {
	switch r {
	case RelationshipMother, RelationshipFather, RelationshipSon, RelationshipDaughter, RelationshipUnknown:
		return true
	}
	return false
}

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// ParseRiskLevel maps free text onto the closed vocabulary. Anything it does
// not recognise, including the empty string, becomes RiskMedium.
func ParseRiskLevel(s string) RiskLevel {
	switch RiskLevel(strings.ToLower(strings.TrimSpace(s))) {
	case RiskLow:
		return RiskLow
	case RiskHigh:
		return RiskHigh
	default:
		return RiskMedium
	}
}

// Canonical coverage labels.
const (
	CoverageLife       = "life"
	CoverageHealth     = "health"
	CoverageAuto       = "auto"
	CoverageHome       = "home"
	CoverageLiability  = "liability"
	CoverageDisability = "disability"
)

// DefaultCoverageCatalog is the fixed set of coverage types gap analysis
// checks against when no catalog is configured.
var DefaultCoverageCatalog = []string{
	CoverageLife,
	CoverageHealth,
	CoverageAuto,
	CoverageHome,
	CoverageLiability,
	CoverageDisability,
}

// CoverageSet is an insertion-ordered set of coverage labels. Order only
// exists to keep output deterministic.
type CoverageSet []string

func NewCoverageSet(labels ...string) CoverageSet {
	var s CoverageSet
	for _, l := range labels {
		s = s.With(l)
	}
	return s
}

// With returns a set that also contains label. The receiver is not modified.
func (s CoverageSet) With(label string) CoverageSet {
	label = strings.TrimSpace(label)
	if label == "" || s.Has(label) {
		return s
	}
	out := make(CoverageSet, len(s), len(s)+1)
	copy(out, s)
	return append(out, label)
}

func (s CoverageSet) Has(label string) bool {
	for _, l := range s {
		if l == label {
			return true
		}
	}
	return false
}

func (s CoverageSet) HasLifeAndHealth() (life, health bool) {
	return s.Has(CoverageLife), s.Has(CoverageHealth)
}

func (s CoverageSet) Len() int { return len(s) }

func (s CoverageSet) Labels() []string {
	return append([]string(nil), s...)
}

// MemberHints carries attributes the caller knows about a member that the
// policy spreadsheet itself does not contain.
type MemberHints struct {
	Name         string           `json:"name,omitempty"`
	Age          int              `json:"age,omitempty"`
	Relationship string           `json:"relationship,omitempty"`
	TotalValue   *decimal.Decimal `json:"total_value,omitempty"`
	RiskLevel    string           `json:"risk_level,omitempty"`
}

// MemberRecord is one person's extracted insurance data. It is built once per
// source and never modified afterwards; derived data lives in MemberAnalysis.
type MemberRecord struct {
	Name            string          `json:"name"`
	Age             int             `json:"age"`
	Relationship    Relationship    `json:"relationship"`
	Coverage        CoverageSet     `json:"coverage_types"`
	PolicyCount     int             `json:"policy_count"`
	TotalPremium    decimal.Decimal `json:"total_premium"`
	TotalValue      decimal.Decimal `json:"total_value"`
	RiskLevel       RiskLevel       `json:"risk_level"`
	SourceReference string          `json:"source_reference"`
	PolicyIDs       []string        `json:"policy_ids,omitempty"`
}

type FuturePlanning struct {
	ShortTerm  []string `json:"short_term"`
	MediumTerm []string `json:"medium_term"`
	LongTerm   []string `json:"long_term"`
}

// MemberAnalysis holds the per-member annotations appended by the scorers.
type MemberAnalysis struct {
	Name                  string         `json:"name"`
	SourceReference       string         `json:"source_reference"`
	RiskScore             int            `json:"risk_score"`
	CoverageAdequacy      Adequacy       `json:"coverage_adequacy"`
	OptimizationPotential int            `json:"optimization_potential"`
	Recommendations       []string       `json:"personalized_recommendations"`
	FuturePlanning        FuturePlanning `json:"future_planning"`
}

type Adequacy string

const (
	AdequacyExcellent        Adequacy = "excellent"
	AdequacyAdequate         Adequacy = "adequate"
	AdequacyInadequate       Adequacy = "inadequate"
	AdequacyNeedsImprovement Adequacy = "needs_improvement"
)
