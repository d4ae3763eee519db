package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type FamilyStage string

const (
	StageYoungCouple    FamilyStage = "young couple"
	StageYoungChildren  FamilyStage = "young children"
	StageSchoolChildren FamilyStage = "school-age children"
	StageAdultChildren  FamilyStage = "adult children"
)

type Composition struct {
	Total       int         `json:"total_members"`
	Parents     int         `json:"parents"`
	Children    int         `json:"children"`
	AverageAge  float64     `json:"average_age"`
	FamilyStage FamilyStage `json:"family_stage"`
}

type CoverageCount struct {
	Label   string `json:"label"`
	Members int    `json:"members"`
}

type Portfolio struct {
	TotalValue           decimal.Decimal `json:"total_value"`
	AveragePerMember     decimal.Decimal `json:"average_per_member"`
	EfficiencyScore      float64         `json:"portfolio_efficiency"`
	CoverageDistribution []CoverageCount `json:"coverage_distribution"`
	MostCommonCoverage   string          `json:"most_common_coverage"`
}

type RiskDistribution struct {
	High          int    `json:"high_risk_members"`
	Medium        int    `json:"medium_risk_members"`
	Low           int    `json:"low_risk_members"`
	Concentration string `json:"risk_concentration"`
}

type RiskAnalysis struct {
	OverallLevel     RiskLevel        `json:"overall_level"`
	AgeRisk          float64          `json:"age_risk"`
	CoverageRisk     float64          `json:"coverage_risk"`
	RiskFactors      []string         `json:"risk_factors"`
	Distribution     RiskDistribution `json:"risk_distribution"`
	Mitigation       []string         `json:"risk_mitigation_opportunities"`
	AgeTrend         string           `json:"age_trend"`
	FutureProjection string           `json:"future_risk_projection"`
}

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
)

type Opportunity struct {
	Member                string   `json:"member"`
	Description           string   `json:"description"`
	Priority              Priority `json:"priority"`
	EstimatedSavingsRange string   `json:"estimated_savings_range"`
}

type Recommendation struct {
	Type           string   `json:"type"`
	Member         string   `json:"member,omitempty"`
	Recommendation string   `json:"recommendation"`
	Reason         string   `json:"reason"`
	Priority       Priority `json:"priority"`
}

type Discount struct {
	Type        string `json:"type"`
	Percentage  int    `json:"percentage"`
	Description string `json:"description"`
}

type PlanningEntry struct {
	Focus          string `json:"focus"`
	Recommendation string `json:"recommendation"`
	Timeline       string `json:"timeline"`
}

type ROIAnalysis struct {
	TotalCoverage        decimal.Decimal `json:"total_coverage"`
	EstimatedPremium     decimal.Decimal `json:"estimated_premium"`
	Ratio                float64         `json:"roi_ratio"`
	InvestmentEfficiency string          `json:"investment_efficiency"`
}

type Financial struct {
	OptimizationPotential  decimal.Decimal `json:"optimization_potential"`
	SavingsPercentage      int             `json:"savings_percentage"`
	OptimizationStrategies []string        `json:"optimization_strategies"`
	CoverageEfficiency     float64         `json:"coverage_efficiency"`
	Discounts              []Discount      `json:"family_discounts"`
	LongTermPlanning       []PlanningEntry `json:"long_term_planning"`
	ROI                    ROIAnalysis     `json:"roi_analysis"`
}

// SourceFailure names a source that was skipped and why.
type SourceFailure struct {
	Reference string `json:"reference"`
	Reason    string `json:"reason"`
}

// FamilyProfile is the aggregate over one batch of member records. It is
// built once and treated as immutable; WithNarrative returns a copy.
type FamilyProfile struct {
	ID                        string           `json:"id"`
	FamilyName                string           `json:"family_name"`
	Members                   []MemberRecord   `json:"family_members"`
	MembersAnalysis           []MemberAnalysis `json:"members_analysis"`
	Composition               Composition      `json:"family_composition"`
	Portfolio                 Portfolio        `json:"insurance_portfolio"`
	Risk                      RiskAnalysis     `json:"risk_analysis"`
	CoverageGaps              []string         `json:"coverage_gaps"`
	OptimizationOpportunities []Opportunity    `json:"optimization_opportunities"`
	Recommendations           []Recommendation `json:"recommendations"`
	Financial                 Financial        `json:"financial_analysis"`
	TotalPolicies             int              `json:"total_policies"`
	TotalMonthlyPremium       decimal.Decimal  `json:"total_monthly_premium"`
	FilesProcessed            []string         `json:"files_processed"`
	FilesNotProcessed         []SourceFailure  `json:"files_not_processed"`
	Warnings                  []string         `json:"warnings,omitempty"`
	RawAnalysis               string           `json:"raw_analysis,omitempty"`
	NarrativeTags             []string         `json:"narrative_tags,omitempty"`
	CreatedAt                 time.Time        `json:"created_at"`
}

// WithNarrative returns a copy of p carrying the narrative text and the tags
// derived from it. The structured fields are shared, never rewritten.
func (p *FamilyProfile) WithNarrative(text string, tags []string) *FamilyProfile {
	cp := *p
	cp.RawAnalysis = text
	cp.NarrativeTags = append([]string(nil), tags...)
	return &cp
}

func (s CoverageSet) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(s))
}
