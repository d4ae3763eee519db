// Package aggregate combines scored member records into one household
// profile: composition, portfolio, discounts, ROI and planning.
package aggregate

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/family-profiler/backend/internal/domain"
	"github.com/family-profiler/backend/internal/scoring"
	"github.com/family-profiler/backend/pkg/config"
)

const (
	SavingsPercentage = 15

	EfficiencyExcellent = "excellent"
	EfficiencyGood      = "good"
)

var (
	million            = decimal.NewFromInt(1_000_000)
	recommendedMinimum = decimal.NewFromInt(2_000_000)
	savingsShare       = decimal.NewFromFloat(0.15)
)

type Aggregator struct {
	premiumRate decimal.Decimal
	risk        *scoring.RiskScorer
	coverage    *scoring.CoverageAnalyzer
}

func NewAggregator(cfg config.ScoringConfig) *Aggregator {
	rate := cfg.PremiumRate
	if rate <= 0 {
		rate = 0.02
	}
	return &Aggregator{
		premiumRate: decimal.NewFromFloat(rate),
		risk:        scoring.NewRiskScorer(),
		coverage:    scoring.NewCoverageAnalyzer(cfg.CoverageCatalog),
	}
}

// Aggregate builds the analytical part of a profile. Identity, timestamps
// and provenance are left for the caller to fill in. members is not
// modified.
func (a *Aggregator) Aggregate(familyName string, members []domain.MemberRecord) *domain.FamilyProfile {
	p := &domain.FamilyProfile{
		FamilyName:          familyName,
		Members:             append([]domain.MemberRecord(nil), members...),
		MembersAnalysis:     make([]domain.MemberAnalysis, 0, len(members)),
		TotalMonthlyPremium: decimal.Zero,
	}

	for _, m := range members {
		p.MembersAnalysis = append(p.MembersAnalysis, scoring.Analyze(m, a.risk, a.coverage))
		p.TotalPolicies += m.PolicyCount
		p.TotalMonthlyPremium = p.TotalMonthlyPremium.Add(m.TotalPremium)
	}

	p.Composition = Composition(members)
	p.Portfolio = a.portfolio(members)
	p.Risk = a.risk.FamilyRisk(members)
	p.CoverageGaps = a.coverage.Gaps(members)
	p.OptimizationOpportunities = Opportunities(members)
	p.Recommendations = Recommendations(members)
	p.Financial = a.financial(members)

	return p
}

func Composition(members []domain.MemberRecord) domain.Composition {
	c := domain.Composition{Total: len(members), FamilyStage: domain.StageYoungCouple}
	if len(members) == 0 {
		return c
	}

	ageSum, maxChildAge := 0, -1
	for _, m := range members {
		ageSum += m.Age
		switch {
		case m.Relationship.IsParent():
			c.Parents++
		case m.Relationship.IsChild():
			c.Children++
			if m.Age > maxChildAge {
				maxChildAge = m.Age
			}
		}
	}
	c.AverageAge = round1(float64(ageSum) / float64(len(members)))

	switch {
	case c.Children == 0:
		c.FamilyStage = domain.StageYoungCouple
	case maxChildAge < 6:
		c.FamilyStage = domain.StageYoungChildren
	case maxChildAge < 18:
		c.FamilyStage = domain.StageSchoolChildren
	default:
		c.FamilyStage = domain.StageAdultChildren
	}
	return c
}

func (a *Aggregator) portfolio(members []domain.MemberRecord) domain.Portfolio {
	total := totalValue(members)
	p := domain.Portfolio{
		TotalValue:       total,
		AveragePerMember: decimal.Zero,
	}
	if len(members) > 0 {
		p.AveragePerMember = total.Div(decimal.NewFromInt(int64(len(members)))).Round(0)
	}

	coverageScore := math.Min(float64(coverageTypeCount(members)*20), 100)
	valueScore := math.Min(total.Div(million).Mul(decimal.NewFromInt(20)).InexactFloat64(), 100)
	p.EfficiencyScore = round1((coverageScore + valueScore) / 2)

	p.CoverageDistribution, p.MostCommonCoverage = a.coverage.Distribution(members)
	return p
}

func (a *Aggregator) financial(members []domain.MemberRecord) domain.Financial {
	total := totalValue(members)

	f := domain.Financial{
		OptimizationPotential:  total.Mul(savingsShare).Round(0),
		SavingsPercentage:      SavingsPercentage,
		OptimizationStrategies: OptimizationStrategies(),
		Discounts:              Discounts(len(members)),
		LongTermPlanning:       LongTermPlanning(members),
		ROI:                    a.ROI(total),
	}
	if len(members) > 0 {
		perMember := float64(coverageTypeCount(members)) / float64(len(members))
		f.CoverageEfficiency = round1(math.Min(perMember*25, 100))
	}
	return f
}

// ROI estimates the yearly premium as a fixed share of the face value. With
// a single flat rate the ratio is 1/rate for every non-zero portfolio.
func (a *Aggregator) ROI(total decimal.Decimal) domain.ROIAnalysis {
	estimated := total.Mul(a.premiumRate)
	roi := domain.ROIAnalysis{
		TotalCoverage:        total,
		EstimatedPremium:     estimated.Round(0),
		InvestmentEfficiency: EfficiencyGood,
	}
	if estimated.IsZero() {
		return roi
	}

	ratio := total.Div(estimated)
	roi.Ratio = ratio.Round(1).InexactFloat64()
	if ratio.GreaterThan(decimal.NewFromInt(50)) {
		roi.InvestmentEfficiency = EfficiencyExcellent
	}
	return roi
}

// OptimizationStrategies lists the generic levers behind the savings
// estimate. They do not depend on the members.
func OptimizationStrategies() []string {
	return []string{
		"consolidate policies",
		"use family discounts",
		"optimize coverage",
	}
}

// Discounts are cumulative: a family of four gets both.
func Discounts(size int) []domain.Discount {
	out := []domain.Discount{}
	if size >= 3 {
		out = append(out, domain.Discount{
			Type:        "family",
			Percentage:  10,
			Description: "family discount on life insurance",
		})
	}
	if size >= 4 {
		out = append(out, domain.Discount{
			Type:        "comprehensive",
			Percentage:  15,
			Description: "discount on comprehensive health coverage",
		})
	}
	return out
}

// LongTermPlanning emits at most one education and one pension entry, in
// the order the triggering members appear.
func LongTermPlanning(members []domain.MemberRecord) []domain.PlanningEntry {
	out := []domain.PlanningEntry{}
	var education, pension bool
	for _, m := range members {
		if m.Relationship.IsChild() && !education {
			education = true
			out = append(out, domain.PlanningEntry{
				Focus:          "children's education",
				Recommendation: "life insurance with education coverage",
				Timeline:       "5-15 years",
			})
		}
		if m.Relationship.IsParent() && m.Age > 40 && !pension {
			pension = true
			out = append(out, domain.PlanningEntry{
				Focus:          "pension",
				Recommendation: "life insurance with pension coverage",
				Timeline:       "10-25 years",
			})
		}
	}
	return out
}

func Opportunities(members []domain.MemberRecord) []domain.Opportunity {
	out := []domain.Opportunity{}
	for _, m := range members {
		if m.Age > 40 && !m.Coverage.Has(domain.CoverageLife) {
			out = append(out, domain.Opportunity{
				Member:                m.Name,
				Description:           "add life insurance",
				Priority:              domain.PriorityHigh,
				EstimatedSavingsRange: "15-25%",
			})
		}
		if m.Age > 18 && !m.Coverage.Has(domain.CoverageAuto) {
			out = append(out, domain.Opportunity{
				Member:                m.Name,
				Description:           "add auto insurance",
				Priority:              domain.PriorityMedium,
				EstimatedSavingsRange: "10-20%",
			})
		}
	}
	return out
}

func Recommendations(members []domain.MemberRecord) []domain.Recommendation {
	out := []domain.Recommendation{}
	if totalValue(members).LessThan(recommendedMinimum) {
		out = append(out, domain.Recommendation{
			Type:           "overall coverage",
			Recommendation: "increase the family's overall coverage",
			Reason:         "current coverage is below the recommended level for a family",
			Priority:       domain.PriorityHigh,
		})
	}
	for _, m := range members {
		if m.Age > 35 && !m.Coverage.Has(domain.CoverageLife) {
			out = append(out, domain.Recommendation{
				Type:           domain.CoverageLife,
				Member:         m.Name,
				Recommendation: "add life insurance",
				Reason:         "older member without life coverage",
				Priority:       domain.PriorityHigh,
			})
		}
	}
	return out
}

func totalValue(members []domain.MemberRecord) decimal.Decimal {
	total := decimal.Zero
	for _, m := range members {
		total = total.Add(m.TotalValue)
	}
	return total
}

func coverageTypeCount(members []domain.MemberRecord) int {
	n := 0
	for _, m := range members {
		n += m.Coverage.Len()
	}
	return n
}

func round1(f float64) float64 {
	return math.Round(f*10) / 10
}
