// Package scoring holds the fixed-threshold heuristics applied to member
// records: individual risk scores, family risk and coverage analysis.
package scoring

import (
	"github.com/shopspring/decimal"

	"github.com/family-profiler/backend/internal/domain"
)

const maxScore = 100

// Risk factor labels. Presence based, never scored.
const (
	FactorAdvancedAge = "advanced age"
	FactorMiddleAge   = "middle age"
	FactorNoLife      = "no life coverage"
	FactorNoHealth    = "no health coverage"
	FactorLargeFamily = "large family"
)

const (
	ConcentrationHigh     = "high_risk_focused"
	ConcentrationLow      = "low_risk_focused"
	ConcentrationBalanced = "balanced"
)

const (
	AgeTrendRising = "rising"
	AgeTrendStable = "stable"
)

const (
	ProjectionRising    = "rising"
	ProjectionStable    = "stable"
	ProjectionDeclining = "declining"
)

var (
	valueHigh = decimal.NewFromInt(1_000_000)
	valueMid  = decimal.NewFromInt(500_000)
	valueLow  = decimal.NewFromInt(200_000)
)

type RiskScorer struct{}

func NewRiskScorer() *RiskScorer {
	return &RiskScorer{}
}

// Score is the sum of three independent bands (age, coverage, value),
// capped at 100.
func (s *RiskScorer) Score(m domain.MemberRecord) int {
	score := ageBand(m.Age) + coverageBand(m.Coverage) + valueBand(m.TotalValue)
	if score > maxScore {
		return maxScore
	}
	return score
}

func ageBand(age int) int {
	switch {
	case age > 60:
		return 40
	case age > 50:
		return 30
	case age > 40:
		return 20
	case age > 30:
		return 10
	}
	return 0
}

func coverageBand(c domain.CoverageSet) int {
	life, health := c.HasLifeAndHealth()
	switch {
	case !life && !health:
		return 30
	case !life || !health:
		return 15
	}
	return 0
}

func valueBand(v decimal.Decimal) int {
	switch {
	case v.GreaterThan(valueHigh):
		return 30
	case v.GreaterThan(valueMid):
		return 20
	case v.GreaterThan(valueLow):
		return 10
	}
	return 0
}

// FamilyRisk classifies the household from the mean age risk and the mean
// coverage risk, both on a 1..3 scale.
func (s *RiskScorer) FamilyRisk(members []domain.MemberRecord) domain.RiskAnalysis {
	ageRisk, coverageRisk := 1.0, 1.0
	if len(members) > 0 {
		var ageSum, covSum int
		for _, m := range members {
			ageSum += ageRiskPoints(m.Age)
			covSum += coverageRiskPoints(m.Coverage)
		}
		ageRisk = float64(ageSum) / float64(len(members))
		coverageRisk = float64(covSum) / float64(len(members))
	}

	return domain.RiskAnalysis{
		OverallLevel:     classify((ageRisk + coverageRisk) / 2),
		AgeRisk:          ageRisk,
		CoverageRisk:     coverageRisk,
		RiskFactors:      riskFactors(members),
		Distribution:     distribution(members),
		Mitigation:       mitigation(members),
		AgeTrend:         ageTrend(maxAge(members)),
		FutureProjection: projection(maxAge(members)),
	}
}

func ageRiskPoints(age int) int {
	switch {
	case age > 60:
		return 3
	case age > 40:
		return 2
	}
	return 1
}

func coverageRiskPoints(c domain.CoverageSet) int {
	life, health := c.HasLifeAndHealth()
	switch {
	case life && health:
		return 1
	case life || health:
		return 2
	}
	return 3
}

func classify(overall float64) domain.RiskLevel {
	switch {
	case overall >= 2.5:
		return domain.RiskHigh
	case overall >= 1.5:
		return domain.RiskMedium
	}
	return domain.RiskLow
}

func riskFactors(members []domain.MemberRecord) []string {
	factors := []string{}

	var over60, over50, anyLife, anyHealth bool
	for _, m := range members {
		over60 = over60 || m.Age > 60
		over50 = over50 || m.Age > 50
		life, health := m.Coverage.HasLifeAndHealth()
		anyLife = anyLife || life
		anyHealth = anyHealth || health
	}

	if over60 {
		factors = append(factors, FactorAdvancedAge)
	}
	if over50 {
		factors = append(factors, FactorMiddleAge)
	}
	if !anyLife {
		factors = append(factors, FactorNoLife)
	}
	if !anyHealth {
		factors = append(factors, FactorNoHealth)
	}
	if len(members) > 4 {
		factors = append(factors, FactorLargeFamily)
	}
	return factors
}

func distribution(members []domain.MemberRecord) domain.RiskDistribution {
	var d domain.RiskDistribution
	for _, m := range members {
		switch m.RiskLevel {
		case domain.RiskHigh:
			d.High++
		case domain.RiskLow:
			d.Low++
		default:
			d.Medium++
		}
	}

	half := float64(len(members)) * 0.5
	switch {
	case float64(d.High) > half:
		d.Concentration = ConcentrationHigh
	case float64(d.Low) > half:
		d.Concentration = ConcentrationLow
	default:
		d.Concentration = ConcentrationBalanced
	}
	return d
}

func mitigation(members []domain.MemberRecord) []string {
	out := []string{}
	var anyLife, anyHealth bool
	for _, m := range members {
		anyLife = anyLife || m.Coverage.Has(domain.CoverageLife)
		anyHealth = anyHealth || m.Coverage.Has(domain.CoverageHealth)
	}
	if !anyLife {
		out = append(out, "add life insurance for the main earners")
	}
	if !anyHealth {
		out = append(out, "add comprehensive health insurance")
	}
	return out
}

func maxAge(members []domain.MemberRecord) int {
	oldest := 0
	for _, m := range members {
		if m.Age > oldest {
			oldest = m.Age
		}
	}
	return oldest
}

func ageTrend(maxAge int) string {
	if maxAge > 40 {
		return AgeTrendRising
	}
	return AgeTrendStable
}

func projection(maxAge int) string {
	switch {
	case maxAge > 50:
		return ProjectionRising
	case maxAge > 35:
		return ProjectionStable
	}
	return ProjectionDeclining
}
