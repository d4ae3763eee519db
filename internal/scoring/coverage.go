package scoring

import (
	"github.com/family-profiler/backend/internal/domain"
)

// optimizationWeights are the points a member gains for each missing type.
var optimizationWeights = []struct {
	label  string
	weight int
}{
	{domain.CoverageLife, 30},
	{domain.CoverageHealth, 25},
	{domain.CoverageAuto, 20},
	{domain.CoverageHome, 15},
	{domain.CoverageLiability, 10},
}

const noCoverage = "none"

type CoverageAnalyzer struct {
	catalog []string
}

// NewCoverageAnalyzer checks gaps against catalog, or the default catalog
// when none is given.
func NewCoverageAnalyzer(catalog []string) *CoverageAnalyzer {
	if len(catalog) == 0 {
		catalog = domain.DefaultCoverageCatalog
	}
	return &CoverageAnalyzer{catalog: append([]string(nil), catalog...)}
}

// Adequacy grades life and health coverage. Members over 50 without either
// are "inadequate"; younger ones in the same position "needs_improvement".
func (a *CoverageAnalyzer) Adequacy(m domain.MemberRecord) domain.Adequacy {
	life, health := m.Coverage.HasLifeAndHealth()
	switch {
	case life && health:
		return domain.AdequacyExcellent
	case life || health:
		return domain.AdequacyAdequate
	case m.Age > 50:
		return domain.AdequacyInadequate
	}
	return domain.AdequacyNeedsImprovement
}

// OptimizationPotential is a percentage in [0, 100].
func (a *CoverageAnalyzer) OptimizationPotential(m domain.MemberRecord) int {
	potential := 0
	for _, w := range optimizationWeights {
		if !m.Coverage.Has(w.label) {
			potential += w.weight
		}
	}
	if potential > maxScore {
		return maxScore
	}
	return potential
}

// Gaps lists catalog types that no member carries, in catalog order.
func (a *CoverageAnalyzer) Gaps(members []domain.MemberRecord) []string {
	held := make(map[string]bool)
	for _, m := range members {
		for _, label := range m.Coverage {
			held[label] = true
		}
	}

	gaps := []string{}
	for _, label := range a.catalog {
		if !held[label] {
			gaps = append(gaps, label)
		}
	}
	return gaps
}

// Distribution counts members per coverage label in first-seen order and
// names the most common label. Ties go to the label seen first.
func (a *CoverageAnalyzer) Distribution(members []domain.MemberRecord) ([]domain.CoverageCount, string) {
	counts := []domain.CoverageCount{}
	index := make(map[string]int)
	for _, m := range members {
		for _, label := range m.Coverage {
			i, ok := index[label]
			if !ok {
				i = len(counts)
				index[label] = i
				counts = append(counts, domain.CoverageCount{Label: label})
			}
			counts[i].Members++
		}
	}

	mostCommon, best := noCoverage, 0
	for _, c := range counts {
		if c.Members > best {
			mostCommon, best = c.Label, c.Members
		}
	}
	return counts, mostCommon
}

func (a *CoverageAnalyzer) Recommendations(m domain.MemberRecord) []string {
	recs := []string{}
	if m.Age > 40 && !m.Coverage.Has(domain.CoverageLife) {
		recs = append(recs, "add life insurance")
	}
	if !m.Coverage.Has(domain.CoverageHealth) {
		recs = append(recs, "add health insurance")
	}
	if m.Age > 18 && !m.Coverage.Has(domain.CoverageAuto) {
		recs = append(recs, "add auto insurance")
	}
	return recs
}

func (a *CoverageAnalyzer) FuturePlanning(m domain.MemberRecord) domain.FuturePlanning {
	plan := domain.FuturePlanning{
		ShortTerm:  []string{},
		MediumTerm: []string{},
		LongTerm:   []string{},
	}
	if m.Relationship.IsParent() && m.Age > 35 {
		plan.MediumTerm = append(plan.MediumTerm, "pension planning")
		plan.LongTerm = append(plan.LongTerm, "estate planning")
	}
	if m.Relationship.IsChild() && m.Age < 18 {
		plan.LongTerm = append(plan.LongTerm, "education planning")
	}
	return plan
}

// Analyze builds the derived annotation for one member. The record itself
// is not touched.
func Analyze(m domain.MemberRecord, risk *RiskScorer, coverage *CoverageAnalyzer) domain.MemberAnalysis {
	return domain.MemberAnalysis{
		Name:                  m.Name,
		SourceReference:       m.SourceReference,
		RiskScore:             risk.Score(m),
		CoverageAdequacy:      coverage.Adequacy(m),
		OptimizationPotential: coverage.OptimizationPotential(m),
		Recommendations:       coverage.Recommendations(m),
		FuturePlanning:        coverage.FuturePlanning(m),
	}
}
