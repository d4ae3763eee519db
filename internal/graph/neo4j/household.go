package neo4j

import (
	"fmt"
	"time"

	"github.com/family-profiler/backend/internal/domain"
)

// Relationship types written to the graph.
const (
	RelMemberOf      = "MEMBER_OF"
	RelHasCoverage   = "HAS_COVERAGE"
	RelLacksCoverage = "LACKS_COVERAGE"
)

// Household is the graph projection of one family profile. Rows are
// parameter maps ready for UNWIND.
type Household struct {
	Family   map[string]any
	Members  []map[string]any
	Coverage []map[string]any
	Gaps     []map[string]any
}

func memberKey(profileID string, position int) string {
	return fmt.Sprintf("%s:%d", profileID, position)
}

// BuildHousehold maps p onto Family, Member and Coverage nodes. Member keys
// are positional within the profile, so a re-run overwrites the same nodes.
func BuildHousehold(p *domain.FamilyProfile, syncedAt time.Time) Household {
	h := Household{
		Family: map[string]any{
			"id":                    p.ID,
			"name":                  p.FamilyName,
			"stage":                 string(p.Composition.FamilyStage),
			"overall_risk":          string(p.Risk.OverallLevel),
			"total_policies":        int64(p.TotalPolicies),
			"total_monthly_premium": p.TotalMonthlyPremium.String(),
			"synced_at":             syncedAt.UTC().Format(time.RFC3339Nano),
		},
		Members:  make([]map[string]any, 0, len(p.Members)),
		Coverage: []map[string]any{},
		Gaps:     make([]map[string]any, 0, len(p.CoverageGaps)),
	}

	for i, m := range p.Members {
		key := memberKey(p.ID, i)

		var riskScore int64
		var adequacy string
		if i < len(p.MembersAnalysis) {
			riskScore = int64(p.MembersAnalysis[i].RiskScore)
			adequacy = string(p.MembersAnalysis[i].CoverageAdequacy)
		}

		h.Members = append(h.Members, map[string]any{
			"key":          key,
			"family_id":    p.ID,
			"name":         m.Name,
			"age":          int64(m.Age),
			"relationship": string(m.Relationship),
			"risk_score":   riskScore,
			"adequacy":     adequacy,
			"policy_count": int64(m.PolicyCount),
			"premium":      m.TotalPremium.String(),
		})

		for _, label := range m.Coverage {
			h.Coverage = append(h.Coverage, map[string]any{
				"member_key": key,
				"label":      label,
			})
		}
	}

	for _, label := range p.CoverageGaps {
		h.Gaps = append(h.Gaps, map[string]any{
			"family_id": p.ID,
			"label":     label,
		})
	}

	return h
}
