package neo4j

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/family-profiler/backend/internal/domain"
)

func TestBuildHousehold(t *testing.T) {
	p := &domain.FamilyProfile{
		ID:         "fam-1",
		FamilyName: "Levi family",
		Members: []domain.MemberRecord{
			{
				Name:         "Avi",
				Age:          45,
				Relationship: domain.RelationshipFather,
				Coverage:     domain.NewCoverageSet("life", "health"),
				PolicyCount:  2,
				TotalPremium: decimal.RequireFromString("200.10"),
			},
			{
				Name:         "Tamar",
				Age:          12,
				Relationship: domain.RelationshipDaughter,
				Coverage:     domain.NewCoverageSet("health"),
				PolicyCount:  1,
				TotalPremium: decimal.NewFromInt(50),
			},
		},
		MembersAnalysis: []domain.MemberAnalysis{
			{Name: "Avi", RiskScore: 35, CoverageAdequacy: domain.AdequacyExcellent},
			{Name: "Tamar", RiskScore: 10, CoverageAdequacy: domain.AdequacyAdequate},
		},
		Composition:         domain.Composition{FamilyStage: domain.StageSchoolChildren},
		Risk:                domain.RiskAnalysis{OverallLevel: domain.RiskLow},
		CoverageGaps:        []string{"auto", "home"},
		TotalPolicies:       3,
		TotalMonthlyPremium: decimal.RequireFromString("250.10"),
	}
	syncedAt := time.Date(2026, 5, 1, 12, 0, 0, 0, time.FixedZone("IDT", 3*3600))

	h := BuildHousehold(p, syncedAt)

	assert.Equal(t, "fam-1", h.Family["id"])
	assert.Equal(t, "school-age children", h.Family["stage"])
	assert.Equal(t, "low", h.Family["overall_risk"])
	assert.Equal(t, int64(3), h.Family["total_policies"])
	assert.Equal(t, "250.1", h.Family["total_monthly_premium"])
	assert.Equal(t, "2026-05-01T09:00:00Z", h.Family["synced_at"])

	require.Len(t, h.Members, 2)
	assert.Equal(t, "fam-1:0", h.Members[0]["key"])
	assert.Equal(t, "parent-father", h.Members[0]["relationship"])
	assert.Equal(t, int64(35), h.Members[0]["risk_score"])
	assert.Equal(t, "excellent", h.Members[0]["adequacy"])
	assert.Equal(t, "fam-1:1", h.Members[1]["key"])
	assert.Equal(t, int64(12), h.Members[1]["age"])

	require.Len(t, h.Coverage, 3)
	assert.Equal(t, map[string]any{"member_key": "fam-1:0", "label": "life"}, h.Coverage[0])
	assert.Equal(t, map[string]any{"member_key": "fam-1:1", "label": "health"}, h.Coverage[2])

	require.Len(t, h.Gaps, 2)
	assert.Equal(t, "auto", h.Gaps[0]["label"])
}

func TestBuildHousehold_NoAnalysis(t *testing.T) {
	p := &domain.FamilyProfile{
		ID:      "fam-2",
		Members: []domain.MemberRecord{{Name: "family member"}},
	}

	h := BuildHousehold(p, time.Unix(0, 0))

	require.Len(t, h.Members, 1)
	assert.Equal(t, int64(0), h.Members[0]["risk_score"])
	assert.Equal(t, "", h.Members[0]["adequacy"])
	assert.NotNil(t, h.Coverage)
	assert.Empty(t, h.Gaps)
}
