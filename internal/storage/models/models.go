package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProfileSummary is one stored profile run without its payload.
type ProfileSummary struct {
	Seq                 int64           `json:"seq"`
	ProfileID           string          `json:"id"`
	FamilyName          string          `json:"family_name"`
	MemberCount         int             `json:"member_count"`
	TotalPolicies       int             `json:"total_policies"`
	TotalMonthlyPremium decimal.Decimal `json:"total_monthly_premium"`
	OverallRisk         string          `json:"overall_risk"`
	HasNarrative        bool            `json:"has_narrative"`
	CreatedAt           time.Time       `json:"created_at"`
}

type StoreStats struct {
	Profiles         int        `json:"profiles"`
	DistinctProfiles int        `json:"distinct_profiles"`
	Members          int        `json:"members"`
	LastAppendedAt   *time.Time `json:"last_appended_at,omitempty"`
}
