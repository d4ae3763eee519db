package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/family-profiler/backend/internal/domain"
	"github.com/family-profiler/backend/internal/metrics"
	"github.com/family-profiler/backend/internal/storage/models"
	"github.com/family-profiler/backend/pkg/logger"
	"github.com/family-profiler/backend/pkg/retry"
)

var ErrNotFound = errors.New("profile not found")

// Client is an append-only profile store. Re-running a batch appends a new
// row under the same profile id; reads return the latest row.
type Client struct {
	db          *sql.DB
	retryConfig retry.Config
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{
		db: db,
		retryConfig: retry.Config{
			MaxAttempts:    5,
			InitialDelay:   20 * time.Millisecond,
			MaxDelay:       500 * time.Millisecond,
			Multiplier:     2.0,
			JitterFraction: 0.2,
			RetryIf:        isBusy,
			Logger:         logger.GetLogger(),
		},
	}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS family_profiles (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		profile_id TEXT NOT NULL,
		family_name TEXT NOT NULL,
		member_count INTEGER NOT NULL,
		total_policies INTEGER NOT NULL,
		total_monthly_premium TEXT NOT NULL,
		overall_risk TEXT NOT NULL,
		has_narrative INTEGER DEFAULT 0,
		payload TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_profiles_profile_id ON family_profiles(profile_id);
	CREATE INDEX IF NOT EXISTS idx_profiles_family ON family_profiles(family_name);
	CREATE INDEX IF NOT EXISTS idx_profiles_created ON family_profiles(created_at);

	CREATE TABLE IF NOT EXISTS profile_members (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		profile_seq INTEGER NOT NULL,
		position INTEGER NOT NULL,
		name TEXT NOT NULL,
		relationship TEXT NOT NULL,
		age INTEGER NOT NULL,
		policy_count INTEGER NOT NULL,
		risk_score INTEGER NOT NULL,
		source_reference TEXT,
		FOREIGN KEY (profile_seq) REFERENCES family_profiles(seq) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_members_profile ON profile_members(profile_seq);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

// isBusy reports the lock contention errors worth another attempt.
func isBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

// AppendProfile stores p and its members in one transaction.
func (c *Client) AppendProfile(ctx context.Context, p *domain.FamilyProfile) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}

	seq, err := retry.DoWithResult(ctx, c.retryConfig, func(ctx context.Context) (int64, error) {
		return c.appendTx(ctx, p, payload)
	})
	if err != nil {
		return err
	}

	metrics.ProfilesStored.Inc()
	logger.Info("Profile appended",
		zap.String("profile_id", p.ID),
		zap.Int64("seq", seq),
		zap.String("family_name", p.FamilyName),
		zap.Int("members", len(p.Members)),
	)
	return nil
}

func (c *Client) appendTx(ctx context.Context, p *domain.FamilyProfile, payload []byte) (int64, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	hasNarrative := 0
	if p.RawAnalysis != "" {
		hasNarrative = 1
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO family_profiles (profile_id, family_name, member_count, total_policies,
			total_monthly_premium, overall_risk, has_narrative, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.ID,
		p.FamilyName,
		len(p.Members),
		p.TotalPolicies,
		p.TotalMonthlyPremium.String(),
		string(p.Risk.OverallLevel),
		hasNarrative,
		string(payload),
		p.CreatedAt.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert profile: %w", err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read profile seq: %w", err)
	}

	for i, m := range p.Members {
		riskScore := 0
		if i < len(p.MembersAnalysis) {
			riskScore = p.MembersAnalysis[i].RiskScore
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO profile_members (profile_seq, position, name, relationship, age, policy_count,
				risk_score, source_reference)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, seq, i, m.Name, string(m.Relationship), m.Age, m.PolicyCount, riskScore, m.SourceReference)
		if err != nil {
			return 0, fmt.Errorf("failed to insert member: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit profile: %w", err)
	}
	return seq, nil
}

// GetProfile returns the most recently appended run for id.
func (c *Client) GetProfile(ctx context.Context, id string) (*domain.FamilyProfile, error) {
	query := `SELECT payload FROM family_profiles WHERE profile_id = ? ORDER BY seq DESC LIMIT 1`

	var payload string
	err := c.db.QueryRowContext(ctx, query, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	var p domain.FamilyProfile
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
	}
	return &p, nil
}

// ListProfiles returns runs newest first.
func (c *Client) ListProfiles(ctx context.Context, limit, offset int) ([]models.ProfileSummary, error) {
	query := `
		SELECT seq, profile_id, family_name, member_count, total_policies, total_monthly_premium,
			overall_risk, has_narrative, created_at
		FROM family_profiles
		ORDER BY seq DESC
		LIMIT ? OFFSET ?
	`

	rows, err := c.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	summaries := []models.ProfileSummary{}
	for rows.Next() {
		var s models.ProfileSummary
		var hasNarrative int
		var createdAt int64

		err := rows.Scan(
			&s.Seq,
			&s.ProfileID,
			&s.FamilyName,
			&s.MemberCount,
			&s.TotalPolicies,
			&s.TotalMonthlyPremium,
			&s.OverallRisk,
			&hasNarrative,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		s.HasNarrative = hasNarrative == 1
		s.CreatedAt = time.Unix(createdAt, 0).UTC()
		summaries = append(summaries, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate profiles: %w", err)
	}
	return summaries, nil
}

func (c *Client) Stats(ctx context.Context) (models.StoreStats, error) {
	var stats models.StoreStats
	var last sql.NullInt64

	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT profile_id), MAX(created_at) FROM family_profiles`,
	).Scan(&stats.Profiles, &stats.DistinctProfiles, &last)
	if err != nil {
		return stats, fmt.Errorf("failed to count profiles: %w", err)
	}

	err = c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM profile_members`).Scan(&stats.Members)
	if err != nil {
		return stats, fmt.Errorf("failed to count members: %w", err)
	}

	if last.Valid {
		t := time.Unix(last.Int64, 0).UTC()
		stats.LastAppendedAt = &t
	}
	return stats, nil
}
