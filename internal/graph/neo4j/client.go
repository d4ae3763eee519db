package neo4j

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/family-profiler/backend/internal/domain"
	"github.com/family-profiler/backend/internal/metrics"
	"github.com/family-profiler/backend/pkg/circuitbreaker"
	"github.com/family-profiler/backend/pkg/config"
	"github.com/family-profiler/backend/pkg/logger"
	"github.com/family-profiler/backend/pkg/retry"
)

// Client mirrors stored profiles into a household graph. Syncing is best
// effort; the profile store stays the record of truth.
type Client struct {
	driver      neo4j.DriverWithContext
	database    string
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
	now         func() time.Time
}

func NewClient(cfg config.Neo4jConfig) (*Client, error) {
	driver, err := neo4j.NewDriverWithContext(
		cfg.URI,
		neo4j.BasicAuth(cfg.Username, cfg.Password, ""),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	ctx := context.Background()
	err = driver.VerifyConnectivity(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to verify connectivity: %w", err)
	}

	cb := circuitbreaker.NewCircuitBreaker("neo4j", circuitbreaker.Config{
		MaxRequests:      3,
		Interval:         time.Minute,
		Timeout:          20 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OnStateChange:    metrics.TrackCircuit,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   200 * time.Millisecond,
		MaxDelay:       3 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	database := cfg.Database
	if database == "" {
		database = "neo4j"
	}

	logger.Info("Neo4j client initialized", zap.String("uri", cfg.URI), zap.String("database", database))

	return &Client{
		driver:      driver,
		database:    database,
		cb:          cb,
		retryConfig: retryConfig,
		now:         time.Now,
	}, nil
}

func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

func (c *Client) executeWrite(ctx context.Context, work neo4j.ManagedTransactionWork) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func(ctx context.Context) error {
			session := c.driver.NewSession(ctx, neo4j.SessionConfig{
				AccessMode:   neo4j.AccessModeWrite,
				DatabaseName: c.database,
			})
			defer session.Close(ctx)

			_, err := session.ExecuteWrite(ctx, work)
			return err
		})
	})
}

// InitSchema creates the uniqueness constraints the MERGE statements rely on.
func (c *Client) InitSchema(ctx context.Context) error {
	constraints := []string{
		`CREATE CONSTRAINT family_id_unique IF NOT EXISTS FOR (f:Family) REQUIRE f.id IS UNIQUE`,
		`CREATE CONSTRAINT member_key_unique IF NOT EXISTS FOR (m:Member) REQUIRE m.key IS UNIQUE`,
		`CREATE CONSTRAINT coverage_label_unique IF NOT EXISTS FOR (c:Coverage) REQUIRE c.label IS UNIQUE`,
	}

	session := c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: c.database})
	defer session.Close(ctx)

	for _, stmt := range constraints {
		res, err := session.Run(ctx, stmt, nil)
		if err != nil {
			return fmt.Errorf("failed to create constraint: %w", err)
		}
		if _, err := res.Consume(ctx); err != nil {
			return fmt.Errorf("failed to create constraint: %w", err)
		}
	}

	logger.Info("Neo4j schema initialized")
	return nil
}

const (
	upsertFamilyQuery = `
		MERGE (f:Family {id: $family.id})
		SET f.name = $family.name,
		    f.stage = $family.stage,
		    f.overall_risk = $family.overall_risk,
		    f.total_policies = $family.total_policies,
		    f.total_monthly_premium = $family.total_monthly_premium,
		    f.synced_at = $family.synced_at
		WITH f
		OPTIONAL MATCH (f)-[gap:LACKS_COVERAGE]->(:Coverage)
		DELETE gap
	`

	upsertMembersQuery = `
		UNWIND $rows AS r
		MATCH (f:Family {id: r.family_id})
		MERGE (m:Member {key: r.key})
		SET m.name = r.name,
		    m.age = r.age,
		    m.relationship = r.relationship,
		    m.risk_score = r.risk_score,
		    m.adequacy = r.adequacy,
		    m.policy_count = r.policy_count,
		    m.premium = r.premium
		MERGE (m)-[:MEMBER_OF]->(f)
		WITH m
		OPTIONAL MATCH (m)-[old:HAS_COVERAGE]->(:Coverage)
		DELETE old
	`

	upsertCoverageQuery = `
		UNWIND $rows AS r
		MATCH (m:Member {key: r.member_key})
		MERGE (c:Coverage {label: r.label})
		MERGE (m)-[:HAS_COVERAGE]->(c)
	`

	upsertGapsQuery = `
		UNWIND $rows AS r
		MATCH (f:Family {id: r.family_id})
		MERGE (c:Coverage {label: r.label})
		MERGE (f)-[:LACKS_COVERAGE]->(c)
	`
)

// SyncProfile writes the household projection of p in one transaction.
func (c *Client) SyncProfile(ctx context.Context, p *domain.FamilyProfile) error {
	h := BuildHousehold(p, c.now())

	err := c.executeWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		steps := []struct {
			query  string
			params map[string]any
		}{
			{upsertFamilyQuery, map[string]any{"family": h.Family}},
			{upsertMembersQuery, map[string]any{"rows": h.Members}},
			{upsertCoverageQuery, map[string]any{"rows": h.Coverage}},
			{upsertGapsQuery, map[string]any{"rows": h.Gaps}},
		}
		for _, step := range steps {
			res, err := tx.Run(ctx, step.query, step.params)
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		metrics.GraphSyncs.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to sync household graph: %w", err)
	}

	metrics.GraphSyncs.WithLabelValues("ok").Inc()
	logger.Debug("Household graph synced",
		zap.String("profile_id", p.ID),
		zap.Int("members", len(h.Members)),
		zap.Int("coverage_edges", len(h.Coverage)),
		zap.Int("gaps", len(h.Gaps)),
	)
	return nil
}
