package analytics

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// Cache stores serialized analytics results in the cache database.
// Entries are keyed by (portfolio, source) and overwritten on every
// recompute, never merged.
type Cache struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewCache creates a new analytics cache
func NewCache(db *sql.DB, log zerolog.Logger) *Cache {
	return &Cache{
		db:  db,
		log: log.With().Str("component", "analytics_cache").Logger(),
	}
}

// Set serializes and stores a result, replacing any existing entry for
// the same (portfolio, source).
func (c *Cache) Set(portfolioID string, source DataSource, result AnalyticsResult) error {
	payload, err := msgpack.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to serialize analytics result: %w", err)
	}

	_, err = c.db.Exec(`
		INSERT INTO analytics_cache (portfolio_id, source, as_of, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(portfolio_id, source) DO UPDATE SET
			as_of = excluded.as_of,
			payload = excluded.payload`,
		portfolioID, string(source), result.Metadata.CalculatedAt.Unix(), payload,
	)
	if err != nil {
		return fmt.Errorf("failed to store analytics result: %w", err)
	}

	c.log.Debug().Str("portfolio_id", portfolioID).Str("source", string(source)).Msg("Cached analytics result")
	return nil
}

// Get returns the stored result for (portfolio, source) and whether one
// exists.
func (c *Cache) Get(portfolioID string, source DataSource) (AnalyticsResult, bool, error) {
	var payload []byte
	err := c.db.QueryRow(`
		SELECT payload FROM analytics_cache
		WHERE portfolio_id = ? AND source = ?`,
		portfolioID, string(source),
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return AnalyticsResult{}, false, nil
	}
	if err != nil {
		return AnalyticsResult{}, false, fmt.Errorf("failed to read analytics cache: %w", err)
	}

	var result AnalyticsResult
	if err := msgpack.Unmarshal(payload, &result); err != nil {
		return AnalyticsResult{}, false, fmt.Errorf("failed to deserialize analytics result: %w", err)
	}

	return result, true, nil
}

// Invalidate removes all cached results for a portfolio. Called after
// asset or transaction mutations.
func (c *Cache) Invalidate(portfolioID string) error {
	_, err := c.db.Exec(`DELETE FROM analytics_cache WHERE portfolio_id = ?`, portfolioID)
	if err != nil {
		return fmt.Errorf("failed to invalidate analytics cache: %w", err)
	}
	return nil
}

// Prune removes entries older than the given age, keeping the cache
// database bounded.
func (c *Cache) Prune(maxAge time.Duration) (int64, error) {
	result, err := c.db.Exec(`DELETE FROM analytics_cache WHERE as_of < ?`,
		time.Now().Add(-maxAge).Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to prune analytics cache: %w", err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned entries: %w", err)
	}
	return removed, nil
}
