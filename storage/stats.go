package storage

import (
	"fmt"
)

// DailyStats aggregates the jobs of one day
type DailyStats struct {
	Date            string `json:"date"`
	TotalJobs       int    `json:"totalJobs"`
	TotalCharacters int    `json:"totalCharacters"`
	CompletedCount  int    `json:"completedCount"`
	CancelledCount  int    `json:"cancelledCount"`
}

// OverallStats aggregates all jobs in a window
type OverallStats struct {
	TotalJobs       int     `json:"totalJobs"`
	TotalCharacters int     `json:"totalCharacters"`
	TotalUnitsSent  int     `json:"totalUnitsSent"`
	CompletedCount  int     `json:"completedCount"`
	CancelledCount  int     `json:"cancelledCount"`
	EnterCount      int     `json:"enterCount"`
	AvgDurationMs   float64 `json:"avgDurationMs"`
	AvgDelayMs      float64 `json:"avgDelayMs"`
	TotalDurationMs int64   `json:"totalDurationMs"`
}

// GetDailyStats returns per-day totals for the last days days, newest first
func (db *DB) GetDailyStats(days int) ([]DailyStats, error) {
	query := `
		SELECT
			DATE(timestamp) AS date,
			COUNT(*),
			COALESCE(SUM(character_count), 0),
			COALESCE(SUM(CASE WHEN state = 'completed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN state = 'cancelled' THEN 1 ELSE 0 END), 0)
		FROM jobs
		WHERE timestamp >= datetime('now', '-' || ? || ' days')
		GROUP BY DATE(timestamp)
		ORDER BY date DESC
	`

	rows, err := db.conn.Query(query, days)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily stats: %w", err)
	}
	defer rows.Close()

	stats := []DailyStats{}
	for rows.Next() {
		var s DailyStats
		if err := rows.Scan(&s.Date, &s.TotalJobs, &s.TotalCharacters, &s.CompletedCount, &s.CancelledCount); err != nil {
			return nil, fmt.Errorf("failed to scan daily stats: %w", err)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// GetOverallStats returns totals for the last days days
func (db *DB) GetOverallStats(days int) (*OverallStats, error) {
	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(character_count), 0),
			COALESCE(SUM(units_sent), 0),
			COALESCE(SUM(CASE WHEN state = 'completed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN state = 'cancelled' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN enter_sent THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(duration_ms), 0),
			COALESCE(AVG(delay_ms), 0),
			COALESCE(SUM(duration_ms), 0)
		FROM jobs
		WHERE timestamp >= datetime('now', '-' || ? || ' days')
	`

	var s OverallStats
	err := db.conn.QueryRow(query, days).Scan(
		&s.TotalJobs,
		&s.TotalCharacters,
		&s.TotalUnitsSent,
		&s.CompletedCount,
		&s.CancelledCount,
		&s.EnterCount,
		&s.AvgDurationMs,
		&s.AvgDelayMs,
		&s.TotalDurationMs,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query overall stats: %w", err)
	}
	return &s, nil
}
