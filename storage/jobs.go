package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a job id does not exist
var ErrNotFound = errors.New("job not found")

// JobRecord is one finished typing job
type JobRecord struct {
	ID             int64     `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	State          string    `json:"state"`
	CharacterCount int       `json:"characterCount"`
	UnitsSent      int       `json:"unitsSent"`
	DelayMs        int       `json:"delayMs"`
	EnterSent      bool      `json:"enterSent"`
	DurationMs     int64     `json:"durationMs"`
	ErrorMessage   string    `json:"errorMessage,omitempty"`
}

// SaveJob inserts r and sets its ID
func (db *DB) SaveJob(r *JobRecord) error {
	query := `
		INSERT INTO jobs (
			state, character_count, units_sent, delay_ms, enter_sent, duration_ms, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	var errorMessage sql.NullString
	if r.ErrorMessage != "" {
		errorMessage = sql.NullString{String: r.ErrorMessage, Valid: true}
	}

	result, err := db.conn.Exec(query,
		r.State, r.CharacterCount, r.UnitsSent, r.DelayMs, r.EnterSent, r.DurationMs, errorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}
	r.ID = id
	return nil
}

// GetJobs returns jobs newest first
func (db *DB) GetJobs(limit, offset int) ([]JobRecord, error) {
	query := `
		SELECT id, timestamp, state, character_count, units_sent, delay_ms, enter_sent, duration_ms, error_message
		FROM jobs
		ORDER BY timestamp DESC, id DESC
		LIMIT ? OFFSET ?
	`

	rows, err := db.conn.Query(query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	jobs := []JobRecord{}
	for rows.Next() {
		var r JobRecord
		var errorMessage sql.NullString
		if err := rows.Scan(
			&r.ID, &r.Timestamp, &r.State, &r.CharacterCount, &r.UnitsSent,
			&r.DelayMs, &r.EnterSent, &r.DurationMs, &errorMessage,
		); err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		r.ErrorMessage = errorMessage.String
		jobs = append(jobs, r)
	}
	return jobs, rows.Err()
}

// DeleteJob removes one job
func (db *DB) DeleteJob(id int64) error {
	result, err := db.conn.Exec(`DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetJobCount returns the number of stored jobs
func (db *DB) GetJobCount() (int, error) {
	var count int
	if err := db.conn.QueryRow("SELECT COUNT(*) FROM jobs").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}
	return count, nil
}
