package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/persistence"
	"github.com/lib/pq"
)

const logColumns = `id, run_id, scenario_id, node_id, node_type, action, status, attempt, input_data, output_data,
	error, warnings, request, response, start_time, end_time, duration_ms`

// LogRepository is the append-only store of automation log entries.
type LogRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewLogRepository creates a new log repository.
func NewLogRepository(db *sql.DB, logger *slog.Logger) *LogRepository {
	return &LogRepository{db: db, logger: logger}
}

func (r *LogRepository) InsertLogEntry(ctx context.Context, entry *models.AutomationLogEntry) error {
	input, err := marshalJSON(entry.InputData)
	if err != nil {
		return fmt.Errorf("failed to marshal input data: %w", err)
	}

	output, err := marshalJSON(entry.OutputData)
	if err != nil {
		return fmt.Errorf("failed to marshal output data: %w", err)
	}

	request, err := marshalCapture(entry.Request)
	if err != nil {
		return fmt.Errorf("failed to marshal request capture: %w", err)
	}

	response, err := marshalCapture(entry.Response)
	if err != nil {
		return fmt.Errorf("failed to marshal response capture: %w", err)
	}

	var endTime sql.NullTime
	if entry.EndTime != nil {
		endTime = sql.NullTime{Time: *entry.EndTime, Valid: true}
	}

	query := `
		INSERT INTO automation_logs (` + logColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	_, err = r.db.ExecContext(ctx, query,
		entry.ID,
		entry.RunID,
		entry.ScenarioID,
		entry.NodeID,
		entry.NodeType,
		string(entry.Action),
		string(entry.Status),
		entry.Attempt,
		input,
		output,
		entry.Error,
		pq.Array(tagsOrEmpty(entry.Warnings)),
		request,
		response,
		entry.StartTime,
		endTime,
		entry.Duration.Milliseconds(),
	)
	if isUniqueViolation(err) {
		return persistence.NewRecordError("InsertLogEntry", "log entry", entry.ID, persistence.ErrAlreadyExists)
	}

	if err != nil {
		return fmt.Errorf("failed to insert log entry: %w", err)
	}

	return nil
}

func (r *LogRepository) ListLogsByRun(ctx context.Context, runID string) ([]*models.AutomationLogEntry, error) {
	return r.list(ctx, `SELECT `+logColumns+` FROM automation_logs WHERE run_id = $1 ORDER BY seq`, runID)
}

func (r *LogRepository) ListLogsByScenario(
	ctx context.Context,
	scenarioID string,
	query persistence.LogQuery,
) ([]*models.AutomationLogEntry, error) {
	var since, until sql.NullTime
	if !query.Since.IsZero() {
		since = sql.NullTime{Time: query.Since, Valid: true}
	}

	if !query.Until.IsZero() {
		until = sql.NullTime{Time: query.Until, Valid: true}
	}

	limit := sql.NullInt64{}
	if query.Limit > 0 {
		limit = sql.NullInt64{Int64: int64(query.Limit), Valid: true}
	}

	statement := `
		SELECT ` + logColumns + ` FROM automation_logs
		WHERE scenario_id = $1
		  AND ($2 = '' OR status = $2)
		  AND ($3 = '' OR action = $3)
		  AND ($4::timestamptz IS NULL OR start_time >= $4)
		  AND ($5::timestamptz IS NULL OR start_time <= $5)
		ORDER BY seq DESC
		LIMIT $6
	`

	return r.list(ctx, statement, scenarioID, string(query.Status), string(query.Action), since, until, limit)
}

func (r *LogRepository) list(ctx context.Context, query string, args ...any) ([]*models.AutomationLogEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query log entries: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	entries := make([]*models.AutomationLogEntry, 0)

	for rows.Next() {
		entry, err := scanLogEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan log entry: %w", err)
		}

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating log entries: %w", err)
	}

	return entries, nil
}

func scanLogEntry(row rowScanner) (*models.AutomationLogEntry, error) {
	var (
		entry             models.AutomationLogEntry
		action, status    string
		input, output     []byte
		request, response []byte
		warnings          pq.StringArray
		endTime           sql.NullTime
		durationMs        int64
	)

	err := row.Scan(
		&entry.ID,
		&entry.RunID,
		&entry.ScenarioID,
		&entry.NodeID,
		&entry.NodeType,
		&action,
		&status,
		&entry.Attempt,
		&input,
		&output,
		&entry.Error,
		&warnings,
		&request,
		&response,
		&entry.StartTime,
		&endTime,
		&durationMs,
	)
	if err != nil {
		return nil, err
	}

	entry.Action = models.LogAction(action)
	entry.Status = models.LogStatus(status)
	entry.Duration = time.Duration(durationMs) * time.Millisecond

	if len(warnings) > 0 {
		entry.Warnings = warnings
	}

	if endTime.Valid {
		entry.EndTime = &endTime.Time
	}

	if entry.InputData, err = unmarshalMap(input); err != nil {
		return nil, fmt.Errorf("failed to unmarshal input data: %w", err)
	}

	if entry.OutputData, err = unmarshalMap(output); err != nil {
		return nil, fmt.Errorf("failed to unmarshal output data: %w", err)
	}

	if entry.Request, err = unmarshalCapture(request); err != nil {
		return nil, fmt.Errorf("failed to unmarshal request capture: %w", err)
	}

	if entry.Response, err = unmarshalCapture(response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response capture: %w", err)
	}

	return &entry, nil
}

func marshalCapture(capture *models.HTTPCapture) ([]byte, error) {
	if capture == nil {
		return nil, nil
	}

	return json.Marshal(capture)
}

func unmarshalCapture(data []byte) (*models.HTTPCapture, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}

	var capture models.HTTPCapture

	err := json.Unmarshal(data, &capture)
	if err != nil {
		return nil, err
	}

	return &capture, nil
}
