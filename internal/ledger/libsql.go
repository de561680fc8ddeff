package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/flowmatic/flowmatic/pkg/schema"
)

// LibSQLLedger implements the Ledger interface using libSQL (embedded SQLite fork).
type LibSQLLedger struct {
	db *sql.DB
}

// NewLibSQLLedger opens a libSQL database at the given path and returns a Ledger.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLLedger(dbPath string) (*LibSQLLedger, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-20000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLLedger{db: db}, nil
}

// DB returns the underlying *sql.DB for advanced usage.
func (l *LibSQLLedger) DB() *sql.DB { return l.db }

// Close closes the database.
func (l *LibSQLLedger) Close() error { return l.db.Close() }

// Migrate runs all pending database migrations.
func (l *LibSQLLedger) Migrate(ctx context.Context) error {
	return runMigrations(ctx, l.db)
}

// Vacuum runs VACUUM on the database.
func (l *LibSQLLedger) Vacuum(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Executions ---

func (l *LibSQLLedger) CreateExecution(ctx context.Context, exec *schema.Execution) error {
	triggerData, err := marshalMapOrDefault(exec.TriggerData)
	if err != nil {
		return fmt.Errorf("marshal trigger_data: %w", err)
	}
	_, err = l.db.ExecContext(ctx,
		`INSERT INTO executions (id, workflow, event, trigger_data, status, error, created_at, started_at, completed_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		exec.ID, exec.Workflow, exec.Event, string(triggerData), string(exec.Status),
		nullStr(exec.Error), timeOrNow(exec.CreatedAt), nullTime(exec.StartedAt), nullTime(exec.CompletedAt),
		timeOrNow(exec.CreatedAt),
	)
	return err
}

func (l *LibSQLLedger) UpdateExecution(ctx context.Context, id string, update ExecutionUpdate) error {
	var sets []string
	var args []any

	if update.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*update.Status))
	}
	if update.Error != nil {
		sets = append(sets, "error = ?")
		args = append(args, *update.Error)
	}
	if update.StartedAt != nil {
		sets = append(sets, "started_at = ?")
		args = append(args, *update.StartedAt)
	}
	if update.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, *update.CompletedAt)
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, id)

	query := fmt.Sprintf("UPDATE executions SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := l.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "execution", id)
}

func (l *LibSQLLedger) GetExecution(ctx context.Context, id string) (*schema.Execution, error) {
	exec, err := l.scanExecution(l.db.QueryRowContext(ctx,
		`SELECT id, workflow, event, trigger_data, status, error, created_at, started_at, completed_at
		 FROM executions WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, ledgerNotFound("execution", id)
	}
	if err != nil {
		return nil, err
	}

	steps, err := l.stepResults(ctx, id)
	if err != nil {
		return nil, err
	}
	exec.Steps = steps
	return exec, nil
}

func (l *LibSQLLedger) ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*schema.Execution, error) {
	var where []string
	var args []any

	if filter.Workflow != "" {
		where = append(where, "workflow = ?")
		args = append(args, filter.Workflow)
	}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.Since != nil {
		where = append(where, "created_at >= ?")
		args = append(args, *filter.Since)
	}

	query := "SELECT id, workflow, event, trigger_data, status, error, created_at, started_at, completed_at FROM executions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var executions []*schema.Execution
	for rows.Next() {
		exec, scanErr := l.scanExecution(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		executions = append(executions, exec)
	}
	return executions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (l *LibSQLLedger) scanExecution(row rowScanner) (*schema.Execution, error) {
	exec := &schema.Execution{}
	var (
		triggerJSON            sql.NullString
		errStr                 sql.NullString
		status                 string
		startedAt, completedAt sql.NullTime
	)
	err := row.Scan(&exec.ID, &exec.Workflow, &exec.Event, &triggerJSON, &status,
		&errStr, &exec.CreatedAt, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	exec.Status = schema.ExecutionStatus(status)
	exec.Error = errStr.String
	if triggerJSON.Valid && triggerJSON.String != "" {
		_ = json.Unmarshal([]byte(triggerJSON.String), &exec.TriggerData)
	}
	if startedAt.Valid {
		exec.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		exec.CompletedAt = &completedAt.Time
	}
	return exec, nil
}

// --- Step results ---

func (l *LibSQLLedger) AppendStepResult(ctx context.Context, executionID string, result *schema.StepResult) error {
	params, err := marshalMapOrDefault(result.Params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	// INSERT only. The (execution_id, position) primary key makes rewriting
	// history a constraint violation rather than a silent overwrite.
	_, err = l.db.ExecContext(ctx,
		`INSERT INTO step_results (execution_id, position, name, tool, status, params, output, error, attempts, started_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		executionID, result.Position, result.Name, result.Tool, string(result.Status),
		string(params), nullRaw(result.Output), nullStr(result.Error), result.Attempts,
		timeOrNow(result.StartedAt), timeOrNow(result.CompletedAt),
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return schema.NewErrorf(schema.ErrCodeConflict,
			"step result at position %d already recorded for execution %q", result.Position, executionID)
	}
	return err
}

func (l *LibSQLLedger) stepResults(ctx context.Context, executionID string) ([]schema.StepResult, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT position, name, tool, status, params, output, error, attempts, started_at, completed_at
		 FROM step_results WHERE execution_id = ? ORDER BY position ASC`, executionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []schema.StepResult
	for rows.Next() {
		var (
			r                 schema.StepResult
			status            string
			paramsJSON        sql.NullString
			outputJSON, errNS sql.NullString
		)
		if err := rows.Scan(&r.Position, &r.Name, &r.Tool, &status, &paramsJSON,
			&outputJSON, &errNS, &r.Attempts, &r.StartedAt, &r.CompletedAt); err != nil {
			return nil, err
		}
		r.Status = schema.StepStatus(status)
		r.Error = errNS.String
		if paramsJSON.Valid && paramsJSON.String != "" {
			_ = json.Unmarshal([]byte(paramsJSON.String), &r.Params)
		}
		r.Output = rawOrNil(outputJSON)
		results = append(results, r)
	}
	return results, rows.Err()
}

// --- Helpers ---

func ledgerNotFound(resource, id string) *schema.FlowError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledgerNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullRaw(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func rawOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}

func marshalMapOrDefault(m map[string]any) (json.RawMessage, error) {
	if len(m) == 0 {
		return json.RawMessage("{}"), nil
	}
	return json.Marshal(m)
}
