package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"cablecheck/internal/domain"
)

// InsertRunTx stores a run with its per-field results and interactions.
func (r Repo) InsertRunTx(ctx context.Context, tx *sql.Tx, run domain.Run) error {
	attrs, err := json.Marshal(run.Attributes)
	if err != nil {
		return fmt.Errorf("marshal attributes: %w", err)
	}
	missing := run.MissingAttributes
	if missing == nil {
		missing = []string{}
	}
	missingJSON, err := json.Marshal(missing)
	if err != nil {
		return fmt.Errorf("marshal missing attributes: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO validation_runs(id,kind,user_input,route,design_id,attributes_json,missing_json,reasoning,confidence,hitl_mode,hitl_required,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		run.ID, run.Kind, run.UserInput, nullable(run.Route), nullable(run.DesignID), string(attrs), string(missingJSON),
		run.Reasoning, run.Confidence, run.HITLMode, run.HITLRequired, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	for i, item := range run.Validation {
		if _, err := tx.ExecContext(ctx, `INSERT INTO validation_results(run_id,position,field,status,expected,comment) VALUES (?,?,?,?,?,?)`,
			run.ID, i, item.Field, string(item.Status), nullable(item.Expected), nullable(item.Comment)); err != nil {
			return fmt.Errorf("insert result %s: %w", item.Field, err)
		}
	}
	for i, it := range run.Interactions {
		if _, err := tx.ExecContext(ctx, `INSERT INTO hitl_interactions(run_id,position,field,user_response,ts) VALUES (?,?,?,?,?)`,
			run.ID, i, it.Field, it.UserResponse, nullable(it.Timestamp)); err != nil {
			return fmt.Errorf("insert interaction %s: %w", it.Field, err)
		}
	}
	return nil
}

const runColumns = `id,kind,user_input,COALESCE(route,''),COALESCE(design_id,''),attributes_json,missing_json,reasoning,confidence,hitl_mode,hitl_required,created_at`

func scanRun(row scanner) (domain.Run, error) {
	var run domain.Run
	var attrs, missing string
	var reasoning sql.NullString
	var confidence sql.NullFloat64
	err := row.Scan(&run.ID, &run.Kind, &run.UserInput, &run.Route, &run.DesignID, &attrs, &missing, &reasoning, &confidence,
		&run.HITLMode, &run.HITLRequired, &run.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return run, ErrNotFound
	}
	if err != nil {
		return run, err
	}
	run.Reasoning = stringPtr(reasoning)
	run.Confidence = floatPtr(confidence)
	run.Attributes = domain.Attributes{}
	if err := json.Unmarshal([]byte(attrs), &run.Attributes); err != nil {
		return run, fmt.Errorf("decode attributes of run %s: %w", run.ID, err)
	}
	run.MissingAttributes = []string{}
	if err := json.Unmarshal([]byte(missing), &run.MissingAttributes); err != nil {
		return run, fmt.Errorf("decode missing attributes of run %s: %w", run.ID, err)
	}
	return run, nil
}

// GetRun loads a run with its results and interactions.
func (r Repo) GetRun(ctx context.Context, id string) (domain.Run, error) {
	run, err := scanRun(r.DB.QueryRowContext(ctx, `SELECT `+runColumns+` FROM validation_runs WHERE id=?`, id))
	if err != nil {
		return run, err
	}
	if err := r.loadRunChildren(ctx, &run); err != nil {
		return run, err
	}
	return run, nil
}

func (r Repo) loadRunChildren(ctx context.Context, run *domain.Run) error {
	rows, err := r.DB.QueryContext(ctx, `SELECT field,status,COALESCE(expected,''),COALESCE(comment,'') FROM validation_results WHERE run_id=? ORDER BY position`, run.ID)
	if err != nil {
		return err
	}
	run.Validation = []domain.ValidationItem{}
	for rows.Next() {
		var item domain.ValidationItem
		var status string
		if err := rows.Scan(&item.Field, &status, &item.Expected, &item.Comment); err != nil {
			rows.Close()
			return err
		}
		item.Status = domain.Status(status)
		run.Validation = append(run.Validation, item)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = r.DB.QueryContext(ctx, `SELECT field,user_response,COALESCE(ts,'') FROM hitl_interactions WHERE run_id=? ORDER BY position`, run.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	run.Interactions = []domain.Interaction{}
	for rows.Next() {
		var it domain.Interaction
		if err := rows.Scan(&it.Field, &it.UserResponse, &it.Timestamp); err != nil {
			return err
		}
		run.Interactions = append(run.Interactions, it)
	}
	return rows.Err()
}

// ListRuns returns runs newest first. The cursor is the created_at|id pair of
// the first row to return; empty starts at the newest run.
func (r Repo) ListRuns(ctx context.Context, limit int, cursorTS, cursorID string) ([]domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM validation_runs`
	var args []any
	if cursorTS != "" && cursorID != "" {
		query += ` WHERE (created_at < ? OR (created_at = ? AND id <= ?))`
		args = append(args, cursorTS, cursorTS, cursorID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var res []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		res = append(res, run)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		if err := r.loadRunChildren(ctx, &res[i]); err != nil {
			return nil, err
		}
	}
	return res, nil
}
