package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"cablecheck/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r Repo) q(tx *sql.Tx) querier {
	if tx != nil {
		return tx
	}
	return r.DB
}

const designColumns = `id,standard,voltage,conductor_material,conductor_class,csa,insulation_material,insulation_thickness,created_at,updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanDesign(row scanner) (domain.Design, error) {
	var d domain.Design
	var standard, voltage, material, class, insulation sql.NullString
	var csa, thickness sql.NullFloat64
	err := row.Scan(&d.ID, &standard, &voltage, &material, &class, &csa, &insulation, &thickness, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return d, ErrNotFound
	}
	if err != nil {
		return d, err
	}
	d.Standard = stringPtr(standard)
	d.Voltage = stringPtr(voltage)
	d.ConductorMaterial = stringPtr(material)
	d.ConductorClass = stringPtr(class)
	d.CSA = floatPtr(csa)
	d.InsulationMaterial = stringPtr(insulation)
	d.InsulationThickness = floatPtr(thickness)
	return d, nil
}

// InsertDesignTx stores a new design; ErrConflict when the id is taken.
func (r Repo) InsertDesignTx(ctx context.Context, tx *sql.Tx, d domain.Design) error {
	var exists int
	err := r.q(tx).QueryRowContext(ctx, `SELECT 1 FROM designs WHERE id=?`, d.ID).Scan(&exists)
	if err == nil {
		return fmt.Errorf("design %s: %w", d.ID, ErrConflict)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	_, err = r.q(tx).ExecContext(ctx, `INSERT INTO designs(`+designColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		d.ID, d.Standard, d.Voltage, d.ConductorMaterial, d.ConductorClass, d.CSA, d.InsulationMaterial, d.InsulationThickness,
		d.CreatedAt, d.UpdatedAt)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("design %s: %w", d.ID, ErrConflict)
	}
	return err
}

func (r Repo) GetDesign(ctx context.Context, id string) (domain.Design, error) {
	return r.GetDesignTx(ctx, nil, id)
}

func (r Repo) GetDesignTx(ctx context.Context, tx *sql.Tx, id string) (domain.Design, error) {
	return scanDesign(r.q(tx).QueryRowContext(ctx, `SELECT `+designColumns+` FROM designs WHERE id=?`, id))
}

// LookupDesign reports a miss as found=false instead of an error.
func (r Repo) LookupDesign(ctx context.Context, id string) (domain.Design, bool, error) {
	d, err := r.GetDesign(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return domain.Design{}, false, nil
	}
	if err != nil {
		return domain.Design{}, false, err
	}
	return d, true, nil
}

func (r Repo) ListDesigns(ctx context.Context, skip, limit int) ([]domain.Design, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+designColumns+` FROM designs ORDER BY id LIMIT ? OFFSET ?`, limit, skip)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Design
	for rows.Next() {
		d, err := scanDesign(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

func (r Repo) CountDesigns(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM designs`).Scan(&n)
	return n, err
}

// DesignPatch maps a field name to its new value; nil clears the field.
type DesignPatch map[string]any

// UpdateDesignTx applies patch and bumps updated_at.
func (r Repo) UpdateDesignTx(ctx context.Context, tx *sql.Tx, id string, patch DesignPatch, updatedAt string) error {
	var (
		fields []string
		args   []any
	)
	for _, f := range domain.RequiredFields {
		v, ok := patch[f]
		if !ok {
			continue
		}
		fields = append(fields, f+"=?")
		args = append(args, v)
	}
	fields = append(fields, "updated_at=?")
	args = append(args, updatedAt, id)
	res, err := r.q(tx).ExecContext(ctx, fmt.Sprintf(`UPDATE designs SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteDesignTx(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM designs WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func floatPtr(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	f := nf.Float64
	return &f
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nowString() string {
	return time.Now().UTC().Format(time.RFC3339)
}
