package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"cablecheck/internal/config"
	"cablecheck/internal/domain"
	"cablecheck/internal/events"
	"cablecheck/internal/oracle"
	"cablecheck/internal/repo"
	"cablecheck/internal/workflow"
)

// ErrInvalidInput marks a request the caller must fix.
var ErrInvalidInput = errors.New("invalid input")

type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Events   events.Writer
	Config   *config.Config
	Workflow *workflow.Service
	Log      *zap.Logger
	Now      func() time.Time
}

func New(db *sql.DB, cfg *config.Config, o oracle.Oracle, log *zap.Logger) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = zap.NewNop()
	}
	r := repo.Repo{DB: db}
	e := Engine{
		DB:     db,
		Repo:   r,
		Events: events.Writer{},
		Config: cfg,
		Log:    log,
		Now:    time.Now,
	}
	e.Workflow = &workflow.Service{
		Oracle:     o,
		Designs:    r,
		MaxRetries: cfg.Workflow.HITLMaxRetries,
		StepLimit:  cfg.Workflow.StepLimit,
		Log:        log.Named("workflow"),
		Now:        e.now,
	}
	return e
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

// CreateDesign stores a new design under a normalized DESIGN-<digits> id.
func (e Engine) CreateDesign(ctx context.Context, d domain.Design, actorID string) (domain.Design, error) {
	id, ok := domain.NormalizeDesignID(d.ID)
	if !ok {
		return domain.Design{}, fmt.Errorf("%w: design id %q must match DESIGN-<digits>", ErrInvalidInput, d.ID)
	}
	if err := checkDesignValues(d.CSA, d.InsulationThickness); err != nil {
		return domain.Design{}, err
	}
	d.ID = id
	now := e.timestamp()
	d.CreatedAt, d.UpdatedAt = now, now

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Design{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertDesignTx(ctx, tx, d); err != nil {
		return domain.Design{}, err
	}
	if err := e.Events.Append(ctx, tx, events.DesignCreated, "design", d.ID, actorID, events.EventPayload{"attributes": d.Attributes()}); err != nil {
		return domain.Design{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Design{}, err
	}
	return d, nil
}

// UpdateDesign applies a partial update. Keys absent from patch are left
// alone; a nil value clears the field.
func (e Engine) UpdateDesign(ctx context.Context, id string, patch repo.DesignPatch, actorID string) (domain.Design, error) {
	id, ok := domain.NormalizeDesignID(id)
	if !ok {
		return domain.Design{}, fmt.Errorf("design %s: %w", id, repo.ErrNotFound)
	}
	clean := repo.DesignPatch{}
	for field, v := range patch {
		if !domain.IsRequiredField(field) {
			return domain.Design{}, fmt.Errorf("%w: unknown design field %q", ErrInvalidInput, field)
		}
		nv, err := designValue(field, v)
		if err != nil {
			return domain.Design{}, err
		}
		clean[field] = nv
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Design{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateDesignTx(ctx, tx, id, clean, e.timestamp()); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Design{}, fmt.Errorf("design %s: %w", id, err)
		}
		return domain.Design{}, err
	}
	changed := make([]string, 0, len(clean))
	for _, f := range domain.RequiredFields {
		if _, ok := clean[f]; ok {
			changed = append(changed, f)
		}
	}
	if err := e.Events.Append(ctx, tx, events.DesignUpdated, "design", id, actorID, events.EventPayload{"fields": changed}); err != nil {
		return domain.Design{}, err
	}
	d, err := e.Repo.GetDesignTx(ctx, tx, id)
	if err != nil {
		return domain.Design{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Design{}, err
	}
	return d, nil
}

func (e Engine) DeleteDesign(ctx context.Context, id, actorID string) error {
	norm, _ := domain.NormalizeDesignID(id)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteDesignTx(ctx, tx, norm); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("design %s: %w", norm, err)
		}
		return err
	}
	if err := e.Events.Append(ctx, tx, events.DesignDeleted, "design", norm, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) GetDesign(ctx context.Context, id string) (domain.Design, error) {
	norm, _ := domain.NormalizeDesignID(id)
	d, err := e.Repo.GetDesign(ctx, norm)
	if errors.Is(err, repo.ErrNotFound) {
		return d, fmt.Errorf("design %s: %w", norm, err)
	}
	return d, err
}

func designValue(field string, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if domain.IsNumericField(field) {
		f, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("%w: %s must be a number", ErrInvalidInput, field)
		}
		if f <= 0 {
			return nil, fmt.Errorf("%w: %s must be positive", ErrInvalidInput, field)
		}
		return f, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("%w: %s must be a string", ErrInvalidInput, field)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	return s, nil
}

func checkDesignValues(csa, thickness *float64) error {
	if csa != nil && *csa <= 0 {
		return fmt.Errorf("%w: csa must be positive", ErrInvalidInput)
	}
	if thickness != nil && *thickness <= 0 {
		return fmt.Errorf("%w: insulation_thickness must be positive", ErrInvalidInput)
	}
	return nil
}
