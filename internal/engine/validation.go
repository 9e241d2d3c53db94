package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cablecheck/internal/domain"
	"cablecheck/internal/events"
	"cablecheck/internal/workflow"
)

const (
	RunKindValidate = "validate"
	RunKindResume   = "resume"
)

// Validate runs the workflow on a fresh request and records the run.
func (e Engine) Validate(ctx context.Context, input string, hitlMode bool, actorID string) (workflow.Result, error) {
	if strings.TrimSpace(input) == "" {
		return workflow.Result{}, fmt.Errorf("%w: user_input is required", ErrInvalidInput)
	}
	res, err := e.Workflow.Validate(ctx, input, hitlMode)
	if err != nil {
		e.Log.Error("validation run failed", zap.String("kind", RunKindValidate), zap.Error(err))
		return workflow.Result{}, err
	}
	res.RunID = e.record(ctx, RunKindValidate, res, actorID)
	return res, nil
}

// Resume reruns a request with the caller's answers for missing fields.
func (e Engine) Resume(ctx context.Context, input string, responses map[string]string, actorID string) (workflow.Result, error) {
	if strings.TrimSpace(input) == "" {
		return workflow.Result{}, fmt.Errorf("%w: user_input is required", ErrInvalidInput)
	}
	for field := range responses {
		if !domain.IsRequiredField(strings.ToLower(strings.TrimSpace(field))) {
			e.Log.Debug("ignoring answer for unknown field", zap.String("field", field))
		}
	}
	res, err := e.Workflow.Resume(ctx, input, responses)
	if err != nil {
		e.Log.Error("validation run failed", zap.String("kind", RunKindResume), zap.Error(err))
		return workflow.Result{}, err
	}
	res.RunID = e.record(ctx, RunKindResume, res, actorID)
	return res, nil
}

// Interactive collects answers through asker inside the run.
func (e Engine) Interactive(ctx context.Context, input string, asker workflow.Asker, actorID string) (workflow.Result, error) {
	if strings.TrimSpace(input) == "" {
		return workflow.Result{}, fmt.Errorf("%w: user_input is required", ErrInvalidInput)
	}
	res, err := e.Workflow.Interactive(ctx, input, asker)
	if err != nil {
		e.Log.Error("validation run failed", zap.String("kind", RunKindValidate), zap.Bool("interactive", true), zap.Error(err))
		return workflow.Result{}, err
	}
	res.RunID = e.record(ctx, RunKindValidate, res, actorID)
	return res, nil
}

// record stores the run and its event. History is best effort: a storage
// failure is logged and the result is still returned, without a run id.
func (e Engine) record(ctx context.Context, kind string, res workflow.Result, actorID string) string {
	run := domain.Run{
		ID:                uuid.NewString(),
		Kind:              kind,
		UserInput:         res.UserInput,
		Route:             res.Route,
		DesignID:          res.DesignID,
		Attributes:        res.Attributes,
		MissingAttributes: res.MissingAttributes,
		Validation:        res.Validation,
		Reasoning:         res.Reasoning,
		Confidence:        res.Confidence,
		HITLMode:          res.HITLMode,
		HITLRequired:      res.HITLRequired,
		Interactions:      res.HITLInteractions,
		CreatedAt:         e.timestamp(),
	}
	if err := e.persistRun(ctx, run, actorID); err != nil {
		e.Log.Warn("could not record validation run", zap.String("run_id", run.ID), zap.Error(err))
		return ""
	}
	return run.ID
}

func (e Engine) persistRun(ctx context.Context, run domain.Run, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertRunTx(ctx, tx, run); err != nil {
		return err
	}
	payload := events.EventPayload{
		"kind":          run.Kind,
		"route":         run.Route,
		"missing":       run.MissingAttributes,
		"hitl_required": run.HITLRequired,
	}
	if run.DesignID != "" {
		payload["design_id"] = run.DesignID
	}
	if run.Confidence != nil {
		payload["confidence"] = *run.Confidence
	}
	if err := e.Events.Append(ctx, tx, events.ValidationCompleted, "validation_run", run.ID, actorID, payload); err != nil {
		return err
	}
	return tx.Commit()
}
