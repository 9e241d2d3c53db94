package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"cablecheck/internal/domain"
	"cablecheck/internal/oracle"
)

const DefaultStepLimit = 50

// ErrStepBudgetExceeded aborts a run that took more transitions than allowed.
var ErrStepBudgetExceeded = errors.New("workflow step budget exceeded")

type Step int

const (
	StepRoute Step = iota
	StepFetch
	StepExtract
	StepCheckMissing
	StepValidate
	StepHITLPrompt
	StepAskMissing
	StepRevalidate
	StepEnd
)

var stepNames = [...]string{
	StepRoute:        "route",
	StepFetch:        "fetch_design",
	StepExtract:      "extract_from_text",
	StepCheckMissing: "check_missing",
	StepValidate:     "validate",
	StepHITLPrompt:   "hitl_prompt",
	StepAskMissing:   "ask_missing",
	StepRevalidate:   "revalidate",
	StepEnd:          "end",
}

func (s Step) String() string {
	if s < 0 || int(s) >= len(stepNames) {
		return fmt.Sprintf("step(%d)", int(s))
	}
	return stepNames[s]
}

// Runner executes the step graph over one State. It holds no per-run data
// and may be shared by concurrent runs.
type Runner struct {
	Oracle    oracle.Oracle
	Designs   DesignLookup
	Asker     Asker
	StepLimit int
	Log       *zap.Logger
	Now       func() time.Time
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Runner) log() *zap.Logger {
	if r.Log != nil {
		return r.Log
	}
	return zap.NewNop()
}

// Run drives st from StepRoute to StepEnd.
func (r *Runner) Run(ctx context.Context, st *State) error {
	limit := r.StepLimit
	if limit <= 0 {
		limit = DefaultStepLimit
	}
	step := StepRoute
	for n := 0; step != StepEnd; n++ {
		if n >= limit {
			return fmt.Errorf("%w: %d transitions, stopped at %s", ErrStepBudgetExceeded, limit, step)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		next, err := r.exec(ctx, step, st)
		if err != nil {
			return fmt.Errorf("%s: %w", step, err)
		}
		r.log().Debug("workflow step", zap.Stringer("step", step), zap.Stringer("next", next),
			zap.Strings("missing", st.MissingAttributes))
		step = next
	}
	return nil
}

func (r *Runner) exec(ctx context.Context, step Step, st *State) (Step, error) {
	switch step {
	case StepRoute:
		st.Route = Classify(ctx, r.Oracle, st.UserInput)
		return afterRoute(st), nil
	case StepFetch:
		if err := r.fetch(ctx, st); err != nil {
			return StepEnd, err
		}
		return StepCheckMissing, nil
	case StepExtract:
		st.Attributes = ExtractAttributes(ctx, r.Oracle, st.UserInput)
		return StepCheckMissing, nil
	case StepCheckMissing:
		st.MissingAttributes = DetectMissing(st.Attributes)
		return StepValidate, nil
	case StepValidate:
		r.validate(ctx, st)
		return afterValidate(st), nil
	case StepHITLPrompt:
		r.prepareHITL(st)
		return afterHITLPrompt(st), nil
	case StepAskMissing:
		r.askMissing(ctx, st)
		return r.afterAskMissing(st), nil
	case StepRevalidate:
		r.validate(ctx, st)
		return StepEnd, nil
	}
	return StepEnd, fmt.Errorf("unknown step %d", int(step))
}

func (r *Runner) fetch(ctx context.Context, st *State) error {
	st.Attributes = domain.Attributes{}
	id, ok := ResolveDesignID(ctx, r.Oracle, st.UserInput)
	if !ok {
		return nil
	}
	st.DesignID = id
	if r.Designs == nil {
		return nil
	}
	d, found, err := r.Designs.LookupDesign(ctx, id)
	if err != nil {
		return fmt.Errorf("lookup design %s: %w", id, err)
	}
	st.DesignFound = found
	if found {
		st.Attributes = d.Attributes()
	}
	r.mergePresupplied(ctx, st)
	return nil
}

func (r *Runner) validate(ctx context.Context, st *State) {
	a := Validator{Oracle: r.Oracle, Log: r.log()}.Assess(ctx, st.Attributes, st.MissingAttributes, !st.InitialValidationDone)
	st.Validation = a.Items
	reasoning, confidence := a.Reasoning, a.Confidence
	st.Reasoning = &reasoning
	st.Confidence = &confidence
	st.Degraded = a.Degraded
	if !a.Degraded {
		st.InitialValidationDone = true
	}
}

func afterRoute(st *State) Step {
	switch st.Route {
	case domain.RouteFetchDesign:
		return StepFetch
	case domain.RouteExtractFromText:
		return StepExtract
	}
	return StepEnd
}

func afterValidate(st *State) Step {
	if !st.HITLMode || len(st.MissingAttributes) == 0 || !st.InitialValidationDone {
		return StepEnd
	}
	for _, it := range st.Validation {
		if it.Status == domain.StatusWarn && st.isMissing(it.Field) {
			return StepHITLPrompt
		}
	}
	return StepEnd
}

func afterHITLPrompt(st *State) Step {
	switch {
	case st.SkipHITLCollection:
		return StepEnd
	case len(st.MissingAttributes) > 0:
		return StepAskMissing
	}
	return StepRevalidate
}

// afterAskMissing loops while a field is still missing and something can
// still supply it. Fields no answer covers are left missing for revalidation.
func (r *Runner) afterAskMissing(st *State) Step {
	if len(st.MissingAttributes) > 0 && (st.hasPendingResponses() || r.Asker != nil) {
		return StepAskMissing
	}
	return StepRevalidate
}
