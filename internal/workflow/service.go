package workflow

import (
	"context"
	"time"

	"go.uber.org/zap"

	"cablecheck/internal/oracle"
)

// Service is constructed once and serves every request. Each call builds its
// own State.
type Service struct {
	Oracle     oracle.Oracle
	Designs    DesignLookup
	MaxRetries int
	StepLimit  int
	Log        *zap.Logger
	Now        func() time.Time
}

func (s *Service) runner(asker Asker) *Runner {
	return &Runner{Oracle: s.Oracle, Designs: s.Designs, Asker: asker, StepLimit: s.StepLimit, Log: s.Log, Now: s.Now}
}

// Validate runs a fresh request. With hitlMode the result asks for a resume
// when fields are missing.
func (s *Service) Validate(ctx context.Context, input string, hitlMode bool) (Result, error) {
	st := NewState(input, hitlMode, s.MaxRetries)
	if err := s.runner(nil).Run(ctx, st); err != nil {
		return Result{}, err
	}
	return st.result(), nil
}

// Resume reruns input with caller answers for the missing fields. HITL mode
// is always on and the result never asks for another resume.
func (s *Service) Resume(ctx context.Context, input string, responses map[string]string) (Result, error) {
	st := NewState(input, true, s.MaxRetries).WithResponses(responses)
	if err := s.runner(nil).Run(ctx, st); err != nil {
		return Result{}, err
	}
	res := st.result()
	res.HITLRequired = false
	return res, nil
}

// Interactive collects missing fields from asker within the run.
func (s *Service) Interactive(ctx context.Context, input string, asker Asker) (Result, error) {
	st := NewState(input, true, s.MaxRetries)
	if err := s.runner(asker).Run(ctx, st); err != nil {
		return Result{}, err
	}
	return st.result(), nil
}
