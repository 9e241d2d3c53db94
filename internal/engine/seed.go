package engine

import (
	"context"

	"cablecheck/internal/domain"
)

func strp(s string) *string     { return &s }
func floatp(f float64) *float64 { return &f }

// SampleDesigns are the reference designs loaded by SeedDesigns.
func SampleDesigns() []domain.Design {
	return []domain.Design{
		{
			ID:                  "DESIGN-001",
			Standard:            strp("IEC 60502-1"),
			Voltage:             strp("0.6/1 kV"),
			ConductorMaterial:   strp("Cu"),
			ConductorClass:      strp("Class 2"),
			CSA:                 floatp(10),
			InsulationMaterial:  strp("PVC"),
			InsulationThickness: floatp(1.0),
		},
		{
			ID:                 "DESIGN-002",
			Standard:           strp("IEC 60502-1"),
			Voltage:            strp("0.6/1 kV"),
			ConductorMaterial:  strp("Cu"),
			CSA:                floatp(16),
			InsulationMaterial: strp("PVC"),
		},
	}
}

// SeedDesigns loads SampleDesigns into an empty design table and reports how
// many were inserted.
func (e Engine) SeedDesigns(ctx context.Context, actorID string) (int, error) {
	n, err := e.Repo.CountDesigns(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		return 0, nil
	}
	for i, d := range SampleDesigns() {
		if _, err := e.CreateDesign(ctx, d, actorID); err != nil {
			return i, err
		}
	}
	return len(SampleDesigns()), nil
}
